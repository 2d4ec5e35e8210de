package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/asterisk-popup/internal/client"
	"github.com/sweeney/asterisk-popup/internal/config"
	"github.com/sweeney/asterisk-popup/internal/logging"
	"github.com/sweeney/asterisk-popup/internal/metrics"
	"github.com/sweeney/asterisk-popup/internal/publisher"
	"github.com/sweeney/asterisk-popup/internal/status"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// pipeline is the tracker with every consumer of its callbacks attached.
type pipeline struct {
	tracker *tracker.Tracker
	metrics *metrics.Metrics
	hub     *status.Hub
}

// newPipeline wires the tracker to metrics, the websocket hub (when hub is
// non-nil) and MQTT (when pub is non-nil).
func newPipeline(extensions tracker.ExtensionSource, pub publisher.Publisher, prefix string, hub *status.Hub, logger *zap.Logger) *pipeline {
	m := metrics.New()
	notifiers := tracker.Notifiers{m}
	if hub != nil {
		notifiers = append(notifiers, hub)
	}

	var sink *publisher.CallSink
	if pub != nil {
		sink = publisher.NewCallSink(pub, prefix,
			publisher.WithSinkLogger(logging.For(logger, logging.ComponentMQTT)))
		notifiers = append(notifiers, sink)
	}

	tr := tracker.New(extensions, notifiers,
		tracker.WithLogger(logging.For(logger, logging.ComponentTracker)))
	if sink != nil {
		sink.Bind(tr)
	}
	return &pipeline{tracker: tr, metrics: m, hub: hub}
}

func runDaemon(ctx context.Context, configPath string) error {
	store, err := config.Open(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := store.Config()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	store.SetLogger(logging.For(logger, logging.ComponentConfig))

	var pub publisher.Publisher
	if cfg.MQTT.Enabled {
		mqttPub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Retain:   cfg.MQTT.Retain,
			Logger:   logging.For(logger, logging.ComponentMQTT),
		})
		if err != nil {
			return err
		}
		defer mqttPub.Close()
		pub = mqttPub
	}

	var hub *status.Hub
	if cfg.HTTP.Listen != "" {
		hub = status.NewHub(logging.For(logger, logging.ComponentHTTP))
	}

	p := newPipeline(store, pub, cfg.MQTT.TopicPrefix, hub, logger)
	amiClient := client.New(store, p.tracker,
		client.WithLogger(logging.For(logger, logging.ComponentAMI)),
		client.WithMetrics(p.metrics))

	onChange := configChangeHandler(store, amiClient, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amiClient.Run(ctx)
	})
	g.Go(func() error {
		if err := store.Watch(ctx, onChange); err != nil {
			logger.Warn("config file watching disabled", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		reloadOnHangup(ctx, store, onChange, logger)
		return nil
	})
	if cfg.HTTP.Listen != "" {
		srv := status.NewServer(amiClient, p.tracker, hub, p.metrics.Handler(),
			logging.For(logger, logging.ComponentHTTP))
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.HTTP.Listen)
		})
	}

	logger.Info("asterisk-popup started",
		zap.String("config", configPath),
		zap.String("ami", cfg.AMI.Addr()),
		zap.Strings("monitor", cfg.Extensions.Monitor),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// configChangeHandler returns the callback run after each reload. Changed
// connection settings drop the current session; every reload resets the
// backoff counter.
func configChangeHandler(store *config.Store, c *client.Client, logger *zap.Logger) func() {
	var mu sync.Mutex
	last := store.AMISettings()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		current := store.AMISettings()
		if current != last {
			logger.Info("AMI settings changed, reconnecting", zap.String("addr", current.Addr()))
			c.Disconnect()
			last = current
		}
		c.Reset()
	}
}

func reloadOnHangup(ctx context.Context, store *config.Store, onChange func(), logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Warn("reload failed", zap.Error(err))
				continue
			}
			onChange()
		}
	}
}
