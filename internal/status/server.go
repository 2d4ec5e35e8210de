// Package status serves the daemon's connection status, tracked calls,
// metrics and a websocket call feed over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/client"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// StatusSource reports the AMI connection status. *client.Client satisfies it.
type StatusSource interface {
	Status() client.Status
}

// CallSource returns copies of the tracked calls. *tracker.Tracker satisfies it.
type CallSource interface {
	Snapshot() []tracker.Call
}

type Server struct {
	status  StatusSource
	calls   CallSource
	hub     *Hub
	metrics http.Handler
	logger  *zap.Logger
}

func NewServer(status StatusSource, calls CallSource, hub *Hub, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Server{
		status:  status,
		calls:   calls,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /calls", s.handleCalls)
	mux.Handle("GET /metrics", s.metrics)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.handleWS)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.status.Status())
}

func (s *Server) handleCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.calls.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}

	s.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))
	sub := s.hub.add(conn, s.calls.Snapshot())

	go func() {
		defer func() {
			s.hub.remove(sub)
			s.logger.Debug("websocket client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
