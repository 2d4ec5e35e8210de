package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/ami"
	"github.com/sweeney/asterisk-popup/internal/metrics"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// DefaultDispatchPoll is how long the dispatcher waits on an empty queue
// before checking for cancellation and sweeping expired calls.
const DefaultDispatchPoll = 500 * time.Millisecond

// Dispatcher routes queued events to the tracker by event type.
type Dispatcher struct {
	queue   *Queue
	tracker *tracker.Tracker
	poll    time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(queue *Queue, tr *tracker.Tracker, poll time.Duration, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if poll <= 0 {
		poll = DefaultDispatchPoll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		tracker: tr,
		poll:    poll,
		logger:  logger,
		metrics: m,
	}
}

// Run dispatches events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		evt, ok := d.queue.Pop(ctx, d.poll)
		if ok {
			d.Dispatch(evt)
		}
		if n := d.tracker.Sweep(); n > 0 {
			d.logger.Debug("removed ended calls", zap.Int("count", n))
		}
		d.metrics.SetQueueDepth(d.queue.Len())
		d.metrics.SetActiveCalls(d.tracker.ActiveCalls())
	}
}

// Dispatch handles one event. A panic while handling it is logged and the
// event dropped.
func (d *Dispatcher) Dispatch(evt ami.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.DispatchPanicked()
			d.logger.Error("event handler panicked",
				zap.String("event", evt.Type()),
				zap.Any("headers", evt.Map()),
				zap.Any("panic", r))
		}
	}()

	switch evt.Type() {
	case "FullyBooted":
		d.logger.Info("asterisk fully booted")
	case "Newchannel":
		d.newChannel(evt)
	case "Newstate":
		d.tracker.HandleNewstate(evt)
	case "NewCallerid":
		d.logger.Debug("caller id updated",
			zap.String("channel", evt.Get("Channel")),
			zap.String("caller_id_num", evt.Get("CallerIDNum")),
			zap.String("caller_id_name", evt.Get("CallerIDName")))
	case "Hangup":
		d.tracker.HandleHangup(evt)
	default:
		return
	}
	d.metrics.EventDispatched(evt.Type())
}

func (d *Dispatcher) newChannel(evt ami.Event) {
	channel := evt.Get("Channel")
	d.logger.Debug("new channel",
		zap.String("channel", channel),
		zap.String("context", evt.Get("Context")),
		zap.String("state", evt.Get("ChannelStateDesc")))

	if evt.Get("Context") == "from-trunk" && evt.Get("ChannelStateDesc") == "Ring" {
		d.logger.Info("incoming call detected",
			zap.String("channel", channel),
			zap.String("caller_id_num", evt.Get("CallerIDNum")))
	}
}
