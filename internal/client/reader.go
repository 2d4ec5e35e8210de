package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

// DefaultReadPoll bounds each read so the reader notices cancellation.
const DefaultReadPoll = 100 * time.Millisecond

// EventReader pulls records off an authenticated connection and queues the
// events among them in arrival order.
type EventReader struct {
	conn   net.Conn
	buf    []byte
	queue  *Queue
	poll   time.Duration
	logger *zap.Logger
}

// NewEventReader creates a reader on conn. pending holds bytes that arrived
// with the login response.
func NewEventReader(conn net.Conn, pending []byte, queue *Queue, poll time.Duration, logger *zap.Logger) *EventReader {
	if poll <= 0 {
		poll = DefaultReadPoll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventReader{
		conn:   conn,
		buf:    pending,
		queue:  queue,
		poll:   poll,
		logger: logger,
	}
}

// Run reads until ctx is done, the peer closes (ErrPeerClosed) or the read
// fails. It returns nil only when ctx ends the loop.
func (r *EventReader) Run(ctx context.Context) error {
	chunk := make([]byte, 4096)
	r.drain()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(r.poll)); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.ErrClosedPipe):
				return ErrPeerClosed
			}
			return fmt.Errorf("setting read deadline: %w", err)
		}
		n, err := r.conn.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			r.drain()
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			continue
		case errors.Is(err, io.EOF):
			return ErrPeerClosed
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reading events: %w", err)
		}
	}
}

// drain queues every complete record in the buffer.
func (r *EventReader) drain() {
	for {
		record, rest := ami.ExtractRecord(r.buf)
		if record == nil {
			return
		}
		r.buf = rest
		evt, ok := ami.ParseRecord(record)
		if !ok {
			if resp := ami.ParseResponse(record); resp.IsResponse() {
				r.logger.Debug("skipping response",
					zap.String("response", resp.Get("Response")),
					zap.String("message", resp.Get("Message")))
			}
			continue
		}
		r.queue.Push(evt)
	}
}
