// Package transport carries directives from the outside world to the dolly. Every transport
// feeds a Serial pump so directives are handled one at a time in arrival order.
package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/logging"
)

// DefaultQueueSize is how many directives may wait behind the one being handled.
const DefaultQueueSize = 16

// ErrClosed is returned by Deliver after the pump is closed.
var ErrClosed = errors.New("directive pump is closed")

// A Handler consumes directives.
type Handler interface {
	HandleDirective(ctx context.Context, payload []byte)
}

// Lifecycle receives connection notifications from a transport.
type Lifecycle interface {
	OnConnected(addr string)
	OnDisconnected(addr string)
}

// A Gadget is a Handler that also follows connections.
type Gadget interface {
	Handler
	Lifecycle
}

type queued struct {
	payload  []byte
	debugKey string
}

// Serial hands directives to a Handler from a single goroutine.
type Serial struct {
	handler Handler
	logger  logging.Logger
	queue   chan queued

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewSerial starts a pump in front of handler. A non-positive size means DefaultQueueSize.
func NewSerial(handler Handler, size int, logger logging.Logger) *Serial {
	if size <= 0 {
		size = DefaultQueueSize
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	s := &Serial{
		handler:   handler,
		logger:    logger,
		queue:     make(chan queued, size),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(s.run, s.activeBackgroundWorkers.Done)
	return s
}

func (s *Serial) run() {
	for {
		select {
		case <-s.cancelCtx.Done():
			return
		case item := <-s.queue:
			if s.cancelCtx.Err() != nil {
				return
			}
			ctx := s.cancelCtx
			if item.debugKey != "" {
				ctx = logging.EnableDebugMode(ctx, item.debugKey)
			}
			s.handler.HandleDirective(ctx, item.payload)
		}
	}
}

// Deliver queues a directive, blocking while the queue is full. Debug mode on ctx carries over to
// the handler.
func (s *Serial) Deliver(ctx context.Context, payload []byte) error {
	item := queued{payload: append([]byte(nil), payload...), debugKey: logging.DebugKey(ctx)}
	select {
	case <-s.cancelCtx.Done():
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancelCtx.Done():
		return ErrClosed
	case s.queue <- item:
		s.logger.CDebugw(ctx, "queued directive", "pending", len(s.queue))
		return nil
	}
}

// HandleDirective queues a directive, logging if it could not be queued.
func (s *Serial) HandleDirective(ctx context.Context, payload []byte) {
	if err := s.Deliver(ctx, payload); err != nil {
		s.logger.Warnw("dropping directive", "error", err, "directive", string(payload))
	}
}

// Pending returns how many directives are waiting.
func (s *Serial) Pending() int {
	return len(s.queue)
}

// Close cancels the directive in progress, drops the queue and waits for the pump to exit.
func (s *Serial) Close() {
	s.cancel()
	s.activeBackgroundWorkers.Wait()
}
