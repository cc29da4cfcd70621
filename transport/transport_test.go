package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/dollygrip/logging"
)

type handled struct {
	payload string
	debug   string
}

type recordingHandler struct {
	mu      sync.Mutex
	seen    []handled
	running int
	maxSeen int
	release chan struct{}
}

func (h *recordingHandler) HandleDirective(ctx context.Context, payload []byte) {
	h.mu.Lock()
	h.running++
	if h.running > h.maxSeen {
		h.maxSeen = h.running
	}
	h.mu.Unlock()

	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.running--
	h.seen = append(h.seen, handled{payload: string(payload), debug: logging.DebugKey(ctx)})
}

func (h *recordingHandler) get() []handled {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handled(nil), h.seen...)
}

func TestSerialOrder(t *testing.T) {
	h := &recordingHandler{}
	s := NewSerial(h, 0, logging.NewTestLogger(t))
	defer s.Close()

	ctx := context.Background()
	test.That(t, s.Deliver(ctx, []byte("1")), test.ShouldBeNil)
	test.That(t, s.Deliver(logging.EnableDebugMode(ctx, "abc"), []byte("2")), test.ShouldBeNil)
	s.HandleDirective(ctx, []byte("3"))

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.get(), test.ShouldResemble, []handled{{"1", ""}, {"2", "abc"}, {"3", ""}})
	})
	test.That(t, h.maxSeen, test.ShouldEqual, 1)
}

func TestSerialCopiesPayload(t *testing.T) {
	h := &recordingHandler{release: make(chan struct{})}
	s := NewSerial(h, 4, logging.NewTestLogger(t))
	defer s.Close()

	buf := []byte("stop")
	test.That(t, s.Deliver(context.Background(), buf), test.ShouldBeNil)
	copy(buf, "xxxx")
	close(h.release)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.get(), test.ShouldResemble, []handled{{"stop", ""}})
	})
}

func TestSerialBackpressure(t *testing.T) {
	h := &recordingHandler{release: make(chan struct{})}
	s := NewSerial(h, 1, logging.NewTestLogger(t))

	ctx := context.Background()
	// The first directive blocks in the handler, the second fills the queue.
	test.That(t, s.Deliver(ctx, []byte("1")), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, s.Pending(), test.ShouldEqual, 0)
	})
	test.That(t, s.Deliver(ctx, []byte("2")), test.ShouldBeNil)
	test.That(t, s.Pending(), test.ShouldEqual, 1)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	test.That(t, s.Deliver(timeoutCtx, []byte("3")), test.ShouldBeError, context.DeadlineExceeded)

	s.Close()
	test.That(t, s.Deliver(ctx, []byte("4")), test.ShouldBeError, ErrClosed)
	// Closing cancels the directive in progress.
	test.That(t, h.get(), test.ShouldResemble, []handled{{"1", ""}})
}
