package operation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Exclusive lets one motion run on an actuator at a time. Beginning a motion preempts the one
// before it, except when the new motion is started from inside the current one. The zero value
// is ready to use.
type Exclusive struct {
	mu sync.Mutex
	// current is the generation of the running motion; 0 means idle.
	current uint64
	issued  uint64
	cancel  context.CancelFunc
}

// motionKey marks a context as belonging to a motion of one Exclusive.
type motionKey struct{ owner *Exclusive }

func (e *Exclusive) generation(ctx context.Context) uint64 {
	gen, _ := ctx.Value(motionKey{e}).(uint64)
	return gen
}

func (e *Exclusive) preemptLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	e.current, e.cancel = 0, nil
}

// Begin starts a motion and returns its context along with the func that ends it. Called with a
// context from one of this Exclusive's motions, it joins that motion instead.
func (e *Exclusive) Begin(ctx context.Context) (context.Context, func()) {
	if e.generation(ctx) != 0 {
		return ctx, func() {}
	}

	e.mu.Lock()
	e.preemptLocked()
	e.issued++
	gen := e.issued
	motionCtx, cancel := context.WithCancel(context.WithValue(ctx, motionKey{e}, gen))
	e.current, e.cancel = gen, cancel
	e.mu.Unlock()

	return motionCtx, func() {
		e.mu.Lock()
		if e.current == gen {
			e.current, e.cancel = 0, nil
		}
		e.mu.Unlock()
		cancel()
	}
}

// Preempt cancels the running motion. It does nothing when ctx belongs to a motion.
func (e *Exclusive) Preempt(ctx context.Context) {
	if e.generation(ctx) != 0 {
		return
	}
	e.mu.Lock()
	e.preemptLocked()
	e.mu.Unlock()
}

// Busy reports whether a motion is running.
func (e *Exclusive) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != 0
}

// Poll runs a motion that checks done every interval until it reports true or fails.
func (e *Exclusive) Poll(ctx context.Context, interval time.Duration, done func(context.Context) (bool, error)) error {
	ctx, end := e.Begin(ctx)
	defer end()

	for {
		ok, err := done(ctx)
		if err != nil || ok {
			return err
		}
		if !utils.SelectContextOrWait(ctx, interval) {
			return ctx.Err()
		}
	}
}

// Mover reports whether an actuator is still executing a command.
type Mover interface {
	IsMoving(ctx context.Context) (bool, error)
}

// WaitIdle runs a motion that lasts until mover is idle. When the wait is cancelled, stop is
// called unless a newer motion has already taken over the actuator.
func (e *Exclusive) WaitIdle(
	ctx context.Context,
	interval time.Duration,
	mover Mover,
	stop func(context.Context) error,
) (err error) {
	ctx, end := e.Begin(ctx)
	defer end()
	gen := e.generation(ctx)

	defer func() {
		if !errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		e.mu.Lock()
		superseded := e.current != 0 && e.current != gen
		e.mu.Unlock()
		if !superseded {
			err = multierr.Combine(err, stop(context.Background()))
		}
	}()

	return e.Poll(ctx, interval, func(ctx context.Context) (bool, error) {
		moving, err := mover.IsMoving(ctx)
		return !moving, err
	})
}
