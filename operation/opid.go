// Package operation tracks the directives in flight and serializes motion on a single actuator.
package operation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"go.viam.com/dollygrip/logging"
)

// current is the context key holding the directive a context was created for.
type current struct{}

// Operation is a directive being handled.
type Operation struct {
	ID      uuid.UUID
	Type    string
	Payload []byte
	Started time.Time

	cancel context.CancelFunc
}

// Cancel cancels the directive's context. The directive stays listed until its handler returns.
func (o *Operation) Cancel() {
	o.cancel()
}

// Manager holds the directives currently being handled.
type Manager struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]*Operation
	logger   logging.Logger
}

// NewManager returns an empty Manager.
func NewManager(logger logging.Logger) *Manager {
	return &Manager{inFlight: map[uuid.UUID]*Operation{}, logger: logger}
}

// All returns the directives in flight, oldest first.
func (m *Manager) All() []*Operation {
	m.mu.Lock()
	ops := lo.Values(m.inFlight)
	m.mu.Unlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].Started.Before(ops[j].Started) })
	return ops
}

// Create registers a directive and returns a context carrying it. done must be called once the
// directive has been handled. Directives do not nest; Create panics when ctx already has one.
func (m *Manager) Create(ctx context.Context, directiveType string, payload []byte) (_ context.Context, done func()) {
	if Get(ctx) != nil {
		panic("operations cannot be nested")
	}

	op := &Operation{ID: uuid.New(), Type: directiveType, Payload: payload, Started: time.Now()}
	ctx, op.cancel = context.WithCancel(context.WithValue(ctx, current{}, op))
	logger := m.logger.WithFields("op", op.ID.String())

	m.mu.Lock()
	m.inFlight[op.ID] = op
	m.mu.Unlock()
	logger.CDebugw(ctx, "directive started", "type", directiveType)

	return ctx, func() {
		op.cancel()
		m.mu.Lock()
		delete(m.inFlight, op.ID)
		m.mu.Unlock()
		logger.CDebugw(ctx, "directive finished", "elapsed", time.Since(op.Started).String())
	}
}

// Get returns the directive ctx was created for, or nil.
func Get(ctx context.Context) *Operation {
	op, _ := ctx.Value(current{}).(*Operation)
	return op
}
