package operation

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/dollygrip/logging"
)

func TestCreate(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	m := NewManager(logger)
	test.That(t, Get(context.Background()), test.ShouldBeNil)
	test.That(t, m.All(), test.ShouldBeEmpty)

	ctx, done := m.Create(logging.EnableDebugMode(context.Background(), "k"), "pitch", []byte(`{"type":"pitch"}`))
	op := Get(ctx)
	test.That(t, op, test.ShouldNotBeNil)
	test.That(t, op.Type, test.ShouldEqual, "pitch")
	test.That(t, string(op.Payload), test.ShouldEqual, `{"type":"pitch"}`)
	test.That(t, len(m.All()), test.ShouldEqual, 1)
	test.That(t, m.All()[0], test.ShouldEqual, op)
	test.That(t, func() { m.Create(ctx, "stop", nil) }, test.ShouldPanic)

	done()
	test.That(t, ctx.Err(), test.ShouldNotBeNil)
	test.That(t, m.All(), test.ShouldBeEmpty)

	finished := logs.FilterMessage("directive finished").All()
	test.That(t, len(finished), test.ShouldEqual, 1)
	test.That(t, finished[0].ContextMap()["op"], test.ShouldEqual, op.ID.String())
}

func TestAllOldestFirst(t *testing.T) {
	m := NewManager(logging.NewTestLogger(t))

	ctx1, done1 := m.Create(context.Background(), "position", nil)
	ctx2, done2 := m.Create(context.Background(), "stop", nil)
	defer done2()

	ops := m.All()
	test.That(t, len(ops), test.ShouldEqual, 2)
	test.That(t, ops[0].Type, test.ShouldEqual, "position")
	test.That(t, ops[1].Type, test.ShouldEqual, "stop")

	done1()
	test.That(t, ctx1.Err(), test.ShouldNotBeNil)
	test.That(t, ctx2.Err(), test.ShouldBeNil)
	test.That(t, len(m.All()), test.ShouldEqual, 1)

	// Cancelling leaves the directive listed until it is done.
	Get(ctx2).Cancel()
	test.That(t, ctx2.Err(), test.ShouldNotBeNil)
	test.That(t, len(m.All()), test.ShouldEqual, 1)
}
