package mqtt

import (
	"context"
	"sync"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/dollygrip/logging"
)

type received struct {
	payload string
	debug   string
}

type fakeGadget struct {
	mu        sync.Mutex
	received  []received
	connected []string
	dropped   []string
}

func (g *fakeGadget) HandleDirective(ctx context.Context, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.received = append(g.received, received{string(payload), logging.DebugKey(ctx)})
}

func (g *fakeGadget) OnConnected(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = append(g.connected, addr)
}

func (g *fakeGadget) OnDisconnected(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropped = append(g.dropped, addr)
}

func (g *fakeGadget) directives() []received {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]received(nil), g.received...)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	test.That(t, cfg.Validate("broker"), test.ShouldBeNil)
	test.That(t, cfg.topic(), test.ShouldEqual, DefaultTopic)

	cfg.Topic = "dolly/#"
	test.That(t, cfg.Validate("broker"), test.ShouldNotBeNil)

	cfg = Config{Users: []User{{Password: "secret"}}}
	err := cfg.Validate("broker")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "broker.users.0")
}

func TestLedger(t *testing.T) {
	l := ledger(&Config{Topic: "studio/dolly", Users: []User{{Username: "echo", Password: "pw"}}})
	test.That(t, len(l.Auth), test.ShouldEqual, 3)
	test.That(t, l.Auth[2], test.ShouldResemble, auth.AuthRule{Username: "echo", Password: "pw", Allow: true})
	test.That(t, len(l.ACL), test.ShouldEqual, 4)
	test.That(t, l.ACL[2].Filters["studio/dolly"], test.ShouldEqual, auth.WriteOnly)
	test.That(t, l.ACL[3].Filters["#"], test.ShouldEqual, auth.ReadOnly)
}

func TestBrokerDeliversDirectives(t *testing.T) {
	g := &fakeGadget{}
	b, err := NewBroker(Config{}, g, g, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Start(), test.ShouldBeNil)
	test.That(t, b.Start(), test.ShouldBeNil)
	defer func() {
		test.That(t, b.Close(), test.ShouldBeNil)
	}()

	test.That(t, b.Topic(), test.ShouldEqual, DefaultTopic)
	test.That(t, b.Publish([]byte(`{"type":"stop"}`)), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, g.directives(), test.ShouldResemble, []received{{`{"type":"stop"}`, ""}})
	})
}

func TestDebugProperty(t *testing.T) {
	g := &fakeGadget{}
	b, err := NewBroker(Config{Topic: "studio/dolly"}, g, g, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	pk := packets.Packet{TopicName: "studio/dolly", Payload: []byte(`{"type":"stop"}`)}
	pk.Properties.User = []packets.UserProperty{{Key: DebugProperty, Val: "trace-1"}}
	b.onDirective(&mochi.Client{ID: "echo"}, packets.Subscription{}, pk)
	test.That(t, g.directives(), test.ShouldResemble, []received{{`{"type":"stop"}`, "trace-1"}})
}

func TestLifecycleHook(t *testing.T) {
	g := &fakeGadget{}
	h := new(LifecycleHook)
	test.That(t, h.Init(nil), test.ShouldBeError, mochi.ErrInvalidConfigType)
	test.That(t, h.Init(&LifecycleHookOptions{Lifecycle: g}), test.ShouldBeNil)
	test.That(t, h.Provides(mochi.OnSessionEstablished), test.ShouldBeTrue)
	test.That(t, h.Provides(mochi.OnDisconnect), test.ShouldBeTrue)
	test.That(t, h.Provides(mochi.OnPublish), test.ShouldBeFalse)

	cl := &mochi.Client{ID: "echo-dot"}
	h.OnSessionEstablished(cl, packets.Packet{})
	h.OnDisconnect(cl, nil, false)
	test.That(t, g.connected, test.ShouldResemble, []string{"echo-dot"})
	test.That(t, g.dropped, test.ShouldResemble, []string{"echo-dot"})
}
