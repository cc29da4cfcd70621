package mqttclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"go.viam.com/test"
	"go.viam.com/utils"
	"go.viam.com/utils/testutils"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/transport/mqtt"
)

type recorder struct {
	mu       sync.Mutex
	payloads []string
	keys     []string
	events   []string
}

func (r *recorder) HandleDirective(ctx context.Context, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(payload))
	r.keys = append(r.keys, logging.DebugKey(ctx))
}

func (r *recorder) OnConnected(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "up "+addr)
}

func (r *recorder) OnDisconnected(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "down "+addr)
}

func (r *recorder) snapshot() ([]string, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...), append([]string(nil), r.keys...), append([]string(nil), r.events...)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		url string
		err string
	}{
		{"", "url is required"},
		{"http://broker:1883", "unsupported scheme"},
		{"mqtt://broker:1883", ""},
		{"wss://broker/mqtt", ""},
	} {
		t.Run(tc.url, func(t *testing.T) {
			cfg := Config{URL: tc.url}
			err := cfg.Validate("mqtt")
			if tc.err == "" {
				test.That(t, err, test.ShouldBeNil)
				return
			}
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}

	cfg := Config{URL: "mqtt://broker:1883"}
	full := cfg.withDefaults()
	test.That(t, full.ClientID, test.ShouldEqual, "dolly")
	test.That(t, full.Topic, test.ShouldEqual, mqtt.DefaultTopic)
	test.That(t, full.KeepAlive, test.ShouldEqual, uint16(20))
}

func TestPublishReceived(t *testing.T) {
	rec := &recorder{}
	c, err := newClient(Config{URL: "mqtt://broker:1883"}, rec, rec, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	handled, err := c.onPublishReceived(paho.PublishReceived{Packet: &paho.Publish{
		Topic:   "elsewhere",
		Payload: []byte(`{"type":"stop"}`),
	}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, handled, test.ShouldBeFalse)

	handled, err = c.onPublishReceived(paho.PublishReceived{Packet: &paho.Publish{
		Topic:   mqtt.DefaultTopic,
		Payload: []byte(`{"type":"stop"}`),
		Properties: &paho.PublishProperties{
			User: paho.UserProperties{{Key: DebugProperty, Value: "trace-7"}},
		},
	}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, handled, test.ShouldBeTrue)

	payloads, keys, _ := rec.snapshot()
	test.That(t, payloads, test.ShouldResemble, []string{`{"type":"stop"}`})
	test.That(t, keys, test.ShouldResemble, []string{"trace-7"})
}

func TestSessionCountsOnce(t *testing.T) {
	rec := &recorder{}
	c, err := newClient(Config{URL: "mqtt://broker:1883"}, rec, rec, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	c.markDown()
	c.markUp()
	c.markUp()
	c.markDown()
	c.markDown()
	_, _, events := rec.snapshot()
	test.That(t, events, test.ShouldResemble, []string{"up broker:1883", "down broker:1883"})
}

func TestClientAgainstBroker(t *testing.T) {
	logger := logging.NewTestLogger(t)
	port, err := utils.TryReserveRandomPort()
	test.That(t, err, test.ShouldBeNil)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	brokerSide := &recorder{}
	broker, err := mqtt.NewBroker(mqtt.Config{Address: addr}, brokerSide, brokerSide, logger.Sublogger("broker"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, broker.Start(), test.ShouldBeNil)
	defer func() {
		test.That(t, broker.Close(), test.ShouldBeNil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientSide := &recorder{}
	client, err := NewClient(ctx, Config{URL: "mqtt://" + addr, ClientID: "dolly-test"}, clientSide, clientSide, logger.Sublogger("client"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, client.AwaitConnection(ctx), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, _, events := clientSide.snapshot()
		test.That(tb, events, test.ShouldResemble, []string{"up " + addr})
	})

	test.That(t, client.Publish(logging.EnableDebugMode(ctx, "from-client"), []byte(`{"type":"stop"}`)), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		payloads, keys, events := brokerSide.snapshot()
		test.That(tb, payloads, test.ShouldResemble, []string{`{"type":"stop"}`})
		test.That(tb, keys, test.ShouldResemble, []string{"from-client"})
		test.That(tb, events, test.ShouldResemble, []string{"up dolly-test"})
	})

	test.That(t, broker.Publish([]byte(`{"type":"pitch","direction":"up","angle":10}`)), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		payloads, _, _ := clientSide.snapshot()
		test.That(tb, payloads, test.ShouldContain, `{"type":"pitch","direction":"up","angle":10}`)
	})

	test.That(t, client.Close(ctx), test.ShouldBeNil)
	_, _, events := clientSide.snapshot()
	test.That(t, events, test.ShouldResemble, []string{"up " + addr, "down " + addr})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, _, events := brokerSide.snapshot()
		test.That(tb, events, test.ShouldResemble, []string{"up dolly-test", "down dolly-test"})
	})
}
