package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/dollygrip/config"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
	"go.viam.com/dollygrip/transport/rest"
)

type recordingPump struct {
	mu       sync.Mutex
	payloads []string
}

func (p *recordingPump) Deliver(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, string(payload))
	return nil
}

func (p *recordingPump) Pending() int {
	return 0
}

func (p *recordingPump) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payloads...)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	err := NewApp(out, errOut).Run(append([]string{"dolly"}, args...))
	return out.String(), err
}

func TestSendLocal(t *testing.T) {
	out, err := runApp(t, "send", `{"type":"pitch","direction":"up","angle":5}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `sent {"type":"pitch"`)
}

func TestSendRejectsBadDirectives(t *testing.T) {
	_, err := runApp(t, "send")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "send", `{"type":"pitch","direction":"up"}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "angle")

	_, err = runApp(t, "send", "--http", "http://a", "--mqtt", "mqtt://b", `{"type":"stop"}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "only one of")
}

func TestSendHTTP(t *testing.T) {
	pump := &recordingPump{}
	srv := httptest.NewServer(rest.NewServer(rest.Config{Address: ":0", JWTSecret: "shh"}, pump, nil, logging.NewTestLogger(t)))
	defer srv.Close()

	_, err := runApp(t, "send", "--http", srv.URL, `{"type":"stop"}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "401")
	test.That(t, pump.all(), test.ShouldBeEmpty)
}

func TestSendHTTPAccepted(t *testing.T) {
	pump := &recordingPump{}
	srv := httptest.NewServer(rest.NewServer(rest.Config{Address: ":0"}, pump, nil, logging.NewTestLogger(t)))
	defer srv.Close()

	_, err := runApp(t, "send", "--http", srv.URL+"/", `{"type":"stop"}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pump.all(), test.ShouldResemble, []string{`{"type":"stop"}`})
}

func TestReadDirectives(t *testing.T) {
	pump := &recordingPump{}
	input := strings.NewReader("{\"type\":\"stop\"}\n\n  \n{\"type\":\"pitch\",\"direction\":\"up\",\"angle\":1}\n")
	readDirectives(context.Background(), input, pump.Deliver, logging.NewTestLogger(t))
	test.That(t, pump.all(), test.ShouldResemble, []string{`{"type":"stop"}`, `{"type":"pitch","direction":"up","angle":1}`})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m teleopModel, k string) teleopModel {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(teleopModel)
	if cmd != nil {
		if sent, ok := cmd().(sentMsg); ok {
			next, _ = m.Update(sent)
			m = next.(teleopModel)
		}
	}
	return m
}

func TestTeleopKeys(t *testing.T) {
	pump := &recordingPump{}
	m := newTeleopModel(context.Background(), pump.Deliver, nil, 5, 95)
	test.That(t, m.Init(), test.ShouldBeNil)

	m = press(t, m, "up")
	m = press(t, m, "j")
	m = press(t, m, "+")
	test.That(t, m.speed, test.ShouldEqual, 100)
	m = press(t, m, "w")
	m = press(t, m, "-")
	m = press(t, m, "s")
	m = press(t, m, "space")
	test.That(t, m.last, test.ShouldEqual, `{"type":"stop"}`)
	test.That(t, m.View(), test.ShouldContainSubstring, "speed 90%")

	test.That(t, pump.all(), test.ShouldResemble, []string{
		`{"angle":5,"direction":"up","type":"pitch"}`,
		`{"angle":5,"direction":"down","type":"pitch"}`,
		`{"direction":"forward","position":"none","speed":100,"type":"position"}`,
		`{"direction":"backward","position":"none","speed":90,"type":"position"}`,
		`{"type":"stop"}`,
	})

	next, cmd := m.Update(key("q"))
	m = next.(teleopModel)
	test.That(t, m.quitting, test.ShouldBeTrue)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, m.View(), test.ShouldEqual, "Teleoperation stopped.\n")
}

func TestTeleopLogs(t *testing.T) {
	lines := make(chan string, 1)
	m := newTeleopModel(context.Background(), (&recordingPump{}).Deliver, lines, 5, 50)
	for i := 0; i < maxLogs+2; i++ {
		next, cmd := m.Update(logMsg("line"))
		m = next.(teleopModel)
		test.That(t, cmd, test.ShouldNotBeNil)
	}
	test.That(t, len(m.logs), test.ShouldEqual, maxLogs)
	test.That(t, m.View(), test.ShouldContainSubstring, "line")
}

func TestStatus(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ops := operation.NewManager(logger)
	srv := httptest.NewServer(rest.NewServer(rest.Config{Address: ":0"}, &recordingPump{}, ops, logger))
	defer srv.Close()

	out, err := runApp(t, "status", "--http", srv.URL)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "status ok, 0 queued")
	test.That(t, out, test.ShouldContainSubstring, "no directives in flight")

	_, done := ops.Create(context.Background(), "position", []byte(`{"type":"position"}`))
	defer done()
	out, err = runApp(t, "status", "--http", srv.URL)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "position")
	test.That(t, out, test.ShouldContainSubstring, ops.All()[0].ID.String())

	_, err = runApp(t, "status", "--http", srv.URL+"/missing")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "404")
}

func TestApplyConfigChanges(t *testing.T) {
	logger := logging.NewBlankLogger("serve")
	configs := make(chan *config.Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		applyConfigChanges(ctx, configs, logger, false)
	}()

	configs <- &config.Config{Log: config.LogConfig{Level: "error"}}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logger.GetLevel(), test.ShouldEqual, logging.ERROR)
	})
	cancel()
	<-done
}
