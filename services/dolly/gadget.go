package dolly

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/components/ev3dev"
	"go.viam.com/dollygrip/logging"
)

// An Indicator shows whether any host is connected.
type Indicator interface {
	SetConnected(ctx context.Context, connected bool) error
}

// LogIndicator logs connection changes.
type LogIndicator struct {
	Logger logging.Logger
}

// SetConnected logs the new state.
func (li LogIndicator) SetConnected(ctx context.Context, connected bool) error {
	li.Logger.Infow("indicator", "connected", connected)
	return nil
}

// LEDIndicator lights the EV3 brick status LEDs while a host is connected.
type LEDIndicator struct {
	leds []ev3dev.Light
}

// DefaultLEDs are the green channels of both brick status lights.
var DefaultLEDs = []string{"green:left", "green:right"}

// NewLEDIndicator opens the named brick light channels, or DefaultLEDs when none are named.
func NewLEDIndicator(names ...string) (*LEDIndicator, error) {
	if len(names) == 0 {
		names = DefaultLEDs
	}
	leds := make([]ev3dev.Light, 0, len(names))
	for _, name := range names {
		led, err := ev3dev.OpenLight(name)
		if err != nil {
			return nil, err
		}
		leds = append(leds, led)
	}
	return newLEDIndicator(leds...), nil
}

func newLEDIndicator(leds ...ev3dev.Light) *LEDIndicator {
	return &LEDIndicator{leds: leds}
}

// SetConnected turns the LEDs on or off.
func (li *LEDIndicator) SetConnected(ctx context.Context, connected bool) error {
	var err error
	for _, led := range li.leds {
		err = multierr.Combine(err, led.Set(connected))
	}
	return err
}

const indicatorQueueSize = 8

// A Gadget connects a Dispatcher to its host: directives go to the dispatcher and connection
// changes drive the indicator without blocking directive handling.
type Gadget struct {
	dispatcher *Dispatcher
	indicator  Indicator
	logger     logging.Logger

	mu          sync.Mutex
	connections map[string]struct{}
	closed      bool

	states                  chan bool
	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewGadget returns a gadget handing directives to dispatcher.
func NewGadget(dispatcher *Dispatcher, indicator Indicator, logger logging.Logger) *Gadget {
	cancelCtx, cancel := context.WithCancel(context.Background())
	g := &Gadget{
		dispatcher:  dispatcher,
		indicator:   indicator,
		logger:      logger,
		connections: map[string]struct{}{},
		states:      make(chan bool, indicatorQueueSize),
		cancelCtx:   cancelCtx,
		cancel:      cancel,
	}
	g.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(g.indicate)
	return g
}

func (g *Gadget) indicate() {
	defer g.activeBackgroundWorkers.Done()
	for {
		select {
		case <-g.cancelCtx.Done():
			return
		case connected := <-g.states:
			if err := g.indicator.SetConnected(g.cancelCtx, connected); err != nil {
				g.logger.Warnw("failed to update indicator", "connected", connected, "error", err)
			}
		}
	}
}

func (g *Gadget) setConnection(addr string, connected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	before := len(g.connections) > 0
	if connected {
		g.connections[addr] = struct{}{}
	} else {
		delete(g.connections, addr)
	}
	after := len(g.connections) > 0
	if before == after {
		return
	}
	select {
	case g.states <- after:
	default:
		g.logger.Warnw("indicator is backed up, dropping update", "connected", after)
	}
}

// OnConnected records a host connection.
func (g *Gadget) OnConnected(addr string) {
	g.logger.Infow("connected", "addr", addr)
	g.setConnection(addr, true)
}

// OnDisconnected records a host disconnection.
func (g *Gadget) OnDisconnected(addr string) {
	g.logger.Infow("disconnected", "addr", addr)
	g.setConnection(addr, false)
}

// Connected returns whether any host is connected.
func (g *Gadget) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.connections) > 0
}

// HandleDirective hands a directive to the dispatcher.
func (g *Gadget) HandleDirective(ctx context.Context, payload []byte) {
	g.logger.CDebugw(ctx, "directive", "payload", string(payload))
	g.dispatcher.Handle(ctx, payload)
}

// Close stops the indicator worker and turns the indicator off.
func (g *Gadget) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.activeBackgroundWorkers.Wait()
	return errors.Wrap(g.indicator.SetConnected(ctx, false), "turning off indicator")
}
