// Package ev3dev narrows the ev3go drivers for LEGO tacho motors, sensors and brick LEDs to the
// calls the dolly makes, so the backends can run against doubles off the brick.
package ev3dev

import (
	"fmt"
	"sort"
	"strings"

	ev3go "github.com/ev3go/ev3dev"
	"github.com/ev3go/ev3dev/ev3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// portPrefix is how ev3dev addresses the brick's own ports.
const portPrefix = "ev3-ports:"

// Address turns a short port name such as "outA" into the ev3dev address "ev3-ports:outA".
// Full addresses are returned unchanged.
func Address(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return portPrefix + port
}

// A Tacho is a tacho motor.
type Tacho interface {
	fmt.Stringer
	CountPerRot() int
	MaxSpeed() int
	SetStopAction(action string) error
	SetSpeed(countsPerSecond int) error
	SetPosition(counts int) error
	Command(command string) error
	// Running reports whether the driver state includes "running".
	Running() (bool, error)
}

type tacho struct {
	m *ev3go.TachoMotor
}

// OpenTacho returns the tacho motor on port.
func OpenTacho(port string) (Tacho, error) {
	m, err := ev3go.TachoMotorFor(Address(port), "")
	if err != nil {
		return nil, errors.Wrapf(err, "no tacho motor on %s", port)
	}
	return tacho{m: m}, nil
}

func (t tacho) String() string {
	return t.m.String()
}

func (t tacho) CountPerRot() int {
	return t.m.CountPerRot()
}

func (t tacho) MaxSpeed() int {
	return t.m.MaxSpeed()
}

func (t tacho) SetStopAction(action string) error {
	return t.m.SetStopAction(action).Err()
}

func (t tacho) SetSpeed(countsPerSecond int) error {
	return t.m.SetSpeedSetpoint(countsPerSecond).Err()
}

func (t tacho) SetPosition(counts int) error {
	return t.m.SetPositionSetpoint(counts).Err()
}

func (t tacho) Command(command string) error {
	return t.m.Command(command).Err()
}

func (t tacho) Running() (bool, error) {
	state, err := t.m.State()
	if err != nil {
		return false, err
	}
	return state&ev3go.Running != 0, nil
}

// A Sensor is a LEGO sensor.
type Sensor interface {
	fmt.Stringer
	SetMode(mode string) error
	// Value returns value<n> in the current mode.
	Value(n int) (string, error)
}

type sensor struct {
	s *ev3go.Sensor
}

// OpenSensor returns the sensor on port. The driver on the port must match driver.
func OpenSensor(port, driver string) (Sensor, error) {
	s, err := ev3go.SensorFor(Address(port), driver)
	if err != nil {
		return nil, errors.Wrapf(err, "no %s sensor on %s", driver, port)
	}
	return sensor{s: s}, nil
}

func (s sensor) String() string {
	return s.s.String()
}

func (s sensor) SetMode(mode string) error {
	return s.s.SetMode(mode).Err()
}

func (s sensor) Value(n int) (string, error) {
	return s.s.Value(n)
}

// A Light is one color channel of a brick status light.
type Light interface {
	// Set turns the channel fully on or off.
	Set(on bool) error
}

type light struct {
	led *ev3go.LED
}

func (l light) Set(on bool) error {
	brightness := 0
	if on {
		full, err := l.led.MaxBrightness()
		if err != nil {
			return err
		}
		brightness = full
	}
	return l.led.SetBrightness(brightness).Err()
}

var brickLights = map[string]*ev3go.LED{
	"green:left":  ev3.GreenLeft,
	"green:right": ev3.GreenRight,
	"red:left":    ev3.RedLeft,
	"red:right":   ev3.RedRight,
}

// LightNames lists the brick status light channels, e.g. "green:left".
func LightNames() []string {
	names := lo.Keys(brickLights)
	sort.Strings(names)
	return names
}

// OpenLight returns the named brick status light channel.
func OpenLight(name string) (Light, error) {
	led, ok := brickLights[name]
	if !ok {
		return nil, errors.Errorf("unknown brick light %q, expected one of %v", name, LightNames())
	}
	return light{led: led}, nil
}
