package ev3dev

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// FakeTacho records what a motor backend asks of a tacho motor.
type FakeTacho struct {
	Counts int
	Max    int

	mu         sync.Mutex
	stopAction string
	speed      int
	position   int
	commands   []string
	running    bool
	stateErr   error
}

var _ Tacho = (*FakeTacho)(nil)

// NewFakeTacho returns an idle motor reporting the given counts per rotation and max speed.
func NewFakeTacho(countPerRot, maxSpeed int) *FakeTacho {
	return &FakeTacho{Counts: countPerRot, Max: maxSpeed}
}

func (f *FakeTacho) String() string { return "fake tacho" }

// CountPerRot returns Counts.
func (f *FakeTacho) CountPerRot() int { return f.Counts }

// MaxSpeed returns Max.
func (f *FakeTacho) MaxSpeed() int { return f.Max }

// SetStopAction records action.
func (f *FakeTacho) SetStopAction(action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAction = action
	return nil
}

// SetSpeed records the speed setpoint.
func (f *FakeTacho) SetSpeed(countsPerSecond int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speed = countsPerSecond
	return nil
}

// SetPosition records the position setpoint.
func (f *FakeTacho) SetPosition(counts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = counts
	return nil
}

// Command records command.
func (f *FakeTacho) Command(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

// Running returns what SetRunning last set.
func (f *FakeTacho) Running() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.stateErr
}

// SetRunning sets the reported state.
func (f *FakeTacho) SetRunning(running bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running, f.stateErr = running, err
}

// Setpoints returns the last speed and position setpoints.
func (f *FakeTacho) Setpoints() (speed, position int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speed, f.position
}

// StopAction returns the last stop action.
func (f *FakeTacho) StopAction() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopAction
}

// Commands returns every command sent, oldest first.
func (f *FakeTacho) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// LastCommand returns the newest command, or "".
func (f *FakeTacho) LastCommand() string {
	cmds := f.Commands()
	if len(cmds) == 0 {
		return ""
	}
	return cmds[len(cmds)-1]
}

// FakeSensor serves value0 from a settable integer.
type FakeSensor struct {
	mu    sync.Mutex
	mode  string
	value string
}

var _ Sensor = (*FakeSensor)(nil)

func (f *FakeSensor) String() string { return "fake sensor" }

// SetMode records mode.
func (f *FakeSensor) SetMode(mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	return nil
}

// Mode returns the last mode set.
func (f *FakeSensor) Mode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetValue sets what value0 reads.
func (f *FakeSensor) SetValue(v int) {
	f.SetRaw(strconv.Itoa(v))
}

// SetRaw sets the raw text value0 reads.
func (f *FakeSensor) SetRaw(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = raw
}

// Value returns value0; other indexes are an error.
func (f *FakeSensor) Value(n int) (string, error) {
	if n != 0 {
		return "", errors.Errorf("value%d not available", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

// FakeLight records its on/off state.
type FakeLight struct {
	mu sync.Mutex
	on bool
}

var _ Light = (*FakeLight)(nil)

// Set records on.
func (f *FakeLight) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
	return nil
}

// On reports the last state set.
func (f *FakeLight) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}
