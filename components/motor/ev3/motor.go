// Package ev3 implements a LEGO EV3 tacho motor driven through ev3dev.
package ev3

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/dollygrip/components/ev3dev"
	"go.viam.com/dollygrip/components/motor"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
)

const pollTime = 20 * time.Millisecond

var stopActions = []string{"coast", "brake", "hold"}

// Config describes the configuration of an EV3 motor.
type Config struct {
	// Port is the output port, e.g. "outA".
	Port       string `json:"port"`
	StopAction string `json:"stop_action,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Port == "" {
		return errors.Errorf("%s: port is required", path)
	}
	if cfg.StopAction != "" && !lo.Contains(stopActions, cfg.StopAction) {
		return errors.Errorf("%s: stop_action must be one of %v", path, stopActions)
	}
	return nil
}

// A Motor is a tacho motor on one EV3 output port.
type Motor struct {
	name   string
	logger logging.Logger
	tacho  ev3dev.Tacho

	countPerRot int
	maxSpeed    int

	opMgr operation.Exclusive
}

var _ motor.Motor = (*Motor)(nil)

// NewMotor opens the motor on the configured port and sets its stop action.
func NewMotor(name string, cfg Config, logger logging.Logger) (*Motor, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	tacho, err := ev3dev.OpenTacho(cfg.Port)
	if err != nil {
		return nil, err
	}
	return newMotor(name, cfg, tacho, logger)
}

func newMotor(name string, cfg Config, tacho ev3dev.Tacho, logger logging.Logger) (*Motor, error) {
	m := &Motor{name: name, logger: logger, tacho: tacho, countPerRot: tacho.CountPerRot(), maxSpeed: tacho.MaxSpeed()}
	if m.countPerRot <= 0 || m.maxSpeed <= 0 {
		return nil, errors.Errorf("motor %s reports count_per_rot=%d max_speed=%d", name, m.countPerRot, m.maxSpeed)
	}
	stopAction := cfg.StopAction
	if stopAction == "" {
		stopAction = "brake"
	}
	if err := tacho.SetStopAction(stopAction); err != nil {
		return nil, errors.Wrapf(err, "setting stop action of %s", name)
	}
	logger.Infow("found ev3 motor", "name", name, "motor", tacho.String())
	return m, nil
}

// Name returns the name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// speedSP converts a percentage into tacho counts per second.
func (m *Motor) speedSP(speedPct float64) int {
	return int(math.Round(motor.ClampSpeedPct(speedPct) / 100 * float64(m.maxSpeed)))
}

// IsMoving returns whether the driver reports the motor as running.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	return m.tacho.Running()
}

// SetSpeed runs the motor forever at the given speed.
func (m *Motor) SetSpeed(ctx context.Context, speedPct float64, blocking bool) error {
	m.opMgr.Preempt(ctx)
	if math.Abs(speedPct) < 0.0001 {
		return m.command(ctx, "stop")
	}
	if err := m.tacho.SetSpeed(m.speedSP(speedPct)); err != nil {
		return err
	}
	if err := m.command(ctx, "run-forever"); err != nil {
		return err
	}
	if !blocking {
		return nil
	}
	return m.opMgr.WaitIdle(ctx, pollTime, m, m.Stop)
}

// RunForRotations moves the motor relative to its current position.
func (m *Motor) RunForRotations(ctx context.Context, speedPct, rotations float64, blocking bool) error {
	m.opMgr.Preempt(ctx)
	if math.Abs(speedPct) < 0.0001 {
		return motor.NewZeroSpeedError()
	}
	counts := int(math.Round(math.Copysign(1, speedPct) * rotations * float64(m.countPerRot)))
	if counts == 0 {
		return nil
	}
	if err := m.tacho.SetSpeed(int(math.Abs(float64(m.speedSP(speedPct))))); err != nil {
		return err
	}
	if err := m.tacho.SetPosition(counts); err != nil {
		return err
	}
	if err := m.command(ctx, "run-to-rel-pos"); err != nil {
		return err
	}
	if !blocking {
		return nil
	}
	return m.opMgr.WaitIdle(ctx, pollTime, m, m.Stop)
}

func (m *Motor) command(ctx context.Context, cmd string) error {
	m.logger.CDebugw(ctx, "ev3 motor command", "name", m.name, "command", cmd)
	return m.tacho.Command(cmd)
}

// Stop stops the motor using its stop action.
func (m *Motor) Stop(ctx context.Context) error {
	m.opMgr.Preempt(ctx)
	return m.command(ctx, "stop")
}

// Close stops the motor.
func (m *Motor) Close(ctx context.Context) error {
	return m.Stop(ctx)
}
