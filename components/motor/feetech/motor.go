// Package feetech implements a tilt motor on a Feetech STS serial bus servo. The servo holds a
// position, so it supports relative rotation moves but not continuous speed.
package feetech

import (
	"context"
	"math"
	"time"

	servobus "github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/dollygrip/components/motor"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
)

const (
	defaultBaudRate         = 1_000_000
	defaultStepsPerRotation = 4096
	maxPosition             = 4095
	// A move is complete when the servo is within this many steps of its goal.
	positionTolerance = 8
	pollTime          = 20 * time.Millisecond
)

// Config describes the configuration of a servo used as a motor.
type Config struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate,omitempty"`
	ServoID  int    `json:"servo_id"`
	// StepsPerRotation is the number of servo steps per output rotation, including gearing.
	StepsPerRotation int `json:"steps_per_rotation,omitempty"`
	MinPosition      int `json:"min_position,omitempty"`
	MaxPosition      int `json:"max_position,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Port == "" {
		return errors.Errorf("%s: port is required", path)
	}
	if cfg.ServoID < 0 || cfg.ServoID > 253 {
		return errors.Errorf("%s: servo_id must be between 0 and 253", path)
	}
	if cfg.MaxPosition != 0 && cfg.MaxPosition <= cfg.MinPosition {
		return errors.Errorf("%s: max_position must be greater than min_position", path)
	}
	return nil
}

// servo is the subset of bus operations the motor needs for one servo.
type servo interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Position(ctx context.Context) (int, error)
	SetPosition(ctx context.Context, position int) error
}

type groupServo struct {
	group *servobus.ServoGroup
	id    int
}

func (s groupServo) Enable(ctx context.Context) error {
	return s.group.EnableAll(ctx)
}

func (s groupServo) Disable(ctx context.Context) error {
	return s.group.DisableAll(ctx)
}

func (s groupServo) Position(ctx context.Context) (int, error) {
	positions, err := s.group.Positions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "read position")
	}
	raw, ok := positions[s.id]
	if !ok {
		return 0, errors.Errorf("servo %d did not report a position", s.id)
	}
	return raw, nil
}

func (s groupServo) SetPosition(ctx context.Context, position int) error {
	return errors.Wrap(s.group.SetPositions(ctx, servobus.PositionMap{s.id: position}), "write position")
}

// A Motor drives one servo.
type Motor struct {
	name   string
	logger logging.Logger
	servo  servo
	closer func() error

	stepsPerRotation int
	minPosition      int
	maxPosition      int

	opMgr operation.Exclusive
}

var _ motor.Motor = (*Motor)(nil)

// NewMotor opens the serial bus and enables torque on the configured servo.
func NewMotor(ctx context.Context, name string, cfg Config, logger logging.Logger) (*Motor, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = defaultBaudRate
	}
	bus, err := servobus.NewBus(servobus.BusConfig{
		Port:     cfg.Port,
		BaudRate: baud,
		Protocol: servobus.ProtocolSTS,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", cfg.Port)
	}
	s := groupServo{group: servobus.NewServoGroupByIDs(bus, cfg.ServoID), id: cfg.ServoID}
	m, err := newMotor(ctx, name, cfg, s, bus.Close, logger)
	if err != nil {
		return nil, multierr.Combine(err, bus.Close())
	}
	return m, nil
}

func newMotor(ctx context.Context, name string, cfg Config, s servo, closer func() error, logger logging.Logger) (*Motor, error) {
	m := &Motor{
		name:             name,
		logger:           logger,
		servo:            s,
		closer:           closer,
		stepsPerRotation: cfg.StepsPerRotation,
		minPosition:      cfg.MinPosition,
		maxPosition:      cfg.MaxPosition,
	}
	if m.stepsPerRotation <= 0 {
		m.stepsPerRotation = defaultStepsPerRotation
	}
	if m.maxPosition == 0 {
		m.maxPosition = maxPosition
	}
	if err := s.Enable(ctx); err != nil {
		return nil, errors.Wrapf(err, "enable servo for %s", name)
	}
	return m, nil
}

// Name returns the name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// SetSpeed is unsupported on a position servo.
func (m *Motor) SetSpeed(ctx context.Context, speedPct float64, blocking bool) error {
	return motor.NewSetSpeedUnsupportedError(m.name)
}

// RunForRotations moves the servo relative to its current position. Goals past the configured
// travel are clamped to it.
func (m *Motor) RunForRotations(ctx context.Context, speedPct, rotations float64, blocking bool) error {
	m.opMgr.Preempt(ctx)
	if math.Abs(speedPct) < 0.0001 {
		return motor.NewZeroSpeedError()
	}
	current, err := m.servo.Position(ctx)
	if err != nil {
		return err
	}
	steps := int(math.Round(math.Copysign(1, speedPct) * rotations * float64(m.stepsPerRotation)))
	goal := current + steps
	if goal < m.minPosition || goal > m.maxPosition {
		clamped := max(m.minPosition, min(m.maxPosition, goal))
		m.logger.Warnw("servo goal out of travel, clamping", "name", m.name, "goal", goal, "clamped", clamped)
		goal = clamped
	}
	m.logger.CDebugw(ctx, "servo move", "name", m.name, "from", current, "to", goal)
	if err := m.servo.SetPosition(ctx, goal); err != nil {
		return err
	}
	if !blocking {
		return nil
	}
	return m.opMgr.Poll(ctx, pollTime, func(ctx context.Context) (bool, error) {
		pos, err := m.servo.Position(ctx)
		if err != nil {
			return false, err
		}
		return math.Abs(float64(pos-goal)) <= positionTolerance, nil
	})
}

// Stop holds the servo where it is.
func (m *Motor) Stop(ctx context.Context) error {
	m.opMgr.Preempt(ctx)
	pos, err := m.servo.Position(ctx)
	if err != nil {
		return err
	}
	return m.servo.SetPosition(ctx, pos)
}

// Close releases torque and closes the bus.
func (m *Motor) Close(ctx context.Context) error {
	m.opMgr.Preempt(ctx)
	err := m.servo.Disable(ctx)
	if m.closer != nil {
		err = multierr.Combine(err, errors.Wrap(m.closer(), "close bus"))
	}
	return err
}
