// Package dolly turns voice directives into camera dolly motion. A Dispatcher interprets one
// directive at a time against the motor and color sensing capabilities, and a Gadget adapts it
// to the host's connection lifecycle.
package dolly

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/benbjohnson/clock"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/dollygrip/components/colorsensor"
	"go.viam.com/dollygrip/components/motor"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
)

// A Dispatcher handles directives serially. It holds no locks and must only be called from one
// goroutine at a time.
type Dispatcher struct {
	motors motor.Controller
	sensor colorsensor.ColorSensor
	cfg    Config
	clock  clock.Clock
	ops    *operation.Manager
	logger logging.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for the targeted move timeout.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithOperations sets the manager that tracks directives in flight.
func WithOperations(ops *operation.Manager) Option {
	return func(d *Dispatcher) {
		d.ops = ops
	}
}

// NewDispatcher returns a dispatcher over the given capabilities.
func NewDispatcher(
	motors motor.Controller,
	sensor colorsensor.ColorSensor,
	cfg Config,
	logger logging.Logger,
	opts ...Option,
) (*Dispatcher, error) {
	if err := cfg.Validate("dispatch"); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		motors: motors,
		sensor: sensor,
		cfg:    cfg,
		clock:  clock.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ops == nil {
		d.ops = operation.NewManager(logger)
	}
	return d, nil
}

// Operations returns the manager tracking directives in flight.
func (d *Dispatcher) Operations() *operation.Manager {
	return d.ops
}

// Handle interprets one directive. Failures are logged and the directive is dropped; Handle
// never panics.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) {
	err := d.Dispatch(ctx, payload)
	var missing *MissingFieldError
	switch {
	case err == nil:
	case errors.As(err, &missing):
		d.logger.Warnw("dropping incomplete directive", "error", err.Error(), "directive", string(payload))
	case errors.Is(err, ErrTargetUnreachable):
		d.logger.Warnw("targeted move stopped", "error", err.Error(), "directive", string(payload))
	default:
		d.logger.Errorw("failed to handle directive", "error", err.Error(), "directive", string(payload))
	}
}

// Dispatch interprets one directive and returns what went wrong, if anything. Panics raised by
// the capabilities are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("panic handling directive: %v", r)
		}
	}()

	directive, err := ParseDirective(payload)
	if err != nil {
		return err
	}
	ctx, done := d.ops.Create(ctx, directive.Type, payload)
	defer done()

	switch directive.Type {
	case TypeStop:
		return d.stopAll(ctx)
	case TypePitch:
		return d.pitch(ctx, directive.Direction, directive.Angle)
	case TypePosition:
		return d.position(ctx, directive)
	}
	return pkgerrors.Errorf("unhandled directive type %q", directive.Type)
}

// stopAll stops every motor exactly once, even if some fail.
func (d *Dispatcher) stopAll(ctx context.Context) error {
	var err error
	for _, id := range motor.AllIDs {
		err = multierr.Combine(err, d.motors.Stop(ctx, id))
	}
	return err
}

func (d *Dispatcher) pitch(ctx context.Context, direction string, angle int) error {
	rotations := float64(angle) * d.cfg.RotationsPerDegree
	tag, _ := Resolve(direction)
	switch tag {
	case Up:
		return d.motors.RunForRotations(ctx, motor.Tilt, d.cfg.PitchSpeedPct, rotations, false)
	case Down:
		return d.motors.RunForRotations(ctx, motor.Tilt, -d.cfg.PitchSpeedPct, rotations, false)
	default:
		d.logger.CDebugw(ctx, "ignoring pitch direction", "direction", direction)
		return nil
	}
}

// driveSpeeds returns the left and right speeds that translate the dolly. The drive motors face
// opposite ways, so they turn in opposite directions.
func driveSpeeds(tag Tag, speedPct float64) (left, right float64, ok bool) {
	switch tag {
	case Forward:
		return -speedPct, speedPct, true
	case Backward:
		return speedPct, -speedPct, true
	default:
		return 0, 0, false
	}
}

func (d *Dispatcher) position(ctx context.Context, directive *Directive) error {
	speed := math.Max(0, math.Min(100, float64(directive.Speed)))
	tag, _ := Resolve(directive.Direction)
	left, right, ok := driveSpeeds(tag, speed)
	if !ok {
		d.logger.CDebugw(ctx, "ignoring position direction", "direction", directive.Direction)
		return nil
	}
	if !directive.Targeted() {
		return d.drive(ctx, left, right)
	}
	target, err := colorsensor.ParseColor(directive.Position)
	if err != nil {
		return pkgerrors.Wrap(err, "position target")
	}
	if speed == 0 {
		// Nothing would move, so the target could never be reached.
		d.logger.CDebugw(ctx, "ignoring targeted move at zero speed", "target", target.String())
		return nil
	}
	return d.driveUntil(ctx, target, left, right)
}

func (d *Dispatcher) drive(ctx context.Context, left, right float64) error {
	d.logger.CDebugw(ctx, "drive", "left", left, "right", right)
	return multierr.Combine(
		d.motors.SetSpeed(ctx, motor.DriveLeft, left, false),
		d.motors.SetSpeed(ctx, motor.DriveRight, right, false),
	)
}

func (d *Dispatcher) stopDrive(ctx context.Context) error {
	return multierr.Combine(
		d.motors.Stop(ctx, motor.DriveLeft),
		d.motors.Stop(ctx, motor.DriveRight),
	)
}

// driveUntil drives until the sensor reads target, then stops the drive motors. The drive
// command is issued once, after the first reading that doesn't match. The drive motors are stopped
// on every way out, including a panic, and the stop ignores cancellation of ctx.
func (d *Dispatcher) driveUntil(ctx context.Context, target colorsensor.Color, left, right float64) error {
	stopCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			if stopErr := d.stopDrive(stopCtx); stopErr != nil {
				d.logger.Errorw("failed to stop drive after panic", "error", stopErr.Error())
			}
			panic(r)
		}
	}()

	logger := d.logger.WithFields("target", target.String())
	deadline := d.clock.Now().Add(d.cfg.TargetTimeout)
	driving := false
	for {
		reading, err := d.sensor.Color(ctx)
		if err != nil {
			return multierr.Combine(pkgerrors.Wrap(err, "reading color"), d.stopDrive(stopCtx))
		}
		if reading == target {
			logger.CDebugw(ctx, "reached target", "driven", driving)
			return d.stopDrive(stopCtx)
		}
		if !driving {
			if err := d.drive(ctx, left, right); err != nil {
				return multierr.Combine(err, d.stopDrive(stopCtx))
			}
			driving = true
		}
		if d.cfg.TargetTimeout > 0 && !d.clock.Now().Before(deadline) {
			err := pkgerrors.Wrap(ErrTargetUnreachable, fmt.Sprintf("%s not seen within %v", target, d.cfg.TargetTimeout))
			return multierr.Combine(err, d.stopDrive(stopCtx))
		}
		if err := d.wait(ctx); err != nil {
			return multierr.Combine(err, d.stopDrive(stopCtx))
		}
	}
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.cfg.PollInterval <= 0 {
		return ctx.Err()
	}
	timer := d.clock.Timer(d.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
