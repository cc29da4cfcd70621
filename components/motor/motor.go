// Package motor defines the actuators of the dolly: the camera tilt motor and the two drive
// motors, and the controller that addresses them by ID.
package motor

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ID names a motor slot on the dolly.
type ID string

// The motor slots.
const (
	Tilt       ID = "tilt"
	DriveLeft  ID = "drive_left"
	DriveRight ID = "drive_right"
)

// AllIDs lists every motor slot in stop order.
var AllIDs = []ID{Tilt, DriveLeft, DriveRight}

// DriveIDs lists the two drive motors.
var DriveIDs = []ID{DriveLeft, DriveRight}

// A Motor is a single actuator. Speeds are percentages of full speed between -100 and 100;
// negative values turn backward.
type Motor interface {
	// Name returns the configured name of the motor.
	Name() string

	// SetSpeed runs the motor at speedPct until told otherwise. If blocking, it returns only
	// once the motor has been stopped by another command or ctx is done.
	SetSpeed(ctx context.Context, speedPct float64, blocking bool) error

	// RunForRotations turns the motor the given number of rotations. The direction is the
	// product of the signs of speedPct and rotations. If blocking, it returns once the move
	// is complete or cancelled by a newer command.
	RunForRotations(ctx context.Context, speedPct, rotations float64, blocking bool) error

	// Stop halts the motor and cancels any command in progress.
	Stop(ctx context.Context) error

	// Close stops the motor and releases its hardware.
	Close(ctx context.Context) error
}

// A Controller drives motors by slot. It is the capability the dispatcher consumes.
type Controller interface {
	SetSpeed(ctx context.Context, id ID, speedPct float64, blocking bool) error
	RunForRotations(ctx context.Context, id ID, speedPct, rotations float64, blocking bool) error
	Stop(ctx context.Context, id ID) error
}

// ClampSpeedPct limits a signed speed to [-100, 100].
func ClampSpeedPct(speedPct float64) float64 {
	return math.Max(-100, math.Min(100, speedPct))
}

// Group is a Controller over a fixed set of motors.
type Group struct {
	motors map[ID]Motor
}

var _ Controller = (*Group)(nil)

// NewGroup returns a Group over the given motors. Every slot in AllIDs must be filled.
func NewGroup(motors map[ID]Motor) (*Group, error) {
	for _, id := range AllIDs {
		if m, ok := motors[id]; !ok || m == nil {
			return nil, errors.Errorf("no motor configured for %q", id)
		}
	}
	copied := make(map[ID]Motor, len(motors))
	for id, m := range motors {
		copied[id] = m
	}
	return &Group{motors: copied}, nil
}

func (g *Group) get(id ID) (Motor, error) {
	m, ok := g.motors[id]
	if !ok {
		return nil, NewUnknownMotorError(id)
	}
	return m, nil
}

// Motor returns the motor in the given slot.
func (g *Group) Motor(id ID) (Motor, error) {
	return g.get(id)
}

// IDs returns the filled slots, sorted.
func (g *Group) IDs() []ID {
	ids := make([]ID, 0, len(g.motors))
	for id := range g.motors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetSpeed sets the speed of the motor in the given slot.
func (g *Group) SetSpeed(ctx context.Context, id ID, speedPct float64, blocking bool) error {
	m, err := g.get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(m.SetSpeed(ctx, ClampSpeedPct(speedPct), blocking), "motor %s", id)
}

// RunForRotations runs the motor in the given slot for a number of rotations.
func (g *Group) RunForRotations(ctx context.Context, id ID, speedPct, rotations float64, blocking bool) error {
	m, err := g.get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(m.RunForRotations(ctx, ClampSpeedPct(speedPct), rotations, blocking), "motor %s", id)
}

// Stop stops the motor in the given slot.
func (g *Group) Stop(ctx context.Context, id ID) error {
	m, err := g.get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(m.Stop(ctx), "motor %s", id)
}

// StopAll stops every motor, attempting all of them even if some fail.
func (g *Group) StopAll(ctx context.Context) error {
	var err error
	for _, id := range g.IDs() {
		err = multierr.Combine(err, g.Stop(ctx, id))
	}
	return err
}

// Close closes every motor.
func (g *Group) Close(ctx context.Context) error {
	var err error
	for _, id := range g.IDs() {
		err = multierr.Combine(err, errors.Wrapf(g.motors[id].Close(ctx), "closing motor %s", id))
	}
	return err
}
