package inject

import (
	"context"

	"go.viam.com/dollygrip/components/motor"
)

// Motor is an injected motor.
type Motor struct {
	motor.Motor
	name                string
	SetSpeedFunc        func(ctx context.Context, speedPct float64, blocking bool) error
	RunForRotationsFunc func(ctx context.Context, speedPct, rotations float64, blocking bool) error
	StopFunc            func(ctx context.Context) error
	CloseFunc           func(ctx context.Context) error
}

// NewMotor returns a new injected motor.
func NewMotor(name string) *Motor {
	return &Motor{name: name}
}

// Name returns the name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// SetSpeed calls the injected SetSpeed or the real version.
func (m *Motor) SetSpeed(ctx context.Context, speedPct float64, blocking bool) error {
	if m.SetSpeedFunc == nil {
		return m.Motor.SetSpeed(ctx, speedPct, blocking)
	}
	return m.SetSpeedFunc(ctx, speedPct, blocking)
}

// RunForRotations calls the injected RunForRotations or the real version.
func (m *Motor) RunForRotations(ctx context.Context, speedPct, rotations float64, blocking bool) error {
	if m.RunForRotationsFunc == nil {
		return m.Motor.RunForRotations(ctx, speedPct, rotations, blocking)
	}
	return m.RunForRotationsFunc(ctx, speedPct, rotations, blocking)
}

// Stop calls the injected Stop or the real version.
func (m *Motor) Stop(ctx context.Context) error {
	if m.StopFunc == nil {
		return m.Motor.Stop(ctx)
	}
	return m.StopFunc(ctx)
}

// Close calls the injected Close or the real version.
func (m *Motor) Close(ctx context.Context) error {
	if m.CloseFunc == nil {
		if m.Motor == nil {
			return nil
		}
		return m.Motor.Close(ctx)
	}
	return m.CloseFunc(ctx)
}
