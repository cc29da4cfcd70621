package inject

import (
	"context"

	"go.viam.com/dollygrip/components/motor"
)

// MotorController is an injected motor controller.
type MotorController struct {
	motor.Controller
	SetSpeedFunc        func(ctx context.Context, id motor.ID, speedPct float64, blocking bool) error
	RunForRotationsFunc func(ctx context.Context, id motor.ID, speedPct, rotations float64, blocking bool) error
	StopFunc            func(ctx context.Context, id motor.ID) error
}

// SetSpeed calls the injected SetSpeed or the real version.
func (c *MotorController) SetSpeed(ctx context.Context, id motor.ID, speedPct float64, blocking bool) error {
	if c.SetSpeedFunc == nil {
		return c.Controller.SetSpeed(ctx, id, speedPct, blocking)
	}
	return c.SetSpeedFunc(ctx, id, speedPct, blocking)
}

// RunForRotations calls the injected RunForRotations or the real version.
func (c *MotorController) RunForRotations(ctx context.Context, id motor.ID, speedPct, rotations float64, blocking bool) error {
	if c.RunForRotationsFunc == nil {
		return c.Controller.RunForRotations(ctx, id, speedPct, rotations, blocking)
	}
	return c.RunForRotationsFunc(ctx, id, speedPct, rotations, blocking)
}

// Stop calls the injected Stop or the real version.
func (c *MotorController) Stop(ctx context.Context, id motor.ID) error {
	if c.StopFunc == nil {
		return c.Controller.Stop(ctx, id)
	}
	return c.StopFunc(ctx, id)
}
