// Package fake implements an in-memory motor.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/components/motor"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
)

const (
	defaultMaxRPM = 100
	pollTime      = 10 * time.Millisecond
)

// Config describes the configuration of a fake motor.
type Config struct {
	MaxRPM float64 `json:"max_rpm,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.MaxRPM < 0 {
		return errors.Errorf("%s: max_rpm cannot be negative", path)
	}
	return nil
}

// A Motor tracks a commanded speed and simulates the duration of rotation moves.
type Motor struct {
	name   string
	logger logging.Logger
	maxRPM float64

	mu        sync.Mutex
	speedPct  float64
	rotations float64

	opMgr operation.Exclusive
}

var _ motor.Motor = (*Motor)(nil)

// NewMotor returns a stopped fake motor.
func NewMotor(name string, cfg Config, logger logging.Logger) *Motor {
	m := &Motor{name: name, logger: logger, maxRPM: cfg.MaxRPM}
	if m.maxRPM <= 0 {
		logger.Infof("Max RPM not provided to fake motor %s, defaulting to %v", name, defaultMaxRPM)
		m.maxRPM = defaultMaxRPM
	}
	return m
}

// Name returns the name of the motor.
func (m *Motor) Name() string {
	return m.name
}

// SpeedPct returns the commanded speed.
func (m *Motor) SpeedPct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speedPct
}

// Rotations returns the signed rotations completed by RunForRotations moves.
func (m *Motor) Rotations() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

// IsMoving returns whether the motor has a non-zero commanded speed.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	return m.SpeedPct() != 0, nil
}

func (m *Motor) setSpeedPct(speedPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speedPct = speedPct
}

// SetSpeed sets the commanded speed.
func (m *Motor) SetSpeed(ctx context.Context, speedPct float64, blocking bool) error {
	m.opMgr.Preempt(ctx)
	m.logger.CDebugf(ctx, "motor %s SetSpeed %f", m.name, speedPct)
	m.setSpeedPct(motor.ClampSpeedPct(speedPct))
	if !blocking || speedPct == 0 {
		return nil
	}
	return m.opMgr.Poll(ctx, pollTime, func(ctx context.Context) (bool, error) {
		moving, err := m.IsMoving(ctx)
		return !moving, err
	})
}

// moveMath returns the signed speed and how long a move of the given rotations takes.
func moveMath(maxRPM, speedPct, rotations float64) (float64, time.Duration) {
	speedPct = motor.ClampSpeedPct(speedPct)
	dir := math.Copysign(1, speedPct) * math.Copysign(1, rotations)
	rpm := maxRPM * math.Abs(speedPct) / 100
	waitDur := time.Duration(math.Abs(rotations) / rpm * float64(time.Minute))
	return dir * math.Abs(speedPct), waitDur
}

// RunForRotations runs the motor at the given speed for as long as the rotations would take at
// max RPM, then stops it. A newer command cancels the move before it completes.
func (m *Motor) RunForRotations(ctx context.Context, speedPct, rotations float64, blocking bool) error {
	if math.Abs(speedPct) < 0.0001 {
		return motor.NewZeroSpeedError()
	}
	if rotations == 0 {
		return nil
	}

	signedPct, waitDur := moveMath(m.maxRPM, speedPct, rotations)
	m.logger.CDebugf(ctx, "motor %s RunForRotations %f at %f for %v", m.name, rotations, signedPct, waitDur)

	// The move is registered before returning so a following command always cancels it.
	parent := ctx
	if !blocking {
		parent = context.WithoutCancel(ctx)
	}
	opCtx, finish := m.opMgr.Begin(parent)
	m.setSpeedPct(signedPct)

	run := func() bool {
		defer finish()
		if !utils.SelectContextOrWait(opCtx, waitDur) {
			return false
		}
		m.mu.Lock()
		m.rotations += math.Copysign(math.Abs(rotations), signedPct)
		m.speedPct = 0
		m.mu.Unlock()
		return true
	}

	if !blocking {
		utils.PanicCapturingGo(func() { run() })
		return nil
	}
	if !run() && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Stop stops the motor and cancels any running move.
func (m *Motor) Stop(ctx context.Context) error {
	m.opMgr.Preempt(ctx)
	m.logger.CDebugf(ctx, "motor %s Stop", m.name)
	m.setSpeedPct(0)
	return nil
}

// Close stops the motor.
func (m *Motor) Close(ctx context.Context) error {
	return m.Stop(ctx)
}
