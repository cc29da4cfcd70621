package dolly

import (
	"time"

	"github.com/pkg/errors"
)

// Config tunes the dispatcher.
type Config struct {
	// RotationsPerDegree converts a pitch angle into tilt motor rotations.
	RotationsPerDegree float64
	// PitchSpeedPct is the tilt motor speed used for pitch moves.
	PitchSpeedPct float64
	// TargetTimeout bounds a targeted move. Zero waits forever.
	TargetTimeout time.Duration
	// PollInterval is the pause between color samples. Zero samples back to back.
	PollInterval time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		RotationsPerDegree: 0.13,
		PitchSpeedPct:      100,
		TargetTimeout:      30 * time.Second,
		PollInterval:       10 * time.Millisecond,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.RotationsPerDegree <= 0 {
		return errors.Errorf("%s: rotations_per_degree must be positive", path)
	}
	if cfg.PitchSpeedPct <= 0 || cfg.PitchSpeedPct > 100 {
		return errors.Errorf("%s: pitch_speed_pct must be in (0, 100]", path)
	}
	if cfg.TargetTimeout < 0 {
		return errors.Errorf("%s: target_timeout cannot be negative", path)
	}
	if cfg.PollInterval < 0 {
		return errors.Errorf("%s: poll_interval cannot be negative", path)
	}
	return nil
}
