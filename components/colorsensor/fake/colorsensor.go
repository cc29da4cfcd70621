// Package fake implements a color sensor that replays a scripted sequence of readings.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/dollygrip/components/colorsensor"
)

// Config describes the configuration of a fake color sensor.
type Config struct {
	// Script is the sequence of readings; the last one repeats forever.
	Script []colorsensor.Color `json:"script,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	for i, c := range cfg.Script {
		if c < colorsensor.NoColor || c > colorsensor.Brown {
			return errors.Errorf("%s.script.%d: unknown color %d", path, i, int(c))
		}
	}
	return nil
}

// A ColorSensor returns scripted readings.
type ColorSensor struct {
	name string

	mu     sync.Mutex
	script []colorsensor.Color
	reads  int
}

var _ colorsensor.ColorSensor = (*ColorSensor)(nil)

// NewColorSensor returns a sensor replaying the configured script. An empty script always reads
// NoColor.
func NewColorSensor(name string, cfg Config) *ColorSensor {
	return &ColorSensor{name: name, script: append([]colorsensor.Color(nil), cfg.Script...)}
}

// Name returns the name of the sensor.
func (s *ColorSensor) Name() string {
	return s.name
}

// Color returns the next scripted reading.
func (s *ColorSensor) Color(ctx context.Context) (colorsensor.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return colorsensor.NoColor, err
	}
	s.reads++
	if len(s.script) == 0 {
		return colorsensor.NoColor, nil
	}
	c := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return c, nil
}

// SetScript replaces the remaining readings.
func (s *ColorSensor) SetScript(script ...colorsensor.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append([]colorsensor.Color(nil), script...)
}

// Reads returns how many times the sensor has been sampled.
func (s *ColorSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close is a no-op.
func (s *ColorSensor) Close(ctx context.Context) error {
	return nil
}
