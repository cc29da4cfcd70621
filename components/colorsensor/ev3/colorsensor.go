// Package ev3 implements the LEGO EV3 color sensor through ev3dev.
package ev3

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/dollygrip/components/colorsensor"
	"go.viam.com/dollygrip/components/ev3dev"
	"go.viam.com/dollygrip/logging"
)

const (
	driverName = "lego-ev3-color"
	colorMode  = "COL-COLOR"
)

// Config describes the configuration of an EV3 color sensor.
type Config struct {
	// Port is the input port, e.g. "in3".
	Port string `json:"port"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Port == "" {
		return errors.Errorf("%s: port is required", path)
	}
	return nil
}

// A ColorSensor is an EV3 color sensor in color classification mode.
type ColorSensor struct {
	name   string
	sensor ev3dev.Sensor
}

var _ colorsensor.ColorSensor = (*ColorSensor)(nil)

// NewColorSensor finds the color sensor on the configured port and switches it to COL-COLOR mode.
func NewColorSensor(name string, cfg Config, logger logging.Logger) (*ColorSensor, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	sensor, err := ev3dev.OpenSensor(cfg.Port, driverName)
	if err != nil {
		return nil, err
	}
	s, err := newColorSensor(name, sensor)
	if err != nil {
		return nil, err
	}
	logger.Infow("found ev3 color sensor", "name", name, "sensor", sensor.String())
	return s, nil
}

func newColorSensor(name string, sensor ev3dev.Sensor) (*ColorSensor, error) {
	if err := sensor.SetMode(colorMode); err != nil {
		return nil, errors.Wrapf(err, "setting mode of %s", name)
	}
	return &ColorSensor{name: name, sensor: sensor}, nil
}

// Name returns the name of the sensor.
func (s *ColorSensor) Name() string {
	return s.name
}

// Color samples the sensor.
func (s *ColorSensor) Color(ctx context.Context) (colorsensor.Color, error) {
	if err := ctx.Err(); err != nil {
		return colorsensor.NoColor, err
	}
	text, err := s.sensor.Value(0)
	if err != nil {
		return colorsensor.NoColor, err
	}
	raw, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return colorsensor.NoColor, errors.Wrapf(err, "sensor %s", s.name)
	}
	c := colorsensor.Color(raw)
	if c.String() == "Unknown" {
		return colorsensor.NoColor, errors.Errorf("sensor %s returned out of range reading %d", s.name, raw)
	}
	return c, nil
}

// Close is a no-op; the sensor keeps its mode.
func (s *ColorSensor) Close(ctx context.Context) error {
	return nil
}
