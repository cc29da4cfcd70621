package inject

import (
	"context"

	"go.viam.com/dollygrip/components/colorsensor"
)

// ColorSensor is an injected color sensor.
type ColorSensor struct {
	colorsensor.ColorSensor
	name      string
	ColorFunc func(ctx context.Context) (colorsensor.Color, error)
	CloseFunc func(ctx context.Context) error
}

// NewColorSensor returns a new injected color sensor.
func NewColorSensor(name string) *ColorSensor {
	return &ColorSensor{name: name}
}

// Name returns the name of the sensor.
func (s *ColorSensor) Name() string {
	return s.name
}

// Color calls the injected Color or the real version.
func (s *ColorSensor) Color(ctx context.Context) (colorsensor.Color, error) {
	if s.ColorFunc == nil {
		return s.ColorSensor.Color(ctx)
	}
	return s.ColorFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *ColorSensor) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.ColorSensor == nil {
			return nil
		}
		return s.ColorSensor.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
