// Package colorsensor defines sensors that classify the surface beneath them into a small set of
// named colors.
package colorsensor

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Color is a discrete color classification. The values match the EV3 color sensor's
// COL-COLOR readings.
type Color int

// The color vocabulary.
const (
	NoColor Color = iota
	Black
	Blue
	Green
	Yellow
	Red
	White
	Brown
)

var colorNames = []string{"NoColor", "Black", "Blue", "Green", "Yellow", "Red", "White", "Brown"}

// Colors returns the full vocabulary in reading order.
func Colors() []Color {
	return lo.Map(colorNames, func(_ string, i int) Color { return Color(i) })
}

func (c Color) String() string {
	if c < 0 || int(c) >= len(colorNames) {
		return "Unknown"
	}
	return colorNames[c]
}

// ParseColor returns the color with the given name, ignoring case.
func ParseColor(name string) (Color, error) {
	name = strings.TrimSpace(name)
	_, idx, ok := lo.FindIndexOf(colorNames, func(n string) bool { return strings.EqualFold(n, name) })
	if !ok {
		return NoColor, errors.Errorf("unknown color %q, expected one of %v", name, colorNames)
	}
	return Color(idx), nil
}

// MarshalText encodes the color as its name.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a color name.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// A ColorSensor reads the color beneath it. Every call samples the hardware.
type ColorSensor interface {
	Name() string
	Color(ctx context.Context) (Color, error)
	Close(ctx context.Context) error
}
