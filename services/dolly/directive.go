package dolly

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// The directive types.
const (
	TypePitch    = "pitch"
	TypePosition = "position"
	TypeStop     = "stop"
)

// NoTarget is the position value of an untargeted move.
const NoTarget = "none"

// requiredFields lists, per directive type, the fields that must be present.
var requiredFields = map[string][]string{
	TypePitch:    {"direction", "angle"},
	TypePosition: {"position", "direction", "speed"},
	TypeStop:     {},
}

// A Directive is one decoded voice command. Numbers may arrive as JSON numbers or numeric
// strings.
type Directive struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
	// Angle is in degrees.
	Angle    int    `json:"angle"`
	Position string `json:"position"`
	// Speed is a percentage of full speed.
	Speed int `json:"speed"`
}

// Targeted returns whether a position directive drives until a color is seen.
func (d *Directive) Targeted() bool {
	return !strings.EqualFold(strings.TrimSpace(d.Position), NoTarget)
}

// MarshalPayload encodes the directive with only the fields its type uses.
func (d *Directive) MarshalPayload() ([]byte, error) {
	fields, ok := requiredFields[d.Type]
	if !ok {
		return nil, errors.Errorf("unknown directive type %q", d.Type)
	}
	out := map[string]interface{}{"type": d.Type}
	for _, field := range fields {
		switch field {
		case "direction":
			out[field] = d.Direction
		case "angle":
			out[field] = d.Angle
		case "position":
			out[field] = d.Position
		case "speed":
			out[field] = d.Speed
		}
	}
	return json.Marshal(out)
}

// ParseDirective decodes a UTF-8 JSON object into a Directive, checking that every field its
// type requires is present.
func ParseDirective(payload []byte) (*Directive, error) {
	if !utf8.Valid(payload) {
		return nil, errors.New("directive is not valid UTF-8")
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding directive")
	}
	typeVal, ok := raw["type"]
	if !ok || typeVal == nil {
		return nil, &MissingFieldError{Field: "type"}
	}
	directiveType := fmt.Sprint(typeVal)
	fields, ok := requiredFields[directiveType]
	if !ok {
		return nil, errors.Errorf("unknown directive type %q", directiveType)
	}
	for _, field := range fields {
		if v, ok := raw[field]; !ok || v == nil {
			return nil, &MissingFieldError{Type: directiveType, Field: field}
		}
	}

	var d Directive
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &d,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrapf(err, "decoding %s directive", directiveType)
	}
	return &d, nil
}
