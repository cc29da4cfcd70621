package dolly

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTargetUnreachable is returned when a targeted move gives up before seeing its color.
var ErrTargetUnreachable = errors.New("target color not reached")

// MissingFieldError reports a directive without a field its type requires.
type MissingFieldError struct {
	Type  string
	Field string
}

func (e *MissingFieldError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("directive is missing %q", e.Field)
	}
	return fmt.Sprintf("%s directive is missing %q", e.Type, e.Field)
}
