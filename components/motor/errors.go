package motor

import "github.com/pkg/errors"

// NewUnknownMotorError returns an error for a slot with no motor behind it.
func NewUnknownMotorError(id ID) error {
	return errors.Errorf("no motor in slot %q", id)
}

// NewSetSpeedUnsupportedError returns an error when a motor cannot run continuously.
func NewSetSpeedUnsupportedError(motorName string) error {
	return errors.Errorf("motor named %s does not support SetSpeed", motorName)
}

// NewZeroSpeedError returns an error representing a request to move a motor at
// zero speed (i.e., moving the motor without moving the motor).
func NewZeroSpeedError() error {
	return errors.New("cannot move motor at a speed that is nearly 0")
}
