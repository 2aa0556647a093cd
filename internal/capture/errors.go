package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice means no camera (or matching device) is present.
	ErrNoDevice = errors.New("no camera device found")

	// ErrUnavailable means a device exists but could not be opened:
	// permission denied, busy, missing capture backend or start timeout.
	ErrUnavailable = errors.New("camera unavailable")
)

// StartError describes a failed attempt to open a device.
type StartError struct {
	Device Device
	Cause  error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("camera %s could not be started: %v", e.Device, e.Cause)
}

// Unwrap lets errors.Is match both ErrUnavailable and the cause.
func (e *StartError) Unwrap() []error {
	return []error{ErrUnavailable, e.Cause}
}
