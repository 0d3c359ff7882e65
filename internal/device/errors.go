package device

import (
	"errors"
	"fmt"
)

// Sentinel errors for device operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrDeviceNotFound indicates the device ID is not registered.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrUnknownAction indicates no handler exists for the action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownClass indicates the config names an unregistered device class.
	ErrUnknownClass = errors.New("unknown device class")

	// ErrInvalidConfig indicates a device config file failed validation.
	ErrInvalidConfig = errors.New("invalid device config")

	// ErrShuttingDown indicates an operation arrived during manager shutdown.
	ErrShuttingDown = errors.New("device manager shutting down")
)

// ParamError reports a command parameter that failed validation.
type ParamError struct {
	Name   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Name, e.Reason)
}
