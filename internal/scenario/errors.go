package scenario

import (
	"errors"
	"fmt"
)

// Sentinel errors for scenario operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidRole indicates the role is not defined by the scenario.
	ErrInvalidRole = errors.New("invalid scenario role")

	// ErrMissingDevice indicates a role's target device is not registered.
	ErrMissingDevice = errors.New("scenario device missing")

	// ErrNoActiveScenario indicates a role action with nothing active.
	ErrNoActiveScenario = errors.New("no active scenario")

	// ErrUnknownScenario indicates the scenario ID is not loaded.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrScenarioNotActive indicates a shutdown request for a scenario that
	// is not the active one.
	ErrScenarioNotActive = errors.New("scenario not active")

	// ErrScenarioActive indicates a start request while another scenario is
	// already active.
	ErrScenarioActive = errors.New("another scenario is active")

	// ErrInvalidDefinition indicates a definition file failed validation.
	ErrInvalidDefinition = errors.New("invalid scenario definition")
)

// ExecutionError reports a role-action failure with its full context.
type ExecutionError struct {
	Role     string
	DeviceID string
	Command  string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("scenario action %s/%s on %s: %v", e.Role, e.Command, e.DeviceID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
