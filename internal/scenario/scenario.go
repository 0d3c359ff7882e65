package scenario

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// powerCommandPattern matches commands that change device power. Startup
// steps matching it are skipped on devices shared with the outgoing
// scenario during a graceful switch.
var powerCommandPattern = regexp.MustCompile(`(?i)^(power_on|power_off|turn_on|turn_off|on|off|standby|wake|power_toggle|power[_-]cycle)$`)

// isPowerCommand reports whether a command name is a power operation.
func isPowerCommand(command string) bool {
	return powerCommandPattern.MatchString(command)
}

// DeviceProvider is the device-manager port the engine resolves devices
// through. *device.Manager satisfies it.
type DeviceProvider interface {
	GetDevice(deviceID string) (device.Driver, error)
}

// Scenario is an immutable view of a definition bound to the device fleet.
//
// Sequences are best-effort: a failing step is logged and the sequence
// continues. Role actions propagate failures to the caller.
type Scenario struct {
	def     Definition
	devices DeviceProvider
	logger  *logging.Logger
}

// New binds a validated definition to the device provider.
func New(def Definition, devices DeviceProvider, logger *logging.Logger) *Scenario {
	return &Scenario{
		def:     def,
		devices: devices,
		logger:  logger.With("scenario_id", def.ScenarioID),
	}
}

// ID returns the scenario identifier.
func (s *Scenario) ID() string { return s.def.ScenarioID }

// Name returns the scenario display name.
func (s *Scenario) Name() string { return s.def.Name }

// Definition returns a copy of the underlying definition.
func (s *Scenario) Definition() Definition { return s.def }

// DeviceIDs returns the participating device IDs.
func (s *Scenario) DeviceIDs() []string {
	ids := make([]string, len(s.def.Devices))
	copy(ids, s.def.Devices)
	return ids
}

// ExecuteRoleAction resolves a role to its device and invokes a command.
//
// Returns:
//   - device.CommandResponse: The device's response
//   - error: ErrInvalidRole, ErrMissingDevice, or *ExecutionError on failure
func (s *Scenario) ExecuteRoleAction(ctx context.Context, role, command string, params map[string]any) (device.CommandResponse, error) {
	deviceID, ok := s.def.Roles[role]
	if !ok {
		return device.CommandResponse{}, fmt.Errorf("%w: %q in scenario %q", ErrInvalidRole, role, s.def.ScenarioID)
	}

	d, err := s.devices.GetDevice(deviceID)
	if err != nil {
		return device.CommandResponse{}, fmt.Errorf("%w: role %q maps to %q", ErrMissingDevice, role, deviceID)
	}

	response := d.ExecuteAction(ctx, command, params, "scenario")
	if !response.Success {
		return response, &ExecutionError{
			Role:     role,
			DeviceID: deviceID,
			Command:  command,
			Err:      fmt.Errorf("%s", response.Error),
		}
	}

	return response, nil
}

// ExecuteStartupSequence runs the startup steps in order.
//
// Devices in skipPower skip steps whose command is a power operation (they
// stayed on across a graceful switch). Missing devices, false conditions,
// and step failures are logged and skipped; startup is best-effort.
func (s *Scenario) ExecuteStartupSequence(ctx context.Context, skipPower []string) {
	skip := make(map[string]struct{}, len(skipPower))
	for _, id := range skipPower {
		skip[id] = struct{}{}
	}

	s.logger.Info("Startup sequence starting",
		"steps", len(s.def.StartupSequence),
		"shared", len(skipPower),
	)
	s.runSequence(ctx, s.def.StartupSequence, skip)
}

// ExecuteShutdownSequence runs the shutdown steps in order, best-effort.
func (s *Scenario) ExecuteShutdownSequence(ctx context.Context) {
	s.logger.Info("Shutdown sequence starting", "steps", len(s.def.ShutdownSequence))
	s.runSequence(ctx, s.def.ShutdownSequence, nil)
}

// runSequence executes steps in order, tolerating per-step failures.
func (s *Scenario) runSequence(ctx context.Context, steps []CommandStep, skipPower map[string]struct{}) {
	for i, step := range steps {
		d, err := s.devices.GetDevice(step.Device)
		if err != nil {
			s.logger.Warn("Step device missing, continuing",
				"step", i,
				"device_id", step.Device,
			)
			continue
		}

		if skipPower != nil {
			if _, shared := skipPower[step.Device]; shared && isPowerCommand(step.Command) {
				s.logger.Debug("Skipping power step on shared device",
					"step", i,
					"device_id", step.Device,
					"command", step.Command,
				)
				continue
			}
		}

		if !evaluateCondition(step.Condition, d.CurrentState(), s.logger) {
			s.logger.Debug("Step condition false, skipping",
				"step", i,
				"device_id", step.Device,
				"condition", step.Condition,
			)
			continue
		}

		response := d.ExecuteAction(ctx, step.Command, step.Params, "scenario")
		if !response.Success {
			s.logger.Warn("Step failed, continuing",
				"step", i,
				"device_id", step.Device,
				"command", step.Command,
				"error", response.Error,
			)
		}

		if step.DelayAfterMs > 0 {
			select {
			case <-ctx.Done():
				s.logger.Warn("Sequence cancelled", "step", i)
				return
			case <-time.After(time.Duration(step.DelayAfterMs) * time.Millisecond):
			}
		}
	}
}

// ComputeState recomputes the scenario's device summaries from the fleet.
func (s *Scenario) ComputeState() State {
	st := State{
		ScenarioID: s.def.ScenarioID,
		Devices:    make(map[string]DeviceSummary, len(s.def.Devices)),
	}

	for _, id := range s.def.Devices {
		d, err := s.devices.GetDevice(id)
		if err != nil {
			continue
		}

		deviceState := d.CurrentState()
		summary := DeviceSummary{Extra: map[string]any{}}
		for k, v := range deviceState {
			switch k {
			case device.StateFieldPower:
				if p, ok := v.(string); ok {
					summary.Power = p
				}
			case "input_source", "input":
				if in, ok := v.(string); ok {
					summary.Input = in
				}
			case "output":
				if out, ok := v.(string); ok {
					summary.Output = out
				}
			case device.StateFieldDeviceID, device.StateFieldDeviceName, device.StateFieldLastCommand:
				// Identity fields stay out of the summary.
			default:
				summary.Extra[k] = v
			}
		}
		st.Devices[id] = summary
	}

	return st
}
