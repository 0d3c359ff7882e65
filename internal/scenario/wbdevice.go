package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// scenarioClass is the synthetic device class scenarios are published under.
const scenarioClass = "Scenario"

// roleCommandGroups maps a role name to the command groups inherited from
// its target device. Roles absent from this table (structural roles like
// "inputs") contribute no virtual controls.
var roleCommandGroups = map[string][]string{
	"playback": {"playback"},
	"volume":   {"volume"},
	"sound":    {"volume"},
	"menu":     {"menu", "navigation"},
	"display":  {"screen", "display"},
}

// WBAdapter projects one scenario as a synthetic virtual device, reusing
// the regular device publication machinery.
//
// Every defined scenario is published so all are visible on the bus; only
// the adapter matching the active scenario executes commands, the rest log
// and ignore.
type WBAdapter struct {
	*device.BaseDevice
	manager *Manager
	id      string
	logger  *logging.Logger
}

// VirtualConfig synthesises the device config for a scenario: startup and
// shutdown pushbuttons plus role-inherited commands named
// "{role}_{command}".
func VirtualConfig(def Definition, fleet Fleet) device.Config {
	commands := map[string]device.CommandDef{
		"startup": {
			Action:      "startup",
			Group:       "power",
			Description: "Start " + def.Name,
		},
		"shutdown": {
			Action:      "shutdown",
			Group:       "power",
			Description: "Stop " + def.Name,
		},
	}

	for role, deviceID := range def.Roles {
		groups, inherit := roleCommandGroups[role]
		if !inherit {
			continue
		}

		d, err := fleet.GetDevice(deviceID)
		if err != nil {
			continue
		}

		for name, cmd := range d.AvailableCommands() {
			if !containsGroup(groups, cmd.Group) {
				continue
			}
			virtual := cmd
			virtual.Action = role + "_" + name
			virtual.Description = fmt.Sprintf("%s %s", strings.Title(role), name) //nolint:staticcheck // ASCII role names
			commands[virtual.Action] = virtual
		}
	}

	return device.Config{
		DeviceID:    def.ScenarioID,
		DeviceName:  def.Name,
		DeviceClass: scenarioClass,
		WBVirtual:   true,
		Commands:    commands,
	}
}

func containsGroup(groups []string, group string) bool {
	for _, g := range groups {
		if g == group {
			return true
		}
	}
	return false
}

// NewWBAdapter builds the synthetic device for one scenario definition.
func NewWBAdapter(def Definition, mgr *Manager, bus device.Bus, logger *logging.Logger) *WBAdapter {
	cfg := VirtualConfig(def, mgr.fleet)

	a := &WBAdapter{
		BaseDevice: device.NewBaseDevice(cfg, bus, logger),
		manager:    mgr,
		id:         def.ScenarioID,
		logger:     logger.With("scenario_id", def.ScenarioID),
	}

	a.RegisterHandler("startup", func(ctx context.Context, params map[string]any) device.CommandResult {
		return a.whenActive(func() device.CommandResult {
			scen := a.activeScenario()
			if scen == nil {
				return device.CommandResult{Success: false, Error: "scenario not loaded"}
			}
			scen.ExecuteStartupSequence(ctx, nil)
			return device.CommandResult{Success: true, Message: "startup sequence executed"}
		})
	})

	a.RegisterHandler("shutdown", func(ctx context.Context, params map[string]any) device.CommandResult {
		return a.whenActive(func() device.CommandResult {
			scen := a.activeScenario()
			if scen == nil {
				return device.CommandResult{Success: false, Error: "scenario not loaded"}
			}
			scen.ExecuteShutdownSequence(ctx)
			return device.CommandResult{Success: true, Message: "shutdown sequence executed"}
		})
	})

	for name, cmd := range cfg.Commands {
		if name == "startup" || name == "shutdown" {
			continue
		}
		role, command, ok := splitRoleCommand(name, def.Roles)
		if !ok {
			continue
		}
		a.RegisterHandler(cmd.Action, a.roleHandler(role, command))
	}

	return a
}

// roleHandler builds the handler delegating a virtual control to a role
// action on the active scenario.
func (a *WBAdapter) roleHandler(role, command string) device.Handler {
	return func(ctx context.Context, params map[string]any) device.CommandResult {
		return a.whenActive(func() device.CommandResult {
			response, err := a.manager.ExecuteRoleAction(ctx, role, command, params)
			if err != nil {
				return device.CommandResult{Success: false, Error: err.Error()}
			}
			if response.Result != nil {
				return *response.Result
			}
			return device.CommandResult{Success: response.Success}
		})
	}
}

// whenActive runs fn only when this adapter's scenario is the active one;
// otherwise the command is logged and ignored.
func (a *WBAdapter) whenActive(fn func() device.CommandResult) device.CommandResult {
	if a.manager.ActiveScenarioID() != a.id {
		a.logger.Debug("Ignoring command for inactive scenario")
		return device.CommandResult{Success: true, Message: "scenario not active, ignored"}
	}
	return fn()
}

// activeScenario returns the manager's scenario object for this adapter.
func (a *WBAdapter) activeScenario() *Scenario {
	a.manager.mu.RLock()
	defer a.manager.mu.RUnlock()
	return a.manager.scenarios[a.id]
}

// splitRoleCommand resolves a virtual control name "{role}_{command}"
// against the scenario's roles. Role names may themselves contain
// underscores, so the longest matching role prefix wins.
func splitRoleCommand(name string, roles map[string]string) (role, command string, ok bool) {
	best := ""
	for r := range roles {
		if strings.HasPrefix(name, r+"_") && len(r) > len(best) {
			best = r
		}
	}
	if best == "" {
		return "", "", false
	}
	return best, name[len(best)+1:], true
}

// BuildWBAdapters creates one adapter per loaded definition.
func BuildWBAdapters(m *Manager, bus device.Bus, logger *logging.Logger) []*WBAdapter {
	defs := m.Definitions()
	adapters := make([]*WBAdapter, 0, len(defs))
	for _, def := range defs {
		adapters = append(adapters, NewWBAdapter(def, m, bus, logger))
	}
	return adapters
}
