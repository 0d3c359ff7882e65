package scenario

// CommandStep is one step of a startup or shutdown sequence.
type CommandStep struct {
	Device       string         `json:"device"`
	Command      string         `json:"command"`
	Params       map[string]any `json:"params,omitempty"`
	Condition    string         `json:"condition,omitempty"`
	DelayAfterMs int            `json:"delay_after_ms,omitempty"`
}

// Definition is a declarative multi-device activity.
//
// Roles name the devices by function (tv, sound, lights); every role target
// and every step device must appear in Devices.
type Definition struct {
	ScenarioID  string `json:"scenario_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RoomID      string `json:"room_id,omitempty"`

	Roles   map[string]string `json:"roles,omitempty"`
	Devices []string          `json:"devices"`

	StartupSequence  []CommandStep `json:"startup_sequence,omitempty"`
	ShutdownSequence []CommandStep `json:"shutdown_sequence,omitempty"`
}

// DeviceSummary is one device's slice of the scenario state.
type DeviceSummary struct {
	Power  string         `json:"power,omitempty"`
	Input  string         `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// State is the recomputed per-scenario view of its devices' states.
type State struct {
	ScenarioID string                   `json:"scenario_id"`
	Devices    map[string]DeviceSummary `json:"devices"`
}

// SwitchResult reports what a scenario switch did.
//
// SharedDevices stayed powered across the transition; PowerCycledDevices
// participate in both scenarios but were fully shut down and restarted
// (non-graceful switch). The two sets never overlap.
type SwitchResult struct {
	Success            bool     `json:"success"`
	SharedDevices      []string `json:"shared_devices"`
	PowerCycledDevices []string `json:"power_cycled_devices"`
}
