package device

import "time"

// State is a device's current state as a JSON-serialisable map.
//
// Every device state carries the common fields (device_id, device_name,
// power); class-specific fields sit alongside them. Using a map keeps the
// polymorphic state shapes of different device classes losslessly
// serialisable without a type switch at every persistence boundary.
type State map[string]any

// Common state field keys shared by every device class.
const (
	StateFieldDeviceID    = "device_id"
	StateFieldDeviceName  = "device_name"
	StateFieldPower       = "power"
	StateFieldLastCommand = "last_command"
	StateFieldError       = "error"
)

// Power values for the common power field.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// DeepCopy creates a complete independent copy of the State.
// Nested maps and slices are cloned so modifications to the copy do not
// affect the original.
func (s State) DeepCopy() State {
	if s == nil {
		return nil
	}
	return State(deepCopyMap(s))
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives are safe to copy by value.
		return v
	}
}

// LastCommand records the most recent successful action on a device.
type LastCommand struct {
	Action    string         `json:"action"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Params    map[string]any `json:"params,omitempty"`
}

// ParamType enumerates command parameter types.
type ParamType string

// Supported parameter types.
const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
	ParamRange   ParamType = "range"
)

// ParamDef describes one command parameter.
type ParamDef struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CommandDef describes one command a device accepts.
//
// Action selects the handler; Group drives control-type and order inference
// for the virtual-device projection. IR commands additionally carry the
// blaster location and ROM position.
type CommandDef struct {
	Action      string     `json:"action"`
	Description string     `json:"description,omitempty"`
	Group       string     `json:"group,omitempty"`
	Params      []ParamDef `json:"params,omitempty"`

	// IR-command fields.
	Location    string `json:"location,omitempty"`
	RomPosition int    `json:"rom_position,omitempty"`
}

// CommandResult is what a command handler returns.
type CommandResult struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	MQTTCommand string         `json:"mqtt_command,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// CommandResponse is the REST-facing envelope around a command invocation.
type CommandResponse struct {
	Success   bool           `json:"success"`
	DeviceID  string         `json:"device_id"`
	Action    string         `json:"action"`
	Result    *CommandResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WBControlDef is an explicit virtual-device control definition from device
// config, overriding inference.
type WBControlDef struct {
	Type     string   `json:"type"`
	Title    any      `json:"title,omitempty"` // string or {en: string}
	Order    int      `json:"order,omitempty"`
	ReadOnly bool     `json:"readonly,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Units    string   `json:"units,omitempty"`
}

// Valid WB control types.
var validControlTypes = map[string]struct{}{
	"switch":     {},
	"range":      {},
	"value":      {},
	"text":       {},
	"pushbutton": {},
}

// Config is the common envelope every device config file carries, plus the
// raw class-specific block for the driver to interpret.
type Config struct {
	DeviceID    string                  `json:"device_id"`
	DeviceName  string                  `json:"device_name"`
	DeviceClass string                  `json:"device_class"`
	ConfigClass string                  `json:"config_class"`
	Commands    map[string]CommandDef   `json:"commands"`
	WBVirtual   bool                    `json:"wb_virtual_device"`
	WBControls  map[string]WBControlDef `json:"wb_controls,omitempty"`

	// WBStateMappings overrides the default state-field to control-name
	// mapping: state field → control names to republish on change.
	WBStateMappings map[string][]string `json:"wb_state_mappings,omitempty"`

	// Raw holds the full decoded config file, including the class-specific
	// block, for driver constructors.
	Raw map[string]any `json:"-"`
}
