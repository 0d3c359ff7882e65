package device

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Control type and order inference for the Wiren Board virtual-device
// projection. A device's commands become WB controls; the type and ordering
// of each control is derived from the command definition unless the config
// provides an explicit wb_controls entry.

// ControlMeta is the metadata published on /devices/{id}/controls/{c}/meta.
type ControlMeta struct {
	Title    map[string]string `json:"title"`
	Type     string            `json:"type"`
	ReadOnly bool              `json:"readonly"`
	Order    int               `json:"order"`
	Min      *float64          `json:"min,omitempty"`
	Max      *float64          `json:"max,omitempty"`
	Units    string            `json:"units,omitempty"`
}

// inferControlType derives the WB control type for a command.
//
// Precedence: explicit wb_controls entry, then first-parameter type, then
// group heuristics, then pushbutton.
func inferControlType(name string, def CommandDef, explicit map[string]WBControlDef) string {
	if ctrl, ok := explicit[name]; ok && ctrl.Type != "" {
		return ctrl.Type
	}

	if len(def.Params) > 0 {
		switch def.Params[0].Type {
		case ParamRange, ParamInteger, ParamFloat:
			return "range"
		case ParamBoolean:
			return "switch"
		case ParamString:
			return "text"
		}
	}

	switch def.Group {
	case "power", "playback", "navigation", "menu":
		return "pushbutton"
	case "volume":
		if strings.HasPrefix(def.Action, "set_") {
			return "range"
		}
		if strings.HasPrefix(def.Action, "mute") || strings.HasPrefix(def.Action, "unmute") {
			return "switch"
		}
	case "inputs", "apps":
		if strings.HasPrefix(def.Action, "set_") {
			return "text"
		}
	}

	return "pushbutton"
}

// Group order tiers. Within a tier, commands are ordered alphabetically for
// stability; unknown groups sort last.
var groupOrderBase = map[string]int{
	"power":      1,
	"volume":     10,
	"inputs":     20,
	"apps":       25,
	"playback":   30,
	"menu":       40,
	"navigation": 45,
	"screen":     50,
	"display":    50,
}

const defaultOrderBase = 80

// inferControlOrders assigns a stable, monotone-by-group order to every
// command. Explicit wb_controls orders win.
func inferControlOrders(commands map[string]CommandDef, explicit map[string]WBControlDef) map[string]int {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	orders := make(map[string]int, len(names))
	offsets := make(map[int]int)
	for _, name := range names {
		if ctrl, ok := explicit[name]; ok && ctrl.Order != 0 {
			orders[name] = ctrl.Order
			continue
		}

		base := defaultOrderBase
		if b, ok := groupOrderBase[commands[name].Group]; ok {
			base = b
		}
		orders[name] = base + offsets[base]
		offsets[base]++
	}

	return orders
}

// buildControlMeta assembles the metadata for one control.
func buildControlMeta(name string, def CommandDef, explicit map[string]WBControlDef, order int) ControlMeta {
	meta := ControlMeta{
		Title: map[string]string{"en": controlTitle(name, def, explicit)},
		Type:  inferControlType(name, def, explicit),
		Order: order,
	}

	if ctrl, ok := explicit[name]; ok {
		meta.ReadOnly = ctrl.ReadOnly
		meta.Min = ctrl.Min
		meta.Max = ctrl.Max
		meta.Units = ctrl.Units
	}

	// Range controls inherit bounds from the first parameter when the
	// config does not set them explicitly.
	if meta.Type == "range" && meta.Min == nil && len(def.Params) > 0 {
		meta.Min = def.Params[0].Min
		meta.Max = def.Params[0].Max
	}

	return meta
}

// controlTitle resolves the display title for a control.
func controlTitle(name string, def CommandDef, explicit map[string]WBControlDef) string {
	if ctrl, ok := explicit[name]; ok && ctrl.Title != nil {
		switch t := ctrl.Title.(type) {
		case string:
			return t
		case map[string]any:
			if en, ok := t["en"].(string); ok {
				return en
			}
		}
	}
	if def.Description != "" {
		return def.Description
	}
	return strings.ReplaceAll(name, "_", " ")
}

// parseControlPayload converts an inbound /controls/{c}/on payload into
// command parameters, using the command's first parameter definition.
//
// Commands without parameters ignore the payload (pushbutton press).
// Numeric parse failures fall back to the parameter default when present.
func parseControlPayload(def CommandDef, payload []byte) map[string]any {
	if len(def.Params) == 0 {
		return map[string]any{}
	}

	param := def.Params[0]
	text := strings.TrimSpace(string(payload))

	switch param.Type {
	case ParamBoolean:
		switch strings.ToLower(text) {
		case "1", "true", "on", "yes":
			return map[string]any{param.Name: true}
		default:
			return map[string]any{param.Name: false}
		}
	case ParamInteger:
		if n, err := strconv.Atoi(text); err == nil {
			return map[string]any{param.Name: n}
		}
	case ParamFloat, ParamRange:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return map[string]any{param.Name: f}
		}
	case ParamString:
		return map[string]any{param.Name: text}
	}

	if param.Default != nil {
		return map[string]any{param.Name: param.Default}
	}
	return map[string]any{}
}

// controlValueString renders a state value as a WB control payload.
//
// Conversions: booleans → "1"/"0"; power and connection strings → "1"/"0";
// numerics as decimal strings; everything else via fmt.
func controlValueString(field string, value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		if field == StateFieldPower || field == "connection_status" {
			switch strings.ToLower(v) {
			case "on", "connected":
				return "1"
			case "off", "disconnected":
				return "0"
			}
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// defaultStateMappings maps common state fields to the control names they
// update. Device config may override per field via wb_state_mappings.
var defaultStateMappings = map[string][]string{
	"power":             {"power_state", "get_power", "power_on"},
	"volume":            {"set_volume", "get_volume"},
	"mute":              {"mute", "toggle_mute"},
	"input_source":      {"set_input"},
	"input":             {"set_input"},
	"playback_state":    {"play", "get_playback"},
	"light":             {"light_toggle", "set_light"},
	"speed":             {"set_speed"},
	"connection_status": {"connection"},
	"ip_address":        {"ip_address"},
	"error":             {"error"},
}

// controlsForStateField resolves which controls a state field republishes
// to, honouring config overrides and filtering to controls the device
// actually has.
func controlsForStateField(field string, overrides map[string][]string, commands map[string]CommandDef) []string {
	candidates, ok := overrides[field]
	if !ok {
		candidates = defaultStateMappings[field]
	}

	var present []string
	for _, name := range candidates {
		if _, exists := commands[name]; exists {
			present = append(present, name)
		}
	}
	return present
}

// validateWBConfig checks explicit WB configuration before publication.
//
// On failure the device logs and skips WB publication but still functions
// as a command target.
func validateWBConfig(cfg Config) error {
	for name, ctrl := range cfg.WBControls {
		if _, ok := cfg.Commands[name]; !ok {
			return fmt.Errorf("%w: wb_controls entry %q references no command", ErrInvalidConfig, name)
		}
		if _, ok := validControlTypes[ctrl.Type]; !ok {
			return fmt.Errorf("%w: wb_controls entry %q has invalid type %q", ErrInvalidConfig, name, ctrl.Type)
		}
		if ctrl.Min != nil && ctrl.Max != nil && *ctrl.Min >= *ctrl.Max {
			return fmt.Errorf("%w: wb_controls entry %q has min >= max", ErrInvalidConfig, name)
		}
		if ctrl.Title != nil {
			switch t := ctrl.Title.(type) {
			case string:
			case map[string]any:
				if _, ok := t["en"].(string); !ok {
					return fmt.Errorf("%w: wb_controls entry %q title object missing en", ErrInvalidConfig, name)
				}
			default:
				return fmt.Errorf("%w: wb_controls entry %q title must be string or {en:string}", ErrInvalidConfig, name)
			}
		}
	}

	for field, controls := range cfg.WBStateMappings {
		for _, ctrl := range controls {
			if _, ok := cfg.Commands[ctrl]; !ok {
				return fmt.Errorf("%w: wb_state_mappings[%q] references unknown control %q", ErrInvalidConfig, field, ctrl)
			}
		}
	}

	return nil
}

// marshalControlMeta serialises control metadata for publication.
func marshalControlMeta(meta ControlMeta) ([]byte, error) {
	return json.Marshal(meta)
}
