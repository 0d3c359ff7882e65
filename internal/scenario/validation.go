package scenario

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema structurally validates scenario files before decoding.
const definitionSchema = `{
	"type": "object",
	"required": ["scenario_id", "name", "devices"],
	"properties": {
		"scenario_id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"room_id": {"type": "string"},
		"roles": {"type": "object", "additionalProperties": {"type": "string"}},
		"devices": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"startup_sequence": {"$ref": "#/definitions/sequence"},
		"shutdown_sequence": {"$ref": "#/definitions/sequence"}
	},
	"definitions": {
		"sequence": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["device", "command"],
				"properties": {
					"device": {"type": "string", "minLength": 1},
					"command": {"type": "string", "minLength": 1},
					"params": {"type": "object"},
					"condition": {"type": "string"},
					"delay_after_ms": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

var compiledDefinitionSchema = gojsonschema.NewStringLoader(definitionSchema)

// ParseDefinition decodes and structurally validates one scenario file.
func ParseDefinition(data []byte) (Definition, error) {
	result, err := gojsonschema.Validate(compiledDefinitionSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return Definition{}, fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(issues, "; "))
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return def, nil
}

// RoomChecker verifies room membership during referential validation.
// The room manager satisfies it; a nil checker skips room checks.
type RoomChecker interface {
	DeviceInRoom(roomID, deviceID string) bool
}

// CommandLister exposes a device's available commands for step validation.
type CommandLister interface {
	AvailableCommandNames(deviceID string) ([]string, bool)
}

// Validate runs referential checks on a structurally valid definition.
//
// Checks: every role target and step device appears in devices; every
// device is known to the fleet; room membership when room_id is set; every
// step command exists on its target device. All failures are collected.
func Validate(def Definition, knownDevices map[string]struct{}, rooms RoomChecker, commands CommandLister) []error {
	var errs []error

	inScenario := make(map[string]struct{}, len(def.Devices))
	for _, id := range def.Devices {
		inScenario[id] = struct{}{}
		if _, known := knownDevices[id]; !known {
			errs = append(errs, fmt.Errorf("%w: device %q is not registered", ErrInvalidDefinition, id))
		}
		if rooms != nil && def.RoomID != "" && !rooms.DeviceInRoom(def.RoomID, id) {
			errs = append(errs, fmt.Errorf("%w: device %q is not in room %q", ErrInvalidDefinition, id, def.RoomID))
		}
	}

	for role, target := range def.Roles {
		if _, ok := inScenario[target]; !ok {
			errs = append(errs, fmt.Errorf("%w: role %q maps to %q which is not in devices", ErrInvalidDefinition, role, target))
		}
	}

	checkSteps := func(kind string, steps []CommandStep) {
		for i, step := range steps {
			if _, ok := inScenario[step.Device]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s step %d device %q is not in devices", ErrInvalidDefinition, kind, i, step.Device))
				continue
			}
			if commands == nil {
				continue
			}
			names, ok := commands.AvailableCommandNames(step.Device)
			if !ok {
				continue
			}
			found := false
			for _, name := range names {
				if name == step.Command {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fmt.Errorf("%w: %s step %d command %q unknown on %q", ErrInvalidDefinition, kind, i, step.Command, step.Device))
			}
		}
	}
	checkSteps("startup", def.StartupSequence)
	checkSteps("shutdown", def.ShutdownSequence)

	return errs
}
