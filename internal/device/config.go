package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// configSchema structurally validates device config files before decoding.
// Structural errors are fatal for that device only; the rest of the fleet
// still loads.
const configSchema = `{
	"type": "object",
	"required": ["device_id", "device_class", "commands"],
	"properties": {
		"device_id": {"type": "string", "minLength": 1},
		"device_name": {"type": "string"},
		"device_class": {"type": "string", "minLength": 1},
		"config_class": {"type": "string"},
		"wb_virtual_device": {"type": "boolean"},
		"commands": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["action"],
				"properties": {
					"action": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"group": {"type": "string"},
					"params": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "type"],
							"properties": {
								"name": {"type": "string", "minLength": 1},
								"type": {"enum": ["string", "integer", "float", "boolean", "range"]},
								"required": {"type": "boolean"},
								"min": {"type": "number"},
								"max": {"type": "number"}
							}
						}
					},
					"location": {"type": "string"},
					"rom_position": {"type": "integer"}
				}
			}
		},
		"wb_controls": {"type": "object"},
		"wb_state_mappings": {
			"type": "object",
			"additionalProperties": {"type": "array", "items": {"type": "string"}}
		}
	}
}`

var compiledConfigSchema = gojsonschema.NewStringLoader(configSchema)

// ParseConfig decodes and validates one device config document.
//
// Returns:
//   - Config: Parsed envelope with Raw holding the full document
//   - error: ErrInvalidConfig-wrapped description of the first failure
func ParseConfig(data []byte) (Config, error) {
	result, err := gojsonschema.Validate(compiledConfigSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(issues, "; "))
	}

	// wb_virtual_device defaults to on when absent.
	cfg := Config{WBVirtual: true}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Raw = raw

	if cfg.DeviceName == "" {
		cfg.DeviceName = cfg.DeviceID
	}

	return cfg, nil
}

// LoadConfigDir reads every *.json file in a directory as one device config.
//
// Invalid files are logged and skipped; the returned slice holds only valid
// configs. A missing directory is an error (the gateway refuses to start
// without its device fleet).
func LoadConfigDir(dir string, logger *logging.Logger) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading devices directory: %w", err)
	}

	var configs []Config
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read device config", "file", path, "error", err)
			continue
		}

		cfg, err := ParseConfig(data)
		if err != nil {
			logger.Error("Skipping invalid device config", "file", path, "error", err)
			continue
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}
