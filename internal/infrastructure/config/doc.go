// Package config loads and validates the AV Gateway YAML configuration.
//
// Configuration is resolved in three layers: hardcoded defaults, the YAML
// file, then AVGATE_* environment variable overrides. Validation collects
// all problems into a single error so operators can fix a config in one pass.
package config
