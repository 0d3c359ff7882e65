package device

import "testing"

func TestInferControlType(t *testing.T) {
	tests := []struct {
		name     string
		def      CommandDef
		explicit map[string]WBControlDef
		want     string
	}{
		{
			name: "explicit wins",
			def:  CommandDef{Action: "power_on", Group: "power"},
			explicit: map[string]WBControlDef{
				"cmd": {Type: "switch"},
			},
			want: "switch",
		},
		{
			name: "range param",
			def:  CommandDef{Action: "set_volume", Params: []ParamDef{{Name: "level", Type: ParamRange}}},
			want: "range",
		},
		{
			name: "integer param",
			def:  CommandDef{Action: "set_speed", Params: []ParamDef{{Name: "speed", Type: ParamInteger}}},
			want: "range",
		},
		{
			name: "boolean param",
			def:  CommandDef{Action: "mute", Params: []ParamDef{{Name: "on", Type: ParamBoolean}}},
			want: "switch",
		},
		{
			name: "string param",
			def:  CommandDef{Action: "set_input", Params: []ParamDef{{Name: "input", Type: ParamString}}},
			want: "text",
		},
		{
			name: "power group",
			def:  CommandDef{Action: "power_on", Group: "power"},
			want: "pushbutton",
		},
		{
			name: "volume setter group",
			def:  CommandDef{Action: "set_volume", Group: "volume"},
			want: "range",
		},
		{
			name: "volume mute group",
			def:  CommandDef{Action: "mute_audio", Group: "volume"},
			want: "switch",
		},
		{
			name: "inputs setter group",
			def:  CommandDef{Action: "set_input", Group: "inputs"},
			want: "text",
		},
		{
			name: "default",
			def:  CommandDef{Action: "mystery"},
			want: "pushbutton",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferControlType("cmd", tt.def, tt.explicit); got != tt.want {
				t.Errorf("inferControlType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferControlOrdersMonotoneByGroup(t *testing.T) {
	commands := map[string]CommandDef{
		"power_on":   {Action: "power_on", Group: "power"},
		"power_off":  {Action: "power_off", Group: "power"},
		"set_volume": {Action: "set_volume", Group: "volume"},
		"play":       {Action: "play", Group: "playback"},
		"mystery":    {Action: "mystery"},
	}

	orders := inferControlOrders(commands, nil)

	if orders["power_on"] >= orders["set_volume"] {
		t.Error("power controls must order before volume controls")
	}
	if orders["set_volume"] >= orders["play"] {
		t.Error("volume controls must order before playback controls")
	}
	if orders["play"] >= orders["mystery"] {
		t.Error("known groups must order before ungrouped controls")
	}

	// Stable: same input, same output.
	again := inferControlOrders(commands, nil)
	for name, order := range orders {
		if again[name] != order {
			t.Errorf("order for %q not stable: %d then %d", name, order, again[name])
		}
	}
}

func TestParseControlPayload(t *testing.T) {
	rangeDef := CommandDef{Params: []ParamDef{
		{Name: "level", Type: ParamRange, Default: 50.0, Min: floatPtr(0), Max: floatPtr(100)},
	}}

	got := parseControlPayload(rangeDef, []byte("75"))
	if got["level"] != 75.0 {
		t.Errorf("range payload: got %v, want 75", got["level"])
	}

	// Parse failure falls back to the default.
	got = parseControlPayload(rangeDef, []byte("garbage"))
	if got["level"] != 50.0 {
		t.Errorf("fallback: got %v, want default 50", got["level"])
	}

	boolDef := CommandDef{Params: []ParamDef{{Name: "on", Type: ParamBoolean}}}
	for payload, want := range map[string]bool{"1": true, "true": true, "on": true, "yes": true, "0": false} {
		got := parseControlPayload(boolDef, []byte(payload))
		if got["on"] != want {
			t.Errorf("boolean payload %q: got %v, want %v", payload, got["on"], want)
		}
	}

	// No parameters means pushbutton: payload ignored.
	got = parseControlPayload(CommandDef{}, []byte("whatever"))
	if len(got) != 0 {
		t.Errorf("pushbutton payload produced params: %v", got)
	}
}

func TestControlValueString(t *testing.T) {
	tests := []struct {
		field string
		value any
		want  string
	}{
		{"mute", true, "1"},
		{"mute", false, "0"},
		{"power", "on", "1"},
		{"power", "off", "0"},
		{"connection_status", "connected", "1"},
		{"connection_status", "disconnected", "0"},
		{"volume", 42.0, "42"},
		{"volume", 42.5, "42.5"},
		{"input_source", "hdmi1", "hdmi1"},
	}

	for _, tt := range tests {
		if got := controlValueString(tt.field, tt.value); got != tt.want {
			t.Errorf("controlValueString(%q, %v) = %q, want %q", tt.field, tt.value, got, tt.want)
		}
	}
}

func TestValidateWBConfig(t *testing.T) {
	base := Config{
		DeviceID: "tv",
		Commands: map[string]CommandDef{
			"power_on":   {Action: "power_on"},
			"set_volume": {Action: "set_volume"},
		},
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{"valid empty", func(cfg *Config) {}, false},
		{
			"valid explicit control",
			func(cfg *Config) {
				cfg.WBControls = map[string]WBControlDef{
					"set_volume": {Type: "range", Min: floatPtr(0), Max: floatPtr(100)},
				}
			},
			false,
		},
		{
			"unknown command reference",
			func(cfg *Config) {
				cfg.WBControls = map[string]WBControlDef{"ghost": {Type: "switch"}}
			},
			true,
		},
		{
			"invalid type",
			func(cfg *Config) {
				cfg.WBControls = map[string]WBControlDef{"power_on": {Type: "dial"}}
			},
			true,
		},
		{
			"min not below max",
			func(cfg *Config) {
				cfg.WBControls = map[string]WBControlDef{
					"set_volume": {Type: "range", Min: floatPtr(10), Max: floatPtr(10)},
				}
			},
			true,
		},
		{
			"title object without en",
			func(cfg *Config) {
				cfg.WBControls = map[string]WBControlDef{
					"power_on": {Type: "pushbutton", Title: map[string]any{"de": "An"}},
				}
			},
			true,
		},
		{
			"state mapping to unknown control",
			func(cfg *Config) {
				cfg.WBStateMappings = map[string][]string{"power": {"ghost"}}
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := validateWBConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateWBConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
