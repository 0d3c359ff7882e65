package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device meta", DeviceMetaTopic("lg_tv"), "/devices/lg_tv/meta"},
		{"availability", DeviceAvailabilityTopic("lg_tv"), "/devices/lg_tv/meta/available"},
		{"error", DeviceErrorTopic("lg_tv"), "/devices/lg_tv/meta/error"},
		{"control state", ControlStateTopic("lg_tv", "volume"), "/devices/lg_tv/controls/volume"},
		{"control meta", ControlMetaTopic("lg_tv", "volume"), "/devices/lg_tv/controls/volume/meta"},
		{"control command", ControlCommandTopic("lg_tv", "power_on"), "/devices/lg_tv/controls/power_on/on"},
		{"commands pattern", DeviceCommandsPattern("lg_tv"), "/devices/lg_tv/controls/+/on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		wantDevice string
		wantCtrl   string
		wantOK     bool
	}{
		{"valid", "/devices/lg_tv/controls/power_on/on", "lg_tv", "power_on", true},
		{"state topic", "/devices/lg_tv/controls/power_on", "", "", false},
		{"meta topic", "/devices/lg_tv/controls/power_on/meta", "", "", false},
		{"device meta", "/devices/lg_tv/meta", "", "", false},
		{"empty device", "/devices//controls/power_on/on", "", "", false},
		{"empty control", "/devices/lg_tv/controls//on", "", "", false},
		{"no leading slash", "devices/lg_tv/controls/power_on/on", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, ctrl, ok := ParseCommandTopic(tt.topic)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if device != tt.wantDevice || ctrl != tt.wantCtrl {
				t.Errorf("got (%q, %q), want (%q, %q)", device, ctrl, tt.wantDevice, tt.wantCtrl)
			}
		})
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact", "/devices/tv/meta", "/devices/tv/meta", true},
		{"exact mismatch", "/devices/tv/meta", "/devices/amp/meta", false},
		{"single wildcard", "/devices/+/controls/+/on", "/devices/tv/controls/power_on/on", true},
		{"single wildcard too short", "/devices/+/controls/+/on", "/devices/tv/controls/power_on", false},
		{"single wildcard too long", "/devices/+/meta", "/devices/tv/meta/available", false},
		{"multi wildcard", "/devices/#", "/devices/tv/controls/power_on/on", true},
		{"multi wildcard root", "/devices/#", "/devices", false},
		{"multi wildcard mid", "/devices/#/on", "/devices/tv/on", false},
		{"sentinel exact", "/devices/wbrules/meta/online", "/devices/wbrules/meta/online", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
				t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}
