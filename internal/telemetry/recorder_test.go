package telemetry

import (
	"testing"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

type recordedMetric struct {
	deviceID string
	field    string
	value    float64
}

type fakeWriter struct {
	metrics []recordedMetric
	events  []string
}

func (f *fakeWriter) WriteDeviceMetric(deviceID, field string, value float64) {
	f.metrics = append(f.metrics, recordedMetric{deviceID, field, value})
}

func (f *fakeWriter) WriteScenarioEvent(scenarioID, event string) {
	f.events = append(f.events, scenarioID+":"+event)
}

func (f *fakeWriter) find(field string) (recordedMetric, bool) {
	for _, m := range f.metrics {
		if m.field == field {
			return m, true
		}
	}
	return recordedMetric{}, false
}

func TestRecordStateNumericFieldsOnly(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, logging.Default())

	r.RecordState("av_receiver", device.State{
		device.StateFieldDeviceID:   "av_receiver",
		device.StateFieldDeviceName: "Receiver",
		device.StateFieldPower:      "on",
		"volume":                    42,
		"level":                     0.5,
		"mute":                      true,
		"input_source":              "hdmi1",
	})

	if m, ok := w.find("volume"); !ok || m.value != 42 || m.deviceID != "av_receiver" {
		t.Errorf("volume metric = %+v, ok=%v", m, ok)
	}
	if m, ok := w.find("level"); !ok || m.value != 0.5 {
		t.Errorf("level metric = %+v, ok=%v", m, ok)
	}
	if m, ok := w.find("mute"); !ok || m.value != 1 {
		t.Errorf("mute metric = %+v, ok=%v", m, ok)
	}

	// Strings and identity fields are not metrics.
	for _, field := range []string{"power", "input_source", device.StateFieldDeviceID, device.StateFieldDeviceName} {
		if _, ok := w.find(field); ok {
			t.Errorf("field %q recorded as metric", field)
		}
	}
}

func TestRecordScenarioEvent(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, logging.Default())

	r.RecordScenarioEvent("movie_night", "switched")

	if len(w.events) != 1 || w.events[0] != "movie_night:switched" {
		t.Errorf("events = %v", w.events)
	}
}

func TestNilWriterIsNoOp(t *testing.T) {
	r := NewRecorder(nil, logging.Default())

	if r.Enabled() {
		t.Error("Enabled() = true with nil writer")
	}

	// Must not panic.
	r.RecordState("tv", device.State{"volume": 10})
	r.RecordScenarioEvent("movie_night", "started")
}
