// Package telemetry mirrors numeric device-state fields and scenario
// transitions to the time-series store.
package telemetry

import (
	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// MetricWriter is the time-series port the recorder writes through.
// *influxdb.Client satisfies it.
type MetricWriter interface {
	WriteDeviceMetric(deviceID string, field string, value float64)
	WriteScenarioEvent(scenarioID string, event string)
}

// skippedFields are state fields that never carry telemetry value.
var skippedFields = map[string]struct{}{
	device.StateFieldDeviceID:    {},
	device.StateFieldDeviceName:  {},
	device.StateFieldLastCommand: {},
	device.StateFieldError:       {},
}

// Recorder extracts numeric fields from device state snapshots and forwards
// them as metrics. A nil writer disables recording; every method is then a
// cheap no-op, so callers never need to branch on configuration.
type Recorder struct {
	writer MetricWriter
	logger *logging.Logger
}

// NewRecorder creates a recorder. writer may be nil to disable telemetry.
func NewRecorder(writer MetricWriter, logger *logging.Logger) *Recorder {
	return &Recorder{
		writer: writer,
		logger: logger.With("component", "telemetry"),
	}
}

// Enabled reports whether metrics are actually written.
func (r *Recorder) Enabled() bool {
	return r.writer != nil
}

// RecordState forwards the numeric fields of one state snapshot. Booleans
// are recorded as 0/1 so switch-like state lands on a queryable axis.
//
// Installed as the device manager's state sink; must not block.
func (r *Recorder) RecordState(deviceID string, st device.State) {
	if r.writer == nil {
		return
	}

	for field, value := range st {
		if _, skip := skippedFields[field]; skip {
			continue
		}
		if num, ok := numericValue(value); ok {
			r.writer.WriteDeviceMetric(deviceID, field, num)
		}
	}
}

// RecordScenarioEvent forwards one scenario transition.
func (r *Recorder) RecordScenarioEvent(scenarioID, event string) {
	if r.writer == nil {
		return
	}
	r.writer.WriteScenarioEvent(scenarioID, event)
}

// numericValue converts a state value to float64 where meaningful.
func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
