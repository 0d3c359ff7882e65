package device

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// mockBus records publishes and will registrations for assertions.
type mockBus struct {
	mu        sync.Mutex
	published []publishRecord
	wills     map[string][]string
}

type publishRecord struct {
	topic    string
	payload  string
	retained bool
}

func newMockBus() *mockBus {
	return &mockBus{wills: make(map[string][]string)}
}

func (m *mockBus) PublishString(topic, payload string, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishRecord{topic, payload, retained})
	return nil
}

func (m *mockBus) AddWillMessage(deviceID, topic, payload string, qos byte, retained bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wills[deviceID] = append(m.wills[deviceID], topic)
}

func (m *mockBus) RemoveDeviceWillMessages(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wills, deviceID)
}

func (m *mockBus) find(topic string) (publishRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].topic == topic {
			return m.published[i], true
		}
	}
	return publishRecord{}, false
}

func (m *mockBus) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.published {
		if rec.topic == topic {
			n++
		}
	}
	return n
}

func tvConfig() Config {
	return Config{
		DeviceID:    "tv1",
		DeviceName:  "Living Room TV",
		DeviceClass: "LgTv",
		WBVirtual:   true,
		Commands: map[string]CommandDef{
			"power_on":  {Action: "power_on", Group: "power"},
			"power_off": {Action: "power_off", Group: "power"},
			"set_volume": {
				Action: "set_volume",
				Group:  "volume",
				Params: []ParamDef{
					{Name: "level", Type: ParamRange, Min: floatPtr(0), Max: floatPtr(100), Default: 50.0},
				},
			},
		},
	}
}

func newTestDevice(t *testing.T) (*BaseDevice, *mockBus) {
	t.Helper()
	bus := newMockBus()
	b := NewBaseDevice(tvConfig(), bus, logging.Default())

	b.RegisterHandler("power_on", func(ctx context.Context, params map[string]any) CommandResult {
		b.UpdateState(map[string]any{StateFieldPower: PowerOn})
		return CommandResult{Success: true}
	})
	b.RegisterHandler("power_off", func(ctx context.Context, params map[string]any) CommandResult {
		b.UpdateState(map[string]any{StateFieldPower: PowerOff})
		return CommandResult{Success: true}
	})
	b.RegisterHandler("set_volume", func(ctx context.Context, params map[string]any) CommandResult {
		b.UpdateState(map[string]any{"volume": params["level"]})
		return CommandResult{Success: true}
	})

	return b, bus
}

func TestSetupPublishesVirtualDevice(t *testing.T) {
	b, bus := newTestDevice(t)

	if err := b.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	meta, ok := bus.find("/devices/tv1/meta")
	if !ok || !meta.retained {
		t.Error("device meta not published retained")
	}
	if !strings.Contains(meta.payload, "Living Room TV") {
		t.Errorf("device meta missing title: %s", meta.payload)
	}

	if _, ok := bus.find("/devices/tv1/controls/power_on/meta"); !ok {
		t.Error("control meta not published")
	}

	avail, ok := bus.find("/devices/tv1/meta/available")
	if !ok || avail.payload != "1" {
		t.Error("availability not published as online")
	}
	errRec, ok := bus.find("/devices/tv1/meta/error")
	if !ok || errRec.payload != "" {
		t.Error("error marker not published as healthy")
	}

	if len(bus.wills["tv1"]) != 2 {
		t.Errorf("will registrations = %d, want 2", len(bus.wills["tv1"]))
	}
}

func TestWillsRegisteredAtConstruction(t *testing.T) {
	// Construction must register the offline wills: the bus captures the
	// session will when it connects, which happens before Setup runs.
	bus := newMockBus()
	NewBaseDevice(tvConfig(), bus, logging.Default())

	if len(bus.wills["tv1"]) != 2 {
		t.Fatalf("will registrations before Setup = %d, want 2", len(bus.wills["tv1"]))
	}
	want := map[string]bool{
		"/devices/tv1/meta/available": true,
		"/devices/tv1/meta/error":     true,
	}
	for _, topic := range bus.wills["tv1"] {
		if !want[topic] {
			t.Errorf("unexpected will topic %q", topic)
		}
	}
}

func TestNonVirtualDeviceRegistersNoWills(t *testing.T) {
	cfg := tvConfig()
	cfg.WBVirtual = false
	bus := newMockBus()
	NewBaseDevice(cfg, bus, logging.Default())

	if n := len(bus.wills["tv1"]); n != 0 {
		t.Errorf("will registrations = %d, want 0 for non-virtual device", n)
	}
}

func TestExecuteActionPowerOn(t *testing.T) {
	b, bus := newTestDevice(t)

	response := b.ExecuteAction(context.Background(), "power_on", nil, "rest")

	if !response.Success {
		t.Fatalf("ExecuteAction() failed: %s", response.Error)
	}

	st := b.CurrentState()
	if st[StateFieldPower] != PowerOn {
		t.Errorf("power = %v, want on", st[StateFieldPower])
	}

	last, ok := st[StateFieldLastCommand].(LastCommand)
	if !ok {
		t.Fatal("last_command not recorded")
	}
	if last.Action != "power_on" || last.Source != "rest" {
		t.Errorf("last_command = %+v", last)
	}

	// Power state synchronises to the power_on control, retained.
	rec, ok := bus.find("/devices/tv1/controls/power_on")
	if !ok || rec.payload != "1" || !rec.retained {
		t.Errorf("power_on control not synced: %+v", rec)
	}
}

func TestExecuteActionUnknown(t *testing.T) {
	b, _ := newTestDevice(t)

	response := b.ExecuteAction(context.Background(), "nonexistent", nil, "rest")
	if response.Success {
		t.Error("unknown action reported success")
	}
	if response.Error == "" {
		t.Error("unknown action produced no error")
	}
}

func TestExecuteActionCamelCaseNormalisation(t *testing.T) {
	b, _ := newTestDevice(t)

	response := b.ExecuteAction(context.Background(), "powerOn", nil, "rest")
	if !response.Success {
		t.Errorf("camelCase action not normalised: %s", response.Error)
	}
}

func TestInboundVolumeWithinRange(t *testing.T) {
	b, bus := newTestDevice(t)

	b.HandleMessage(context.Background(), "/devices/tv1/controls/set_volume/on", []byte("75"))

	st := b.CurrentState()
	if st["volume"] != 75.0 {
		t.Errorf("volume = %v, want 75", st["volume"])
	}

	rec, ok := bus.find("/devices/tv1/controls/set_volume")
	if !ok || rec.payload != "75" || !rec.retained {
		t.Errorf("set_volume control not synced retained: %+v", rec)
	}
}

func TestInboundVolumeOutOfRange(t *testing.T) {
	b, bus := newTestDevice(t)

	b.HandleMessage(context.Background(), "/devices/tv1/controls/set_volume/on", []byte("150"))

	st := b.CurrentState()
	if _, ok := st["volume"]; ok {
		t.Error("out-of-range volume mutated state")
	}
	if st[StateFieldError] == nil || st[StateFieldError] == "" {
		t.Error("error state not populated on validation failure")
	}
	if _, ok := bus.find("/devices/tv1/controls/set_volume"); ok {
		t.Error("rejected command produced a retained control update")
	}
}

func TestInboundMessageForOtherDeviceIgnored(t *testing.T) {
	b, _ := newTestDevice(t)

	b.HandleMessage(context.Background(), "/devices/other/controls/power_on/on", []byte("1"))

	if b.CurrentState()[StateFieldPower] != PowerOff {
		t.Error("message for another device mutated state")
	}
}

func TestShutdownPublishesOfflineAndIsIdempotent(t *testing.T) {
	b, bus := newTestDevice(t)
	ctx := context.Background()

	if err := b.Setup(ctx); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	avail, _ := bus.find("/devices/tv1/meta/available")
	if avail.payload != "0" {
		t.Error("offline availability not published")
	}
	errRec, _ := bus.find("/devices/tv1/meta/error")
	if errRec.payload != "offline" {
		t.Error("offline error marker not published")
	}
	if len(bus.wills["tv1"]) != 0 {
		t.Error("will registrations not removed on shutdown")
	}

	offlineCount := bus.count("/devices/tv1/meta/available")

	// Second shutdown is a safe no-op.
	if err := b.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if bus.count("/devices/tv1/meta/available") != offlineCount {
		t.Error("second Shutdown() republished offline markers")
	}
}

func TestStateChangeCallbackFires(t *testing.T) {
	b, _ := newTestDevice(t)

	var calls int
	var mu sync.Mutex
	b.SetStateChangeCallback(func(deviceID string, st State) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.ExecuteAction(context.Background(), "power_on", nil, "rest")

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("state-change callback never fired")
	}
}

func TestActionSuccessCallbackFiresOnce(t *testing.T) {
	b, _ := newTestDevice(t)

	var events int
	b.SetActionSuccessCallback(func(deviceID, action string, st State) {
		events++
	})

	b.ExecuteAction(context.Background(), "power_on", nil, "rest")

	if events != 1 {
		t.Errorf("action-success callback fired %d times, want 1", events)
	}
}
