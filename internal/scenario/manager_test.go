package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/database"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/sse"
	"github.com/avgate/avgate/internal/state"
	_ "github.com/avgate/avgate/migrations" // registers embedded migrations
)

// stubEvents records broadcast event types.
type stubEvents struct {
	mu     sync.Mutex
	events []string
}

func (s *stubEvents) Broadcast(channel sse.Channel, eventType string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

func (s *stubEvents) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func newTestRepo(t *testing.T) *state.Repository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return state.NewRepository(db, logging.Default())
}

// writeScenarios drops the given scenario files into a fresh directory.
func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

const movieNightJSON = `{
	"scenario_id": "movie_night",
	"name": "Movie Night",
	"roles": {"display": "tv", "sound": "soundbar"},
	"devices": ["tv", "soundbar", "lights"],
	"startup_sequence": [
		{"device": "tv", "command": "power_on"},
		{"device": "soundbar", "command": "power_on"},
		{"device": "lights", "command": "power_off"}
	],
	"shutdown_sequence": [
		{"device": "soundbar", "command": "power_off"},
		{"device": "tv", "command": "power_off"},
		{"device": "lights", "command": "power_on"}
	]
}`

const readingJSON = `{
	"scenario_id": "reading",
	"name": "Reading",
	"roles": {"display": "tv"},
	"devices": ["tv", "lights"],
	"startup_sequence": [
		{"device": "tv", "command": "power_on"},
		{"device": "lights", "command": "power_on"}
	],
	"shutdown_sequence": [
		{"device": "tv", "command": "power_off"},
		{"device": "lights", "command": "power_off"}
	]
}`

// avFleet builds the fleet the movie_night/reading fixtures expect.
func avFleet() (*fakeFleet, *fakeDriver, *fakeDriver, *fakeDriver) {
	tv := newFakeDriver("tv", "power_on", "power_off")
	soundbar := newFakeDriver("soundbar", "power_on", "power_off")
	lights := newFakeDriver("lights", "power_on", "power_off")
	return newFakeFleet(tv, soundbar, lights), tv, soundbar, lights
}

func newTestScenarioManager(t *testing.T, fleet Fleet, files map[string]string) (*Manager, *stubEvents) {
	t.Helper()
	events := &stubEvents{}
	m := NewManager(writeScenarios(t, files), newTestRepo(t), fleet, nil, events, logging.Default())
	if err := m.LoadScenarios(); err != nil {
		t.Fatalf("LoadScenarios() error = %v", err)
	}
	return m, events
}

func TestGracefulSwitchWithSharedDevices(t *testing.T) {
	fleet, tv, soundbar, lights := avFleet()
	m, events := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
		"reading.json":     readingJSON,
	})
	ctx := context.Background()

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario(movie_night) error = %v", err)
	}
	tvPowerOns := tv.callCount("power_on")
	lightsPowerOns := lights.callCount("power_on")

	result, err := m.SwitchScenario(ctx, "reading", true)
	if err != nil {
		t.Fatalf("SwitchScenario(reading) error = %v", err)
	}

	shared := append([]string(nil), result.SharedDevices...)
	sort.Strings(shared)
	if len(shared) != 2 || shared[0] != "lights" || shared[1] != "tv" {
		t.Errorf("SharedDevices = %v, want [lights tv]", result.SharedDevices)
	}
	if len(result.PowerCycledDevices) != 0 {
		t.Errorf("PowerCycledDevices = %v, want empty", result.PowerCycledDevices)
	}

	// The non-shared outgoing device is powered off exactly once.
	if soundbar.callCount("power_off") != 1 {
		t.Errorf("soundbar power_off calls = %d, want 1", soundbar.callCount("power_off"))
	}

	// Shared devices receive no power commands from the incoming startup.
	if tv.callCount("power_on") != tvPowerOns {
		t.Error("tv received power_on during graceful switch")
	}
	if lights.callCount("power_on") != lightsPowerOns {
		t.Error("lights received power_on during graceful switch")
	}

	if m.ActiveScenarioID() != "reading" {
		t.Errorf("ActiveScenarioID() = %q", m.ActiveScenarioID())
	}
	if raw := m.repo.Load(ctx, state.ActiveScenarioKey); string(raw) != `"reading"` {
		t.Errorf("persisted active scenario = %s", raw)
	}
	if events.count("scenario_switched") != 2 {
		t.Errorf("scenario_switched events = %d, want 2", events.count("scenario_switched"))
	}
}

func TestNonGracefulSwitchRunsFullShutdown(t *testing.T) {
	fleet, tv, soundbar, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
		"reading.json":     readingJSON,
	})
	ctx := context.Background()

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario(movie_night) error = %v", err)
	}

	result, err := m.SwitchScenario(ctx, "reading", false)
	if err != nil {
		t.Fatalf("SwitchScenario(reading, false) error = %v", err)
	}

	if len(result.SharedDevices) != 0 {
		t.Errorf("SharedDevices = %v, want empty for non-graceful", result.SharedDevices)
	}
	cycled := append([]string(nil), result.PowerCycledDevices...)
	sort.Strings(cycled)
	if len(cycled) != 2 || cycled[0] != "lights" || cycled[1] != "tv" {
		t.Errorf("PowerCycledDevices = %v, want [lights tv]", result.PowerCycledDevices)
	}

	// Full shutdown sequence ran, then the full startup: tv cycled off/on.
	if tv.callCount("power_off") != 1 {
		t.Errorf("tv power_off calls = %d, want 1", tv.callCount("power_off"))
	}
	if tv.callCount("power_on") != 2 {
		t.Errorf("tv power_on calls = %d, want 2", tv.callCount("power_on"))
	}
	if soundbar.callCount("power_off") != 1 {
		t.Errorf("soundbar power_off calls = %d, want 1", soundbar.callCount("power_off"))
	}
}

func TestSwitchToActiveScenarioIsNoOp(t *testing.T) {
	fleet, tv, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})
	ctx := context.Background()

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario() error = %v", err)
	}
	calls := len(tv.callLog())

	result, err := m.SwitchScenario(ctx, "movie_night", true)
	if err != nil {
		t.Fatalf("second SwitchScenario() error = %v", err)
	}
	if !result.Success || len(result.SharedDevices) != 0 || len(result.PowerCycledDevices) != 0 {
		t.Errorf("no-op switch result = %+v", result)
	}
	if len(tv.callLog()) != calls {
		t.Error("no-op switch executed device commands")
	}
}

func TestSwitchUnknownScenario(t *testing.T) {
	fleet, _, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})

	if _, err := m.SwitchScenario(context.Background(), "ghost", true); !errors.Is(err, ErrUnknownScenario) {
		t.Errorf("error = %v, want ErrUnknownScenario", err)
	}
}

func TestStartScenarioRefusesWhenActive(t *testing.T) {
	fleet, _, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
		"reading.json":     readingJSON,
	})
	ctx := context.Background()

	if _, err := m.StartScenario(ctx, "movie_night"); err != nil {
		t.Fatalf("StartScenario() error = %v", err)
	}
	if _, err := m.StartScenario(ctx, "reading"); !errors.Is(err, ErrScenarioActive) {
		t.Errorf("error = %v, want ErrScenarioActive", err)
	}
}

func TestShutdownScenario(t *testing.T) {
	fleet, tv, _, _ := avFleet()
	m, events := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})
	ctx := context.Background()

	if err := m.ShutdownScenario(ctx, "movie_night", true); !errors.Is(err, ErrScenarioNotActive) {
		t.Errorf("inactive shutdown error = %v, want ErrScenarioNotActive", err)
	}

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario() error = %v", err)
	}
	if err := m.ShutdownScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("ShutdownScenario() error = %v", err)
	}

	if tv.callCount("power_off") != 1 {
		t.Error("shutdown sequence did not run")
	}
	if m.ActiveScenarioID() != "" {
		t.Error("scenario still active after shutdown")
	}
	if raw := m.repo.Load(ctx, state.ActiveScenarioKey); raw != nil {
		t.Errorf("active_scenario still persisted: %s", raw)
	}
	if events.count("scenario_stopped") != 1 {
		t.Error("scenario_stopped not broadcast")
	}
}

func TestInitializeRestoresActiveScenario(t *testing.T) {
	fleet, tv, _, _ := avFleet()
	events := &stubEvents{}
	repo := newTestRepo(t)
	dir := writeScenarios(t, map[string]string{"movie_night.json": movieNightJSON})
	ctx := context.Background()

	repo.Save(ctx, state.ActiveScenarioKey, []byte(`"movie_night"`))

	m := NewManager(dir, repo, fleet, nil, events, logging.Default())
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if m.ActiveScenarioID() != "movie_night" {
		t.Errorf("ActiveScenarioID() = %q, want movie_night", m.ActiveScenarioID())
	}
	if tv.callCount("power_on") != 1 {
		t.Error("startup sequence not executed on restore")
	}
}

func TestInitializeIgnoresStaleActiveScenario(t *testing.T) {
	fleet, _, _, _ := avFleet()
	repo := newTestRepo(t)
	dir := writeScenarios(t, map[string]string{"movie_night.json": movieNightJSON})
	ctx := context.Background()

	repo.Save(ctx, state.ActiveScenarioKey, []byte(`"deleted_scenario"`))

	m := NewManager(dir, repo, fleet, nil, &stubEvents{}, logging.Default())
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if m.ActiveScenarioID() != "" {
		t.Error("stale scenario restored")
	}
}

func TestLoadScenariosSkipsInvalidFiles(t *testing.T) {
	fleet, _, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
		"broken.json":      `{"name": "no id"}`,
		"unknown_dev.json": `{"scenario_id": "x", "name": "X", "devices": ["nope"]}`,
		"notes.txt":        "not a scenario",
	})

	ids := m.ScenarioIDs()
	if len(ids) != 1 || ids[0] != "movie_night" {
		t.Errorf("ScenarioIDs() = %v, want [movie_night]", ids)
	}
}

func TestExecuteRoleActionRequiresActiveScenario(t *testing.T) {
	fleet, tv, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})
	ctx := context.Background()

	if _, err := m.ExecuteRoleAction(ctx, "display", "power_on", nil); !errors.Is(err, ErrNoActiveScenario) {
		t.Errorf("error = %v, want ErrNoActiveScenario", err)
	}

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario() error = %v", err)
	}
	before := tv.callCount("power_on")
	if _, err := m.ExecuteRoleAction(ctx, "display", "power_on", nil); err != nil {
		t.Fatalf("ExecuteRoleAction() error = %v", err)
	}
	if tv.callCount("power_on") != before+1 {
		t.Error("role action did not reach the display device")
	}
}

func TestCurrentStateReflectsDevices(t *testing.T) {
	fleet, _, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})
	ctx := context.Background()

	if m.CurrentState() != nil {
		t.Error("CurrentState() non-nil before any switch")
	}

	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario() error = %v", err)
	}

	st := m.CurrentState()
	if st == nil {
		t.Fatal("CurrentState() nil after switch")
	}
	if st.ScenarioID != "movie_night" {
		t.Errorf("ScenarioID = %q", st.ScenarioID)
	}
	if st.Devices["tv"].Power != device.PowerOn {
		t.Errorf("tv power = %q, want on", st.Devices["tv"].Power)
	}
	if st.Devices["lights"].Power != device.PowerOff {
		t.Errorf("lights power = %q, want off", st.Devices["lights"].Power)
	}
}

func TestWBAdapterVirtualConfig(t *testing.T) {
	fleet, _, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
	})

	def, err := m.GetDefinition("movie_night")
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}

	cfg := VirtualConfig(def, fleet)
	if cfg.DeviceID != "movie_night" || cfg.DeviceClass != "Scenario" {
		t.Errorf("config identity = %q/%q", cfg.DeviceID, cfg.DeviceClass)
	}
	for _, name := range []string{"startup", "shutdown"} {
		cmd, ok := cfg.Commands[name]
		if !ok {
			t.Fatalf("command %q missing", name)
		}
		if cmd.Group != "power" {
			t.Errorf("%s group = %q, want power", name, cmd.Group)
		}
	}
}

func TestWBAdapterIgnoresInactiveScenario(t *testing.T) {
	fleet, tv, _, _ := avFleet()
	m, _ := newTestScenarioManager(t, fleet, map[string]string{
		"movie_night.json": movieNightJSON,
		"reading.json":     readingJSON,
	})
	ctx := context.Background()

	def, err := m.GetDefinition("movie_night")
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}
	adapter := NewWBAdapter(def, m, nopBus{}, logging.Default())

	// No scenario active: the command is acknowledged but ignored.
	response := adapter.ExecuteAction(ctx, "startup", nil, "mqtt")
	if !response.Success {
		t.Fatalf("inactive adapter response = %+v", response)
	}
	if tv.callCount("power_on") != 0 {
		t.Error("inactive scenario adapter executed commands")
	}

	// Active scenario: startup runs the sequence.
	if _, err := m.SwitchScenario(ctx, "movie_night", true); err != nil {
		t.Fatalf("SwitchScenario() error = %v", err)
	}
	before := tv.callCount("power_on")
	response = adapter.ExecuteAction(ctx, "startup", nil, "mqtt")
	if !response.Success {
		t.Fatalf("active adapter response = %+v", response)
	}
	if tv.callCount("power_on") != before+1 {
		t.Error("active scenario adapter did not run the startup sequence")
	}
}

// nopBus discards publications; adapter tests only exercise dispatch.
type nopBus struct{}

func (nopBus) PublishString(topic, payload string, qos byte, retained bool) error      { return nil }
func (nopBus) AddWillMessage(deviceID, topic, payload string, qos byte, retained bool) {}
func (nopBus) RemoveDeviceWillMessages(deviceID string)                                {}
