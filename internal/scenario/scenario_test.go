package scenario

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// fakeDriver is a minimal device.Driver that records executed actions and
// mutates power state for power commands.
type fakeDriver struct {
	id       string
	commands map[string]device.CommandDef

	mu    sync.Mutex
	state device.State
	calls []string
	fail  map[string]bool
}

func newFakeDriver(id string, commandNames ...string) *fakeDriver {
	commands := make(map[string]device.CommandDef, len(commandNames))
	for _, name := range commandNames {
		commands[name] = device.CommandDef{Action: name}
	}
	return &fakeDriver{
		id:       id,
		commands: commands,
		state:    device.State{device.StateFieldPower: device.PowerOff},
		fail:     make(map[string]bool),
	}
}

func (f *fakeDriver) ID() string    { return f.id }
func (f *fakeDriver) Name() string  { return f.id }
func (f *fakeDriver) Class() string { return "Fake" }

func (f *fakeDriver) Setup(ctx context.Context) error    { return nil }
func (f *fakeDriver) Shutdown(ctx context.Context) error { return nil }
func (f *fakeDriver) SubscribeTopics() []string          { return nil }

func (f *fakeDriver) HandleMessage(ctx context.Context, topic string, payload []byte) {}

func (f *fakeDriver) ExecuteAction(ctx context.Context, action string, params map[string]any, source string) device.CommandResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, action)

	if f.fail[action] {
		result := device.CommandResult{Success: false, Error: "simulated failure"}
		return device.CommandResponse{DeviceID: f.id, Action: action, Result: &result, Error: result.Error}
	}

	switch action {
	case "power_on":
		f.state[device.StateFieldPower] = device.PowerOn
	case "power_off":
		f.state[device.StateFieldPower] = device.PowerOff
	case "set_volume":
		if level, ok := params["level"]; ok {
			f.state["volume"] = level
		}
	case "set_input":
		if input, ok := params["input"]; ok {
			f.state["input_source"] = input
		}
	}

	result := device.CommandResult{Success: true}
	return device.CommandResponse{Success: true, DeviceID: f.id, Action: action, Result: &result}
}

func (f *fakeDriver) CurrentState() device.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.DeepCopy()
}

func (f *fakeDriver) AvailableCommands() map[string]device.CommandDef {
	return f.commands
}

func (f *fakeDriver) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == action {
			n++
		}
	}
	return n
}

func (f *fakeDriver) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDriver) setPower(power string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[device.StateFieldPower] = power
}

// fakeFleet satisfies Fleet over a fixed set of fake drivers.
type fakeFleet struct {
	drivers map[string]*fakeDriver
}

func newFakeFleet(drivers ...*fakeDriver) *fakeFleet {
	f := &fakeFleet{drivers: make(map[string]*fakeDriver, len(drivers))}
	for _, d := range drivers {
		f.drivers[d.id] = d
	}
	return f
}

func (f *fakeFleet) GetDevice(deviceID string) (device.Driver, error) {
	d, ok := f.drivers[deviceID]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d, nil
}

func (f *fakeFleet) DeviceIDs() []string {
	ids := make([]string, 0, len(f.drivers))
	for id := range f.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func TestExecuteRoleAction(t *testing.T) {
	tv := newFakeDriver("tv", "power_on", "set_volume")
	fleet := newFakeFleet(tv)

	s := New(Definition{
		ScenarioID: "movie",
		Name:       "Movie",
		Devices:    []string{"tv"},
		Roles:      map[string]string{"display": "tv", "ghost_role": "missing"},
	}, fleet, logging.Default())

	if _, err := s.ExecuteRoleAction(context.Background(), "display", "power_on", nil); err != nil {
		t.Fatalf("ExecuteRoleAction() error = %v", err)
	}
	if tv.callCount("power_on") != 1 {
		t.Error("role action did not reach the device")
	}

	if _, err := s.ExecuteRoleAction(context.Background(), "nonsense", "power_on", nil); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("unknown role error = %v, want ErrInvalidRole", err)
	}
	if _, err := s.ExecuteRoleAction(context.Background(), "ghost_role", "power_on", nil); !errors.Is(err, ErrMissingDevice) {
		t.Errorf("missing device error = %v, want ErrMissingDevice", err)
	}
}

func TestExecuteRoleActionFailurePropagates(t *testing.T) {
	tv := newFakeDriver("tv", "power_on")
	tv.fail["power_on"] = true
	fleet := newFakeFleet(tv)

	s := New(Definition{
		ScenarioID: "movie",
		Name:       "Movie",
		Devices:    []string{"tv"},
		Roles:      map[string]string{"display": "tv"},
	}, fleet, logging.Default())

	_, err := s.ExecuteRoleAction(context.Background(), "display", "power_on", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if execErr.Role != "display" || execErr.DeviceID != "tv" || execErr.Command != "power_on" {
		t.Errorf("ExecutionError fields = %+v", execErr)
	}
}

func TestStartupSequenceOrderAndDelays(t *testing.T) {
	tv := newFakeDriver("tv", "power_on", "set_input")
	amp := newFakeDriver("amp", "power_on", "set_volume")
	fleet := newFakeFleet(tv, amp)

	s := New(Definition{
		ScenarioID: "movie",
		Name:       "Movie",
		Devices:    []string{"tv", "amp"},
		StartupSequence: []CommandStep{
			{Device: "tv", Command: "power_on", DelayAfterMs: 1},
			{Device: "amp", Command: "power_on"},
			{Device: "tv", Command: "set_input", Params: map[string]any{"input": "hdmi1"}},
			{Device: "amp", Command: "set_volume", Params: map[string]any{"level": 40}},
		},
	}, fleet, logging.Default())

	s.ExecuteStartupSequence(context.Background(), nil)

	wantTV := []string{"power_on", "set_input"}
	if got := tv.callLog(); len(got) != 2 || got[0] != wantTV[0] || got[1] != wantTV[1] {
		t.Errorf("tv calls = %v, want %v", got, wantTV)
	}
	wantAmp := []string{"power_on", "set_volume"}
	if got := amp.callLog(); len(got) != 2 || got[0] != wantAmp[0] || got[1] != wantAmp[1] {
		t.Errorf("amp calls = %v, want %v", got, wantAmp)
	}
	if tv.CurrentState()["input_source"] != "hdmi1" {
		t.Error("set_input params not delivered")
	}
}

func TestStartupSequenceSkipsPowerOnSharedDevices(t *testing.T) {
	tv := newFakeDriver("tv", "power_on", "set_input")
	fleet := newFakeFleet(tv)

	s := New(Definition{
		ScenarioID: "reading",
		Name:       "Reading",
		Devices:    []string{"tv"},
		StartupSequence: []CommandStep{
			{Device: "tv", Command: "power_on"},
			{Device: "tv", Command: "set_input", Params: map[string]any{"input": "hdmi2"}},
		},
	}, fleet, logging.Default())

	s.ExecuteStartupSequence(context.Background(), []string{"tv"})

	if tv.callCount("power_on") != 0 {
		t.Error("power step executed on shared device")
	}
	if tv.callCount("set_input") != 1 {
		t.Error("non-power step skipped on shared device")
	}
}

// Condition gating: the power step runs only when the device is not already
// on.
func TestStartupSequenceConditionGating(t *testing.T) {
	step := CommandStep{Device: "soundbar", Command: "power_on", Condition: "device.power != 'on'"}

	// Initially off: the step executes.
	soundbar := newFakeDriver("soundbar", "power_on")
	s := New(Definition{
		ScenarioID:      "movie",
		Name:            "Movie",
		Devices:         []string{"soundbar"},
		StartupSequence: []CommandStep{step},
	}, newFakeFleet(soundbar), logging.Default())
	s.ExecuteStartupSequence(context.Background(), nil)
	if soundbar.callCount("power_on") != 1 {
		t.Error("step not executed for power=off")
	}

	// Already on: no driver call observed.
	soundbar = newFakeDriver("soundbar", "power_on")
	soundbar.setPower(device.PowerOn)
	s = New(Definition{
		ScenarioID:      "movie",
		Name:            "Movie",
		Devices:         []string{"soundbar"},
		StartupSequence: []CommandStep{step},
	}, newFakeFleet(soundbar), logging.Default())
	s.ExecuteStartupSequence(context.Background(), nil)
	if soundbar.callCount("power_on") != 0 {
		t.Error("step executed despite power=on")
	}
}

func TestSequenceToleratesMissingDeviceAndFailure(t *testing.T) {
	amp := newFakeDriver("amp", "power_on", "set_volume")
	amp.fail["power_on"] = true
	fleet := newFakeFleet(amp)

	s := New(Definition{
		ScenarioID: "movie",
		Name:       "Movie",
		Devices:    []string{"ghost", "amp"},
		StartupSequence: []CommandStep{
			{Device: "ghost", Command: "power_on"},
			{Device: "amp", Command: "power_on"},
			{Device: "amp", Command: "set_volume", Params: map[string]any{"level": 20}},
		},
	}, fleet, logging.Default())

	// Best-effort: the missing device and the failing step do not stop the
	// rest of the sequence.
	s.ExecuteStartupSequence(context.Background(), nil)

	if amp.callCount("set_volume") != 1 {
		t.Error("sequence aborted after earlier failure")
	}
}

func TestEmptySequencesAreNoOps(t *testing.T) {
	tv := newFakeDriver("tv", "power_on")
	s := New(Definition{
		ScenarioID: "idle",
		Name:       "Idle",
		Devices:    []string{"tv"},
	}, newFakeFleet(tv), logging.Default())

	s.ExecuteStartupSequence(context.Background(), nil)
	s.ExecuteShutdownSequence(context.Background())

	if len(tv.callLog()) != 0 {
		t.Errorf("empty sequences executed commands: %v", tv.callLog())
	}
}

func TestComputeState(t *testing.T) {
	tv := newFakeDriver("tv", "power_on", "set_input")
	tv.setPower(device.PowerOn)
	tv.mu.Lock()
	tv.state["input_source"] = "hdmi1"
	tv.state["brightness"] = 80
	tv.mu.Unlock()

	s := New(Definition{
		ScenarioID: "movie",
		Name:       "Movie",
		Devices:    []string{"tv", "ghost"},
	}, newFakeFleet(tv), logging.Default())

	st := s.ComputeState()
	if st.ScenarioID != "movie" {
		t.Errorf("ScenarioID = %q", st.ScenarioID)
	}

	summary, ok := st.Devices["tv"]
	if !ok {
		t.Fatal("tv missing from scenario state")
	}
	if summary.Power != device.PowerOn {
		t.Errorf("Power = %q", summary.Power)
	}
	if summary.Input != "hdmi1" {
		t.Errorf("Input = %q", summary.Input)
	}
	if summary.Extra["brightness"] != 80 {
		t.Errorf("Extra = %v", summary.Extra)
	}

	// Unresolvable devices are simply absent.
	if _, ok := st.Devices["ghost"]; ok {
		t.Error("missing device present in scenario state")
	}
}
