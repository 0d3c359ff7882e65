package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/sse"
	"github.com/avgate/avgate/internal/state"
)

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Fleet is the device-manager surface the scenario manager needs.
// *device.Manager satisfies it.
type Fleet interface {
	DeviceProvider
	DeviceIDs() []string
}

// Manager loads scenario definitions, owns the single active scenario, and
// performs switches with shared-device analysis.
//
// Thread Safety:
//   - One switch runs at a time (exclusive switch lock). Lookups are safe
//     concurrently. Device commands from other sources are not blocked
//     during a transition.
type Manager struct {
	repo   *state.Repository
	fleet  Fleet
	rooms  RoomChecker
	events device.Events
	logger *logging.Logger
	dir    string

	definitions map[string]Definition
	scenarios   map[string]*Scenario
	current     *Scenario
	scenState   *State
	mu          sync.RWMutex

	// switchMu serialises scenario transitions.
	switchMu sync.Mutex

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a scenario manager. rooms may be nil to skip room
// membership validation.
func NewManager(dir string, repo *state.Repository, fleet Fleet, rooms RoomChecker, events device.Events, logger *logging.Logger) *Manager {
	return &Manager{
		repo:        repo,
		fleet:       fleet,
		rooms:       rooms,
		events:      events,
		logger:      logger.With("component", "scenario_manager"),
		dir:         dir,
		definitions: make(map[string]Definition),
		scenarios:   make(map[string]*Scenario),
		done:        make(chan struct{}),
	}
}

// commandListerAdapter exposes device command names for validation.
type commandListerAdapter struct{ fleet Fleet }

func (a commandListerAdapter) AvailableCommandNames(deviceID string) ([]string, bool) {
	d, err := a.fleet.GetDevice(deviceID)
	if err != nil {
		return nil, false
	}
	commands := d.AvailableCommands()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names, true
}

// Initialize loads all definitions and restores the persisted active
// scenario when it is still known.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.LoadScenarios(); err != nil {
		return err
	}

	m.restoreActive(ctx)
	return nil
}

// restoreActive re-activates the scenario persisted before the last
// shutdown. A stale or unknown ID is logged and ignored.
func (m *Manager) restoreActive(ctx context.Context) {
	raw := m.repo.Load(ctx, state.ActiveScenarioKey)
	if raw == nil {
		return
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		m.logger.Warn("Persisted active scenario unreadable", "error", err)
		return
	}

	m.mu.RLock()
	_, known := m.scenarios[id]
	m.mu.RUnlock()
	if !known {
		m.logger.Warn("Persisted active scenario no longer exists", "scenario_id", id)
		return
	}

	m.logger.Info("Restoring active scenario", "scenario_id", id)
	if _, err := m.SwitchScenario(ctx, id, true); err != nil {
		m.logger.Error("Failed to restore active scenario", "scenario_id", id, "error", err)
	}
}

// LoadScenarios enumerates the scenario directory; each valid file yields
// one definition. Validation failures are logged and skipped.
func (m *Manager) LoadScenarios() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("reading scenarios directory: %w", err)
	}

	known := make(map[string]struct{})
	for _, id := range m.fleet.DeviceIDs() {
		known[id] = struct{}{}
	}
	lister := commandListerAdapter{fleet: m.fleet}

	definitions := make(map[string]Definition)
	scenarios := make(map[string]*Scenario)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Error("Failed to read scenario file", "file", path, "error", err)
			continue
		}

		def, err := ParseDefinition(data)
		if err != nil {
			m.logger.Error("Skipping invalid scenario file", "file", path, "error", err)
			continue
		}

		if errs := Validate(def, known, m.rooms, lister); len(errs) > 0 {
			for _, verr := range errs {
				m.logger.Error("Scenario validation failed", "file", path, "error", verr)
			}
			continue
		}

		definitions[def.ScenarioID] = def
		scenarios[def.ScenarioID] = New(def, m.fleet, m.logger)
	}

	m.mu.Lock()
	m.definitions = definitions
	m.scenarios = scenarios
	// The active scenario object survives reload so in-flight operations
	// keep a consistent view; the next switch picks up the new definition.
	m.mu.Unlock()

	m.logger.Info("Scenarios loaded", "count", len(scenarios))
	return nil
}

// SwitchScenario transitions to the target scenario.
//
// With graceful=true and an active scenario, devices shared between the two
// stay powered: non-shared outgoing devices get power_off, and the incoming
// startup sequence skips power commands on shared devices. With
// graceful=false the outgoing scenario's full shutdown sequence runs first.
//
// The active-scenario key is persisted only after the startup sequence call
// completes.
func (m *Manager) SwitchScenario(ctx context.Context, targetID string, graceful bool) (SwitchResult, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	target, ok := m.scenarios[targetID]
	current := m.current
	m.mu.RUnlock()

	if !ok {
		return SwitchResult{}, fmt.Errorf("%w: %q", ErrUnknownScenario, targetID)
	}

	// Switching to the active scenario is a no-op.
	if current != nil && current.ID() == targetID {
		return SwitchResult{Success: true, SharedDevices: []string{}, PowerCycledDevices: []string{}}, nil
	}

	shared := map[string]struct{}{}
	powerCycled := []string{}

	if current != nil {
		outgoing := current.DeviceIDs()
		incoming := make(map[string]struct{}, len(target.DeviceIDs()))
		for _, id := range target.DeviceIDs() {
			incoming[id] = struct{}{}
		}

		if graceful {
			for _, id := range outgoing {
				if _, both := incoming[id]; both {
					shared[id] = struct{}{}
				}
			}
			// Non-shared outgoing devices are powered off; shared ones stay
			// on and their power steps are skipped during startup, so nothing
			// is power-cycled on a graceful switch.
			for _, id := range outgoing {
				if _, keep := shared[id]; keep {
					continue
				}
				m.powerOff(ctx, id)
			}
		} else {
			// Full shutdown then full startup: devices in both scenarios get
			// an off/on cycle.
			for _, id := range outgoing {
				if _, both := incoming[id]; both {
					powerCycled = append(powerCycled, id)
				}
			}
			current.ExecuteShutdownSequence(ctx)
		}
	}

	sharedList := make([]string, 0, len(shared))
	for id := range shared {
		sharedList = append(sharedList, id)
	}

	target.ExecuteStartupSequence(ctx, sharedList)

	st := target.ComputeState()
	m.mu.Lock()
	m.current = target
	m.scenState = &st
	m.mu.Unlock()

	m.persistActive(ctx, targetID)

	m.events.Broadcast(sse.ChannelScenarios, "scenario_switched", map[string]any{
		"scenario_id":  targetID,
		"shared":       sharedList,
		"power_cycled": powerCycled,
		"timestamp":    time.Now().Format(time.RFC3339),
	})

	return SwitchResult{
		Success:            true,
		SharedDevices:      sharedList,
		PowerCycledDevices: powerCycled,
	}, nil
}

// powerOff issues a best-effort power_off to one device.
func (m *Manager) powerOff(ctx context.Context, deviceID string) {
	d, err := m.fleet.GetDevice(deviceID)
	if err != nil {
		m.logger.Warn("Cannot power off missing device", "device_id", deviceID)
		return
	}
	response := d.ExecuteAction(ctx, "power_off", nil, "scenario")
	if !response.Success {
		m.logger.Warn("Power off failed", "device_id", deviceID, "error", response.Error)
	}
}

// persistActive writes the active scenario ID to the repository.
func (m *Manager) persistActive(ctx context.Context, id string) {
	data, err := json.Marshal(id)
	if err != nil {
		return
	}
	if !m.repo.Save(ctx, state.ActiveScenarioKey, data) {
		m.logger.Warn("Failed to persist active scenario", "scenario_id", id)
	}
}

// StartScenario activates a scenario when nothing else is active.
func (m *Manager) StartScenario(ctx context.Context, id string) (SwitchResult, error) {
	m.mu.RLock()
	active := m.current
	m.mu.RUnlock()

	if active != nil {
		return SwitchResult{}, fmt.Errorf("%w: %q", ErrScenarioActive, active.ID())
	}

	return m.SwitchScenario(ctx, id, true)
}

// ShutdownScenario deactivates the active scenario.
//
// graceful=true runs the full shutdown sequence; graceful=false powers off
// every participating device directly.
func (m *Manager) ShutdownScenario(ctx context.Context, id string, graceful bool) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil || current.ID() != id {
		return fmt.Errorf("%w: %q", ErrScenarioNotActive, id)
	}

	if graceful {
		current.ExecuteShutdownSequence(ctx)
	} else {
		for _, deviceID := range current.DeviceIDs() {
			m.powerOff(ctx, deviceID)
		}
	}

	m.mu.Lock()
	m.current = nil
	m.scenState = nil
	m.mu.Unlock()

	m.repo.Delete(ctx, state.ActiveScenarioKey)

	m.events.Broadcast(sse.ChannelScenarios, "scenario_stopped", map[string]any{
		"scenario_id": id,
		"timestamp":   time.Now().Format(time.RFC3339),
	})

	return nil
}

// ExecuteRoleAction delegates a role action to the active scenario.
func (m *Manager) ExecuteRoleAction(ctx context.Context, role, command string, params map[string]any) (device.CommandResponse, error) {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil {
		return device.CommandResponse{}, ErrNoActiveScenario
	}

	response, err := current.ExecuteRoleAction(ctx, role, command, params)
	if err == nil {
		st := current.ComputeState()
		m.mu.Lock()
		m.scenState = &st
		m.mu.Unlock()
	}
	return response, err
}

// CurrentState returns the active scenario's state, or nil when none.
func (m *Manager) CurrentState() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.scenState == nil {
		return nil
	}
	cpy := *m.scenState
	return &cpy
}

// ActiveScenarioID returns the active scenario's ID, or "".
func (m *Manager) ActiveScenarioID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ""
	}
	return m.current.ID()
}

// ScenarioIDs returns the loaded scenario IDs.
func (m *Manager) ScenarioIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.scenarios))
	for id := range m.scenarios {
		ids = append(ids, id)
	}
	return ids
}

// GetDefinition returns a loaded definition.
func (m *Manager) GetDefinition(id string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.definitions[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	return def, nil
}

// Definitions returns all loaded definitions.
func (m *Manager) Definitions() []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]Definition, 0, len(m.definitions))
	for _, def := range m.definitions {
		defs = append(defs, def)
	}
	return defs
}

// WatchDirectory starts hot reload of scenario definitions: file changes in
// the scenario directory trigger a debounced LoadScenarios.
func (m *Manager) WatchDirectory() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating scenario watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close() //nolint:errcheck // Best effort on error path
		return fmt.Errorf("watching %q: %w", m.dir, err)
	}

	m.watcher = watcher
	go m.watchLoop()

	m.logger.Info("Scenario hot reload enabled", "dir", m.dir)
	return nil
}

// watchLoop debounces file events into reloads.
func (m *Manager) watchLoop() {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Scenario watcher error", "error", err)
		case <-reload:
			if err := m.LoadScenarios(); err != nil {
				m.logger.Error("Scenario reload failed", "error", err)
			}
		}
	}
}

// Shutdown runs the active scenario's shutdown sequence best-effort and
// stops the watcher.
func (m *Manager) Shutdown(ctx context.Context) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current != nil {
		current.ExecuteShutdownSequence(ctx)
	}

	m.mu.Lock()
	m.current = nil
	m.scenState = nil
	m.mu.Unlock()

	close(m.done)
	if m.watcher != nil {
		m.watcher.Close() //nolint:errcheck // Shutdown path
	}

	m.logger.Info("Scenario manager shut down")
}
