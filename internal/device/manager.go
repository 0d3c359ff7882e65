package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avgate/avgate/internal/guard"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/infrastructure/mqtt"
	"github.com/avgate/avgate/internal/sse"
	"github.com/avgate/avgate/internal/state"
)

// persistenceWaitTimeout bounds the shutdown wait for in-flight persistence.
const persistenceWaitTimeout = 2 * time.Second

// SubscriberBus extends the device publish port with subscription binding,
// as used by the manager at boot. *mqtt.Client satisfies it.
type SubscriberBus interface {
	Bus
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Events is the fan-out surface the manager broadcasts device events on.
// *sse.Manager satisfies it.
type Events interface {
	Broadcast(channel sse.Channel, eventType string, data map[string]any)
}

// Manager owns the device fleet: construction from config, inbound message
// routing with maintenance suppression, action dispatch, and persistence
// orchestration across the device lifecycle.
//
// Thread Safety:
//   - All public methods are safe for concurrent use. Per-device command
//     ordering is enforced by each device's own execution lock.
type Manager struct {
	repo   *state.Repository
	bus    SubscriberBus
	guard  *guard.MaintenanceGuard
	events Events
	logger *logging.Logger

	devices map[string]Driver
	mu      sync.RWMutex

	// shuttingDown flips persistence from background tasks to synchronous
	// inline writes.
	shuttingDown bool
	shutdownMu   sync.RWMutex

	// pending tracks in-flight background persistence tasks.
	pending   sync.WaitGroup
	pendingN  int
	pendingMu sync.Mutex

	// stateSink optionally mirrors every state change, e.g. to telemetry.
	stateSink func(deviceID string, st State)
	sinkMu    sync.RWMutex
}

// NewManager creates a device manager. Devices are added via LoadDevices or
// AddDevice before Initialize.
func NewManager(repo *state.Repository, bus SubscriberBus, g *guard.MaintenanceGuard, events Events, logger *logging.Logger) *Manager {
	return &Manager{
		repo:    repo,
		bus:     bus,
		guard:   g,
		events:  events,
		logger:  logger.With("component", "device_manager"),
		devices: make(map[string]Driver),
	}
}

// LoadDevices constructs a driver for every config via the class registry.
// Unknown classes are logged and skipped; the rest of the fleet loads.
func (m *Manager) LoadDevices(configs []Config) {
	for _, cfg := range configs {
		driver, err := NewDriver(cfg, m.bus, m.logger)
		if err != nil {
			m.logger.Error("Skipping device", "device_id", cfg.DeviceID, "error", err)
			continue
		}
		m.AddDevice(driver)
	}
}

// AddDevice registers a constructed driver with the manager.
func (m *Manager) AddDevice(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID()] = d
	m.installCallbacks(d)
}

// installCallbacks wires persistence scheduling and event broadcasting into
// a device. Only devices embedding BaseDevice expose the callback hooks.
func (m *Manager) installCallbacks(d Driver) {
	hooks, ok := d.(interface {
		SetStateChangeCallback(fn func(deviceID string, st State))
		SetActionSuccessCallback(fn func(deviceID, action string, st State))
	})
	if !ok {
		return
	}

	hooks.SetStateChangeCallback(func(deviceID string, st State) {
		m.schedulePersistence(deviceID, st)

		m.sinkMu.RLock()
		sink := m.stateSink
		m.sinkMu.RUnlock()
		if sink != nil {
			sink(deviceID, st)
		}
	})
	hooks.SetActionSuccessCallback(func(deviceID, action string, st State) {
		now := time.Now().Format(time.RFC3339)
		m.events.Broadcast(sse.ChannelDevices, "state_change", map[string]any{
			"device_id": deviceID,
			"action":    action,
			"state":     st,
			"timestamp": now,
		})
		m.events.Broadcast(sse.ChannelDevices, "action_success", map[string]any{
			"device_id": deviceID,
			"action":    action,
			"timestamp": now,
		})
	})
}

// SetStateSink installs an additional consumer of device state changes.
// Install before Initialize; the sink must not block.
func (m *Manager) SetStateSink(fn func(deviceID string, st State)) {
	m.sinkMu.Lock()
	m.stateSink = fn
	m.sinkMu.Unlock()
}

// Initialize restores persisted states, sets up every device, and binds the
// aggregated subscription map to the bus.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.RLock()
	devices := make([]Driver, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.RUnlock()

	for _, d := range devices {
		m.restoreState(ctx, d)

		if err := d.Setup(ctx); err != nil {
			m.logger.Error("Device setup failed", "device_id", d.ID(), "error", err)
			continue
		}
	}

	return m.bindSubscriptions()
}

// restoreState merges a device's persisted state back into memory at boot.
func (m *Manager) restoreState(ctx context.Context, d Driver) {
	persisted := m.repo.Load(ctx, state.DeviceKey(d.ID()))
	if persisted == nil {
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(persisted, &fields); err != nil {
		m.logger.Warn("Persisted state unreadable", "device_id", d.ID(), "error", err)
		return
	}
	delete(fields, state.TimestampField)

	if restorer, ok := d.(interface{ UpdateState(map[string]any) }); ok {
		restorer.UpdateState(fields)
		m.logger.Debug("Restored persisted state", "device_id", d.ID())
	}
}

// bindSubscriptions builds the aggregated topic→handler map (device command
// patterns plus guard sentinels) and subscribes.
func (m *Manager) bindSubscriptions() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, topic := range m.guard.SubscriptionTopics() {
		if err := m.bus.Subscribe(topic, 1, m.routeMessage); err != nil {
			return fmt.Errorf("subscribing sentinel %q: %w", topic, err)
		}
	}

	for _, d := range m.devices {
		for _, topic := range d.SubscribeTopics() {
			if err := m.bus.Subscribe(topic, 1, m.routeMessage); err != nil {
				return fmt.Errorf("subscribing %q for %q: %w", topic, d.ID(), err)
			}
		}
	}

	return nil
}

// routeMessage is the single inbound bus handler: maintenance check first,
// then dispatch to the owning device.
func (m *Manager) routeMessage(topic string, payload []byte) error {
	if m.guard.MaintenanceStarted(topic) {
		return nil
	}

	deviceID, _, ok := mqtt.ParseCommandTopic(topic)
	if !ok {
		return nil
	}

	m.mu.RLock()
	d, exists := m.devices[deviceID]
	m.mu.RUnlock()
	if !exists {
		return nil
	}

	d.HandleMessage(context.Background(), topic, payload)
	return nil
}

// GetDevice returns a registered driver.
func (m *Manager) GetDevice(deviceID string) (Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return d, nil
}

// DeviceIDs returns the sorted IDs of all registered devices.
func (m *Manager) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PerformAction is the public command entry point used by the REST adapter
// and the scenario engine.
func (m *Manager) PerformAction(ctx context.Context, deviceID, action string, params map[string]any, source string) (CommandResponse, error) {
	d, err := m.GetDevice(deviceID)
	if err != nil {
		return CommandResponse{}, err
	}

	return d.ExecuteAction(ctx, action, params, source), nil
}

// LoadPersistedState returns the last persisted state for a device,
// including the _timestamp annotation. Nil when never persisted.
func (m *Manager) LoadPersistedState(ctx context.Context, deviceID string) json.RawMessage {
	return m.repo.Load(ctx, state.DeviceKey(deviceID))
}

// schedulePersistence is the post-mutation callback installed on every
// device. During normal operation persistence runs as a tracked background
// task; once shutdown preparation starts it runs synchronously inline so no
// write races the bus teardown.
func (m *Manager) schedulePersistence(deviceID string, st State) {
	m.shutdownMu.RLock()
	inline := m.shuttingDown
	m.shutdownMu.RUnlock()

	if inline {
		m.persistState(deviceID, st)
		return
	}

	m.pendingMu.Lock()
	m.pendingN++
	m.pendingMu.Unlock()
	m.pending.Add(1)

	go func() {
		defer func() {
			m.pendingMu.Lock()
			m.pendingN--
			m.pendingMu.Unlock()
			m.pending.Done()
		}()
		m.persistState(deviceID, st)
	}()
}

// persistState writes one device state to the repository.
func (m *Manager) persistState(deviceID string, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		m.logger.Error("State not serialisable", "device_id", deviceID, "error", err)
		return
	}
	if !m.repo.Save(context.Background(), state.DeviceKey(deviceID), data) {
		m.logger.Warn("State persistence failed", "device_id", deviceID)
	}
}

// PrepareForShutdown switches persistence to synchronous inline writes.
// Must be called before devices are shut down.
func (m *Manager) PrepareForShutdown() {
	m.shutdownMu.Lock()
	m.shuttingDown = true
	m.shutdownMu.Unlock()
	m.logger.Info("Persistence switched to synchronous mode")
}

// WaitForPersistenceTasks blocks until in-flight background persistence
// completes or the timeout elapses. On timeout the remaining tasks are
// reported but not cancelled.
func (m *Manager) WaitForPersistenceTasks(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.pendingMu.Lock()
		remaining := m.pendingN
		m.pendingMu.Unlock()
		m.logger.Warn("Persistence tasks still pending after timeout",
			"remaining", remaining,
			"timeout", timeout,
		)
	}
}

// PersistAllDeviceStates synchronously writes every device's current state.
// Used as the final flush during shutdown.
func (m *Manager) PersistAllDeviceStates() {
	m.mu.RLock()
	devices := make([]Driver, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.RUnlock()

	for _, d := range devices {
		m.persistState(d.ID(), d.CurrentState())
	}
	m.logger.Info("All device states persisted", "count", len(devices))
}

// Shutdown runs the ordered teardown: flip to synchronous persistence, shut
// down each device (publishing offline markers), wait for background
// persistence, final state flush, close the repository.
func (m *Manager) Shutdown(ctx context.Context) {
	m.PrepareForShutdown()

	m.mu.RLock()
	devices := make([]Driver, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.RUnlock()

	for _, d := range devices {
		if err := d.Shutdown(ctx); err != nil {
			m.logger.Warn("Device shutdown failed", "device_id", d.ID(), "error", err)
		}
	}

	m.WaitForPersistenceTasks(persistenceWaitTimeout)
	m.PersistAllDeviceStates()
	m.repo.Close()

	m.logger.Info("Device manager shut down", "devices", len(devices))
}
