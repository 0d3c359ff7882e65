package device

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/infrastructure/mqtt"
)

// Bus is the narrow message-bus port devices publish through.
// *mqtt.Client satisfies it.
type Bus interface {
	PublishString(topic, payload string, qos byte, retained bool) error
	AddWillMessage(deviceID, topic, payload string, qos byte, retained bool)
	RemoveDeviceWillMessages(deviceID string)
}

// Handler executes one device action.
type Handler func(ctx context.Context, params map[string]any) CommandResult

// Driver is the contract every concrete device class satisfies.
type Driver interface {
	ID() string
	Name() string
	Class() string

	// Setup initialises resources and publishes the virtual device.
	Setup(ctx context.Context) error

	// Shutdown releases resources and publishes offline markers.
	// Safe to call more than once; calls after the first are no-ops.
	Shutdown(ctx context.Context) error

	// SubscribeTopics returns the inbound topics this device handles,
	// derived from the topic conventions rather than configured.
	SubscribeTopics() []string

	// HandleMessage dispatches an inbound bus message.
	HandleMessage(ctx context.Context, topic string, payload []byte)

	// ExecuteAction runs an action with validated parameters.
	ExecuteAction(ctx context.Context, action string, params map[string]any, source string) CommandResponse

	// CurrentState returns a copy of the device state.
	CurrentState() State

	// AvailableCommands returns the configured command definitions.
	AvailableCommands() map[string]CommandDef
}

// qosDefault is the QoS used for virtual-device publications.
const qosDefault byte = 1

// handlePrefix is the method-style fallback for handler resolution.
const handlePrefix = "handle_"

// nonSnakeCase matches characters rewritten during handler normalisation.
var nonSnakeCase = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// normaliseAction converts camelCase action names to the snake_case used in
// the handler registry. Snake_case input passes through unchanged.
func normaliseAction(action string) string {
	return strings.ToLower(nonSnakeCase.ReplaceAllString(action, "${1}_${2}"))
}

// BaseDevice implements the lifecycle and virtual-device projection shared
// by every device class. Concrete drivers embed it and register handlers.
//
// Thread Safety:
//   - Command handling and state mutation are serialised per device through
//     an internal mutex. Different devices run in parallel.
type BaseDevice struct {
	cfg    Config
	bus    Bus
	logger *logging.Logger

	state   State
	stateMu sync.Mutex

	// execMu serialises command handling per device.
	execMu sync.Mutex

	handlers map[string]Handler

	// onStateChange is installed by the manager to schedule persistence.
	onStateChange func(deviceID string, st State)

	// onActionSuccess is installed by the manager to broadcast the
	// state_change and action_success events per successful action.
	onActionSuccess func(deviceID, action string, st State)

	callbackMu sync.RWMutex

	wbValid  bool
	orders   map[string]int
	shutdown bool
	downMu   sync.Mutex
}

// NewBaseDevice creates the shared device core from a parsed config.
func NewBaseDevice(cfg Config, bus Bus, logger *logging.Logger) *BaseDevice {
	b := &BaseDevice{
		cfg:      cfg,
		bus:      bus,
		logger:   logger.With("device_id", cfg.DeviceID, "device_class", cfg.DeviceClass),
		handlers: make(map[string]Handler),
		state: State{
			StateFieldDeviceID:   cfg.DeviceID,
			StateFieldDeviceName: cfg.DeviceName,
			StateFieldPower:      PowerOff,
		},
	}

	if err := validateWBConfig(cfg); err != nil {
		b.logger.Error("WB config invalid, skipping virtual-device publication", "error", err)
	} else {
		b.wbValid = true
	}
	b.orders = inferControlOrders(cfg.Commands, cfg.WBControls)

	// Offline last-will registration happens at construction, not Setup:
	// the session will is captured when the bus connects, and the fleet is
	// constructed before the connection is established. Registering any
	// later would leave the broker with no will to deliver on a crash.
	if b.wbValid && cfg.WBVirtual {
		bus.AddWillMessage(cfg.DeviceID, mqtt.DeviceAvailabilityTopic(cfg.DeviceID), "0", qosDefault, true)
		bus.AddWillMessage(cfg.DeviceID, mqtt.DeviceErrorTopic(cfg.DeviceID), "offline", qosDefault, true)
	}

	return b
}

// ID returns the stable device identifier.
func (b *BaseDevice) ID() string { return b.cfg.DeviceID }

// Name returns the human-readable device name.
func (b *BaseDevice) Name() string { return b.cfg.DeviceName }

// Class returns the device class name.
func (b *BaseDevice) Class() string { return b.cfg.DeviceClass }

// ConfigEnvelope returns the parsed config envelope.
func (b *BaseDevice) ConfigEnvelope() Config { return b.cfg }

// RegisterHandler binds an action name to a handler. Action names are
// normalised to snake_case.
func (b *BaseDevice) RegisterHandler(action string, handler Handler) {
	b.handlers[normaliseAction(action)] = handler
}

// SetStateChangeCallback installs the post-mutation callback. The manager
// uses it to schedule persistence.
func (b *BaseDevice) SetStateChangeCallback(fn func(deviceID string, st State)) {
	b.callbackMu.Lock()
	b.onStateChange = fn
	b.callbackMu.Unlock()
}

// SetActionSuccessCallback installs the per-action callback fired once after
// each successful ExecuteAction. The manager uses it for event broadcasts.
func (b *BaseDevice) SetActionSuccessCallback(fn func(deviceID, action string, st State)) {
	b.callbackMu.Lock()
	b.onActionSuccess = fn
	b.callbackMu.Unlock()
}

// CurrentState returns a deep copy of the device state.
func (b *BaseDevice) CurrentState() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state.DeepCopy()
}

// AvailableCommands returns the configured command definitions.
func (b *BaseDevice) AvailableCommands() map[string]CommandDef {
	return b.cfg.Commands
}

// UpdateState merges fields into the device state, synchronises mapped WB
// controls, and fires the state-change callback.
func (b *BaseDevice) UpdateState(fields map[string]any) {
	b.stateMu.Lock()
	for k, v := range fields {
		b.state[k] = v
	}
	snapshot := b.state.DeepCopy()
	b.stateMu.Unlock()

	b.syncControls(fields)

	b.callbackMu.RLock()
	callback := b.onStateChange
	b.callbackMu.RUnlock()
	if callback != nil {
		callback(b.cfg.DeviceID, snapshot)
	}
}

// syncControls republishes WB control values for changed state fields.
func (b *BaseDevice) syncControls(changed map[string]any) {
	if !b.wbValid || !b.cfg.WBVirtual {
		return
	}

	for field, value := range changed {
		for _, ctrl := range controlsForStateField(field, b.cfg.WBStateMappings, b.cfg.Commands) {
			payload := controlValueString(field, value)
			topic := mqtt.ControlStateTopic(b.cfg.DeviceID, ctrl)
			if err := b.bus.PublishString(topic, payload, qosDefault, true); err != nil {
				b.logger.Warn("Failed to sync control", "control", ctrl, "error", err)
			}
		}
	}
}

// Setup publishes the virtual device: device meta, control meta, and online
// markers. The offline last-will messages are already registered by
// NewBaseDevice so they precede the bus connection.
func (b *BaseDevice) Setup(ctx context.Context) error {
	if !b.wbValid || !b.cfg.WBVirtual {
		b.logger.Info("Virtual-device publication disabled")
		return nil
	}

	meta := map[string]any{
		"driver": b.cfg.DeviceClass,
		"title":  map[string]string{"en": b.cfg.DeviceName},
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshalling device meta: %w", err)
	}

	id := b.cfg.DeviceID
	if err := b.bus.PublishString(mqtt.DeviceMetaTopic(id), string(metaJSON), qosDefault, true); err != nil {
		return fmt.Errorf("publishing device meta: %w", err)
	}

	for name, def := range b.cfg.Commands {
		ctrlMeta := buildControlMeta(name, def, b.cfg.WBControls, b.orders[name])
		data, err := marshalControlMeta(ctrlMeta)
		if err != nil {
			b.logger.Error("Failed to marshal control meta", "control", name, "error", err)
			continue
		}
		if err := b.bus.PublishString(mqtt.ControlMetaTopic(id, name), string(data), qosDefault, true); err != nil {
			b.logger.Warn("Failed to publish control meta", "control", name, "error", err)
		}
	}

	// Online markers; their offline counterparts are held as will messages.
	if err := b.bus.PublishString(mqtt.DeviceAvailabilityTopic(id), "1", qosDefault, true); err != nil {
		b.logger.Warn("Failed to publish availability", "error", err)
	}
	if err := b.bus.PublishString(mqtt.DeviceErrorTopic(id), "", qosDefault, true); err != nil {
		b.logger.Warn("Failed to publish error marker", "error", err)
	}

	b.logger.Info("Virtual device published", "controls", len(b.cfg.Commands))
	return nil
}

// Shutdown publishes offline markers and releases the will registrations.
// Calls after the first are safe no-ops.
func (b *BaseDevice) Shutdown(ctx context.Context) error {
	b.downMu.Lock()
	if b.shutdown {
		b.downMu.Unlock()
		return nil
	}
	b.shutdown = true
	b.downMu.Unlock()

	if b.wbValid && b.cfg.WBVirtual {
		id := b.cfg.DeviceID
		if err := b.bus.PublishString(mqtt.DeviceAvailabilityTopic(id), "0", qosDefault, true); err != nil {
			b.logger.Warn("Failed to publish offline availability", "error", err)
		}
		if err := b.bus.PublishString(mqtt.DeviceErrorTopic(id), "offline", qosDefault, true); err != nil {
			b.logger.Warn("Failed to publish offline error", "error", err)
		}
		b.bus.RemoveDeviceWillMessages(id)
	}

	b.logger.Info("Device shut down")
	return nil
}

// SubscribeTopics returns the inbound command pattern for this device.
func (b *BaseDevice) SubscribeTopics() []string {
	if !b.wbValid || !b.cfg.WBVirtual {
		return nil
	}
	return []string{mqtt.DeviceCommandsPattern(b.cfg.DeviceID)}
}

// HandleMessage dispatches an inbound /controls/{c}/on message to the
// matching command.
func (b *BaseDevice) HandleMessage(ctx context.Context, topic string, payload []byte) {
	deviceID, control, ok := mqtt.ParseCommandTopic(topic)
	if !ok || deviceID != b.cfg.DeviceID {
		return
	}

	def, exists := b.cfg.Commands[control]
	if !exists {
		b.logger.Warn("Inbound command for unknown control", "control", control)
		return
	}

	params := parseControlPayload(def, payload)
	response := b.ExecuteAction(ctx, control, params, "mqtt")
	if !response.Success {
		b.logger.Warn("Inbound command failed",
			"control", control,
			"error", response.Error,
		)
	}
}

// ExecuteAction runs the execute-action pipeline:
// resolve handler, validate parameters, invoke, record last_command,
// synchronise controls.
//
// Parameters:
//   - ctx: Context for the driver call
//   - action: Command name (snake_case or camelCase)
//   - params: Raw parameters; validated against the command definition
//   - source: Origin label ("rest", "mqtt", "scenario")
func (b *BaseDevice) ExecuteAction(ctx context.Context, action string, params map[string]any, source string) CommandResponse {
	b.execMu.Lock()
	defer b.execMu.Unlock()

	response := CommandResponse{
		DeviceID:  b.cfg.DeviceID,
		Action:    action,
		Timestamp: time.Now(),
	}

	name := normaliseAction(action)
	handler, def, err := b.resolve(name)
	if err != nil {
		response.Error = err.Error()
		b.logger.Warn("Unknown action", "action", action)
		return response
	}

	resolved, err := ResolveAndValidate(def.Params, params)
	if err != nil {
		// Command not attempted: no Result, only the validation error.
		response.Error = err.Error()
		b.UpdateState(map[string]any{StateFieldError: err.Error()})
		return response
	}

	result := handler(ctx, resolved)
	response.Result = &result
	response.Success = result.Success
	if !result.Success {
		response.Error = result.Error
		b.UpdateState(map[string]any{StateFieldError: result.Error})
		return response
	}

	b.UpdateState(map[string]any{
		StateFieldError: nil,
		StateFieldLastCommand: LastCommand{
			Action:    name,
			Source:    source,
			Timestamp: time.Now(),
			Params:    resolved,
		},
	})

	b.callbackMu.RLock()
	onSuccess := b.onActionSuccess
	b.callbackMu.RUnlock()
	if onSuccess != nil {
		onSuccess(b.cfg.DeviceID, name, b.CurrentState())
	}

	return response
}

// resolve finds the handler and command definition for a normalised action.
//
// Lookup order: command table by name, then handler registry directly, then
// the handle_{action} fallback.
func (b *BaseDevice) resolve(name string) (Handler, CommandDef, error) {
	if def, ok := b.cfg.Commands[name]; ok {
		target := normaliseAction(def.Action)
		if handler, ok := b.handlers[target]; ok {
			return handler, def, nil
		}
		if handler, ok := b.handlers[handlePrefix+target]; ok {
			return handler, def, nil
		}
		return nil, CommandDef{}, fmt.Errorf("%w: command %q has no handler %q", ErrUnknownAction, name, def.Action)
	}

	if handler, ok := b.handlers[name]; ok {
		return handler, CommandDef{}, nil
	}
	if handler, ok := b.handlers[handlePrefix+name]; ok {
		return handler, CommandDef{}, nil
	}

	return nil, CommandDef{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}
