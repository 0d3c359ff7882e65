package drivers

import (
	"context"
	"fmt"

	"github.com/avgate/avgate/internal/device"
)

// registerStandardHandlers binds handlers for the well-known action
// vocabulary shared across device classes, then backfills a pushbutton
// handler for any remaining configured action so every command is
// dispatchable.
//
// The send function performs the class-specific outbound operation; state
// mutation stays here so all classes report power, volume, and input
// consistently.
func registerStandardHandlers(b *device.BaseDevice, send func(ctx context.Context, action string, params map[string]any) error) {
	wrap := func(action string, mutate func(params map[string]any) map[string]any) device.Handler {
		return func(ctx context.Context, params map[string]any) device.CommandResult {
			if err := send(ctx, action, params); err != nil {
				return device.CommandResult{Success: false, Error: err.Error()}
			}
			if mutate != nil {
				if fields := mutate(params); fields != nil {
					b.UpdateState(fields)
				}
			}
			return device.CommandResult{Success: true, Message: action}
		}
	}

	b.RegisterHandler("power_on", wrap("power_on", func(map[string]any) map[string]any {
		return map[string]any{device.StateFieldPower: device.PowerOn}
	}))
	b.RegisterHandler("power_off", wrap("power_off", func(map[string]any) map[string]any {
		return map[string]any{device.StateFieldPower: device.PowerOff}
	}))
	b.RegisterHandler("set_volume", wrap("set_volume", func(params map[string]any) map[string]any {
		if level, ok := firstParam(params); ok {
			return map[string]any{"volume": level}
		}
		return nil
	}))
	b.RegisterHandler("mute", wrap("mute", func(map[string]any) map[string]any {
		return map[string]any{"mute": true}
	}))
	b.RegisterHandler("unmute", wrap("unmute", func(map[string]any) map[string]any {
		return map[string]any{"mute": false}
	}))
	b.RegisterHandler("set_input", wrap("set_input", func(params map[string]any) map[string]any {
		if input, ok := firstParam(params); ok {
			return map[string]any{"input_source": fmt.Sprintf("%v", input)}
		}
		return nil
	}))

	// Every remaining configured action gets a stateless pushbutton handler.
	for _, def := range b.AvailableCommands() {
		action := def.Action
		if isStandardAction(action) {
			continue
		}
		b.RegisterHandler(action, wrap(action, nil))
	}
}

// firstParam returns the single resolved parameter value for one-parameter
// commands.
func firstParam(params map[string]any) (any, bool) {
	for _, v := range params {
		return v, true
	}
	return nil, false
}

// isStandardAction reports whether the action is covered by the standard set.
func isStandardAction(action string) bool {
	switch action {
	case "power_on", "power_off", "set_volume", "mute", "unmute", "set_input":
		return true
	}
	return false
}
