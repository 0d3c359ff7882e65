package drivers

import (
	"context"
	"fmt"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/infrastructure/mqtt"
)

func init() {
	device.RegisterClass("IRRemote", NewIRRemote)
}

// IRRemote drives a device controlled through an IR blaster that is itself
// an MQTT device. Each command carries the blaster location and the ROM
// position of the learned IR code; sending means publishing a play request
// on the blaster's control topic.
type IRRemote struct {
	*device.BaseDevice
	bus device.Bus
}

// NewIRRemote constructs an IR remote device from config.
func NewIRRemote(cfg device.Config, bus device.Bus, logger *logging.Logger) (device.Driver, error) {
	ir := &IRRemote{
		BaseDevice: device.NewBaseDevice(cfg, bus, logger),
		bus:        bus,
	}

	registerStandardHandlers(ir.BaseDevice, ir.send)
	return ir, nil
}

// send publishes a play-from-ROM request on the blaster owning the command.
func (ir *IRRemote) send(ctx context.Context, action string, params map[string]any) error {
	def, ok := ir.commandByAction(action)
	if !ok {
		return fmt.Errorf("no IR code configured for action %q", action)
	}
	if def.Location == "" {
		return fmt.Errorf("command %q has no blaster location", action)
	}

	control := fmt.Sprintf("Play from ROM%d", def.RomPosition)
	topic := mqtt.ControlCommandTopic(def.Location, control)
	return ir.bus.PublishString(topic, "1", 1, false)
}

// commandByAction finds the command definition whose action matches.
func (ir *IRRemote) commandByAction(action string) (device.CommandDef, bool) {
	for _, def := range ir.AvailableCommands() {
		if def.Action == action {
			return def, true
		}
	}
	return device.CommandDef{}, false
}
