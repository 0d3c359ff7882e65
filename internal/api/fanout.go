package api

import (
	"github.com/avgate/avgate/internal/sse"
)

// Fanout relays internal events to every outbound surface at once: the SSE
// manager and, when enabled, the WebSocket hub. Device and scenario managers
// hold a single broadcast sink; Fanout lets them stay ignorant of how many
// transports are listening.
//
// Thread Safety:
//   - Broadcast is safe for concurrent use; both underlying sinks are.
type Fanout struct {
	events *sse.Manager
	hub    *Hub
}

// NewFanout creates a fan-out sink. The hub may be nil when WebSocket
// support is disabled.
func NewFanout(events *sse.Manager, hub *Hub) *Fanout {
	return &Fanout{events: events, hub: hub}
}

// Broadcast forwards one event to all configured transports.
func (f *Fanout) Broadcast(channel sse.Channel, eventType string, data map[string]any) {
	if f.events != nil {
		f.events.Broadcast(channel, eventType, data)
	}
	if f.hub != nil {
		f.hub.Broadcast(string(channel), eventType, data)
	}
}
