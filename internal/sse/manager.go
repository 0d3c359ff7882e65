package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avgate/avgate/internal/infrastructure/config"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// Channel identifies one of the fixed event streams.
type Channel string

// The three fixed channels. Subscriptions to any other name are rejected.
const (
	ChannelDevices   Channel = "devices"
	ChannelScenarios Channel = "scenarios"
	ChannelSystem    Channel = "system"
)

// Default tuning, used when config values are zero.
const (
	defaultQueueSize     = 100
	defaultKeepalive     = 1 * time.Second
	defaultShutdownGrace = 2 * time.Second
)

// Subscriber is one connected event-stream client.
//
// Events are delivered through a bounded channel; a subscriber that cannot
// keep up is dropped rather than allowed to block broadcasts.
type Subscriber struct {
	events chan []byte
}

// Events returns the subscriber's delivery channel. The channel is closed
// when the subscriber is removed.
func (s *Subscriber) Events() <-chan []byte {
	return s.events
}

// Manager fans events out to SSE subscribers across the three fixed channels.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The subscriber sets are
//     guarded by a mutex; broadcasts iterate over a snapshot.
type Manager struct {
	cfg    config.SSEConfig
	logger *logging.Logger

	subscribers map[Channel]map[*Subscriber]struct{}
	mu          sync.Mutex

	eventsSent    uint64
	eventsDropped uint64

	shuttingDown bool
	done         chan struct{}
}

// NewManager creates an event fan-out manager.
func NewManager(cfg config.SSEConfig, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "sse"),
		subscribers: map[Channel]map[*Subscriber]struct{}{
			ChannelDevices:   {},
			ChannelScenarios: {},
			ChannelSystem:    {},
		},
		done: make(chan struct{}),
	}
}

func (m *Manager) queueSize() int {
	if m.cfg.QueueSize > 0 {
		return m.cfg.QueueSize
	}
	return defaultQueueSize
}

func (m *Manager) keepaliveInterval() time.Duration {
	if m.cfg.KeepaliveSeconds > 0 {
		return time.Duration(m.cfg.KeepaliveSeconds) * time.Second
	}
	return defaultKeepalive
}

func (m *Manager) shutdownGrace() time.Duration {
	if m.cfg.ShutdownGraceSeconds > 0 {
		return time.Duration(m.cfg.ShutdownGraceSeconds) * time.Second
	}
	return defaultShutdownGrace
}

// Subscribe registers a new subscriber on a channel.
//
// Returns:
//   - *Subscriber: Handle with a bounded event queue
//   - error: ErrUnknownChannel or ErrShuttingDown
func (m *Manager) Subscribe(channel Channel) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return nil, ErrShuttingDown
	}
	subs, ok := m.subscribers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	sub := &Subscriber{events: make(chan []byte, m.queueSize())}
	subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its event channel.
// Removing an unknown subscriber is a no-op.
func (m *Manager) Unsubscribe(channel Channel, sub *Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(channel, sub)
}

func (m *Manager) removeLocked(channel Channel, sub *Subscriber) {
	subs, ok := m.subscribers[channel]
	if !ok {
		return
	}
	if _, present := subs[sub]; !present {
		return
	}
	delete(subs, sub)
	close(sub.events)
}

// Broadcast sends an event to every subscriber on a channel.
//
// The envelope is a single-line JSON object: {"id": <ms clock>,
// "eventType": <type>, ...data}. Delivery is non-blocking; any subscriber
// whose queue is full is removed within this broadcast.
//
// Parameters:
//   - channel: Target channel
//   - eventType: Event type (e.g., "state_change", "scenario_switched")
//   - data: Additional envelope fields (callers include "timestamp")
func (m *Manager) Broadcast(channel Channel, eventType string, data map[string]any) {
	payload, err := m.envelope(eventType, data)
	if err != nil {
		m.logger.Error("Failed to serialise event", "event_type", eventType, "error", err)
		return
	}

	m.mu.Lock()
	subs, ok := m.subscribers[channel]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		snapshot = append(snapshot, sub)
	}
	m.mu.Unlock()

	var dead []*Subscriber
	for _, sub := range snapshot {
		select {
		case sub.events <- payload:
			m.mu.Lock()
			m.eventsSent++
			m.mu.Unlock()
		default:
			dead = append(dead, sub)
		}
	}

	if len(dead) > 0 {
		m.mu.Lock()
		for _, sub := range dead {
			m.removeLocked(channel, sub)
			m.eventsDropped++
		}
		m.mu.Unlock()
		m.logger.Warn("Removed slow SSE subscribers",
			"channel", channel,
			"removed", len(dead),
		)
	}
}

// envelope builds the single-line JSON event payload.
func (m *Manager) envelope(eventType string, data map[string]any) ([]byte, error) {
	event := make(map[string]any, len(data)+2)
	for k, v := range data {
		event[k] = v
	}
	event["id"] = time.Now().UnixMilli()
	event["eventType"] = eventType
	return json.Marshal(event)
}

// ServeStream writes an SSE event stream for one subscriber to w until the
// client disconnects or the manager shuts down.
//
// Framing: each event is one "data: <json>" line terminated by CRLF CRLF.
// A "connected" event is sent immediately; a "keepalive" event is sent after
// each idle keepalive interval.
//
// Parameters:
//   - ctx: Request context; cancellation ends the stream
//   - w: Response writer; must support flushing
//   - channel: Channel to stream
//
// Returns:
//   - error: Subscription failure; nil once streaming has started
func (m *Manager) ServeStream(ctx context.Context, w http.ResponseWriter, channel Channel) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	sub, err := m.Subscribe(channel)
	if err != nil {
		return err
	}
	defer m.Unsubscribe(channel, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connected, err := m.envelope("connected", map[string]any{
		"channel":   string(channel),
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err == nil {
		writeEvent(w, connected)
		flusher.Flush()
	}

	keepalive := time.NewTimer(m.keepaliveInterval())
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case payload, open := <-sub.events:
			if !open {
				return nil
			}
			writeEvent(w, payload)
			flusher.Flush()
			resetTimer(keepalive, m.keepaliveInterval())
		case <-keepalive.C:
			ka, err := m.envelope("keepalive", map[string]any{
				"timestamp": time.Now().Format(time.RFC3339),
			})
			if err == nil {
				writeEvent(w, ka)
				flusher.Flush()
			}
			keepalive.Reset(m.keepaliveInterval())
		}
	}
}

// writeEvent writes one SSE-framed event.
func writeEvent(w io.Writer, payload []byte) {
	fmt.Fprintf(w, "data: %s\r\n\r\n", payload) //nolint:errcheck // Broken pipe surfaces via ctx
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Stats reports per-channel subscriber counts and delivery counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make(map[string]int, len(m.subscribers))
	total := 0
	for ch, subs := range m.subscribers {
		channels[string(ch)] = len(subs)
		total += len(subs)
	}

	return Stats{
		Subscribers:      channels,
		TotalSubscribers: total,
		EventsSent:       m.eventsSent,
		EventsDropped:    m.eventsDropped,
		ShuttingDown:     m.shuttingDown,
	}
}

// Stats is a point-in-time snapshot of fan-out activity.
type Stats struct {
	Subscribers      map[string]int `json:"subscribers"`
	TotalSubscribers int            `json:"total_subscribers"`
	EventsSent       uint64         `json:"events_sent"`
	EventsDropped    uint64         `json:"events_dropped"`
	ShuttingDown     bool           `json:"shutting_down"`
}

// Shutdown stops the fan-out: new subscriptions are refused, a best-effort
// "shutdown" event is broadcast, active streams are signalled to exit, and
// after the grace period all remaining subscribers are dropped.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return
	}
	m.shuttingDown = true
	m.mu.Unlock()

	for _, ch := range []Channel{ChannelDevices, ChannelScenarios, ChannelSystem} {
		m.Broadcast(ch, "shutdown", map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}

	close(m.done)
	time.Sleep(m.shutdownGrace())

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch, subs := range m.subscribers {
		for sub := range subs {
			m.removeLocked(ch, sub)
		}
	}
	m.logger.Info("SSE manager shut down")
}
