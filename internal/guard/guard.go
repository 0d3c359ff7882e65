package guard

import (
	"sync"
	"time"

	"github.com/avgate/avgate/internal/infrastructure/config"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// defaultSentinelTopic announces a Wiren Board rules-engine restart, the
// usual cause of retained-message storms.
const defaultSentinelTopic = "/devices/wbrules/meta/online"

// MaintenanceGuard detects bus-side restart windows.
//
// When the bus infrastructure restarts, retained messages and LWT payloads
// replay in a burst that would otherwise look like mass device state changes.
// A message on a sentinel topic arms the guard for a configurable window;
// while armed, inbound bus messages must not mutate device state.
//
// Thread Safety:
//   - MaintenanceStarted is safe for concurrent use.
type MaintenanceGuard struct {
	sentinels map[string]struct{}
	duration  time.Duration
	logger    *logging.Logger

	armedUntil time.Time
	mu         sync.Mutex

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a maintenance guard from config. With no sentinel topics
// configured, the Wiren Board rules-engine announcement topic is used.
func New(cfg config.MaintenanceConfig, logger *logging.Logger) *MaintenanceGuard {
	topics := cfg.SentinelTopics
	if len(topics) == 0 {
		topics = []string{defaultSentinelTopic}
	}

	sentinels := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		sentinels[t] = struct{}{}
	}

	return &MaintenanceGuard{
		sentinels: sentinels,
		duration:  time.Duration(cfg.DurationSeconds) * time.Second,
		logger:    logger.With("component", "guard"),
		now:       time.Now,
	}
}

// SubscriptionTopics returns the sentinel topics the device manager must
// subscribe to so the guard observes bus announcements.
func (g *MaintenanceGuard) SubscriptionTopics() []string {
	topics := make([]string, 0, len(g.sentinels))
	for t := range g.sentinels {
		topics = append(topics, t)
	}
	return topics
}

// MaintenanceStarted is called with every topic a handler is about to
// process.
//
// Returns true if the topic is a sentinel (arming the guard for the
// configured duration) or if the guard is still armed from a recent
// sentinel. Returns false otherwise, disarming once the window elapses.
func (g *MaintenanceGuard) MaintenanceStarted(topic string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if _, isSentinel := g.sentinels[topic]; isSentinel {
		g.armedUntil = now.Add(g.duration)
		g.logger.Info("Maintenance window armed",
			"sentinel", topic,
			"duration", g.duration,
		)
		return true
	}

	if now.Before(g.armedUntil) {
		g.logger.Debug("Message suppressed during maintenance window", "topic", topic)
		return true
	}

	if !g.armedUntil.IsZero() {
		g.armedUntil = time.Time{}
		g.logger.Debug("Maintenance window elapsed")
	}
	return false
}
