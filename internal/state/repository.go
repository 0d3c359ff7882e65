package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avgate/avgate/internal/infrastructure/database"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// timestampLayout is the audit timestamp format stored alongside each record.
const timestampLayout = "02-01-2006 15:04:05"

// TimestampField is the key injected into loaded JSON objects carrying the
// record's persistence timestamp.
const TimestampField = "_timestamp"

// Repository is a durable key-value store with JSON values backed by SQLite.
//
// Keys are namespaced strings ("device:{id}", "active_scenario"). Values are
// opaque JSON. Each record carries a timestamp refreshed on every upsert.
//
// Thread Safety:
//   - All methods are safe for concurrent use. SQLite access is serialised
//     through the single-connection pool; the closed flag is guarded here.
type Repository struct {
	db     *database.DB
	logger *logging.Logger

	closed bool
	mu     sync.RWMutex
}

// NewRepository creates a repository over an open database handle.
func NewRepository(db *database.DB, logger *logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With("component", "state"),
	}
}

// Initialize verifies the persistent_state schema is present.
//
// Migrations create the table; this runs a probe query so a schema problem
// refuses startup instead of surfacing on the first save.
//
// Returns:
//   - error: Hard error if the schema is missing or unreadable
func (r *Repository) Initialize(ctx context.Context) error {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persistent_state").Scan(&count)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaMissing, err)
	}

	r.logger.Info("State repository initialised", "entries", count)
	return nil
}

// Load retrieves the value stored under a key.
//
// If the stored value is a JSON object, the record's timestamp is injected
// under the "_timestamp" field. Non-object values (strings, arrays, numbers)
// are returned as stored.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - key: Entity key (e.g., "device:lg_tv", "active_scenario")
//
// Returns:
//   - json.RawMessage: The stored value, nil if absent or on lookup error
func (r *Repository) Load(ctx context.Context, key string) json.RawMessage {
	if r.isClosed() {
		r.logger.Warn("Load rejected, repository closed", "key", key)
		return nil
	}

	var value, timestamp string
	err := r.db.QueryRowContext(ctx,
		"SELECT value, timestamp FROM persistent_state WHERE key = ?", key,
	).Scan(&value, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		r.logger.Error("Load failed", "key", key, "error", err)
		return nil
	}

	return annotateTimestamp([]byte(value), timestamp)
}

// annotateTimestamp injects the persistence timestamp into a JSON object.
// Values that are not objects pass through unchanged.
func annotateTimestamp(value []byte, timestamp string) json.RawMessage {
	var obj map[string]any
	if err := json.Unmarshal(value, &obj); err != nil || obj == nil {
		return value
	}

	obj[TimestampField] = timestamp
	annotated, err := json.Marshal(obj)
	if err != nil {
		return value
	}
	return annotated
}

// Save upserts a value under a key with a fresh timestamp.
//
// Save is last-writer-wins; the upsert replaces atomically.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - key: Entity key
//   - value: JSON value to store
//
// Returns:
//   - bool: true on success; false on write error or closed repository (logged)
func (r *Repository) Save(ctx context.Context, key string, value json.RawMessage) bool {
	if r.isClosed() {
		r.logger.Warn("Save rejected, repository closed", "key", key)
		return false
	}

	if !json.Valid(value) {
		r.logger.Error("Save rejected, value is not valid JSON", "key", key)
		return false
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO persistent_state (key, timestamp, value) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET timestamp = excluded.timestamp, value = excluded.value`,
		key, time.Now().Format(timestampLayout), string(value),
	)
	if err != nil {
		r.logger.Error("Save failed", "key", key, "error", err)
		return false
	}

	return true
}

// BulkSave saves multiple entries, iterating individual saves.
//
// Partial success is possible; failed keys are logged by Save.
//
// Returns:
//   - int: Number of entries saved successfully
func (r *Repository) BulkSave(ctx context.Context, entries map[string]json.RawMessage) int {
	saved := 0
	for key, value := range entries {
		if r.Save(ctx, key, value) {
			saved++
		}
	}
	return saved
}

// Delete removes a key. Deleting an absent key is a successful no-op.
//
// Returns:
//   - bool: true on success; false on error or closed repository
func (r *Repository) Delete(ctx context.Context, key string) bool {
	if r.isClosed() {
		r.logger.Warn("Delete rejected, repository closed", "key", key)
		return false
	}

	_, err := r.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	if err != nil {
		r.logger.Error("Delete failed", "key", key, "error", err)
		return false
	}

	return true
}

// ListEntities returns all stored keys.
func (r *Repository) ListEntities(ctx context.Context) ([]string, error) {
	if r.isClosed() {
		return nil, ErrRepositoryClosed
	}

	rows, err := r.db.QueryContext(ctx, "SELECT key FROM persistent_state ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning entity key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return keys, nil
}

// Close marks the repository closed. Subsequent operations are rejected
// (Load returns nil, Save/Delete return false).
//
// The underlying database handle is owned by the caller and closed separately.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.logger.Info("State repository closed")
}

// isClosed reports whether Close has been called.
func (r *Repository) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// DeviceKey returns the repository key for a device's persisted state.
func DeviceKey(deviceID string) string {
	return "device:" + deviceID
}

// ActiveScenarioKey is the repository key holding the active scenario ID.
const ActiveScenarioKey = "active_scenario"
