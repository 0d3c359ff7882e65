// Package room loads the static room layout and answers membership queries
// for scenario validation and the REST surface.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// ErrRoomNotFound is returned when a room ID is not in the layout.
var ErrRoomNotFound = errors.New("room not found")

// ErrInvalidLayout is returned when rooms.json fails validation.
var ErrInvalidLayout = errors.New("invalid room layout")

// Definition describes one room.
//
// Names carries at least one locale; "en" is the conventional fallback for
// display surfaces.
type Definition struct {
	RoomID          string            `json:"room_id"`
	Names           map[string]string `json:"names"`
	Description     string            `json:"description,omitempty"`
	Devices         []string          `json:"devices"`
	DefaultScenario string            `json:"default_scenario,omitempty"`
}

// Name returns the room name for a locale, falling back to "en" and then to
// any defined name.
func (d Definition) Name(locale string) string {
	if name, ok := d.Names[locale]; ok {
		return name
	}
	if name, ok := d.Names["en"]; ok {
		return name
	}
	for _, name := range d.Names {
		return name
	}
	return d.RoomID
}

// layoutSchema validates the rooms file: a map of room_id to definition.
const layoutSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"required": ["names", "devices"],
		"properties": {
			"names": {
				"type": "object",
				"minProperties": 1,
				"additionalProperties": {"type": "string", "minLength": 1}
			},
			"description": {"type": "string"},
			"devices": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"default_scenario": {"type": "string"}
		}
	}
}`

var compiledLayoutSchema = gojsonschema.NewStringLoader(layoutSchema)

// Manager holds the parsed room layout. The layout is immutable after Load.
type Manager struct {
	logger *logging.Logger

	rooms map[string]Definition
	mu    sync.RWMutex
}

// NewManager creates an empty room manager.
func NewManager(logger *logging.Logger) *Manager {
	return &Manager{
		logger: logger.With("component", "room_manager"),
		rooms:  make(map[string]Definition),
	}
}

// Load reads and validates the rooms file. A missing file is not an error;
// the gateway runs roomless and scenario room checks are skipped.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("No rooms file, running without rooms", "path", path)
			return nil
		}
		return fmt.Errorf("reading rooms file: %w", err)
	}

	result, err := gojsonschema.Validate(compiledLayoutSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidLayout, strings.Join(issues, "; "))
	}

	var raw map[string]Definition
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	rooms := make(map[string]Definition, len(raw))
	for id, def := range raw {
		def.RoomID = id
		rooms[id] = def
	}

	m.mu.Lock()
	m.rooms = rooms
	m.mu.Unlock()

	m.logger.Info("Rooms loaded", "count", len(rooms), "path", path)
	return nil
}

// Get returns one room definition.
func (m *Manager) Get(id string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.rooms[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrRoomNotFound, id)
	}
	return def, nil
}

// List returns all room IDs, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeviceInRoom reports whether a device belongs to a room. Unknown rooms
// contain nothing.
func (m *Manager) DeviceInRoom(roomID, deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	for _, id := range def.Devices {
		if id == deviceID {
			return true
		}
	}
	return false
}
