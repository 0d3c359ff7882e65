package room

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/avgate/avgate/internal/infrastructure/logging"
)

const layoutJSON = `{
	"living_room": {
		"names": {"en": "Living Room", "de": "Wohnzimmer"},
		"description": "Main AV room",
		"devices": ["tv", "soundbar"],
		"default_scenario": "movie_night"
	},
	"kitchen": {
		"names": {"en": "Kitchen"},
		"devices": ["hood"]
	}
}`

func loadLayout(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing rooms file: %v", err)
	}

	m := NewManager(logging.Default())
	if err := m.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func TestLoadAndGet(t *testing.T) {
	m := loadLayout(t, layoutJSON)

	ids := m.List()
	if len(ids) != 2 || ids[0] != "kitchen" || ids[1] != "living_room" {
		t.Errorf("List() = %v, want [kitchen living_room]", ids)
	}

	def, err := m.Get("living_room")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if def.RoomID != "living_room" {
		t.Errorf("RoomID = %q, want living_room", def.RoomID)
	}
	if def.DefaultScenario != "movie_night" {
		t.Errorf("DefaultScenario = %q", def.DefaultScenario)
	}

	if _, err := m.Get("attic"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Get(attic) error = %v, want ErrRoomNotFound", err)
	}
}

func TestLocaleFallback(t *testing.T) {
	m := loadLayout(t, layoutJSON)

	def, _ := m.Get("living_room")
	if got := def.Name("de"); got != "Wohnzimmer" {
		t.Errorf("Name(de) = %q", got)
	}
	if got := def.Name("fr"); got != "Living Room" {
		t.Errorf("Name(fr) = %q, want en fallback", got)
	}
}

func TestDeviceInRoom(t *testing.T) {
	m := loadLayout(t, layoutJSON)

	if !m.DeviceInRoom("living_room", "tv") {
		t.Error("tv not found in living_room")
	}
	if m.DeviceInRoom("living_room", "hood") {
		t.Error("hood reported in living_room")
	}
	if m.DeviceInRoom("attic", "tv") {
		t.Error("unknown room reported a member")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	m := NewManager(logging.Default())
	if err := m.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("rooms present after missing-file load")
	}
}

func TestLoadRejectsInvalidLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	if err := os.WriteFile(path, []byte(`{"bad": {"devices": []}}`), 0o644); err != nil {
		t.Fatalf("writing rooms file: %v", err)
	}

	m := NewManager(logging.Default())
	if err := m.Load(path); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("Load() error = %v, want ErrInvalidLayout", err)
	}
}
