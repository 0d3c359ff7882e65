package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Read surface (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Get("/config/device/{id}", s.handleDeviceConfig)
		r.Get("/devices/{id}/state", s.handleDeviceState)
		r.Get("/devices/{id}/persisted_state", s.handleDevicePersistedState)

		r.Get("/scenario/state", s.handleScenarioState)
		r.Get("/scenario/definition", s.handleScenarioDefinitions)
		r.Get("/scenario/definition/{id}", s.handleScenarioDefinition)
		r.Get("/scenario/virtual_config", s.handleScenarioVirtualConfigs)
		r.Get("/scenario/virtual_config/{id}", s.handleScenarioVirtualConfig)

		r.Get("/room/list", s.handleRoomList)
		r.Get("/room/{id}", s.handleRoom)

		// Event streams
		r.Get("/events/stats", s.handleEventStats)
		r.Get("/events/{channel}", s.handleEventStream)

		// Mutating surface
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/devices/{id}/action", s.handleDeviceAction)
			r.Post("/publish", s.handlePublish)

			r.Post("/scenario/switch", s.handleScenarioSwitch)
			r.Post("/scenario/start", s.handleScenarioStart)
			r.Post("/scenario/shutdown", s.handleScenarioShutdown)
			r.Post("/scenario/role_action", s.handleScenarioRoleAction)
		})

		// WebSocket relay (optional)
		if s.hub != nil {
			r.Get(s.wsPath(), s.handleWebSocket)
		}
	})

	return r
}

// wsPath returns the configured WebSocket mount point relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSystem returns the gateway inventory: version, broker, and the IDs
// of every device, scenario, and room.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var rooms []string
	if s.rooms != nil {
		rooms = s.rooms.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":     s.version,
		"mqtt_broker": s.broker,
		"devices":     s.devices.DeviceIDs(),
		"scenarios":   s.scenarios.ScenarioIDs(),
		"rooms":       rooms,
	})
}
