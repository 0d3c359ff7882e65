package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avgate/avgate/internal/scenario"
)

// switchRequest is the body of POST /scenario/switch and /scenario/shutdown.
// Graceful defaults to true when absent.
type switchRequest struct {
	ID       string `json:"id"`
	Graceful *bool  `json:"graceful"`
}

func (r switchRequest) graceful() bool {
	return r.Graceful == nil || *r.Graceful
}

// handleScenarioSwitch transitions to the requested scenario.
func (s *Server) handleScenarioSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	result, err := s.scenarios.SwitchScenario(r.Context(), req.ID, req.graceful())
	if err != nil {
		if errors.Is(err, scenario.ErrUnknownScenario) {
			writeNotFound(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleScenarioStart activates a scenario when none is active.
func (s *Server) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	result, err := s.scenarios.StartScenario(r.Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, scenario.ErrScenarioActive):
			writeConflict(w, err.Error())
		case errors.Is(err, scenario.ErrUnknownScenario):
			writeNotFound(w, err.Error())
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleScenarioShutdown deactivates the active scenario.
func (s *Server) handleScenarioShutdown(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	if err := s.scenarios.ShutdownScenario(r.Context(), req.ID, req.graceful()); err != nil {
		if errors.Is(err, scenario.ErrScenarioNotActive) {
			writeConflict(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// roleActionRequest is the body of POST /scenario/role_action.
type roleActionRequest struct {
	Role    string         `json:"role"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// handleScenarioRoleAction executes a role-mapped command on the active
// scenario.
func (s *Server) handleScenarioRoleAction(w http.ResponseWriter, r *http.Request) {
	var req roleActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Role == "" || req.Command == "" {
		writeBadRequest(w, "role and command are required")
		return
	}

	response, err := s.scenarios.ExecuteRoleAction(r.Context(), req.Role, req.Command, req.Params)
	if err != nil {
		var execErr *scenario.ExecutionError
		switch {
		case errors.Is(err, scenario.ErrNoActiveScenario):
			writeConflict(w, err.Error())
		case errors.Is(err, scenario.ErrInvalidRole):
			writeBadRequest(w, err.Error())
		case errors.Is(err, scenario.ErrMissingDevice):
			writeNotFound(w, err.Error())
		case errors.As(err, &execErr):
			// Command reached the device and failed; mirror the pipeline.
			writeJSON(w, http.StatusOK, response)
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// handleScenarioState returns the active scenario's recomputed state.
func (s *Server) handleScenarioState(w http.ResponseWriter, _ *http.Request) {
	st := s.scenarios.CurrentState()
	if st == nil {
		writeNotFound(w, "no active scenario")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleScenarioDefinitions returns every loaded definition.
func (s *Server) handleScenarioDefinitions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scenarios.Definitions())
}

// handleScenarioDefinition returns one definition.
func (s *Server) handleScenarioDefinition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	def, err := s.scenarios.GetDefinition(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleScenarioVirtualConfigs returns the synthetic device config of every
// scenario.
func (s *Server) handleScenarioVirtualConfigs(w http.ResponseWriter, _ *http.Request) {
	defs := s.scenarios.Definitions()
	configs := make([]any, 0, len(defs))
	for _, def := range defs {
		configs = append(configs, scenario.VirtualConfig(def, s.devices))
	}
	writeJSON(w, http.StatusOK, configs)
}

// handleScenarioVirtualConfig returns one scenario's synthetic device config.
func (s *Server) handleScenarioVirtualConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	def, err := s.scenarios.GetDefinition(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scenario.VirtualConfig(def, s.devices))
}
