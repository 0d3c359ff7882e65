package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avgate/avgate/internal/device"
)

// handleDeviceConfig returns the parsed config envelope for one device.
func (s *Server) handleDeviceConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.devices.GetDevice(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	envelope, ok := d.(interface{ ConfigEnvelope() device.Config })
	if !ok {
		writeNotFound(w, "device has no config envelope: "+id)
		return
	}

	writeJSON(w, http.StatusOK, envelope.ConfigEnvelope())
}

// handleDeviceState returns the current in-memory state of one device.
func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.devices.GetDevice(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, d.CurrentState())
}

// handleDevicePersistedState returns the last persisted state, including
// the _timestamp annotation.
func (s *Server) handleDevicePersistedState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.devices.GetDevice(id); err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	persisted := s.devices.LoadPersistedState(r.Context(), id)
	if persisted == nil {
		writeNotFound(w, "no persisted state for device: "+id)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(persisted) //nolint:errcheck // Best-effort write to response
}

// actionRequest is the body of POST /devices/{id}/action.
type actionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// handleDeviceAction executes a command on one device.
//
// Status mapping: unknown device 404; unknown action or parameter
// validation failure 400 (command not attempted); a driver failure is a
// 200 with success=false, mirroring the command pipeline.
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	response, err := s.devices.PerformAction(r.Context(), id, req.Action, req.Params, "rest")
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found: "+id)
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	// A missing Result means the command never reached the driver: unknown
	// action or rejected parameters.
	if !response.Success && response.Result == nil {
		writeJSON(w, http.StatusBadRequest, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// publishRequest is the body of POST /publish.
type publishRequest struct {
	Topic    string `json:"topic"`
	Payload  string `json:"payload"`
	QoS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

// handlePublish publishes an arbitrary MQTT message. Admin escape hatch.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "message bus not available")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	if err := s.bus.PublishString(req.Topic, req.Payload, req.QoS, req.Retained); err != nil {
		writeBadRequest(w, "publish failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
