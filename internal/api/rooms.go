package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avgate/avgate/internal/room"
)

// handleRoomList returns every room definition.
func (s *Server) handleRoomList(w http.ResponseWriter, _ *http.Request) {
	if s.rooms == nil {
		writeJSON(w, http.StatusOK, []room.Definition{})
		return
	}

	ids := s.rooms.List()
	defs := make([]room.Definition, 0, len(ids))
	for _, id := range ids {
		if def, err := s.rooms.Get(id); err == nil {
			defs = append(defs, def)
		}
	}
	writeJSON(w, http.StatusOK, defs)
}

// handleRoom returns one room definition.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.rooms == nil {
		writeNotFound(w, "room not found: "+id)
		return
	}

	def, err := s.rooms.Get(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}
