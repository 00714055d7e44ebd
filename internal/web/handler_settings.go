package web

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.settings.Current())
}

// handlePutSettings accepts partial documents: the body is decoded over the
// current settings, so omitted fields keep their stored values.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	next := s.settings.Current()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.writeError(w, "invalid settings document", http.StatusBadRequest)
		return
	}

	updated, err := s.settings.Update(r.Context(), next)
	if err != nil {
		s.logger.Error("failed to store settings", "error", err)
		s.writeError(w, "failed to store settings", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, updated)
}
