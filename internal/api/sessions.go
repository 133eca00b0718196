package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/history"
)

// SessionsResponse is returned by GET /v1/sessions.
type SessionsResponse struct {
	Workers []p1.WorkerInfo   `json:"workers"`
	History []history.Session `json:"history,omitempty"`
	Total   int               `json:"total"`
}

// handleSessions lists live workers and, when history is enabled, the most
// recent finished and running sessions.
//
// Query parameters: address (optional filter), limit (history rows).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	address := query.Get(addressParam)

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	workers := make([]p1.WorkerInfo, 0)
	for _, info := range s.frames.Snapshot() {
		if address == "" || info.Address == address {
			workers = append(workers, info)
		}
	}

	resp := SessionsResponse{Workers: workers, Total: len(workers)}

	if s.history != nil {
		sessions, err := s.history.Recent(r.Context(), address, limit)
		if err != nil {
			s.logger.Error("listing session history", "error", err)
			writeInternalError(w, "failed to list session history")
			return
		}
		resp.History = sessions
	}

	writeJSON(w, http.StatusOK, resp)
}
