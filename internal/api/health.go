package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds the probe of each backend.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Workers       int               `json:"workers"`
	EventClients  int               `json:"event_clients"`
	Components    map[string]string `json:"components,omitempty"`
}

// handleHealth reports the server and its optional backends. Any failing
// backend turns the answer into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Workers:       len(s.frames.Snapshot()),
		EventClients:  s.hub.ClientCount(),
	}

	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))

		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()

			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
