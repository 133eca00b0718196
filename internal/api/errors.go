package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeForbidden   = "forbidden"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBare answers with an empty body. Non-2xx answers also close the
// connection, the way device-facing clients of the frame endpoint expect.
func writeBare(w http.ResponseWriter, status int) {
	h := w.Header()
	h.Del("Content-Type")
	h.Set("Content-Length", "0")
	if status < 200 || status > 299 {
		h.Set("Connection", "close")
	}
	w.WriteHeader(status)
}

// isBareRoute reports whether errors on path are answered by writeBare
// instead of a JSON body.
func isBareRoute(path string) bool {
	return path == "/" || strings.HasPrefix(path, "/v1/p1") || strings.HasPrefix(path, "/site/")
}

// writeFailure answers with writeBare on bare routes and writeError elsewhere.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if isBareRoute(r.URL.Path) {
		writeBare(w, status)
		return
	}
	writeError(w, status, code, message)
}
