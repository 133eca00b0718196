package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
)

// authParam is the query parameter carrying the API key.
const authParam = "auth"

// checkAPIKey reports whether key hashes to the configured API key hash.
// A missing key is checked as the empty string.
func (s *Server) checkAPIKey(key string) bool {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(digest), []byte(s.security.APIKeySHA256)) == 1
}

// apiKeyMiddleware rejects requests to JSON endpoints whose auth parameter
// does not match the API key.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid query string")
			return
		}
		if !s.checkAPIKey(query.Get(authParam)) {
			writeForbidden(w, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
