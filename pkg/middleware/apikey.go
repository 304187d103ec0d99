package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// APIKeyHeader is the header the index service authenticates requests with.
const APIKeyHeader = "api-key"

// APIKey rejects requests whose api-key header does not match key. An empty
// key disables the check. Health endpoints are exempt.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(APIKeyHeader)
			if got == "" {
				WriteError(w, http.StatusUnauthorized, "Access denied due to missing api-key.")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				WriteError(w, http.StatusForbidden, "Access denied due to invalid api-key.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes {"error":{"message":...}}, the index service's error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message},
	})
}
