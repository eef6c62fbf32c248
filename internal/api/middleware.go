// Package api implements the Reverie REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenQueryParam carries the token for GET requests made by clients that
// cannot set headers (EventSource, <img>).
const TokenQueryParam = "access_token"

// AuthMiddleware returns middleware that validates a Bearer token.
// When enabled is false every request passes through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if !validToken(requestToken(r), token) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return ""
		}
		return got
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get(TokenQueryParam)
	}
	return ""
}

func validToken(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
