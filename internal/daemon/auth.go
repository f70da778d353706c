package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware guards a handler with bearer-token authentication. An empty
// token disables the check and requests pass straight through. Otherwise the
// request must carry "Authorization: Bearer <token>"; the comparison is
// constant time.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerTokenMatches(r.Header.Get("Authorization"), token) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerTokenMatches(header, token string) bool {
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
