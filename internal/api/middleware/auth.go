// Package middleware holds HTTP middleware for the refresher API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth guards admin endpoints with a shared password. It accepts HTTP
// basic auth (any user name) or "Authorization: Bearer <password>" for
// scripts. An empty password disables the check.
func AdminAuth(password string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, pass, ok := r.BasicAuth(); ok && equal(pass, password) {
				next.ServeHTTP(w, r)
				return
			}
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && equal(token, password) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="Fleet Refresher"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"unauthorized"}`))
		})
	}
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
