// Package handlers implements the refresher HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

// writeError writes {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// configStatus maps account configuration errors onto HTTP statuses.
func configStatus(err error) int {
	if errors.Is(err, accounts.ErrRefreshRunning) {
		return http.StatusConflict
	}
	var cfgErr *accounts.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Kind {
		case accounts.ConfigInvalid, accounts.ConfigEmpty:
			return http.StatusBadRequest
		case accounts.ConfigNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}
