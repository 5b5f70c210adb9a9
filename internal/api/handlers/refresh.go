package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
)

// RefreshHandler runs a refresh, or joins the one in flight.
// Query: label (optional), include_disabled (bool).
func RefreshHandler(c *refresh.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := refresh.Request{Label: strings.TrimSpace(q.Get("label"))}
		if raw := q.Get("include_disabled"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "include_disabled must be a boolean")
				return
			}
			req.IncludeDisabled = v
		}

		summary, err := c.Refresh(r.Context(), req)
		if err != nil {
			status := refreshStatus(err)
			if status >= http.StatusInternalServerError {
				log.Printf("❌ [API] refresh failed: %v", err)
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// LastRefreshHandler returns the most recent refresh summary.
func LastRefreshHandler(c *refresh.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := c.Guard().Last()
		if last == nil {
			writeError(w, http.StatusNotFound, "no refresh has completed yet")
			return
		}
		writeJSON(w, http.StatusOK, last)
	}
}

// refreshStatus maps coordinator errors. An unknown or empty selection and
// an empty accounts list are client errors; an unreadable config document
// is a server error.
func refreshStatus(err error) int {
	var inv *refresh.InventoryError
	var cfgErr *accounts.ConfigError
	switch {
	case errors.Is(err, refresh.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &inv):
		return http.StatusBadGateway
	case errors.Is(err, refresh.ErrNoAccounts):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		if cfgErr.Kind == accounts.ConfigMissing || cfgErr.Kind == accounts.ConfigMalformed {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
