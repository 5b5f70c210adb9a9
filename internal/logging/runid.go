// Package logging provides refresh run ID context propagation for log correlation.
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const runIDKey contextKey = "runId"

// NewRunID creates an 8-character hex run ID.
func NewRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// WithRunID injects a run ID into the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
// Returns empty string if not found.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Printf logs through the standard logger, prefixed with the run ID when the
// context carries one.
func Printf(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if id := GetRunID(ctx); id != "" {
		msg = "[run " + id + "] " + msg
	}
	log.Print(msg)
}
