// Package sink publishes probe results and the account inventory to the
// collector.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pysugar/codex-status-fleet/internal/normalize"
)

// Sink receives one event per probed account and the account inventory.
type Sink interface {
	PushEvent(ctx context.Context, ev Event) error
	PushRegistry(ctx context.Context, entries []RegistryEntry) error
}

// Event is the ingest payload for one account.
type Event struct {
	AccountLabel string `json:"account_label"`
	Host         string `json:"host"`
	Raw          string `json:"raw"`
	Parsed       Parsed `json:"parsed"`
	TS           string `json:"ts"`
}

// Parsed is the structured part of an event.
type Parsed struct {
	ProbeError   bool              `json:"probe_error,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorPayload json.RawMessage   `json:"error_payload,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	HTTPStatus   *int              `json:"http_status,omitempty"`
	Model        string            `json:"model,omitempty"`
	BaseURL      string            `json:"base_url,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Normalized   normalize.Status  `json:"normalized"`
}

// RegistryEntry is one account in the inventory push.
type RegistryEntry struct {
	AccountLabel     string  `json:"account_label"`
	Enabled          bool    `json:"enabled"`
	Provider         string  `json:"provider"`
	ExpectedEmail    *string `json:"expected_email"`
	ExpectedPlanType *string `json:"expected_planType"`
	Note             *string `json:"note"`
}

// PushError reports a failed push. StatusCode is zero for transport errors.
type PushError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *PushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s push failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s push failed: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// Multi fans out to every sink. All sinks are attempted; the joined error of
// the failures is returned.
type Multi []Sink

func (m Multi) PushEvent(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.PushEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PushRegistry(ctx context.Context, entries []RegistryEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.PushRegistry(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
