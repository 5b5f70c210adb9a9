// Package probe defines the per-provider quota probes and how their outcomes
// are classified.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
)

// Probe fetches and normalizes the quota state of one account.
type Probe interface {
	// Probe performs the provider request. Failures are returned as *Error.
	Probe(ctx context.Context, acc accounts.Descriptor) (*Outcome, error)
	// Normalize maps a successful outcome onto the shared status schema.
	Normalize(acc accounts.Descriptor, o *Outcome) normalize.Status
	// Failure builds the status reported for a failed probe.
	Failure(acc accounts.Descriptor, perr *Error) normalize.Status
}

// Outcome is the raw result of one probe. It lives for one refresh only.
type Outcome struct {
	Provider   string
	At         time.Time
	HTTPStatus int               // 0 for RPC probes
	Headers    map[string]string // whitelisted, lower-case keys
	RPCResult  json.RawMessage
	UserAgent  string

	AccountEmail string
	Model        string
	BaseURL      string
	KeyHint      string
	Credits      *normalize.Credits

	// TokenExpiry is the stored access token's expiry, zero when unknown.
	// TokenExpired is judged at probe time with oauth2's skew allowance.
	TokenExpiry  time.Time
	TokenExpired bool

	// HTTPError is the extracted error message of a >= 400 response that
	// still produced headers worth reporting.
	HTTPError string

	// Raw is the compact payload forwarded to the sink verbatim.
	Raw string
}

// State is the terminal classification of one account in a refresh.
type State string

const (
	StateOK           State = "ok"
	StateAuthRequired State = "auth_required"
	StateError        State = "error"
	StatePostError    State = "post_error"
)

// Classify picks the state of a successful probe from its normalized status.
func Classify(st normalize.Status, o *Outcome) State {
	switch {
	case st.RequiresAuth:
		return StateAuthRequired
	case o.HTTPError != "":
		return StateError
	case st.HasData(), o.HTTPStatus == 0, o.HTTPStatus >= 200 && o.HTTPStatus < 400:
		return StateOK
	default:
		return StateError
	}
}

// CompactJSON marshals v without insignificant whitespace and without HTML
// escaping. Marshal failures produce an empty object.
func CompactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
