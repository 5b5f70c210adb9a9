package refresh

import (
	"errors"
	"fmt"

	"github.com/pysugar/codex-status-fleet/internal/probe"
)

var (
	// ErrAlreadyRunning is returned to a joiner whose wait timed out.
	ErrAlreadyRunning = errors.New("refresh already running")
	// ErrNoAccounts means the selection resolved to an empty account list.
	ErrNoAccounts = errors.New("no accounts to refresh")
)

// InventoryError wraps a failed registry push. The refresh is aborted since
// the collector cannot attribute events to a stale inventory.
type InventoryError struct {
	Err error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("collector /registry failed: %v", e.Err)
}

func (e *InventoryError) Unwrap() error {
	return e.Err
}

// Counts are the per-state totals of one refresh.
type Counts struct {
	OK           int `json:"ok"`
	AuthRequired int `json:"auth_required"`
	Errors       int `json:"errors"`
	Total        int `json:"total"`
}

// AccountResult is the terminal state of one account.
type AccountResult struct {
	Label    string      `json:"label"`
	Provider string      `json:"provider,omitempty"`
	State    probe.State `json:"state"`
	TS       string      `json:"ts,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Summary is the result of one refresh invocation.
type Summary struct {
	OK         bool            `json:"ok"`
	RunID      string          `json:"run_id,omitempty"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Summary    *Counts         `json:"summary,omitempty"`
	Results    []AccountResult `json:"results,omitempty"`
	Joined     bool            `json:"joined,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (s *Summary) add(r AccountResult) {
	s.Results = append(s.Results, r)
	switch r.State {
	case probe.StateOK:
		s.Summary.OK++
	case probe.StateAuthRequired:
		s.Summary.AuthRequired++
	default:
		s.Summary.Errors++
	}
}

func (s *Summary) clone() *Summary {
	if s == nil {
		return nil
	}
	out := *s
	if s.Summary != nil {
		counts := *s.Summary
		out.Summary = &counts
	}
	out.Results = append([]AccountResult(nil), s.Results...)
	return &out
}
