// Package normalize maps provider-native quota data onto one status schema.
//
// Every function here is pure: the probe time is passed in, so normalizing
// the same outcome twice yields identical output.
package normalize

import (
	"encoding/json"
	"time"
)

// Window is one named rate-limit accounting period.
type Window struct {
	Source             string   `json:"source"`
	Limit              *int64   `json:"limit,omitempty"`
	Remaining          *int64   `json:"remaining,omitempty"`
	UsedPercent        *float64 `json:"usedPercent"`
	LeftPercent        *float64 `json:"leftPercent"`
	WindowDurationMins *int64   `json:"windowDurationMins,omitempty"`
	ResetsAt           *int64   `json:"resetsAt"`
	ResetsAtISO        *string  `json:"resetsAtIsoUtc"`
	ResetRaw           *string  `json:"resetRaw,omitempty"`
	OverLimit          *bool    `json:"overLimit,omitempty"`
}

// Credits is a provider balance. Codex reports flags and a balance string,
// Fireworks a currency amount read from firectl.
type Credits struct {
	Source     string   `json:"source,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	AmountRaw  string   `json:"amount_raw,omitempty"`
	HasCredits *bool    `json:"hasCredits,omitempty"`
	Unlimited  *bool    `json:"unlimited,omitempty"`
	Balance    *string  `json:"balance,omitempty"`
	Error      string   `json:"error,omitempty"`

	// Raw is the provider's credits object exactly as reported, so fields
	// without a normalized home still reach the sink.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Status is the provider-agnostic view of one account. Match flags are nil
// when nothing was discovered to compare against.
type Status struct {
	Provider              string            `json:"provider"`
	AccountEmail          *string           `json:"account_email,omitempty"`
	ExpectedEmail         *string           `json:"expected_email,omitempty"`
	ExpectedEmailMatch    *bool             `json:"expected_email_match"`
	ExpectedPlanType      *string           `json:"expected_planType,omitempty"`
	ExpectedPlanTypeMatch *bool             `json:"expected_planType_match"`
	RatePlanType          *string           `json:"rate_planType,omitempty"`
	RequiresAuth          bool              `json:"requiresAuth"`
	RequiresOpenaiAuth    *bool             `json:"requiresOpenaiAuth,omitempty"`
	Windows               map[string]Window `json:"windows"`
	Credits               *Credits          `json:"credits,omitempty"`
	Model                 string            `json:"model,omitempty"`
	BaseURL               string            `json:"base_url,omitempty"`
	APIKeyHint            string            `json:"api_key_hint,omitempty"`
	TokenExpiresAt        *string           `json:"token_expires_at,omitempty"`
	TokenExpired          *bool             `json:"token_expired,omitempty"`
}

// Expected carries the configured identity an account should report.
type Expected struct {
	Email    string
	PlanType string
}

// HasData reports whether the status carries any quota information.
func (s Status) HasData() bool {
	return len(s.Windows) > 0 || s.Credits != nil
}

// base starts a Status with the expected fields filled in.
func base(provider string, exp Expected) Status {
	st := Status{Provider: provider, Windows: map[string]Window{}}
	if exp.Email != "" {
		st.ExpectedEmail = ptr(exp.Email)
	}
	if exp.PlanType != "" {
		st.ExpectedPlanType = ptr(exp.PlanType)
	}
	return st
}

// Failure is the status reported when a probe produced no usable data.
// The email match is still evaluated when an identity was discovered.
func Failure(provider string, exp Expected, accountEmail string, requiresAuth bool) Status {
	st := base(provider, exp)
	st.RequiresAuth = requiresAuth
	setEmail(&st, exp, accountEmail)
	return st
}

func setEmail(st *Status, exp Expected, accountEmail string) {
	if accountEmail != "" {
		st.AccountEmail = ptr(accountEmail)
	}
	if exp.Email != "" && accountEmail != "" {
		st.ExpectedEmailMatch = ptr(accountEmail == lower(exp.Email))
	}
}

// SetTokenExpiry records the stored credential's expiry. A zero expiry
// leaves both fields unset.
func (s *Status) SetTokenExpiry(expiry time.Time, expired bool) {
	if expiry.IsZero() {
		return
	}
	s.TokenExpiresAt = ptr(expiry.UTC().Format(time.RFC3339))
	s.TokenExpired = ptr(expired)
}

func ptr[T any](v T) *T {
	return &v
}
