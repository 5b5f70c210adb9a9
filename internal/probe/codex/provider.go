// Package codex probes subscription accounts through `codex app-server`.
package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
	"github.com/pysugar/codex-status-fleet/internal/probe"
	"github.com/pysugar/codex-status-fleet/internal/version"
)

const (
	providerName = "codex"

	initializeID = 1
	rateLimitsID = 2

	methodInitialize = "initialize"
	methodRateLimits = "account/rateLimits/read"
)

// Provider implements probe.Probe for codex accounts.
type Provider struct {
	accountsDir string
	dial        Dialer
	timeout     time.Duration
	now         func() time.Time
}

// NewProvider creates a codex probe. timeout bounds the whole RPC exchange.
func NewProvider(accountsDir string, dial Dialer, timeout time.Duration) *Provider {
	return &Provider{
		accountsDir: accountsDir,
		dial:        dial,
		timeout:     timeout,
		now:         time.Now,
	}
}

func (p *Provider) Probe(ctx context.Context, acc accounts.Descriptor) (*probe.Outcome, error) {
	if err := accounts.EnsureHome(p.accountsDir, acc.Label); err != nil {
		log.Printf("[Codex] %s: %v", acc.Label, err)
	}
	home := acc.Home(p.accountsDir)
	authPath := filepath.Join(home, accounts.CodexDir, accounts.CodexAuthFile)

	partial := &probe.Outcome{Provider: providerName, At: p.now()}
	auth, err := LoadAuth(authPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, &probe.Error{
			Kind:     probe.AuthRequired,
			Provider: providerName,
			Message:  "missing auth.json: " + authPath + " (run codex login for this account)",
			Partial:  partial,
		}
	case err != nil:
		log.Printf("[Codex] %s: unreadable auth.json: %v", acc.Label, err)
	default:
		partial.AccountEmail = auth.Email()
		if tok := auth.Token(); tok != nil && !tok.Expiry.IsZero() {
			partial.TokenExpiry = tok.Expiry
			partial.TokenExpired = !tok.Valid()
			if partial.TokenExpired {
				log.Printf("[Codex] %s: access token expired at %s, app-server will try to refresh it",
					acc.Label, tok.Expiry.UTC().Format(time.RFC3339))
			}
		}
	}

	t, err := p.dial(ctx, home)
	if err != nil {
		return nil, &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "start app-server", Partial: partial, Err: err}
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			log.Printf("[Codex] %s: %v", acc.Label, cerr)
		}
	}()

	result, userAgent, perr := p.exchange(ctx, t)
	if perr != nil {
		perr.Partial = partial
		return nil, perr
	}

	partial.RPCResult = result
	partial.UserAgent = userAgent
	partial.Raw = compactRaw(result)
	return partial, nil
}

// exchange sends initialize and rateLimits/read, then reads until the
// rate-limit reply arrives or the deadline passes.
func (p *Provider) exchange(ctx context.Context, t Transport) (json.RawMessage, string, *probe.Error) {
	requests := []Request{
		{
			ID:     initializeID,
			Method: methodInitialize,
			Params: map[string]any{"clientInfo": map[string]string{
				"name":    version.ClientName,
				"version": version.ClientVersion,
			}},
		},
		{ID: rateLimitsID, Method: methodRateLimits, Params: nil},
	}
	for _, req := range requests {
		if err := t.Send(req); err != nil {
			return nil, "", &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "send " + req.Method, Err: err}
		}
	}

	var userAgent string
	deadline := p.now().Add(p.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", &probe.Error{Kind: probe.Timeout, Provider: providerName, Message: "probe cancelled", Err: err}
		}
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return nil, "", probe.Errorf(probe.Timeout, providerName, "timeout waiting for rate limits")
		}

		resp, err := t.Receive(remaining)
		switch {
		case errors.Is(err, ErrReceiveTimeout):
			return nil, "", probe.Errorf(probe.Timeout, providerName, "timeout waiting for rate limits")
		case errors.Is(err, io.EOF):
			return nil, "", probe.Errorf(probe.Transport, providerName, "app-server closed stdout before rate limits")
		case err != nil:
			return nil, "", &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "read app-server", Err: err}
		}
		if resp == nil || resp.ID == nil {
			continue
		}

		switch *resp.ID {
		case initializeID:
			var init struct {
				UserAgent string `json:"userAgent"`
			}
			if json.Unmarshal(resp.Result, &init) == nil {
				userAgent = init.UserAgent
			}
		case rateLimitsID:
			if resp.HasError() {
				return nil, "", &probe.Error{
					Kind:     probe.RPCError,
					Provider: providerName,
					Message:  rpcErrorMessage(resp.Error),
					Payload:  resp.Error,
				}
			}
			return wrapResult(resp.Result), userAgent, nil
		}
	}
}

// wrapResult returns object results verbatim and wraps anything else as
// {"result": ...}.
func wrapResult(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil && obj != nil {
		return raw
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	wrapped, _ := json.Marshal(map[string]json.RawMessage{"result": raw})
	return wrapped
}

func rpcErrorMessage(payload json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(payload)
}

func compactRaw(result json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, result); err != nil {
		return string(result)
	}
	return buf.String()
}

func (p *Provider) Normalize(acc accounts.Descriptor, o *probe.Outcome) normalize.Status {
	st := normalize.Codex(o.RPCResult, expected(acc), o.AccountEmail)
	st.SetTokenExpiry(o.TokenExpiry, o.TokenExpired)
	return st
}

func (p *Provider) Failure(acc accounts.Descriptor, perr *probe.Error) normalize.Status {
	st := normalize.Failure(providerName, expected(acc), perr.AccountEmail(), perr.RequiresAuth)
	requiresOpenaiAuth := perr.RequiresAuth
	st.RequiresOpenaiAuth = &requiresOpenaiAuth
	if perr.Partial != nil {
		st.SetTokenExpiry(perr.Partial.TokenExpiry, perr.Partial.TokenExpired)
	}
	return st
}

func expected(acc accounts.Descriptor) normalize.Expected {
	return normalize.Expected{Email: acc.ExpectedEmail, PlanType: acc.ExpectedPlanType}
}
