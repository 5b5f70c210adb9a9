// Package anthropic probes API-key accounts by eliciting rate-limit headers
// from a one-token messages request.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
	"github.com/pysugar/codex-status-fleet/internal/probe"
	"github.com/pysugar/codex-status-fleet/internal/util"
	"github.com/pysugar/codex-status-fleet/internal/version"
)

const (
	providerName = "anthropic"
	headerPrefix = "anthropic-ratelimit-"
)

// Options configures the probe endpoint.
type Options struct {
	APIURL       string
	Version      string
	DefaultModel string
	Timeout      time.Duration
}

// Provider implements probe.Probe for Anthropic API keys.
type Provider struct {
	accountsDir string
	opts        Options
	httpClient  *http.Client
	now         func() time.Time
}

// NewProvider creates an Anthropic probe.
func NewProvider(accountsDir string, opts Options) *Provider {
	return &Provider{
		accountsDir: accountsDir,
		opts:        opts,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		now:         time.Now,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) model(acc accounts.Descriptor) string {
	if acc.AnthropicModel != "" {
		return acc.AnthropicModel
	}
	return p.opts.DefaultModel
}

func (p *Provider) Probe(ctx context.Context, acc accounts.Descriptor) (*probe.Outcome, error) {
	if err := accounts.EnsureHome(p.accountsDir, acc.Label); err != nil {
		log.Printf("[Anthropic] %s: %v", acc.Label, err)
	}
	keyPath := filepath.Join(acc.Home(p.accountsDir), accounts.SecretsDir, accounts.AnthropicKeyFile)
	model := p.model(acc)
	partial := &probe.Outcome{Provider: providerName, At: p.now(), Model: model}

	apiKey := readKey(keyPath)
	if apiKey == "" {
		return nil, &probe.Error{
			Kind:     probe.AuthRequired,
			Provider: providerName,
			Message:  "missing API key: " + keyPath,
			Partial:  partial,
		}
	}
	partial.KeyHint = util.MaskSecret(apiKey, 12, 6)

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: 1,
		Messages:  []message{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		return nil, &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "encode request", Partial: partial, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "build request", Partial: partial, Err: err}
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", p.opts.Version)
	req.Header.Set("user-agent", version.UserAgent())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err, partial)
	}
	defer resp.Body.Close()
	// The body only exists to elicit headers.
	_, _ = io.Copy(io.Discard, resp.Body)

	partial.HTTPStatus = resp.StatusCode
	partial.Headers = probe.FilterHeaders(resp.Header, headerPrefix)
	partial.Raw = probe.CompactJSON(map[string]any{
		"http_status": partial.HTTPStatus,
		"model":       model,
		"headers":     partial.Headers,
	})
	return partial, nil
}

func transportError(err error, partial *probe.Outcome) *probe.Error {
	kind := probe.Transport
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = probe.Timeout
	}
	return &probe.Error{Kind: kind, Provider: providerName, Message: "messages request failed", Partial: partial, Err: err}
}

// readKey returns the first sk-ant- token in the key file, empty when the
// file is missing or holds none.
func readKey(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Anthropic] cannot read %s: %v", path, err)
		}
		return ""
	}
	return accounts.FindAnthropicKey(string(data))
}

func (p *Provider) Normalize(acc accounts.Descriptor, o *probe.Outcome) normalize.Status {
	st := normalize.Anthropic(o.HTTPStatus, o.Headers, expected(acc), o.At)
	st.Model = o.Model
	st.APIKeyHint = o.KeyHint
	return st
}

func (p *Provider) Failure(acc accounts.Descriptor, perr *probe.Error) normalize.Status {
	st := normalize.Failure(providerName, expected(acc), "", perr.RequiresAuth)
	if perr.Partial != nil {
		st.Model = perr.Partial.Model
		st.APIKeyHint = perr.Partial.KeyHint
	}
	return st
}

func expected(acc accounts.Descriptor) normalize.Expected {
	return normalize.Expected{Email: acc.ExpectedEmail, PlanType: acc.ExpectedPlanType}
}

var _ probe.Probe = (*Provider)(nil)
