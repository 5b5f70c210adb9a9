// Package fireworks probes Fireworks API keys: rate-limit headers from the
// models listing plus a cached balance read through firectl.
package fireworks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
	"github.com/pysugar/codex-status-fleet/internal/probe"
	"github.com/pysugar/codex-status-fleet/internal/util"
	"github.com/pysugar/codex-status-fleet/internal/version"
)

const (
	providerName = "fireworks"
	headerPrefix = "x-ratelimit-"

	maxErrorBody = 4096
)

// Provider implements probe.Probe for Fireworks API keys.
type Provider struct {
	accountsDir    string
	defaultBaseURL string
	httpClient     *http.Client
	balances       *BalanceCache
	now            func() time.Time
}

// NewProvider creates a Fireworks probe. balances may be nil to skip the
// balance lookup.
func NewProvider(accountsDir, defaultBaseURL string, timeout time.Duration, balances *BalanceCache) *Provider {
	return &Provider{
		accountsDir:    accountsDir,
		defaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		balances:       balances,
		now:            time.Now,
	}
}

func (p *Provider) baseURL(acc accounts.Descriptor) string {
	if acc.FireworksBaseURL != "" {
		return strings.TrimRight(acc.FireworksBaseURL, "/")
	}
	return p.defaultBaseURL
}

func (p *Provider) Probe(ctx context.Context, acc accounts.Descriptor) (*probe.Outcome, error) {
	if err := accounts.EnsureHome(p.accountsDir, acc.Label); err != nil {
		log.Printf("[Fireworks] %s: %v", acc.Label, err)
	}
	keyPath := filepath.Join(acc.Home(p.accountsDir), accounts.SecretsDir, accounts.FireworksKeyFile)
	o := &probe.Outcome{
		Provider: providerName,
		At:       p.now(),
		Model:    acc.FireworksModel,
		BaseURL:  p.baseURL(acc),
	}

	apiKey := readKey(keyPath)
	if apiKey == "" {
		return nil, &probe.Error{
			Kind:     probe.AuthRequired,
			Provider: providerName,
			Message:  "missing API key: " + keyPath,
			Partial:  o,
		}
	}
	o.KeyHint = util.MaskSecret(apiKey, 10, 6)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/models", nil)
	if err != nil {
		return nil, &probe.Error{Kind: probe.Transport, Provider: providerName, Message: "build request", Partial: o, Err: err}
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("authorization", "Bearer "+apiKey)
	req.Header.Set("user-agent", version.UserAgent())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err, o)
	}
	defer resp.Body.Close()

	o.HTTPStatus = resp.StatusCode
	o.Headers = probe.FilterHeaders(resp.Header, headerPrefix)
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			o.HTTPError = errorMessage(body, resp.StatusCode)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	if p.balances != nil && !isAuthStatus(resp.StatusCode) {
		o.Credits = p.balances.Get(ctx, acc.Label, apiKey)
	}

	o.Raw = probe.CompactJSON(rawPayload{
		HTTPStatus: o.HTTPStatus,
		Model:      nullable(o.Model),
		BaseURL:    o.BaseURL,
		Headers:    o.Headers,
		Credits:    o.Credits,
		Error:      nullable(o.HTTPError),
	})
	return o, nil
}

type rawPayload struct {
	HTTPStatus int                `json:"http_status"`
	Model      *string            `json:"model"`
	BaseURL    string             `json:"base_url"`
	Headers    map[string]string  `json:"headers"`
	Credits    *normalize.Credits `json:"credits"`
	Error      *string            `json:"error"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// errorMessage prefers {"error":{"message":...}} and falls back to the
// trimmed body, truncated.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &envelope) == nil {
		msg = strings.TrimSpace(envelope.Error.Message)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return util.Ellipsize(msg, util.ErrorMessageMaxLen)
}

func transportError(err error, partial *probe.Outcome) *probe.Error {
	kind := probe.Transport
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = probe.Timeout
	}
	return &probe.Error{Kind: kind, Provider: providerName, Message: "models request failed", Partial: partial, Err: err}
}

// readKey returns the first non-empty line of the key file when it looks
// like a Fireworks key.
func readKey(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Fireworks] cannot read %s: %v", path, err)
		}
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			if accounts.IsFireworksKey(s) {
				return s
			}
			return ""
		}
	}
	return ""
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func (p *Provider) Normalize(acc accounts.Descriptor, o *probe.Outcome) normalize.Status {
	st := normalize.Fireworks(o.HTTPStatus, o.Headers, expected(acc), o.At)
	st.Model = o.Model
	st.BaseURL = o.BaseURL
	st.APIKeyHint = o.KeyHint
	if !st.RequiresAuth && o.Credits != nil {
		st.Credits = o.Credits
	}
	return st
}

func (p *Provider) Failure(acc accounts.Descriptor, perr *probe.Error) normalize.Status {
	st := normalize.Failure(providerName, expected(acc), "", perr.RequiresAuth)
	if perr.Partial != nil {
		st.Model = perr.Partial.Model
		st.BaseURL = perr.Partial.BaseURL
		st.APIKeyHint = perr.Partial.KeyHint
	}
	return st
}

func expected(acc accounts.Descriptor) normalize.Expected {
	return normalize.Expected{Email: acc.ExpectedEmail, PlanType: acc.ExpectedPlanType}
}
