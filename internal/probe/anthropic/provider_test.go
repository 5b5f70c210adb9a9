package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/probe"
)

const testKey = "sk-ant-REDACTED"

func writeKey(t *testing.T, accountsDir, label, content string) {
	t.Helper()
	dir := filepath.Join(accountsDir, label, accounts.SecretsDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, accounts.AnthropicKeyFile), []byte(content), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
}

func newTestProvider(dir, url string) *Provider {
	return NewProvider(dir, Options{
		APIURL:       url,
		Version:      "2023-06-01",
		DefaultModel: "claude-3-5-haiku-latest",
		Timeout:      2 * time.Second,
	})
}

func TestProbe_RequestShapeAndHeaders(t *testing.T) {
	var gotBody messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("x-api-key") != testKey || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("headers = %v", r.Header)
		}
		if r.Header.Get("User-Agent") != "codex-status-fleet-refresher/0.1.0" {
			t.Errorf("user-agent = %q", r.Header.Get("User-Agent"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("body: %v", err)
		}
		w.Header().Set("anthropic-ratelimit-requests-limit", "1000")
		w.Header().Set("anthropic-ratelimit-requests-remaining", "750")
		w.Header().Set("request-id", "req_123")
		w.Header().Set("x-unrelated", "drop")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[{"type":"text","text":"pong"}]}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeKey(t, dir, "claude_a", "key:\n  "+testKey+"\n")
	p := newTestProvider(dir, server.URL)
	acc := accounts.Descriptor{Label: "claude_a", Provider: accounts.ProviderAnthropic, AnthropicModel: "claude-sonnet-4"}

	o, err := p.Probe(context.Background(), acc)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if gotBody.Model != "claude-sonnet-4" || gotBody.MaxTokens != 1 || len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "ping" {
		t.Fatalf("request body = %+v", gotBody)
	}
	if _, ok := o.Headers["x-unrelated"]; ok || o.Headers["request-id"] != "req_123" {
		t.Fatalf("headers = %v", o.Headers)
	}
	if o.KeyHint == testKey || o.KeyHint == "" {
		t.Fatalf("key hint = %q", o.KeyHint)
	}

	st := p.Normalize(acc, o)
	w := st.Windows["requests"]
	if *w.Limit != 1000 || *w.Remaining != 750 || *w.UsedPercent != 25 || *w.LeftPercent != 75 {
		t.Fatalf("requests window = %+v", w)
	}
	if st.Model != "claude-sonnet-4" || st.APIKeyHint != o.KeyHint {
		t.Fatalf("status = %+v", st)
	}
	if probe.Classify(st, o) != probe.StateOK {
		t.Fatal("expected ok")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(o.Raw), &raw); err != nil || raw["http_status"] != float64(200) {
		t.Fatalf("raw = %s", o.Raw)
	}
}

func TestProbe_UnauthorizedKeepsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("request-id", "req_401")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeKey(t, dir, "claude_b", testKey)
	p := newTestProvider(dir, server.URL)
	acc := accounts.Descriptor{Label: "claude_b", Provider: accounts.ProviderAnthropic}

	o, err := p.Probe(context.Background(), acc)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if o.HTTPStatus != http.StatusUnauthorized || o.Headers["request-id"] != "req_401" {
		t.Fatalf("outcome = %+v", o)
	}
	st := p.Normalize(acc, o)
	if !st.RequiresAuth || probe.Classify(st, o) != probe.StateAuthRequired {
		t.Fatalf("status = %+v", st)
	}
	if st.Model != "claude-3-5-haiku-latest" {
		t.Fatalf("default model not applied: %q", st.Model)
	}
}

func TestProbe_MissingKeyNoNetwork(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	dir := t.TempDir()
	writeKey(t, dir, "claude_c", "not a key\n")
	p := newTestProvider(dir, server.URL)
	acc := accounts.Descriptor{Label: "claude_c", Provider: accounts.ProviderAnthropic}

	for _, label := range []string{"claude_c", "claude_missing"} {
		acc.Label = label
		_, err := p.Probe(context.Background(), acc)
		var perr *probe.Error
		if !errors.As(err, &perr) || perr.Kind != probe.AuthRequired {
			t.Fatalf("%s: Probe() error = %v", label, err)
		}
		probe.DefaultRules().Apply(perr)
		st := p.Failure(acc, perr)
		if !st.RequiresAuth || len(st.Windows) != 0 || st.RequiresOpenaiAuth != nil {
			t.Fatalf("%s: failure status = %+v", label, st)
		}
	}
	if hits != 0 {
		t.Fatalf("server hit %d times", hits)
	}
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	dir := t.TempDir()
	writeKey(t, dir, "claude_d", testKey)
	p := NewProvider(dir, Options{APIURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := p.Probe(context.Background(), accounts.Descriptor{Label: "claude_d"})
	var perr *probe.Error
	if !errors.As(err, &perr) || perr.Kind != probe.Timeout {
		t.Fatalf("Probe() error = %v, want Timeout", err)
	}
	if perr.Partial == nil || perr.Partial.KeyHint == "" {
		t.Fatalf("partial outcome missing key hint: %+v", perr.Partial)
	}
}
