package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/normalize"
)

func TestHTTPSink_PushEvent(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("body: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := NewHTTPSink(server.URL+"/", time.Second)
	status := 200
	ev := Event{
		AccountLabel: "claude_a",
		Host:         "refresher-1",
		Raw:          `{"http_status":200}`,
		Parsed: Parsed{
			HTTPStatus: &status,
			Model:      "claude-3-5-haiku-latest",
			Normalized: normalize.Status{Provider: "anthropic", Windows: map[string]normalize.Window{}},
		},
		TS: "2025-03-01T12:00:00Z",
	}
	if err := s.PushEvent(context.Background(), ev); err != nil {
		t.Fatalf("PushEvent() error = %v", err)
	}

	if got["account_label"] != "claude_a" || got["ts"] != "2025-03-01T12:00:00Z" {
		t.Fatalf("payload = %v", got)
	}
	parsed := got["parsed"].(map[string]any)
	if _, ok := parsed["probe_error"]; ok {
		t.Fatalf("probe_error must be omitted on success: %v", parsed)
	}
	normalized := parsed["normalized"].(map[string]any)
	if normalized["provider"] != "anthropic" || normalized["requiresAuth"] != false {
		t.Fatalf("normalized = %v", normalized)
	}
	if _, ok := normalized["windows"].(map[string]any); !ok {
		t.Fatalf("windows must serialize as an object: %v", normalized)
	}
}

func TestHTTPSink_PushRegistry(t *testing.T) {
	var got struct {
		Accounts []map[string]any `json:"accounts"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/registry" || r.URL.Query().Get("replace") != "true" {
			t.Errorf("url = %s", r.URL)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	note := "team seat"
	err := NewHTTPSink(server.URL, time.Second).PushRegistry(context.Background(), []RegistryEntry{
		{AccountLabel: "acc_a", Enabled: true, Provider: "codex", Note: &note},
	})
	if err != nil {
		t.Fatalf("PushRegistry() error = %v", err)
	}
	if len(got.Accounts) != 1 || got.Accounts[0]["note"] != "team seat" {
		t.Fatalf("accounts = %v", got.Accounts)
	}
	if v, ok := got.Accounts[0]["expected_email"]; !ok || v != nil {
		t.Fatalf("expected_email must be an explicit null: %v", got.Accounts[0])
	}
}

func TestHTTPSink_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector database is locked", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewHTTPSink(server.URL, time.Second).PushEvent(context.Background(), Event{AccountLabel: "a"})
	var pe *PushError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusServiceUnavailable || pe.Endpoint != "/ingest" {
		t.Fatalf("PushEvent() error = %v", err)
	}
	if !strings.Contains(pe.Error(), "database is locked") {
		t.Fatalf("error text = %q", pe.Error())
	}

	server.Close()
	err = NewHTTPSink(server.URL, time.Second).PushRegistry(context.Background(), nil)
	if !errors.As(err, &pe) || pe.StatusCode != 0 || pe.Err == nil || pe.Endpoint != "/registry" {
		t.Fatalf("PushRegistry() error = %v", err)
	}
}

type recordingSink struct {
	events   int
	registry int
	err      error
}

func (r *recordingSink) PushEvent(ctx context.Context, ev Event) error {
	r.events++
	return r.err
}

func (r *recordingSink) PushRegistry(ctx context.Context, entries []RegistryEntry) error {
	r.registry++
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	ok, bad := &recordingSink{}, &recordingSink{err: boom}
	m := Multi{bad, ok}

	if err := m.PushEvent(context.Background(), Event{}); !errors.Is(err, boom) {
		t.Fatalf("PushEvent() error = %v", err)
	}
	if err := m.PushRegistry(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("PushRegistry() error = %v", err)
	}
	if ok.events != 1 || ok.registry != 1 {
		t.Fatal("a failing sink must not stop the others")
	}
	if err := (Multi{ok}).PushEvent(context.Background(), Event{}); err != nil {
		t.Fatalf("healthy fan-out error = %v", err)
	}
}
