package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/util"
	"github.com/pysugar/codex-status-fleet/internal/version"
)

const maxErrorBody = 2048

// HTTPSink posts to a collector's /ingest and /registry endpoints.
type HTTPSink struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSink creates a collector client. baseURL is the collector root,
// without the /ingest suffix.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) PushEvent(ctx context.Context, ev Event) error {
	return s.post(ctx, "/ingest", ev)
}

func (s *HTTPSink) PushRegistry(ctx context.Context, entries []RegistryEntry) error {
	if entries == nil {
		entries = []RegistryEntry{}
	}
	return s.post(ctx, "/registry?replace=true", map[string]any{"accounts": entries})
}

func (s *HTTPSink) post(ctx context.Context, path string, payload any) error {
	endpoint := strings.SplitN(path, "?", 2)[0]
	body, err := json.Marshal(payload)
	if err != nil {
		return &PushError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &PushError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &PushError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &PushError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       util.Ellipsize(strings.TrimSpace(string(data)), util.ErrorMessageMaxLen),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
