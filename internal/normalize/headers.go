package normalize

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// headerWindowSpec names the headers that describe one window.
type headerWindowSpec struct {
	name      string
	limit     string
	remaining string
	reset     string
}

var anthropicWindows = []headerWindowSpec{
	{
		name:      "requests",
		limit:     "anthropic-ratelimit-requests-limit",
		remaining: "anthropic-ratelimit-requests-remaining",
		reset:     "anthropic-ratelimit-requests-reset",
	},
	{
		name:      "tokens",
		limit:     "anthropic-ratelimit-tokens-limit",
		remaining: "anthropic-ratelimit-tokens-remaining",
		reset:     "anthropic-ratelimit-tokens-reset",
	},
}

var fireworksRequests = headerWindowSpec{
	name:      "requests",
	limit:     "x-ratelimit-limit-requests",
	remaining: "x-ratelimit-remaining-requests",
}

const fireworksOverLimitHeader = "x-ratelimit-over-limit"

// Anthropic normalizes the rate-limit headers of a messages response.
// Headers are keyed in lower case.
func Anthropic(httpStatus int, headers map[string]string, exp Expected, now time.Time) Status {
	st := base("anthropic", exp)
	st.RequiresAuth = isAuthStatus(httpStatus)
	for _, spec := range anthropicWindows {
		if w, ok := headerWindow(headers, spec, now); ok {
			st.Windows[spec.name] = w
		}
	}
	return st
}

// Fireworks normalizes the rate-limit headers of a models listing response.
func Fireworks(httpStatus int, headers map[string]string, exp Expected, now time.Time) Status {
	st := base("fireworks", exp)
	st.RequiresAuth = isAuthStatus(httpStatus)
	w, ok := headerWindow(headers, fireworksRequests, now)
	if !ok {
		return st
	}
	if raw := lower(headers[fireworksOverLimitHeader]); raw != "" {
		w.OverLimit = ptr(raw == "yes")
	}
	st.Windows[fireworksRequests.name] = w
	return st
}

// headerWindow builds a window when the limit header is a positive integer.
// Percentages are filled only when remaining is a non-negative integer.
func headerWindow(headers map[string]string, spec headerWindowSpec, now time.Time) (Window, bool) {
	limit, ok := intHeader(headers, spec.limit)
	if !ok || limit <= 0 {
		return Window{}, false
	}

	w := Window{Source: spec.name, Limit: ptr(limit)}
	if remaining, ok := intHeader(headers, spec.remaining); ok {
		w.Remaining = ptr(remaining)
		if remaining >= 0 {
			used, left := PercentsFromCounts(remaining, limit)
			w.UsedPercent = ptr(used)
			w.LeftPercent = ptr(left)
		}
	}
	if spec.reset != "" {
		if raw, ok := headers[spec.reset]; ok {
			w.ResetRaw = ptr(raw)
			w.ResetsAt, w.ResetsAtISO = ParseReset(raw, now)
		}
	}
	return w, true
}

func intHeader(headers map[string]string, key string) (int64, bool) {
	v, ok := headers[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
