package fireworks

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pysugar/codex-status-fleet/internal/normalize"
)

const balanceSource = "firectl"

// Balance lookup failures reported in credits.error.
const (
	BalanceTimeout     = "timeout"
	BalanceNonzeroExit = "nonzero_exit"
	BalanceNotFound    = "not_found"
)

var balanceRe = regexp.MustCompile(`(?im)^Balance:\s*([A-Z]{3})\s*([0-9]+(?:\.[0-9]+)?)\b`)

// RunResult is the captured result of one CLI invocation.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes the balance CLI. It returns exec.ErrNotFound (wrapped)
// when the binary is missing and context.DeadlineExceeded on timeout.
type Runner func(ctx context.Context, name string, args ...string) (*RunResult, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (*RunResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res := &RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, err
	}
	return res, nil
}

// ParseBalance extracts the last "Balance: USD 12.34" line from CLI output.
func ParseBalance(output string) (*normalize.Credits, bool) {
	matches := balanceRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil, false
	}
	m := matches[len(matches)-1]
	c := &normalize.Credits{
		Source:    balanceSource,
		Currency:  strings.ToUpper(m[1]),
		AmountRaw: m[2],
	}
	if amount, err := strconv.ParseFloat(m[2], 64); err == nil {
		c.Amount = &amount
	}
	return c, true
}

type cacheEntry struct {
	at    time.Time
	value *normalize.Credits
}

// BalanceCache runs the balance CLI and caches successful results per
// account label. Concurrent lookups for one label share a single run.
type BalanceCache struct {
	bin     string
	timeout time.Duration
	ttl     time.Duration
	run     Runner
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewBalanceCache creates a cache. A ttl <= 0 disables caching.
func NewBalanceCache(bin string, timeout, ttl time.Duration, run Runner) *BalanceCache {
	if run == nil {
		run = ExecRunner
	}
	return &BalanceCache{
		bin:     bin,
		timeout: timeout,
		ttl:     ttl,
		run:     run,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the balance for label. A nil result means the CLI is not
// installed; failures come back as credits with Error set.
func (c *BalanceCache) Get(ctx context.Context, label, apiKey string) *normalize.Credits {
	if c.ttl <= 0 {
		return c.lookup(ctx, apiKey)
	}
	if v, ok := c.cached(label); ok {
		return v
	}

	v, _, _ := c.group.Do(label, func() (any, error) {
		if v, ok := c.cached(label); ok {
			return v, nil
		}
		credits := c.lookup(ctx, apiKey)
		if credits != nil && credits.Error == "" {
			c.mu.Lock()
			c.entries[label] = cacheEntry{at: c.now(), value: credits}
			c.mu.Unlock()
		}
		return credits, nil
	})
	credits, _ := v.(*normalize.Credits)
	return copyCredits(credits)
}

// Invalidate drops the cached balance of label.
func (c *BalanceCache) Invalidate(label string) {
	c.mu.Lock()
	delete(c.entries, label)
	c.mu.Unlock()
}

func (c *BalanceCache) cached(label string) (*normalize.Credits, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[label]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return nil, false
	}
	return copyCredits(e.value), true
}

func (c *BalanceCache) lookup(ctx context.Context, apiKey string) *normalize.Credits {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.run(ctx, c.bin, "get", "account", "--api-key", apiKey, "-o", "json")
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return balanceError(BalanceTimeout)
	case err != nil:
		log.Printf("[Fireworks] %s failed: %v", c.bin, err)
		return balanceError(BalanceNonzeroExit)
	}

	if credits, ok := ParseBalance(string(res.Stdout) + "\n" + string(res.Stderr)); ok {
		return credits
	}
	if res.ExitCode != 0 {
		return balanceError(BalanceNonzeroExit)
	}
	return balanceError(BalanceNotFound)
}

func balanceError(reason string) *normalize.Credits {
	return &normalize.Credits{Source: balanceSource, Error: reason}
}

func copyCredits(c *normalize.Credits) *normalize.Credits {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
