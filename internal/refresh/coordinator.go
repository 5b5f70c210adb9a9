// Package refresh runs single-flight refreshes over the account fleet.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/logging"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
	"github.com/pysugar/codex-status-fleet/internal/probe"
	"github.com/pysugar/codex-status-fleet/internal/sink"
)

// Registry is the account source a refresh reads.
type Registry interface {
	Load(onlyLabel string, includeDisabled bool) ([]accounts.Descriptor, error)
	Inventory() ([]accounts.Descriptor, error)
}

// Request selects the accounts of one refresh. An empty Label means all.
type Request struct {
	Label           string
	IncludeDisabled bool
}

// Options configures a Coordinator.
type Options struct {
	Registry    Registry
	Probes      map[accounts.Provider]probe.Probe
	Rules       probe.Rules
	Sink        sink.Sink
	Guard       *Guard
	Metrics     *Metrics
	JoinTimeout time.Duration
	Host        string
}

// Coordinator probes every selected account sequentially and publishes each
// result to the sink.
type Coordinator struct {
	registry    Registry
	probes      map[accounts.Provider]probe.Probe
	rules       probe.Rules
	sink        sink.Sink
	guard       *Guard
	metrics     *Metrics
	joinTimeout time.Duration
	host        string
	now         func() time.Time
}

// New creates a Coordinator. A nil Guard gets a fresh one and nil Rules the
// defaults.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		registry:    opts.Registry,
		probes:      opts.Probes,
		rules:       opts.Rules,
		sink:        opts.Sink,
		guard:       opts.Guard,
		metrics:     opts.Metrics,
		joinTimeout: opts.JoinTimeout,
		host:        opts.Host,
		now:         time.Now,
	}
	if c.guard == nil {
		c.guard = NewGuard()
	}
	if c.rules == nil {
		c.rules = probe.DefaultRules()
	}
	if c.host == "" {
		c.host, _ = os.Hostname()
	}
	return c
}

// Guard exposes the single-flight guard, e.g. to refuse config edits while a
// refresh runs.
func (c *Coordinator) Guard() *Guard {
	return c.guard
}

// Refresh runs a refresh or joins the one in flight. A joiner waits up to the
// join timeout and receives the leader's summary marked Joined; it never
// triggers work of its own. The leader ignores cancellation of ctx so a
// disconnecting caller cannot abort a batch other callers are waiting on.
func (c *Coordinator) Refresh(ctx context.Context, req Request) (*Summary, error) {
	done, leader := c.guard.Begin()
	if !leader {
		s, err := c.join(ctx, done)
		c.metrics.recordJoin(err)
		return s, err
	}
	return c.lead(context.WithoutCancel(ctx), req)
}

func (c *Coordinator) join(ctx context.Context, done <-chan struct{}) (*Summary, error) {
	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return nil, ErrAlreadyRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s := c.guard.Last()
	if s == nil {
		s = &Summary{OK: true}
	}
	s.Joined = true
	return s, nil
}

func (c *Coordinator) lead(ctx context.Context, req Request) (summary *Summary, err error) {
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	startedAt := c.timestamp()

	defer func() {
		if r := recover(); r != nil {
			logging.Printf(ctx, "💥 [Refresh] panic: %v\n%s", r, debug.Stack())
			summary, err = nil, fmt.Errorf("refresh panicked: %v", r)
		}
		stored := summary
		if stored == nil {
			stored = &Summary{
				OK:         false,
				RunID:      runID,
				StartedAt:  startedAt,
				FinishedAt: c.timestamp(),
				Error:      "refresh failed",
			}
		}
		c.guard.Finish(stored)
		c.metrics.recordRun(summary, err)
		summary = summary.clone()
	}()

	if req.Label != "" {
		logging.Printf(ctx, "🔄 [Refresh] Starting refresh of %s", req.Label)
	} else {
		logging.Printf(ctx, "🔄 [Refresh] Starting refresh (include_disabled=%v)", req.IncludeDisabled)
	}

	if err := c.PushInventory(ctx); err != nil {
		logging.Printf(ctx, "❌ [Refresh] %v", err)
		return nil, err
	}

	accs, err := c.registry.Load(req.Label, req.IncludeDisabled)
	if err != nil {
		logging.Printf(ctx, "❌ [Refresh] Loading accounts failed: %v", err)
		return nil, err
	}
	if len(accs) == 0 {
		return nil, ErrNoAccounts
	}

	s := &Summary{
		RunID:     runID,
		StartedAt: startedAt,
		Summary:   &Counts{Total: len(accs)},
		Results:   make([]AccountResult, 0, len(accs)),
	}
	for _, acc := range accs {
		res := c.refreshOne(ctx, acc)
		c.metrics.recordAccount(string(acc.Provider), string(res.State))
		s.add(res)
	}
	s.OK = s.Summary.Errors == 0
	s.FinishedAt = c.timestamp()

	logging.Printf(ctx, "✅ [Refresh] Done: ok=%d auth_required=%d errors=%d total=%d",
		s.Summary.OK, s.Summary.AuthRequired, s.Summary.Errors, s.Summary.Total)
	return s, nil
}

// PushInventory sends every configured account to the sink's registry
// endpoint. Sink failures come back as *InventoryError.
func (c *Coordinator) PushInventory(ctx context.Context) error {
	accs, err := c.registry.Inventory()
	if err != nil {
		return err
	}
	entries := make([]sink.RegistryEntry, 0, len(accs))
	for _, acc := range accs {
		entries = append(entries, sink.RegistryEntry{
			AccountLabel:     acc.Label,
			Enabled:          acc.Enabled,
			Provider:         acc.ProviderName,
			ExpectedEmail:    optional(acc.ExpectedEmail),
			ExpectedPlanType: optional(acc.ExpectedPlanType),
			Note:             optional(acc.Note),
		})
	}
	if err := c.sink.PushRegistry(ctx, entries); err != nil {
		return &InventoryError{Err: err}
	}
	return nil
}

// refreshOne probes, normalizes and publishes one account. It never fails:
// every problem becomes the account's result.
func (c *Coordinator) refreshOne(ctx context.Context, acc accounts.Descriptor) (res AccountResult) {
	res = AccountResult{Label: acc.Label, Provider: string(acc.Provider)}
	defer func() {
		if r := recover(); r != nil {
			logging.Printf(ctx, "💥 [Refresh] %s: panic: %v", acc.Label, r)
			res.State = probe.StateError
			res.TS = ""
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	ev, state := c.probeAccount(ctx, acc)
	if err := c.sink.PushEvent(ctx, ev); err != nil {
		logging.Printf(ctx, "⚠️ [Refresh] %s: %s, push failed: %v", acc.Label, state, err)
		res.State = probe.StatePostError
		res.Error = err.Error()
		return res
	}

	logging.Printf(ctx, "[Refresh] %s (%s): %s", acc.Label, res.Provider, state)
	res.State = state
	res.TS = ev.TS
	return res
}

func (c *Coordinator) probeAccount(ctx context.Context, acc accounts.Descriptor) (sink.Event, probe.State) {
	ev := sink.Event{AccountLabel: acc.Label, Host: c.host, TS: c.timestamp()}

	p, ok := c.probes[acc.Provider]
	if !ok {
		perr := probe.Errorf(probe.UnknownProvider, acc.ProviderName, "unknown provider: %s", acc.ProviderName)
		st := normalize.Failure(acc.ProviderName, normalize.Expected{Email: acc.ExpectedEmail, PlanType: acc.ExpectedPlanType}, "", false)
		ev.Raw = perr.Raw()
		ev.Parsed = failureParsed(perr, st)
		return ev, probe.StateError
	}

	start := time.Now()
	o, err := p.Probe(ctx, acc)
	c.metrics.observeProbe(string(acc.Provider), time.Since(start))

	if err != nil {
		perr := asProbeError(err, string(acc.Provider))
		c.rules.Apply(perr)
		if !perr.RequiresAuth {
			logging.Printf(ctx, "[Refresh] %s: probe error: %v", acc.Label, perr)
		}
		ev.Raw = perr.Raw()
		ev.Parsed = failureParsed(perr, p.Failure(acc, perr))
		return ev, probe.ErrorState(perr)
	}

	st := p.Normalize(acc, o)
	ev.Raw = o.Raw
	ev.Parsed = sink.Parsed{
		UserAgent:  o.UserAgent,
		Model:      o.Model,
		BaseURL:    o.BaseURL,
		Headers:    o.Headers,
		Normalized: st,
	}
	if o.HTTPStatus != 0 {
		status := o.HTTPStatus
		ev.Parsed.HTTPStatus = &status
	}
	if o.HTTPError != "" {
		ev.Parsed.ProbeError = true
		ev.Parsed.ErrorType = string(probe.HTTPStatus)
		ev.Parsed.Error = o.HTTPError
	}
	return ev, probe.Classify(st, o)
}

func failureParsed(perr *probe.Error, st normalize.Status) sink.Parsed {
	return sink.Parsed{
		ProbeError:   true,
		ErrorType:    string(perr.Kind),
		Error:        perr.Error(),
		ErrorPayload: perr.Payload,
		Normalized:   st,
	}
}

func asProbeError(err error, provider string) *probe.Error {
	var perr *probe.Error
	if errors.As(err, &perr) {
		return perr
	}
	return &probe.Error{Kind: probe.Transport, Provider: provider, Err: err}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *Coordinator) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}
