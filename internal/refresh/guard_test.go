package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/probe"
)

func TestGuard_Lifecycle(t *testing.T) {
	g := NewGuard()
	if g.Last() != nil || g.Running() {
		t.Fatal("new guard must be idle with no summary")
	}

	done, leader := g.Begin()
	if !leader || !g.Running() {
		t.Fatal("first Begin must lead")
	}
	joinDone, joined := g.Begin()
	if joined || joinDone != done || g.Waiting() != 1 {
		t.Fatalf("second Begin: leader=%v waiting=%d", joined, g.Waiting())
	}

	g.Finish(&Summary{OK: true, RunID: "r1", Results: []AccountResult{{Label: "a"}}})
	select {
	case <-done:
	default:
		t.Fatal("Finish must close the done channel")
	}
	if g.Running() || g.Waiting() != 0 {
		t.Fatal("guard must be idle after Finish")
	}

	last := g.Last()
	last.Results[0].Label = "mutated"
	if g.Last().Results[0].Label != "a" {
		t.Fatal("Last must return a copy")
	}

	// A second Finish without Begin is a no-op.
	g.Finish(&Summary{RunID: "r2"})
	if g.Last().RunID != "r1" {
		t.Fatal("Finish on an idle guard must not overwrite the summary")
	}

	if _, leader := g.Begin(); !leader {
		t.Fatal("guard must be reusable after Finish")
	}
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	var n atomic.Int32
	p := &fakeProbe{answer: func(ctx context.Context, acc accounts.Descriptor) (*probe.Outcome, error) {
		n.Add(1)
		return okOutcome(), nil
	}}
	c, _ := newCoordinator(t, &fakeRegistry{accounts: codexAccounts("acc_a")}, p, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewScheduler(c, 10*time.Millisecond).Run(ctx)
		close(stopped)
	}()
	waitFor(t, func() bool { return n.Load() >= 2 })
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestScheduler_DisabledReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewScheduler(nil, 0).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with a zero interval must return")
	}
}
