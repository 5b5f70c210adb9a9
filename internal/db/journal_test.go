package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pysugar/codex-status-fleet/internal/db/models"
	"github.com/pysugar/codex-status-fleet/internal/normalize"
	"github.com/pysugar/codex-status-fleet/internal/sink"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return NewJournal(db)
}

func event(label, provider string, requiresAuth, probeError bool) sink.Event {
	return sink.Event{
		AccountLabel: label,
		Host:         "test-host",
		Raw:          "{}",
		Parsed: sink.Parsed{
			ProbeError: probeError,
			Normalized: normalize.Status{Provider: provider, RequiresAuth: requiresAuth, Windows: map[string]normalize.Window{}},
		},
		TS: "2025-03-01T12:00:00Z",
	}
}

func TestJournal_EventsAndLatest(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, ev := range []sink.Event{
		event("acc_a", "codex", false, false),
		event("acc_a", "codex", true, true),
		event("fw_b", "fireworks", false, true),
	} {
		if err := j.PushEvent(ctx, ev); err != nil {
			t.Fatalf("PushEvent() error = %v", err)
		}
	}

	latest, err := j.Latest(ctx, "acc_a")
	if err != nil || latest == nil {
		t.Fatalf("Latest() = %v, %v", latest, err)
	}
	if latest.State != "auth_required" || latest.Provider != "codex" {
		t.Fatalf("latest = %+v", latest)
	}

	states := j.LatestStates(ctx)
	if states["acc_a"] != "auth_required" || states["fw_b"] != "error" {
		t.Fatalf("states = %v", states)
	}

	none, err := j.Latest(ctx, "missing")
	if err != nil || none != nil {
		t.Fatalf("Latest(missing) = %v, %v", none, err)
	}
}

func TestJournal_LatestStatesInterleaved(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if got := j.LatestStates(ctx); len(got) != 0 {
		t.Fatalf("empty journal states = %v", got)
	}
	for _, ev := range []sink.Event{
		event("acc_a", "codex", false, false),
		event("fw_b", "fireworks", false, true),
		event("claude_c", "anthropic", true, true),
		event("acc_a", "codex", false, true),
		event("fw_b", "fireworks", false, false),
		event("acc_a", "codex", true, true),
	} {
		if err := j.PushEvent(ctx, ev); err != nil {
			t.Fatalf("PushEvent() error = %v", err)
		}
	}

	got := j.LatestStates(ctx)
	want := map[string]string{"acc_a": "auth_required", "fw_b": "ok", "claude_c": "auth_required"}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for label, state := range want {
		if got[label] != state {
			t.Fatalf("states[%s] = %q, want %q (all: %v)", label, got[label], state, got)
		}
	}
}

func TestJournal_PushRegistryReplaces(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	email := "a@example.com"

	first := []sink.RegistryEntry{
		{AccountLabel: "acc_a", Enabled: true, Provider: "codex", ExpectedEmail: &email},
		{AccountLabel: "acc_old", Enabled: true, Provider: "codex"},
	}
	if err := j.PushRegistry(ctx, first); err != nil {
		t.Fatalf("PushRegistry() error = %v", err)
	}

	second := []sink.RegistryEntry{
		{AccountLabel: "acc_a", Enabled: false, Provider: "codex"},
		{AccountLabel: "fw_b", Enabled: true, Provider: "fireworks"},
		{AccountLabel: "acc_a", Enabled: true, Provider: "openai"},
	}
	if err := j.PushRegistry(ctx, second); err != nil {
		t.Fatalf("PushRegistry() error = %v", err)
	}

	rows, err := j.Registry(ctx)
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	want := []models.RegistryAccount{
		{AccountLabel: "acc_a", Enabled: true, Provider: "openai"},
		{AccountLabel: "fw_b", Enabled: true, Provider: "fireworks"},
	}
	for i, w := range want {
		got := rows[i]
		if got.AccountLabel != w.AccountLabel || got.Enabled != w.Enabled || got.Provider != w.Provider || got.ExpectedEmail != nil {
			t.Fatalf("row %d = %+v, want %+v", i, got, w)
		}
	}

	if err := j.PushRegistry(ctx, nil); err != nil {
		t.Fatalf("PushRegistry(nil) error = %v", err)
	}
	if rows, _ := j.Registry(ctx); len(rows) != 0 {
		t.Fatalf("registry not cleared: %+v", rows)
	}
}

func TestInitDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	db, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	if !db.Migrator().HasTable(&models.StatusEvent{}) || !db.Migrator().HasTable(&models.RegistryAccount{}) {
		t.Fatal("tables not migrated")
	}
}
