package logging

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if len(id) != 8 {
		t.Errorf("NewRunID() length = %d, want 8", len(id))
	}

	if id2 := NewRunID(); id == id2 {
		t.Errorf("NewRunID() generated duplicate IDs: %s", id)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRunID(ctx); got != "" {
		t.Errorf("GetRunID(empty context) = %q, want empty string", got)
	}

	ctx = WithRunID(ctx, "test1234")
	if got := GetRunID(ctx); got != "test1234" {
		t.Errorf("GetRunID() = %q, want %q", got, "test1234")
	}
}

func TestPrintfPrefixesRunID(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	Printf(WithRunID(context.Background(), "abcd0001"), "probing %s", "acc_a")
	Printf(context.Background(), "no run")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", buf.String())
	}
	if lines[0] != "[run abcd0001] probing acc_a" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if lines[1] != "no run" {
		t.Errorf("unexpected second line %q", lines[1])
	}
}
