package codex

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/util"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-codex")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestProcessDialer_RoundTrip(t *testing.T) {
	bin := writeScript(t, `[ "$1" = "app-server" ] || exit 2
read init
echo '{"id":1,"result":{"userAgent":"fake@'"$CODEX_HOME"'"}}'
read limits
echo 'not json'
echo '{"id":2,"result":{"rateLimits":null}}'
exec sleep 30
`)
	home := t.TempDir()
	tr, err := ProcessDialer(bin, time.Second)(context.Background(), home)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	if err := tr.Send(Request{ID: 1, Method: methodInitialize}); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := tr.Receive(5 * time.Second)
	if err != nil {
		t.Fatalf("receive init: %v", err)
	}
	if *resp.ID != 1 || !strings.Contains(string(resp.Result), filepath.Join(home, ".codex")) {
		t.Fatalf("init response = %+v", resp)
	}

	if err := tr.Send(Request{ID: 2, Method: methodRateLimits}); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err = tr.Receive(5 * time.Second)
	if err != nil || *resp.ID != 2 {
		t.Fatalf("receive limits = %+v, %v", resp, err)
	}

	if _, err := tr.Receive(20 * time.Millisecond); !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("idle receive error = %v, want ErrReceiveTimeout", err)
	}

	start := time.Now()
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("SIGTERM close took %v", elapsed)
	}
}

func TestProcessDialer_TruncatesNoiseInLog(t *testing.T) {
	bin := writeScript(t, `head -c 5000 /dev/zero | tr '\0' x
echo
echo '{"method":"ready"}'
exec sleep 30
`)
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	tr, err := ProcessDialer(bin, 100*time.Millisecond)(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	if resp, err := tr.Receive(5 * time.Second); err != nil || resp.Method != "ready" {
		t.Fatalf("ready = %+v, %v", resp, err)
	}
	out := buf.String()
	if !strings.Contains(out, "[truncated, 5000 bytes total]") {
		t.Fatalf("log = %q", out)
	}
	if strings.Count(out, "x") > util.DefaultLogMaxLen+10 {
		t.Fatalf("logged %d bytes of noise", strings.Count(out, "x"))
	}
}

func TestProcessDialer_KillsAfterGrace(t *testing.T) {
	bin := writeScript(t, "trap '' TERM\nexec sleep 30\n")
	tr, err := ProcessDialer(bin, 100*time.Millisecond)(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pt := tr.(*processTransport)

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-pt.exited:
	default:
		t.Fatal("process still running after Close")
	}
	// Closing twice is a no-op.
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestProcessDialer_KillsChildProcesses(t *testing.T) {
	// sleep is a child of the shell here, not an exec replacement, and it
	// inherits both stdout and the ignored TERM.
	bin := writeScript(t, `trap '' TERM
echo '{"method":"ready"}'
sleep 30
echo '{"method":"late"}'
`)
	tr, err := ProcessDialer(bin, 100*time.Millisecond)(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pt := tr.(*processTransport)
	if resp, err := tr.Receive(5 * time.Second); err != nil || resp.Method != "ready" {
		t.Fatalf("ready = %+v, %v", resp, err)
	}

	start := time.Now()
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= killWait {
		t.Fatalf("close took %v, the child kept stdout open", elapsed)
	}
	select {
	case <-pt.exited:
	case <-time.After(2 * time.Second):
		t.Fatal("reader and Wait did not finish after Close")
	}
}

func TestProcessDialer_MissingBinary(t *testing.T) {
	_, err := ProcessDialer(filepath.Join(t.TempDir(), "nope"), time.Second)(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
