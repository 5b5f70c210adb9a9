package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/util"
)

// ErrReceiveTimeout is returned by Receive when no message arrived in time.
var ErrReceiveTimeout = errors.New("receive timeout")

// Request is one line-delimited JSON-RPC request.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Response is one message read from the app-server. Notifications carry a
// method and no id.
type Response struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// HasError reports whether the reply carries a non-null error object.
func (r *Response) HasError() bool {
	return len(r.Error) > 0 && string(r.Error) != "null"
}

// Transport is a bidirectional message channel to one app-server.
type Transport interface {
	Send(req Request) error
	// Receive waits up to timeout for the next message. It returns
	// ErrReceiveTimeout when none arrived and io.EOF once the stream ended.
	Receive(timeout time.Duration) (*Response, error)
	Close() error
}

// Dialer starts a transport whose credentials live under home.
type Dialer func(ctx context.Context, home string) (Transport, error)

const (
	maxLineSize = 1 << 20
	killWait    = 5 * time.Second
)

type line struct {
	resp *Response
	err  error
}

// processTransport speaks to `<bin> app-server` over stdin/stdout.
type processTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	lines  chan line
	grace  time.Duration

	closeOnce sync.Once
	closing   chan struct{}
	exited    chan struct{}
}

// ProcessDialer returns a Dialer that spawns the codex binary in app-server
// mode with HOME and CODEX_HOME pointing at the account home. Close sends
// SIGTERM and kills the process when it has not exited within grace.
func ProcessDialer(bin string, grace time.Duration) Dialer {
	return func(ctx context.Context, home string) (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd := exec.Command(bin, "app-server")
		cmd.Env = append(os.Environ(),
			"HOME="+home,
			"CODEX_HOME="+filepath.Join(home, accounts.CodexDir),
		)
		cmd.Stderr = io.Discard
		cmd.WaitDelay = killWait
		setProcessGroup(cmd)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s app-server: %w", bin, err)
		}

		t := &processTransport{
			cmd:     cmd,
			stdin:   stdin,
			stdout:  stdout,
			lines:   make(chan line, 16),
			grace:   grace,
			closing: make(chan struct{}),
			exited:  make(chan struct{}),
		}
		// Wait closes stdout, so it runs only after the reader saw EOF.
		go func() {
			t.readLoop(stdout)
			_ = cmd.Wait()
			close(t.exited)
		}()
		return t, nil
	}
}

func (t *processTransport) readLoop(r io.Reader) {
	defer close(t.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		data := sc.Bytes()
		if len(data) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Printf("[Codex] skipping non-JSON app-server line: %s", util.TruncateBytes(data))
			continue
		}
		if !t.deliver(line{resp: &resp}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		t.deliver(line{err: err})
	}
}

func (t *processTransport) deliver(l line) bool {
	select {
	case t.lines <- l:
		return true
	case <-t.closing:
		return false
	}
}

func (t *processTransport) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

func (t *processTransport) Receive(timeout time.Duration) (*Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l, ok := <-t.lines:
		if !ok {
			return nil, io.EOF
		}
		return l.resp, l.err
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

// Close terminates the subprocess and its process group: SIGTERM first,
// SIGKILL after the grace period. It is safe to call more than once.
func (t *processTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closing)
		_ = t.stdin.Close()
		pid := t.cmd.Process.Pid
		_ = signalGroup(t.cmd.Process, syscall.SIGTERM)
		select {
		case <-t.exited:
			return
		case <-time.After(t.grace):
		}
		log.Printf("[Codex] app-server pid %d ignored SIGTERM, killing", pid)
		kerr := signalGroup(t.cmd.Process, syscall.SIGKILL)
		select {
		case <-t.exited:
		case <-time.After(killWait):
			// Something outside the group still holds stdout; unblock the reader.
			_ = t.stdout.Close()
			err = fmt.Errorf("app-server pid %d still running after SIGKILL (kill: %v)", pid, kerr)
		}
	})
	return err
}
