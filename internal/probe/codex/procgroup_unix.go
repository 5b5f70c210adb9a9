//go:build !windows

package codex

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command in its own process group so signals
// reach the children app-server spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		return p.Signal(sig)
	}
	return nil
}
