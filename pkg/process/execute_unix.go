//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the child in its own process group and makes
// cancellation signal the whole group, so shell wrappers and their children
// stop together.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return SendTerminationSignal(cmd.Process.Pid)
	}
}

// SendTerminationSignal sends SIGTERM to the process group (negative PID)
func SendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
