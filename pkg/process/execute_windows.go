//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessAttributes isolates the child in a new process group so a
// console Ctrl+C aimed at us does not reach it twice.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	cmd.Cancel = func() error {
		return SendTerminationSignal(cmd.Process.Pid)
	}
}

// SendTerminationSignal terminates the process; Windows has no SIGTERM
func SendTerminationSignal(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}
