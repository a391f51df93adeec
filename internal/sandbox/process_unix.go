//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcess runs the child in its own process group and kills the
// whole group on cancellation, so forked grandchildren die with it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
