//go:build linux

package transport

import (
	"os"
	"os/exec"
	"syscall"
)

// prepareProcess puts the child in its own process group so stop can take
// down anything it forked, and has the kernel SIGKILL it if the daemon dies
// first. The returned func kills the group.
func prepareProcess(cmd *exec.Cmd) func() {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process)
	}
	return func() { _ = killGroup(cmd.Process) }
}

func killGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	err := syscall.Kill(-proc.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		// Already gone.
		return nil
	}
	return err
}
