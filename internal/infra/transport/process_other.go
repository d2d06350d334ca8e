//go:build !linux

package transport

import "os/exec"

// prepareProcess on non-Linux platforms can only kill the direct child;
// grandchildren are left to the OS.
func prepareProcess(cmd *exec.Cmd) func() {
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}
