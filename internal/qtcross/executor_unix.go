//go:build unix

package qtcross

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the child and everything it spawned (compilers, linkers).
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

func niceAvailable() bool {
	_, err := exec.LookPath("nice")
	return err == nil
}
