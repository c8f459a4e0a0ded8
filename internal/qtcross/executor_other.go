//go:build !unix

package qtcross

import "os/exec"

func isolateProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func niceAvailable() bool { return false }
