//go:build !windows

// Process-group termination for a worker's exec'd CLI subprocess. A
// worker's agent CLI (spawned by pkg/spawnadapter through
// HostSandbox.Exec) often forks its own children — a linter, a test
// runner, a package manager. Killing only the direct child on task
// cancellation or timeout (C1's cancel tree, spec.md §4.1) would leave
// those orphaned, so the whole process group is put down together.
package sandbox

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

func prepareCommandForTermination(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

func terminateProcessTree(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}

	// Kill the entire process group spawned by the worker's CLI.
	_ = unix.Kill(-pid, unix.SIGKILL)
	// Fallback kill on the shell process itself.
	_ = cmd.Process.Kill()
	return nil
}
