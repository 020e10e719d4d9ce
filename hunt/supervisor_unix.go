//go:build !windows

package hunt

import (
	"os/exec"
	"syscall"
	"time"
)

// configureWorkerProcess puts the worker in its own process group so that
// termination reaches any children it spawned.
func configureWorkerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateWorkerProcess signals SIGTERM to the worker's process group,
// waits up to the grace period for it to die, then SIGKILLs the group.
func terminateWorkerProcess(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid <= 0 {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	// Poll instead of sleeping the whole grace: a worker that honors
	// SIGTERM releases its caller immediately. Signal 0 probes the group;
	// ESRCH means every member is gone and reaped.
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(-pgid, syscall.Signal(0)); err == syscall.ESRCH {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
