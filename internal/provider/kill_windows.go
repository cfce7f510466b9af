//go:build windows

package provider

import (
	"os/exec"
	"strconv"
	"time"
)

// killProcessTree on Windows requires process-tree termination because the
// child forks a helper: taskkill /T kills the whole tree.
func killProcessTree(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := strconv.Itoa(cmd.Process.Pid)
	_ = exec.Command("taskkill", "/PID", pid, "/T").Run()

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(grace):
	}
	_ = exec.Command("taskkill", "/PID", pid, "/T", "/F").Run()
	<-done
}

func setProcessGroupAttr(cmd *exec.Cmd) {}
