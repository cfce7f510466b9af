//go:build windows

package workspace

import (
	"os"
	"os/exec"
)

// createPlatformLink attempts a native directory symlink first, then falls
// back to a filesystem junction, which does not require elevated rights.
// If both attempts fail, the error is returned; SyncSkills discards it and
// skips that skill.
func createPlatformLink(target, dest string) error {
	if err := os.Symlink(target, dest); err == nil {
		return err
	}
	// mklink /J is the unprivileged junction form.
	cmd := exec.Command("cmd", "/C", "mklink", "/J", dest, target)
	return cmd.Run()
}

func removePlatformLink(path string) error {
	// Junctions and symlinked directories are both removed via RemoveAll's
	// underlying rmdir semantics on Windows; Remove alone suffices for both.
	return os.Remove(path)
}
