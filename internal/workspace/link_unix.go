//go:build !windows

package workspace

import "os"

// createPlatformLink creates a native symlink. Windows junction fallback
// lives in link_windows.go; non-Windows hosts never need it.
func createPlatformLink(target, dest string) error {
	return os.Symlink(target, dest)
}

func removePlatformLink(path string) error {
	return os.Remove(path)
}
