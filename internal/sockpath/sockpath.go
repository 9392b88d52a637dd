// Package sockpath resolves the directory kedung's Unix socket and log
// file live in, falling back to the default directory if the configured
// one can't be created or isn't writable.
package sockpath

import (
	"os"
	"path/filepath"
)

// DefaultDir is used whenever the configured directory can't be created or
// isn't writable.
const DefaultDir = "/tmp/kedung/"

// Resolve returns a directory to use for a boundary file (socket or log):
// configured if it exists (or can be created) and a probe file can be
// written in it, DefaultDir otherwise.
func Resolve(configured string) string {
	dir := configured
	if dir == "" {
		dir = DefaultDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		os.MkdirAll(DefaultDir, 0o755)
		return DefaultDir
	}

	if !hasReadWriteAccess(dir) {
		os.MkdirAll(DefaultDir, 0o755)
		return DefaultDir
	}

	return dir
}

func hasReadWriteAccess(dir string) bool {
	probe := filepath.Join(dir, ".kedung-access-check")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// SocketFile returns the full path to the socket file within dir.
func SocketFile(dir string) string {
	return filepath.Join(dir, "kedung.sock")
}

// LogFile returns the full path to the log file within dir.
func LogFile(dir string) string {
	return filepath.Join(dir, "kedung.log")
}
