//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// processAlive reports whether pid exists. FindProcess always succeeds on
// Windows, so probe with a zero signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// terminate kills pid; Windows has no SIGTERM delivery.
func terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
