//go:build !windows

package daemon

import "syscall"

// processAlive reports whether pid exists; signal 0 probes without delivering.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
