// Package daemon tracks the webhook server process through a PID file so only
// one server runs per state directory.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrAlreadyRunning is returned by Acquire when a live process holds the file.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop when no live process holds the file.
	ErrNotRunning = errors.New("server not running")
)

// PIDFile manages a PID file for server process tracking.
type PIDFile struct {
	Path string

	fs    afero.Fs
	alive func(pid int) bool
	pid   func() int
}

// NewPIDFile creates a PIDFile manager for path. A nil fs means the OS filesystem.
func NewPIDFile(fs afero.Fs, path string) *PIDFile {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &PIDFile{Path: path, fs: fs, alive: processAlive, pid: os.Getpid}
}

// Acquire records the current process. A file left by a dead process is
// overwritten.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.Running(); ok {
		return fmt.Errorf("%w: pid %d (%s)", ErrAlreadyRunning, pid, p.Path)
	}
	if err := p.fs.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	return afero.WriteFile(p.fs, p.Path, []byte(strconv.Itoa(p.pid())+"\n"), 0o644)
}

// Release removes the file if it still names this process.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != p.pid() {
		return nil
	}
	return p.fs.Remove(p.Path)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := afero.ReadFile(p.fs, p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Running returns the recorded PID and whether that process is alive.
func (p *PIDFile) Running() (int, bool) {
	pid, err := p.Read()
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, p.alive(pid)
}

// Stop asks the recorded process to terminate.
func (p *PIDFile) Stop() error {
	pid, ok := p.Running()
	if !ok {
		return ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}
