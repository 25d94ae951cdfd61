package project

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// GoModule is the subset of go.mod the prompt cares about.
type GoModule struct {
	Path      string
	GoVersion string
}

// ReadGoModule parses the module and go directives of root/go.mod.
// A missing file returns nil, nil.
func ReadGoModule(fs afero.Fs, root string) (*GoModule, error) {
	data, err := afero.ReadFile(fs, filepath.Join(root, "go.mod"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read go.mod: %w", err)
	}

	mod := &GoModule{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			mod.Path = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module ")), `"`)
		case strings.HasPrefix(line, "go "):
			mod.GoVersion = strings.TrimSpace(strings.TrimPrefix(line, "go "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read go.mod: %w", err)
	}
	if mod.Path == "" {
		return nil, fmt.Errorf("module directive not found in %s", filepath.Join(root, "go.mod"))
	}
	return mod, nil
}

// String renders "path (go X)", omitting an absent version.
func (m *GoModule) String() string {
	if m.GoVersion == "" {
		return m.Path
	}
	return m.Path + " (go " + m.GoVersion + ")"
}
