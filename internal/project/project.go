// Package project builds the file-structure snapshot handed to the prompt builder.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// Scan limits.
const (
	MaxDepth   = 3
	MaxEntries = 100
)

// RelevantExtensions are the file suffixes included in a snapshot.
var RelevantExtensions = []string{
	".ts", ".tsx", ".js", ".jsx",
	".md", ".json", ".yml", ".yaml",
	".css", ".scss", ".module.css",
	".go",
}

// Snapshot is a capped listing of project paths plus detected metadata.
type Snapshot struct {
	Root     string
	Files    []string // slash-separated, relative to Root
	Language string
	Manifest *PackageManifest
	GoModule *GoModule
}

// PackageManifest is the subset of package.json the prompt cares about.
type PackageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Scanner walks a filesystem and caches snapshots per root.
type Scanner struct {
	fs    afero.Fs
	cache *lru.Cache[string, *Snapshot]
}

// NewScanner returns a Scanner over fs. A nil fs means the OS filesystem.
func NewScanner(fs afero.Fs) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	cache, err := lru.New[string, *Snapshot](32)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Scanner{fs: fs, cache: cache}
}

// Snapshot returns the cached snapshot for root, scanning on a miss.
func (s *Scanner) Snapshot(root string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(root); ok {
		return snap, nil
	}
	snap, err := s.Scan(root)
	if err != nil {
		return nil, err
	}
	s.cache.Add(root, snap)
	return snap, nil
}

// Invalidate drops the cached snapshot for root, e.g. after a plan was applied.
func (s *Scanner) Invalidate(root string) {
	s.cache.Remove(root)
}

// Scan walks root without consulting the cache.
func (s *Scanner) Scan(root string) (*Snapshot, error) {
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	var files []string
	s.walk(root, root, 0, &files)
	if len(files) > MaxEntries {
		files = files[:MaxEntries]
	}

	snap := &Snapshot{Root: root, Files: files}
	snap.Language = DetectLanguage(s.fs, root)
	snap.Manifest, _ = ReadPackageManifest(s.fs, root)
	snap.GoModule, _ = ReadGoModule(s.fs, root)
	return snap, nil
}

// walk visits dir in name order. Unreadable directories are skipped.
func (s *Scanner) walk(root, dir string, depth int, files *[]string) {
	if depth >= MaxDepth || len(*files) >= MaxEntries {
		return
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && name != ".github" {
			continue
		}
		if name == "node_modules" {
			continue
		}
		full := filepath.Join(dir, name)
		if e.IsDir() {
			s.walk(root, full, depth+1, files)
			continue
		}
		if !IsRelevant(name) {
			continue
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		*files = append(*files, filepath.ToSlash(rel))
		if len(*files) >= MaxEntries {
			return
		}
	}
}

// IsRelevant reports whether name carries one of RelevantExtensions.
func IsRelevant(name string) bool {
	for _, ext := range RelevantExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// DetectLanguage guesses the primary language from marker files in root.
func DetectLanguage(fs afero.Fs, root string) string {
	markers := []struct {
		file string
		lang string
	}{
		{"tsconfig.json", "typescript"},
		{"go.mod", "go"},
		{"package.json", "javascript"},
		{"pyproject.toml", "python"},
		{"Cargo.toml", "rust"},
	}
	for _, m := range markers {
		if ok, _ := afero.Exists(fs, filepath.Join(root, m.file)); ok {
			return m.lang
		}
	}
	return ""
}

// ReadPackageManifest parses root/package.json. A missing file returns nil, nil.
func ReadPackageManifest(fs afero.Fs, root string) (*PackageManifest, error) {
	data, err := afero.ReadFile(fs, filepath.Join(root, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package.json: %w", err)
	}
	var m PackageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	return &m, nil
}

// DependencyNames returns the sorted runtime dependency names.
func (m *PackageManifest) DependencyNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Dependencies))
	for n := range m.Dependencies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
