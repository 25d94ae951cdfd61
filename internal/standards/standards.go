package standards

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/models"
)

// Check represents a single documentation check.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Checker evaluates the work tree after a change set was applied.
// Failures are advisory; callers log them and carry on.
type Checker struct {
	fs afero.Fs
}

// NewChecker returns a Checker. A nil fs means the OS filesystem.
func NewChecker(fs afero.Fs) *Checker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Checker{fs: fs}
}

// Run evaluates all checks for the tree at root against the applied change set.
func (c *Checker) Run(root string, rec *models.ChangeRecord) []Check {
	var checks []Check

	checks = append(checks, c.checkFile(root, "README.md", "README"))
	summary := "AI_IMPLEMENTATION.md"
	if rec != nil && rec.SummaryPath != "" {
		summary = rec.SummaryPath
	}
	checks = append(checks, c.checkFile(root, summary, "Implementation summary"))
	checks = append(checks, checkAnalysis(rec))
	checks = append(checks, c.checkNonEmpty(root, rec))
	checks = append(checks, c.checkHasTests(root, rec))

	return checks
}

// Failed returns the checks that did not pass.
func Failed(checks []Check) []Check {
	var out []Check
	for _, ch := range checks {
		if !ch.Passed {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Checker) checkFile(base, name, label string) Check {
	_, err := c.fs.Stat(filepath.Join(base, name))
	if err == nil {
		return Check{Name: label, Passed: true, Detail: name + " found"}
	}
	return Check{Name: label, Passed: false, Detail: name + " missing"}
}

func checkAnalysis(rec *models.ChangeRecord) Check {
	if rec != nil && strings.TrimSpace(rec.Analysis) != "" {
		return Check{Name: "Analysis", Passed: true, Detail: "analysis recorded"}
	}
	return Check{Name: "Analysis", Passed: false, Detail: "no analysis in change set"}
}

func (c *Checker) checkNonEmpty(root string, rec *models.ChangeRecord) Check {
	if rec == nil {
		return Check{Name: "Content", Passed: false, Detail: "no change set"}
	}
	var empty []string
	for _, f := range rec.AppliedFiles {
		info, err := c.fs.Stat(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil || info.Size() == 0 {
			empty = append(empty, f.Path)
		}
	}
	if len(empty) > 0 {
		return Check{Name: "Content", Passed: false, Detail: fmt.Sprintf("empty or missing: %s", strings.Join(empty, ", "))}
	}
	return Check{Name: "Content", Passed: true, Detail: fmt.Sprintf("%d files written", len(rec.AppliedFiles))}
}

func isTestFile(p string) bool {
	base := strings.ToLower(filepath.Base(p))
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

func (c *Checker) checkHasTests(root string, rec *models.ChangeRecord) Check {
	if rec != nil {
		for _, f := range rec.AppliedFiles {
			if isTestFile(f.Path) {
				return Check{Name: "Tests", Passed: true, Detail: f.Path + " included in change set"}
			}
		}
	}

	found := false
	_ = afero.Walk(c.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && info.Name() == "node_modules" {
			return filepath.SkipDir
		}
		if !info.IsDir() && isTestFile(p) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})

	if found {
		return Check{Name: "Tests", Passed: true, Detail: "test files found in tree"}
	}
	return Check{Name: "Tests", Passed: false, Detail: "no test files found"}
}
