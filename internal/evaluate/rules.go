package evaluate

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/joescharf/agentpipe/internal/models"
)

var (
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key`),
		regexp.MustCompile(`(?i)secret`),
		regexp.MustCompile(`(?i)password`),
		regexp.MustCompile(`(?i)token`),
		regexp.MustCompile(`(?i)credential`),
	}
	addedDepRe = regexp.MustCompile(`(?m)^\+.*".*":\s*".*"`)
	anyTypeRe  = regexp.MustCompile(`\bany\b`)
)

// maxAnyUses is the number of "any" annotations tolerated in typed sources.
const maxAnyUses = 3

type scorer struct {
	score           int
	issues          []string
	recommendations []string
}

func newScorer() *scorer {
	return &scorer{score: 100, issues: []string{}, recommendations: []string{}}
}

func (s *scorer) penalize(points int, issue string, recommendation ...string) {
	s.score -= points
	s.issues = append(s.issues, issue)
	s.recommendations = append(s.recommendations, recommendation...)
}

func (s *scorer) result() *models.CategoryScore {
	score := s.score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &models.CategoryScore{Score: score, Issues: s.issues, Recommendations: s.recommendations}
}

// FileChanges scores the size and location of the change set.
func (e *Evaluator) FileChanges(cr *models.ChangeRequest) *models.CategoryScore {
	s := newScorer()
	c := e.Criteria

	if len(cr.Files) > c.MaxFilesChanged {
		s.penalize(20, fmt.Sprintf("Too many files changed: %d (max: %d)", len(cr.Files), c.MaxFilesChanged))
	}

	lines := cr.Additions + cr.Deletions
	if lines > c.MaxLinesChanged {
		s.penalize(15, fmt.Sprintf("Too many lines changed: %d (max: %d)", lines, c.MaxLinesChanged))
	}

	var restricted []string
	binary := 0
	for _, f := range cr.Files {
		for _, rp := range c.RestrictedPaths {
			if strings.Contains(f.Path, rp) {
				restricted = append(restricted, f.Path)
				break
			}
		}
		if f.Binary {
			binary++
		}
	}
	if len(restricted) > 0 {
		s.penalize(25, "Restricted files modified: "+strings.Join(restricted, ", "),
			"Restricted file changes require manual review")
	}
	if binary > 0 {
		s.penalize(10, fmt.Sprintf("Binary files changed: %d", binary))
	}

	return s.result()
}

func hasTypedSource(files []models.ChangedFile) bool {
	for _, f := range files {
		if strings.HasSuffix(f.Path, ".ts") || strings.HasSuffix(f.Path, ".tsx") {
			return true
		}
	}
	return false
}

// CodeQuality looks for debugging leftovers and weak typing in the diff.
func (e *Evaluator) CodeQuality(cr *models.ChangeRequest) *models.CategoryScore {
	s := newScorer()
	diff := strings.ToLower(cr.Diff)

	if strings.Contains(diff, "console.log") || strings.Contains(diff, "console.error") {
		s.penalize(10, "Debug statements found (console.log/error)", "Remove debug statements before merging")
	}
	if strings.Contains(diff, "todo") || strings.Contains(diff, "fixme") {
		s.penalize(5, "TODO/FIXME comments found")
	}
	if strings.Contains(diff, "try") && !strings.Contains(diff, "catch") {
		s.penalize(15, "Try blocks without catch found", "Add proper error handling")
	}
	if hasTypedSource(cr.Files) && len(anyTypeRe.FindAllStringIndex(diff, -1)) > maxAnyUses {
		s.penalize(10, `Excessive use of "any" type`, `Use proper TypeScript types instead of "any"`)
	}

	return s.result()
}

// Security looks for leaked secrets, dangerous calls and new dependencies.
func (e *Evaluator) Security(cr *models.ChangeRequest) *models.CategoryScore {
	s := newScorer()

	for _, re := range secretPatterns {
		if re.MatchString(cr.Diff) {
			s.penalize(30, "Potential secret in code: "+strings.TrimPrefix(re.String(), "(?i)"),
				"Use environment variables for secrets")
		}
	}

	diff := strings.ToLower(cr.Diff)
	if strings.Contains(diff, "eval(") || strings.Contains(diff, "dangerouslysetinnerhtml") {
		s.penalize(25, "Dangerous functions detected (eval, dangerouslySetInnerHTML)",
			"Review security implications of dangerous functions")
	}

	for _, f := range cr.Files {
		if f.Path != "package.json" || f.Patch == "" {
			continue
		}
		if added := addedDepRe.FindAllString(f.Patch, -1); len(added) > 0 {
			s.penalize(5, fmt.Sprintf("New dependencies added: %d", len(added)),
				"Review new dependencies for security vulnerabilities")
		}
		break
	}

	return s.result()
}

var sourceExts = map[string]bool{".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".go": true}

func isTestPath(p string) bool {
	return strings.Contains(p, "test") || strings.Contains(p, "spec")
}

// TestCoverage checks that source changes ship with tests.
func (e *Evaluator) TestCoverage(cr *models.ChangeRequest) *models.CategoryScore {
	s := newScorer()

	tests, sources := 0, 0
	for _, f := range cr.Files {
		switch {
		case isTestPath(f.Path):
			tests++
		case sourceExts[path.Ext(f.Path)]:
			sources++
		}
	}

	if sources > 0 && tests == 0 {
		s.penalize(30, "No test files included with source changes", "Add tests for new functionality")
	}
	if tests > 0 && sources > 0 && float64(tests)/float64(sources) < 0.5 {
		s.penalize(15, "Low test-to-source file ratio", "Consider adding more comprehensive tests")
	}

	return s.result()
}

// CIChecks scores the presence and outcome of CI checks.
func (e *Evaluator) CIChecks(cr *models.ChangeRequest) *models.CategoryScore {
	s := newScorer()

	if len(cr.Checks) == 0 {
		s.penalize(40, "No CI checks found", "Set up continuous integration checks")
		return s.result()
	}

	names := make([]string, len(cr.Checks))
	for i, c := range cr.Checks {
		names[i] = strings.ToLower(c.Name)
	}
	for _, required := range e.Criteria.RequiredChecks {
		found := false
		for _, n := range names {
			if strings.Contains(n, required) {
				found = true
				break
			}
		}
		if !found {
			s.penalize(15, "Missing required check: "+required)
		}
	}

	var failed []string
	for _, c := range cr.Checks {
		if c.Conclusion == "failure" || c.Conclusion == "cancelled" {
			failed = append(failed, c.Name)
		}
	}
	if len(failed) > 0 {
		s.penalize(30, "Failed checks: "+strings.Join(failed, ", "), "Fix failing CI checks before approval")
	}

	return s.result()
}
