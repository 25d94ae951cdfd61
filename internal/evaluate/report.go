package evaluate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/models"
)

// Report is the operator-facing record of one evaluation.
type Report struct {
	Repo       string                   `json:"repo"`
	PRNumber   int                      `json:"prNumber"`
	Timestamp  time.Time                `json:"timestamp"`
	Evaluation *models.PREvaluation     `json:"evaluation"`
	Decision   *models.ApprovalDecision `json:"decision"`
	Criteria   Criteria                 `json:"approvalCriteria"`
	Execution  *Execution               `json:"execution,omitempty"`
}

// ReportFilename returns pr-approval-report-<n>-<unix ms>.json.
func ReportFilename(number int, at time.Time) string {
	return fmt.Sprintf("pr-approval-report-%d-%d.json", number, at.UnixMilli())
}

// JSON renders the report indented.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Write saves the JSON report under dir and returns its path.
func (r *Report) Write(fs afero.Fs, dir string) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	p := filepath.Join(dir, ReportFilename(r.PRNumber, r.Timestamp))
	if err := afero.WriteFile(fs, p, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return p, nil
}

// Record converts the report into its persisted form.
func (r *Report) Record() (*models.EvaluationRecord, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return &models.EvaluationRecord{
		Repo:       r.Repo,
		PRNumber:   r.PRNumber,
		TotalScore: r.Evaluation.TotalScore,
		Approved:   r.Decision.Approved,
		Confidence: r.Decision.Confidence,
		Report:     string(data),
		CreatedAt:  r.Timestamp,
	}, nil
}

var categoryTitles = map[models.Category]string{
	models.CategoryFileChanges:  "File Changes",
	models.CategoryCodeQuality:  "Code Quality",
	models.CategorySecurity:     "Security",
	models.CategoryTestCoverage: "Test Coverage",
	models.CategoryCIChecks:     "CI Checks",
}

// CategoryTitle returns the display name of cat.
func CategoryTitle(cat models.Category) string {
	if t, ok := categoryTitles[cat]; ok {
		return t
	}
	return string(cat)
}

// Markdown renders the approval report for humans.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# PR Approval Report: #%d\n\n", r.PRNumber)

	verdict := "REJECTED ❌"
	if r.Decision.Approved {
		verdict = "APPROVED ✅"
	}
	fmt.Fprintf(&b, "- **Repository:** %s\n", r.Repo)
	fmt.Fprintf(&b, "- **Decision:** %s\n", verdict)
	fmt.Fprintf(&b, "- **Confidence:** %d%%\n", r.Decision.Confidence)
	fmt.Fprintf(&b, "- **Total Score:** %d/100\n", r.Evaluation.TotalScore)
	fmt.Fprintf(&b, "- **Evaluated:** %s\n\n", r.Timestamp.Format(time.RFC3339))

	b.WriteString("## Score Breakdown\n\n")
	b.WriteString("| Category | Score | Weight |\n|---|---|---|\n")
	for _, cat := range models.Categories {
		s := r.Evaluation.Scores[cat]
		if s == nil {
			continue
		}
		fmt.Fprintf(&b, "| %s | %d/100 | %.0f%% |\n", CategoryTitle(cat), s.Score, Weights[cat]*100)
	}

	writeList(&b, "Reasoning", r.Decision.Reasoning)
	writeList(&b, "Issues Found", r.Evaluation.Issues)
	writeList(&b, "Recommendations", r.Evaluation.Recommendations)
	writeList(&b, "Required Actions", r.Decision.RequiredActions)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
