package evaluate

import (
	"fmt"
	"math"
	"strings"

	"github.com/joescharf/agentpipe/internal/models"
)

// Evaluator applies Criteria to change requests.
type Evaluator struct {
	Criteria Criteria
}

// New returns an Evaluator for the given criteria.
func New(c Criteria) *Evaluator {
	return &Evaluator{Criteria: c}
}

// Evaluate runs every scoring function and combines the results.
func (e *Evaluator) Evaluate(cr *models.ChangeRequest) *models.PREvaluation {
	ev := &models.PREvaluation{
		Scores: map[models.Category]*models.CategoryScore{
			models.CategoryFileChanges:  e.FileChanges(cr),
			models.CategoryCodeQuality:  e.CodeQuality(cr),
			models.CategorySecurity:     e.Security(cr),
			models.CategoryTestCoverage: e.TestCoverage(cr),
			models.CategoryCIChecks:     e.CIChecks(cr),
		},
		Issues:          []string{},
		Recommendations: []string{},
	}
	ev.TotalScore = TotalScore(ev.Scores)

	for _, cat := range models.Categories {
		ev.Issues = append(ev.Issues, ev.Scores[cat].Issues...)
		ev.Recommendations = append(ev.Recommendations, ev.Scores[cat].Recommendations...)
	}
	return ev
}

// TotalScore is the rounded weighted sum of the category scores.
// Missing categories count as zero.
func TotalScore(scores map[models.Category]*models.CategoryScore) int {
	var total float64
	for _, cat := range models.Categories {
		if s, ok := scores[cat]; ok && s != nil {
			total += float64(s.Score) * Weights[cat]
		}
	}
	return int(math.Round(total))
}

// BlockingIssues returns the issues that prevent approval.
func BlockingIssues(issues []string) []string {
	var out []string
	for _, issue := range issues {
		for _, kw := range BlockingKeywords {
			if strings.Contains(issue, kw) {
				out = append(out, issue)
				break
			}
		}
	}
	return out
}

// Decide derives the approval decision from an evaluation.
func Decide(ev *models.PREvaluation, threshold int) *models.ApprovalDecision {
	d := &models.ApprovalDecision{Reasoning: []string{}, RequiredActions: []string{}}

	if ev.TotalScore >= threshold {
		d.Approved = true
		d.Confidence = ev.TotalScore
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Score %d exceeds threshold %d", ev.TotalScore, threshold))
	} else {
		d.Confidence = 100 - ev.TotalScore
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Score %d below threshold %d", ev.TotalScore, threshold))
	}

	if blocking := BlockingIssues(ev.Issues); len(blocking) > 0 {
		d.Approved = false
		d.Reasoning = append(d.Reasoning, "Blocking issues found")
		d.RequiredActions = append(d.RequiredActions, blocking...)
	}
	return d
}
