package models

import "time"

// Category names a scoring category of the PR evaluator.
type Category string

const (
	CategoryFileChanges  Category = "fileChanges"
	CategoryCodeQuality  Category = "codeQuality"
	CategorySecurity     Category = "security"
	CategoryTestCoverage Category = "testCoverage"
	CategoryCIChecks     Category = "ciChecks"
)

// Categories lists the scoring categories in evaluation order.
var Categories = []Category{
	CategoryFileChanges,
	CategoryCodeQuality,
	CategorySecurity,
	CategoryTestCoverage,
	CategoryCIChecks,
}

// CategoryScore is the result of one scoring function.
type CategoryScore struct {
	Score           int      `json:"score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// PREvaluation is the scored assessment of a change request.
type PREvaluation struct {
	Scores          map[Category]*CategoryScore `json:"scores"`
	TotalScore      int                         `json:"totalScore"`
	Issues          []string                    `json:"issues"`
	Recommendations []string                    `json:"recommendations"`
}

// ApprovalDecision is derived deterministically from a PREvaluation.
type ApprovalDecision struct {
	Approved        bool     `json:"approved"`
	Confidence      int      `json:"confidence"`
	Reasoning       []string `json:"reasoning"`
	RequiredActions []string `json:"requiredActions"`
}

// EvaluationRecord is a persisted evaluation.
type EvaluationRecord struct {
	ID         string    `json:"id"`
	Repo       string    `json:"repo"`
	PRNumber   int       `json:"pr_number"`
	TotalScore int       `json:"total_score"`
	Approved   bool      `json:"approved"`
	Confidence int       `json:"confidence"`
	Report     string    `json:"report,omitempty"` // JSON approval report
	CreatedAt  time.Time `json:"created_at"`
}
