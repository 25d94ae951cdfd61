// Package evaluate scores pull requests against fixed policy rules and
// turns the score into an approve or request-changes review.
package evaluate

import "github.com/joescharf/agentpipe/internal/models"

// Criteria holds the policy limits applied to every change request.
type Criteria struct {
	MaxFilesChanged   int      `json:"maxFilesChanged"`
	MaxLinesChanged   int      `json:"maxLinesChanged"`
	RequiredChecks    []string `json:"requiredChecks"`
	RestrictedPaths   []string `json:"restrictedPaths"`
	ApprovalThreshold int      `json:"approvalScoreThreshold"`
}

// DefaultCriteria returns the standard policy.
func DefaultCriteria() Criteria {
	return Criteria{
		MaxFilesChanged:   10,
		MaxLinesChanged:   500,
		RequiredChecks:    []string{"build", "test", "lint"},
		RestrictedPaths:   []string{".github/workflows", "package.json", "tsconfig.json", "go.mod"},
		ApprovalThreshold: 75,
	}
}

// Weights sum to 1.0.
var Weights = map[models.Category]float64{
	models.CategoryFileChanges:  0.15,
	models.CategoryCodeQuality:  0.25,
	models.CategorySecurity:     0.30,
	models.CategoryTestCoverage: 0.20,
	models.CategoryCIChecks:     0.10,
}

// BlockingKeywords force rejection when any issue contains one of them.
var BlockingKeywords = []string{"Restricted", "secret", "Failed checks"}

// AutoMergeConfidence is the confidence at which an approval also enables auto-merge.
const AutoMergeConfidence = 90
