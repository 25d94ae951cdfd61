package evaluate

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
)

// Execution reports which side effects an Execute call performed.
type Execution struct {
	Event    string `json:"event"`
	Body     string `json:"body"`
	Merged   bool   `json:"merged"`
	MergeErr string `json:"mergeError,omitempty"`
	DryRun   bool   `json:"dryRun,omitempty"`
}

// Executor turns an ApprovalDecision into a pull request review.
type Executor struct {
	GitHub    git.GitHubClient
	UI        *output.UI
	AutoMerge bool
	DryRun    bool
}

// ApproveBody is the review body posted on approval.
func ApproveBody(d *models.ApprovalDecision) string {
	return fmt.Sprintf("🤖 Automated approval based on evaluation criteria. Score: %d%%", d.Confidence)
}

// RequestChangesBody enumerates the reasoning and required actions.
func RequestChangesBody(d *models.ApprovalDecision) string {
	var b strings.Builder
	b.WriteString("🤖 Automated review found issues that need attention:\n\n")
	b.WriteString(strings.Join(d.Reasoning, "\n"))
	b.WriteString("\n\nRequired actions:\n")
	actions := make([]string, len(d.RequiredActions))
	for i, a := range d.RequiredActions {
		actions[i] = "- " + a
	}
	b.WriteString(strings.Join(actions, "\n"))
	return b.String()
}

// Execute posts exactly one review for the decision. On a high-confidence
// approval it also enables auto-merge; a merge failure is logged and
// recorded but not returned.
func (x *Executor) Execute(ctx context.Context, repo string, number int, d *models.ApprovalDecision) (*Execution, error) {
	ui := x.UI
	if ui == nil {
		ui = output.New()
	}

	res := &Execution{Event: git.ReviewRequestChanges, Body: RequestChangesBody(d), DryRun: x.DryRun}
	if d.Approved {
		res.Event = git.ReviewApprove
		res.Body = ApproveBody(d)
	}
	mergeWanted := d.Approved && x.AutoMerge && d.Confidence >= AutoMergeConfidence

	if x.DryRun {
		ui.DryRunMsg("Would post %s review on %s#%d", res.Event, repo, number)
		if mergeWanted {
			ui.DryRunMsg("Would enable auto-merge on %s#%d", repo, number)
		}
		return res, nil
	}

	if err := x.GitHub.CreateReview(ctx, repo, number, res.Event, res.Body); err != nil {
		return nil, fmt.Errorf("post review on #%d: %w", number, err)
	}
	if !d.Approved {
		ui.Warning("Requested changes on PR #%d", number)
		return res, nil
	}
	ui.Success("Approved PR #%d", number)

	if mergeWanted {
		ui.VerboseLog("Confidence %d%% - enabling auto-merge", d.Confidence)
		if err := x.GitHub.MergePullRequest(ctx, repo, number); err != nil {
			res.MergeErr = err.Error()
			ui.Warning("Auto-merge failed, manual intervention required: %v", err)
		} else {
			res.Merged = true
			ui.Success("Auto-merge enabled")
		}
	}
	return res, nil
}
