// Package notify posts the issue comments and label swaps that tell
// humans what the agent is doing.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/agentpipe/internal/dedupe"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
)

// Labels managed by the pipeline.
const (
	LabelInProgress = "in-progress"
	LabelWorking    = "ai-working"
	LabelFailed     = "ai-failed"
	LabelCompleted  = "ai-completed"
)

// FailureMarker heads every failure comment.
const FailureMarker = dedupe.FailedMarker

// CompletedMarker heads every completion comment.
const CompletedMarker = "✅ **AI Implementation Complete**"

// Category classifies a fatal pipeline failure for the failure comment.
type Category string

const (
	CategoryCredential Category = "Missing credential"
	CategoryInput      Category = "Invalid event payload"
	CategoryExtraction Category = "Task extraction failed"
	CategoryGeneration Category = "Generation failed"
	CategoryApply      Category = "Applying changes failed"
	CategoryWorkTree   Category = "Work tree not ready"
	CategoryPublish    Category = "Publishing changes failed"
	CategoryGitHub     Category = "GitHub request failed"
)

// Failure describes a fatal error in one stage.
type Failure struct {
	Stage    string
	Category Category
	Err      error
}

// Notifier posts pipeline status to an issue.
type Notifier struct {
	GitHub git.GitHubClient
	UI     *output.UI
	DryRun bool

	// Mention is the trigger mention suggested in failure remediation.
	Mention string
	// Label is the trigger label suggested in failure remediation.
	Label string
}

func (n *Notifier) ui() *output.UI {
	if n.UI == nil {
		return output.New()
	}
	return n.UI
}

// StartBody is the assignment comment. It carries dedupe.AssignedMarker.
func StartBody(task *models.TaskDescriptor) string {
	var b strings.Builder
	b.WriteString(dedupe.AssignedMarker + "\n\n")
	b.WriteString("I'm working on this issue now.\n\n")
	fmt.Fprintf(&b, "**Task Type:** %s\n", task.TaskType)
	fmt.Fprintf(&b, "**Priority:** %s\n\n", task.Priority)
	b.WriteString("A pull request will be opened when the implementation is ready.")
	return b.String()
}

// Start announces that the agent has taken the issue.
func (n *Notifier) Start(ctx context.Context, repo string, task *models.TaskDescriptor) error {
	if n.DryRun {
		n.ui().DryRunMsg("Would comment on #%d and add labels %s, %s", task.IssueNumber, LabelInProgress, LabelWorking)
		return nil
	}
	if err := n.GitHub.CreateComment(ctx, repo, task.IssueNumber, StartBody(task)); err != nil {
		return fmt.Errorf("post start comment: %w", err)
	}
	if err := n.GitHub.AddLabels(ctx, repo, task.IssueNumber, LabelInProgress, LabelWorking); err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}

// FailureBody describes the failure and how to retry.
func (n *Notifier) FailureBody(f Failure) string {
	label := n.Label
	if label == "" {
		label = "ai-agent"
	}
	mention := n.Mention
	if mention == "" {
		mention = "@ai-agent"
	}

	var b strings.Builder
	b.WriteString(FailureMarker + "\n\n")
	fmt.Fprintf(&b, "**Category:** %s\n", f.Category)
	if f.Stage != "" {
		fmt.Fprintf(&b, "**Stage:** %s\n", f.Stage)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, "**Error:** %s\n", f.Err)
	}
	b.WriteString("\n**Next steps:**\n")
	b.WriteString("- Check that the issue describes the task clearly\n")
	fmt.Fprintf(&b, "- Re-add the `%s` label or comment `%s` to retry\n", label, mention)
	return b.String()
}

// Failure posts the failure comment and swaps the working label for the
// failed label. A missing working label is not an error.
func (n *Notifier) Failure(ctx context.Context, repo string, issue int, f Failure) error {
	if n.DryRun {
		n.ui().DryRunMsg("Would report failure on #%d: %s", issue, f.Category)
		return nil
	}
	if err := n.GitHub.CreateComment(ctx, repo, issue, n.FailureBody(f)); err != nil {
		return fmt.Errorf("post failure comment: %w", err)
	}
	if err := n.GitHub.RemoveLabel(ctx, repo, issue, LabelWorking); err != nil {
		n.ui().VerboseLog("Remove label %s on #%d: %v", LabelWorking, issue, err)
	}
	if err := n.GitHub.AddLabels(ctx, repo, issue, LabelFailed); err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}

// CompletedBody links the pull request and summarizes the change set.
func CompletedBody(pr *models.PullRequest, rec *models.ChangeRecord) string {
	var b strings.Builder
	b.WriteString(CompletedMarker + "\n\n")
	fmt.Fprintf(&b, "Pull request: %s\n\n", pr.URL)
	if rec != nil {
		fmt.Fprintf(&b, "**Files changed:** %d\n", rec.FilesModified())
		for _, f := range rec.AppliedFiles {
			fmt.Fprintf(&b, "- `%s` (%s)\n", f.Path, f.Action)
		}
	}
	return b.String()
}

// Completed links the pull request and swaps the working label for the
// completed label.
func (n *Notifier) Completed(ctx context.Context, repo string, issue int, pr *models.PullRequest, rec *models.ChangeRecord) error {
	if n.DryRun {
		n.ui().DryRunMsg("Would link PR on #%d", issue)
		return nil
	}
	if err := n.GitHub.CreateComment(ctx, repo, issue, CompletedBody(pr, rec)); err != nil {
		return fmt.Errorf("post completion comment: %w", err)
	}
	if err := n.GitHub.RemoveLabel(ctx, repo, issue, LabelWorking); err != nil {
		n.ui().VerboseLog("Remove label %s on #%d: %v", LabelWorking, issue, err)
	}
	if err := n.GitHub.AddLabels(ctx, repo, issue, LabelCompleted); err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}
