package dedupe

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
)

// AssignedMarker is the substring of the start comment that marks an issue as taken.
const AssignedMarker = "🤖 **AI Agent Assigned**"

// FailedMarker heads the failure comment. An assignment before it no longer counts.
const FailedMarker = "❌ **AI Agent Processing Failed**"

// ShouldContinue reports whether no comment by botLogin carries AssignedMarker.
func ShouldContinue(comments []models.Comment, botLogin string) bool {
	for _, c := range comments {
		if c.User.Login == botLogin && strings.Contains(c.Body, AssignedMarker) {
			return false
		}
	}
	return true
}

// SinceLastFailure returns the comments after the last failure comment by botLogin.
func SinceLastFailure(comments []models.Comment, botLogin string) []models.Comment {
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if c.User.Login == botLogin && strings.Contains(c.Body, FailedMarker) {
			return comments[i+1:]
		}
	}
	return comments
}

// Claimer takes and releases per-issue ownership.
type Claimer interface {
	Claim(ctx context.Context, issueKey, runID string) (bool, error)
	ReleaseClaim(ctx context.Context, issueKey string) error
}

// Result is the outcome of a guard check.
type Result struct {
	Continue bool
	Reason   string
	Claimed  bool
}

// Guard combines the comment-history check with an optional local claim.
type Guard struct {
	GitHub   git.GitHubClient
	Claims   Claimer // nil disables local claims
	BotLogin string
}

// IssueKey is the claim key for an issue, "owner/repo#number".
func IssueKey(repo string, issue int) string {
	return fmt.Sprintf("%s#%d", repo, issue)
}

// Check lists the issue's comments and, when no live marker is found, claims
// the issue for runID. A failure comment re-opens the issue for processing.
func (g *Guard) Check(ctx context.Context, repo string, issue int, runID string) (Result, error) {
	comments, err := g.GitHub.ListComments(ctx, repo, issue)
	if err != nil {
		return Result{}, fmt.Errorf("list comments: %w", err)
	}
	if !ShouldContinue(SinceLastFailure(comments, g.BotLogin), g.BotLogin) {
		return Result{Reason: "issue already assigned to the agent"}, nil
	}
	if g.Claims == nil {
		return Result{Continue: true, Reason: "no prior assignment"}, nil
	}

	ok, err := g.Claims.Claim(ctx, IssueKey(repo, issue), runID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Reason: "issue claimed by another local run"}, nil
	}
	return Result{Continue: true, Claimed: true, Reason: "claimed"}, nil
}

// Release drops the local claim so a later trigger can process the issue again.
func (g *Guard) Release(ctx context.Context, repo string, issue int) error {
	if g.Claims == nil {
		return nil
	}
	return g.Claims.ReleaseClaim(ctx, IssueKey(repo, issue))
}
