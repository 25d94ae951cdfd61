package evaluate

import (
	"context"
	"fmt"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
)

// Fetch assembles a ChangeRequest from the pull request, its files, its
// diff and the check runs on its head commit.
func Fetch(ctx context.Context, gh git.GitHubClient, repo string, number int) (*models.ChangeRequest, error) {
	info, err := gh.GetPullRequest(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch PR #%d: %w", number, err)
	}
	files, err := gh.ListPullRequestFiles(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch PR #%d files: %w", number, err)
	}
	diff, err := gh.PullRequestDiff(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch PR #%d diff: %w", number, err)
	}

	var checks []models.CheckResult
	if info.HeadSHA != "" {
		checks, err = gh.ListCheckRuns(ctx, repo, info.HeadSHA)
		if err != nil {
			return nil, fmt.Errorf("fetch PR #%d checks: %w", number, err)
		}
	}

	cr := &models.ChangeRequest{
		Number:    info.Number,
		Title:     info.Title,
		Body:      info.Body,
		Author:    info.Author,
		State:     info.State,
		Files:     files,
		Additions: info.Additions,
		Deletions: info.Deletions,
		Diff:      diff,
		Checks:    checks,
	}
	// Some gh responses omit the PR totals; derive them from the files.
	if cr.Additions == 0 && cr.Deletions == 0 {
		for _, f := range files {
			cr.Additions += f.Additions
			cr.Deletions += f.Deletions
		}
	}
	return cr, nil
}
