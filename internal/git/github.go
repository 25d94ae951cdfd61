package git

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strconv"
	"strings"

	"github.com/joescharf/agentpipe/internal/models"
)

// Review events accepted by CreateReview.
const (
	ReviewApprove        = "APPROVE"
	ReviewRequestChanges = "REQUEST_CHANGES"
)

// NewPullRequest is the input to CreatePullRequest.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// PullRequestInfo is the subset of pull request metadata the evaluator reads.
type PullRequestInfo struct {
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	HeadSHA   string
	Additions int
	Deletions int
}

// GitHubClient wraps the gh CLI for the issue and pull request mutations the pipeline performs.
// repo is always "owner/name".
type GitHubClient interface {
	ListComments(ctx context.Context, repo string, issue int) ([]models.Comment, error)
	CreateComment(ctx context.Context, repo string, issue int, body string) error
	AddLabels(ctx context.Context, repo string, issue int, labels ...string) error
	RemoveLabel(ctx context.Context, repo string, issue int, label string) error

	CreatePullRequest(ctx context.Context, repo string, pr NewPullRequest) (*models.PullRequest, error)
	GetPullRequest(ctx context.Context, repo string, number int) (*PullRequestInfo, error)
	ListPullRequestFiles(ctx context.Context, repo string, number int) ([]models.ChangedFile, error)
	PullRequestDiff(ctx context.Context, repo string, number int) (string, error)
	ListCheckRuns(ctx context.Context, repo, ref string) ([]models.CheckResult, error)
	CreateReview(ctx context.Context, repo string, number int, event, body string) error
	MergePullRequest(ctx context.Context, repo string, number int) error
}

// Runner executes one gh invocation and returns its trimmed stdout.
type Runner func(ctx context.Context, args ...string) (string, error)

// RealGitHubClient implements GitHubClient using the gh CLI.
type RealGitHubClient struct {
	run Runner
}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{run: ghCmd}
}

// NewGitHubClientWithRunner returns a client that sends gh invocations to run.
func NewGitHubClientWithRunner(run Runner) *RealGitHubClient {
	return &RealGitHubClient{run: run}
}

func ghCmd(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// eachPage decodes the concatenated JSON documents gh api --paginate prints,
// one per page, and hands each to fn.
func eachPage(out string, fn func(page []byte) error) error {
	dec := json.NewDecoder(strings.NewReader(out))
	for {
		var page json.RawMessage
		if err := dec.Decode(&page); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
}

// decodeArrayPages merges array pages into one slice.
func decodeArrayPages[T any](out string) ([]T, error) {
	var all []T
	err := eachPage(out, func(page []byte) error {
		var items []T
		if err := json.Unmarshal(page, &items); err != nil {
			return err
		}
		all = append(all, items...)
		return nil
	})
	return all, err
}

func (c *RealGitHubClient) ListComments(ctx context.Context, repo string, issue int) ([]models.Comment, error) {
	out, err := c.run(ctx, "api", "--paginate", fmt.Sprintf("repos/%s/issues/%d/comments?per_page=100", repo, issue))
	if err != nil {
		return nil, err
	}
	comments, err := decodeArrayPages[models.Comment](out)
	if err != nil {
		return nil, fmt.Errorf("parse comments: %w", err)
	}
	return comments, nil
}

func (c *RealGitHubClient) CreateComment(ctx context.Context, repo string, issue int, body string) error {
	_, err := c.run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/issues/%d/comments", repo, issue),
		"-f", "body="+body,
	)
	return err
}

func (c *RealGitHubClient) AddLabels(ctx context.Context, repo string, issue int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	args := []string{"api", "-X", "POST", fmt.Sprintf("repos/%s/issues/%d/labels", repo, issue)}
	for _, l := range labels {
		args = append(args, "-f", "labels[]="+l)
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *RealGitHubClient) RemoveLabel(ctx context.Context, repo string, issue int, label string) error {
	_, err := c.run(ctx, "api", "-X", "DELETE",
		fmt.Sprintf("repos/%s/issues/%d/labels/%s", repo, issue, url.PathEscape(label)),
	)
	return err
}

func (c *RealGitHubClient) CreatePullRequest(ctx context.Context, repo string, pr NewPullRequest) (*models.PullRequest, error) {
	out, err := c.run(ctx, "api", "-X", "POST", fmt.Sprintf("repos/%s/pulls", repo),
		"-f", "title="+pr.Title,
		"-f", "head="+pr.Head,
		"-f", "base="+pr.Base,
		"-f", "body="+pr.Body,
	)
	if err != nil {
		return nil, err
	}
	var created models.PullRequest
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		return nil, fmt.Errorf("parse pull request: %w", err)
	}
	return &created, nil
}

type pullRequestRaw struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		SHA string `json:"sha"`
	} `json:"head"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

func (c *RealGitHubClient) GetPullRequest(ctx context.Context, repo string, number int) (*PullRequestInfo, error) {
	out, err := c.run(ctx, "api", fmt.Sprintf("repos/%s/pulls/%d", repo, number))
	if err != nil {
		return nil, err
	}
	var raw pullRequestRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse pull request: %w", err)
	}
	return &PullRequestInfo{
		Number:    raw.Number,
		Title:     raw.Title,
		Body:      raw.Body,
		Author:    raw.User.Login,
		State:     raw.State,
		HeadSHA:   raw.Head.SHA,
		Additions: raw.Additions,
		Deletions: raw.Deletions,
	}, nil
}

type changedFileRaw struct {
	Filename  string  `json:"filename"`
	Patch     *string `json:"patch"`
	Additions int     `json:"additions"`
	Deletions int     `json:"deletions"`
}

func (c *RealGitHubClient) ListPullRequestFiles(ctx context.Context, repo string, number int) ([]models.ChangedFile, error) {
	out, err := c.run(ctx, "api", "--paginate", fmt.Sprintf("repos/%s/pulls/%d/files?per_page=100", repo, number))
	if err != nil {
		return nil, err
	}
	return parseChangedFiles(out)
}

// parseChangedFiles maps the files endpoint payload. A missing patch marks a binary file.
func parseChangedFiles(out string) ([]models.ChangedFile, error) {
	raw, err := decodeArrayPages[changedFileRaw](out)
	if err != nil {
		return nil, fmt.Errorf("parse pull request files: %w", err)
	}
	files := make([]models.ChangedFile, 0, len(raw))
	for _, f := range raw {
		cf := models.ChangedFile{Path: f.Filename, Additions: f.Additions, Deletions: f.Deletions}
		if f.Patch == nil {
			cf.Binary = true
		} else {
			cf.Patch = *f.Patch
		}
		files = append(files, cf)
	}
	return files, nil
}

func (c *RealGitHubClient) PullRequestDiff(ctx context.Context, repo string, number int) (string, error) {
	return c.run(ctx, "pr", "diff", strconv.Itoa(number), "--repo", repo)
}

func (c *RealGitHubClient) ListCheckRuns(ctx context.Context, repo, ref string) ([]models.CheckResult, error) {
	out, err := c.run(ctx, "api", "--paginate", fmt.Sprintf("repos/%s/commits/%s/check-runs?per_page=100", repo, ref))
	if err != nil {
		return nil, err
	}
	var checks []models.CheckResult
	err = eachPage(out, func(page []byte) error {
		var raw struct {
			CheckRuns []struct {
				Name       string  `json:"name"`
				Conclusion *string `json:"conclusion"`
			} `json:"check_runs"`
		}
		if err := json.Unmarshal(page, &raw); err != nil {
			return err
		}
		for _, r := range raw.CheckRuns {
			cr := models.CheckResult{Name: r.Name}
			if r.Conclusion != nil {
				cr.Conclusion = *r.Conclusion
			}
			checks = append(checks, cr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse check runs: %w", err)
	}
	return checks, nil
}

func (c *RealGitHubClient) CreateReview(ctx context.Context, repo string, number int, event, body string) error {
	_, err := c.run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/pulls/%d/reviews", repo, number),
		"-f", "event="+event,
		"-f", "body="+body,
	)
	return err
}

// MergePullRequest enables squash auto-merge on the pull request.
func (c *RealGitHubClient) MergePullRequest(ctx context.Context, repo string, number int) error {
	_, err := c.run(ctx, "pr", "merge", strconv.Itoa(number), "--repo", repo, "--squash", "--auto")
	return err
}
