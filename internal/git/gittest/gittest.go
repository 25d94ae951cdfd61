// Package gittest provides recording fakes of the git and GitHub clients.
package gittest

import (
	"context"
	"fmt"
	"sync"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
)

// Call is one recorded mutation.
type Call struct {
	Method string
	Number int
	Args   []string
}

// GitHub is an in-memory git.GitHubClient that records every call.
// Set the *Err fields to inject failures.
type GitHub struct {
	mu sync.Mutex

	Comments map[int][]models.Comment
	Labels   map[int][]string
	PRs      map[int]*git.PullRequestInfo
	Files    map[int][]models.ChangedFile
	Diffs    map[int]string
	Checks   map[string][]models.CheckResult
	NextPR   int

	Calls []Call

	ListCommentsErr error
	CommentErr      error
	LabelErr        error
	RemoveLabelErr  error
	CreatePRErr     error
	ReviewErr       error
	MergeErr        error
}

var _ git.GitHubClient = (*GitHub)(nil)

// NewGitHub returns an empty fake.
func NewGitHub() *GitHub {
	return &GitHub{
		Comments: map[int][]models.Comment{},
		Labels:   map[int][]string{},
		PRs:      map[int]*git.PullRequestInfo{},
		Files:    map[int][]models.ChangedFile{},
		Diffs:    map[int]string{},
		Checks:   map[string][]models.CheckResult{},
		NextPR:   100,
	}
}

func (g *GitHub) record(method string, number int, args ...string) {
	g.Calls = append(g.Calls, Call{Method: method, Number: number, Args: args})
}

// CallsTo returns the recorded calls for method, in order.
func (g *GitHub) CallsTo(method string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *GitHub) ListComments(_ context.Context, _ string, issue int) ([]models.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListCommentsErr != nil {
		return nil, g.ListCommentsErr
	}
	return append([]models.Comment(nil), g.Comments[issue]...), nil
}

func (g *GitHub) CreateComment(_ context.Context, _ string, issue int, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateComment", issue, body)
	if g.CommentErr != nil {
		return g.CommentErr
	}
	g.Comments[issue] = append(g.Comments[issue], models.Comment{Body: body, User: models.User{Login: "github-actions[bot]"}})
	return nil
}

func (g *GitHub) AddLabels(_ context.Context, _ string, issue int, labels ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("AddLabels", issue, labels...)
	if g.LabelErr != nil {
		return g.LabelErr
	}
	g.Labels[issue] = append(g.Labels[issue], labels...)
	return nil
}

func (g *GitHub) RemoveLabel(_ context.Context, _ string, issue int, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("RemoveLabel", issue, label)
	if g.RemoveLabelErr != nil {
		return g.RemoveLabelErr
	}
	kept := g.Labels[issue][:0]
	found := false
	for _, l := range g.Labels[issue] {
		if l == label {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	g.Labels[issue] = kept
	if !found {
		return fmt.Errorf("label %q not found", label)
	}
	return nil
}

func (g *GitHub) CreatePullRequest(_ context.Context, repo string, pr git.NewPullRequest) (*models.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreatePullRequest", 0, pr.Title, pr.Head, pr.Base, pr.Body)
	if g.CreatePRErr != nil {
		return nil, g.CreatePRErr
	}
	n := g.NextPR
	g.NextPR++
	g.PRs[n] = &git.PullRequestInfo{Number: n, Title: pr.Title, Body: pr.Body, State: "open", HeadSHA: pr.Head}
	return &models.PullRequest{Number: n, URL: fmt.Sprintf("https://github.com/%s/pull/%d", repo, n)}, nil
}

func (g *GitHub) GetPullRequest(_ context.Context, _ string, number int) (*git.PullRequestInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pr, ok := g.PRs[number]
	if !ok {
		return nil, fmt.Errorf("pull request %d not found", number)
	}
	cp := *pr
	return &cp, nil
}

func (g *GitHub) ListPullRequestFiles(_ context.Context, _ string, number int) ([]models.ChangedFile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.ChangedFile(nil), g.Files[number]...), nil
}

func (g *GitHub) PullRequestDiff(_ context.Context, _ string, number int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Diffs[number], nil
}

func (g *GitHub) ListCheckRuns(_ context.Context, _ string, ref string) ([]models.CheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.CheckResult(nil), g.Checks[ref]...), nil
}

func (g *GitHub) CreateReview(_ context.Context, _ string, number int, event, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateReview", number, event, body)
	return g.ReviewErr
}

func (g *GitHub) MergePullRequest(_ context.Context, _ string, number int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("MergePullRequest", number)
	return g.MergeErr
}

// Git is a recording git.Client. CreateBranch records the new branch
// and the branch it was created from.
type Git struct {
	Branch      string
	Remote      string
	Dirty       bool
	Hash        string
	Calls       []Call
	CheckoutErr error
	PullErr     error
	CommitErr   error
	PushErr     error
}

var _ git.Client = (*Git)(nil)

func (g *Git) RepoRoot(path string) (string, error)        { return path, nil }
func (g *Git) CurrentBranch(_ string) (string, error)      { return g.Branch, nil }
func (g *Git) IsDirty(_ string, _ ...string) (bool, error) { return g.Dirty, nil }
func (g *Git) RemoteURL(_ string) (string, error)          { return g.Remote, nil }

// CallsTo returns the recorded calls for method, in order.
func (g *Git) CallsTo(method string) []Call {
	var out []Call
	for _, c := range g.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *Git) Checkout(_ string, branch string) error {
	g.Calls = append(g.Calls, Call{Method: "Checkout", Args: []string{branch}})
	if g.CheckoutErr != nil {
		return g.CheckoutErr
	}
	g.Branch = branch
	return nil
}

func (g *Git) Pull(_ string, branch string) error {
	g.Calls = append(g.Calls, Call{Method: "Pull", Args: []string{branch}})
	return g.PullErr
}

func (g *Git) CreateBranch(_ string, name string) error {
	g.Calls = append(g.Calls, Call{Method: "CreateBranch", Args: []string{name, g.Branch}})
	g.Branch = name
	return nil
}

func (g *Git) CommitAll(_ string, message string, exclude ...string) (string, error) {
	g.Calls = append(g.Calls, Call{Method: "CommitAll", Args: append([]string{message}, exclude...)})
	if g.CommitErr != nil {
		return "", g.CommitErr
	}
	if g.Hash == "" {
		return "abc1234", nil
	}
	return g.Hash, nil
}

func (g *Git) Push(_ string, branch string) error {
	g.Calls = append(g.Calls, Call{Method: "Push", Args: []string{branch}})
	return g.PushErr
}
