package evaluate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/git/gittest"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
)

func newTestUI() (*output.UI, *bytes.Buffer) {
	var buf bytes.Buffer
	return &output.UI{Out: &buf, ErrOut: &buf}, &buf
}

func TestExecute_ApproveAndMerge(t *testing.T) {
	gh := gittest.NewGitHub()
	ui, _ := newTestUI()
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true}

	res, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 95})
	require.NoError(t, err)
	assert.True(t, res.Merged)

	reviews := gh.CallsTo("CreateReview")
	require.Len(t, reviews, 1)
	assert.Equal(t, 5, reviews[0].Number)
	assert.Equal(t, git.ReviewApprove, reviews[0].Args[0])
	assert.Equal(t, "🤖 Automated approval based on evaluation criteria. Score: 95%", reviews[0].Args[1])
	assert.Len(t, gh.CallsTo("MergePullRequest"), 1)
}

func TestExecute_ApproveBelowMergeConfidence(t *testing.T) {
	gh := gittest.NewGitHub()
	ui, _ := newTestUI()
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true}

	res, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 89})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Len(t, gh.CallsTo("CreateReview"), 1)
	assert.Empty(t, gh.CallsTo("MergePullRequest"))
}

func TestExecute_AutoMergeDisabled(t *testing.T) {
	gh := gittest.NewGitHub()
	ui, _ := newTestUI()
	x := &Executor{GitHub: gh, UI: ui}

	_, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 100})
	require.NoError(t, err)
	assert.Empty(t, gh.CallsTo("MergePullRequest"))
}

func TestExecute_MergeFailureIsSoft(t *testing.T) {
	gh := gittest.NewGitHub()
	gh.MergeErr = errors.New("auto-merge not allowed")
	ui, buf := newTestUI()
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true}

	res, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 97})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Equal(t, "auto-merge not allowed", res.MergeErr)
	assert.Contains(t, buf.String(), "manual intervention required")
}

func TestExecute_RequestChanges(t *testing.T) {
	gh := gittest.NewGitHub()
	ui, _ := newTestUI()
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true}

	d := &models.ApprovalDecision{
		Confidence:      70,
		Reasoning:       []string{"Score 30 below threshold 75", "Blocking issues found"},
		RequiredActions: []string{"Failed checks: build"},
	}
	res, err := x.Execute(context.Background(), "acme/site", 6, d)
	require.NoError(t, err)
	assert.Equal(t, git.ReviewRequestChanges, res.Event)

	reviews := gh.CallsTo("CreateReview")
	require.Len(t, reviews, 1)
	want := "🤖 Automated review found issues that need attention:\n\n" +
		"Score 30 below threshold 75\nBlocking issues found\n\n" +
		"Required actions:\n- Failed checks: build"
	assert.Equal(t, want, reviews[0].Args[1])
	assert.Empty(t, gh.CallsTo("MergePullRequest"))
}

func TestExecute_ReviewError(t *testing.T) {
	gh := gittest.NewGitHub()
	gh.ReviewErr = errors.New("forbidden")
	ui, _ := newTestUI()
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true}

	_, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 99})
	assert.ErrorContains(t, err, "forbidden")
	assert.Empty(t, gh.CallsTo("MergePullRequest"))
}

func TestExecute_DryRun(t *testing.T) {
	gh := gittest.NewGitHub()
	ui, buf := newTestUI()
	ui.DryRun = true
	x := &Executor{GitHub: gh, UI: ui, AutoMerge: true, DryRun: true}

	res, err := x.Execute(context.Background(), "acme/site", 5, &models.ApprovalDecision{Approved: true, Confidence: 99})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Empty(t, gh.Calls)
	assert.Contains(t, buf.String(), "auto-merge")
}

func seedPR(gh *gittest.GitHub, number int) {
	gh.PRs[number] = &git.PullRequestInfo{Number: number, Title: "AI: contact page", Author: "bot", State: "open", HeadSHA: "deadbeef"}
	gh.Files[number] = []models.ChangedFile{
		{Path: "src/app/contact/page.tsx", Patch: "+export default function Contact() {}", Additions: 12, Deletions: 1},
		{Path: "src/app/contact/page.test.tsx", Patch: "+it('renders', () => {})", Additions: 8},
	}
	gh.Diffs[number] = "+export default function Contact() {}\n+it('renders', () => {})\n"
	gh.Checks["deadbeef"] = passingChecks("build", "test", "lint")
}

func TestFetch(t *testing.T) {
	gh := gittest.NewGitHub()
	seedPR(gh, 8)

	cr, err := Fetch(context.Background(), gh, "acme/site", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, cr.Number)
	assert.Equal(t, "bot", cr.Author)
	assert.Len(t, cr.Files, 2)
	assert.Equal(t, 20, cr.Additions, "totals derived from files")
	assert.Equal(t, 1, cr.Deletions)
	assert.Len(t, cr.Checks, 3)
	assert.Contains(t, cr.Diff, "Contact")
}

func TestFetch_NotFound(t *testing.T) {
	_, err := Fetch(context.Background(), gittest.NewGitHub(), "acme/site", 404)
	assert.ErrorContains(t, err, "fetch PR #404")
}

type recordingStore struct {
	recs []*models.EvaluationRecord
}

func (r *recordingStore) CreateEvaluation(_ context.Context, rec *models.EvaluationRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func TestService_Run(t *testing.T) {
	gh := gittest.NewGitHub()
	seedPR(gh, 8)
	fs := afero.NewMemMapFs()
	st := &recordingStore{}
	ui, _ := newTestUI()
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	svc := &Service{
		GitHub:     gh,
		Evaluator:  New(DefaultCriteria()),
		Executor:   &Executor{GitHub: gh, UI: ui, AutoMerge: true},
		Fs:         fs,
		ReportsDir: "/reports",
		Store:      st,
		UI:         ui,
		Now:        func() time.Time { return at },
	}

	report, err := svc.Run(context.Background(), "acme/site", 8)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Evaluation.TotalScore)
	assert.True(t, report.Decision.Approved)
	require.NotNil(t, report.Execution)
	assert.True(t, report.Execution.Merged)

	exists, _ := afero.Exists(fs, "/reports/"+ReportFilename(8, at))
	assert.True(t, exists)

	require.Len(t, st.recs, 1)
	assert.Equal(t, 8, st.recs[0].PRNumber)
	assert.True(t, st.recs[0].Approved)
	assert.True(t, strings.HasPrefix(st.recs[0].Report, "{"))
}

func TestService_DryRunWritesNothing(t *testing.T) {
	gh := gittest.NewGitHub()
	seedPR(gh, 8)
	fs := afero.NewMemMapFs()
	st := &recordingStore{}
	ui, _ := newTestUI()

	svc := &Service{
		GitHub:     gh,
		Evaluator:  New(DefaultCriteria()),
		Executor:   &Executor{GitHub: gh, UI: ui, DryRun: true},
		Fs:         fs,
		ReportsDir: "/reports",
		Store:      st,
		UI:         ui,
	}
	_, err := svc.Run(context.Background(), "acme/site", 8)
	require.NoError(t, err)
	assert.Empty(t, gh.Calls)
	assert.Empty(t, st.recs)
	exists, _ := afero.DirExists(fs, "/reports")
	assert.False(t, exists)
}
