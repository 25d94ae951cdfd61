package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Runs ---

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.Run{Repo: "acme/site", IssueNumber: 42, Stage: "trigger"}
	require.NoError(t, s.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/site", got.Repo)
	assert.Equal(t, 42, got.IssueNumber)
	assert.Nil(t, got.FinishedAt)

	done := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.Stage = "notify"
	run.PlanSource = models.PlanSourceRepaired
	run.PRNumber = 7
	run.PRURL = "https://github.com/acme/site/pull/7"
	run.FinishedAt = &done
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, models.PlanSourceRepaired, got.PlanSource)
	assert.Equal(t, 7, got.PRNumber)
	require.NotNil(t, got.FinishedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestUpdateRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateRun(context.Background(), &models.Run{ID: "missing", Status: models.RunStatusFailed})
	assert.ErrorContains(t, err, "run not found")
}

func TestListRuns_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []models.RunStatus{models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusSkipped} {
		require.NoError(t, s.CreateRun(ctx, &models.Run{
			Repo:        "acme/site",
			IssueNumber: 10 + i,
			Status:      st,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.CreateRun(ctx, &models.Run{Repo: "acme/other", IssueNumber: 1, StartedAt: base}))

	all, err := s.ListRuns(ctx, RunListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	site, err := s.ListRuns(ctx, RunListFilter{Repo: "acme/site"})
	require.NoError(t, err)
	require.Len(t, site, 3)
	assert.Equal(t, 12, site[0].IssueNumber, "newest first")

	failed, err := s.ListRuns(ctx, RunListFilter{Status: models.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 11, failed[0].IssueNumber)

	limited, err := s.ListRuns(ctx, RunListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byIssue, err := s.ListRuns(ctx, RunListFilter{IssueNumber: 10})
	require.NoError(t, err)
	assert.Len(t, byIssue, 1)
}

// --- Claims ---

func TestClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "acme/site#1", "run-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "acme/site#1", "run-b")
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same issue must fail")

	ok, err = s.Claim(ctx, "acme/site#2", "run-b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.ReleaseClaim(ctx, "acme/site#1"))
	ok, err = s.Claim(ctx, "acme/site#1", "run-c")
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken again")

	assert.NoError(t, s.ReleaseClaim(ctx, "never-claimed"))
}

func TestClaim_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "acme/site#9", newULID())
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

// --- Evaluations ---

func TestEvaluations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := &models.EvaluationRecord{Repo: "acme/site", PRNumber: 5, TotalScore: 62, Confidence: 38, Report: `{"pr":5}`, CreatedAt: base}
	second := &models.EvaluationRecord{Repo: "acme/site", PRNumber: 5, TotalScore: 91, Approved: true, Confidence: 91, CreatedAt: base.Add(time.Hour)}
	other := &models.EvaluationRecord{Repo: "acme/site", PRNumber: 6, TotalScore: 80, Approved: true, Confidence: 80}
	for _, r := range []*models.EvaluationRecord{first, second, other} {
		require.NoError(t, s.CreateEvaluation(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	recs, err := s.ListEvaluations(ctx, "acme/site", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 91, recs[0].TotalScore)
	assert.True(t, recs[0].Approved)
	assert.False(t, recs[1].Approved)
	assert.Equal(t, `{"pr":5}`, recs[1].Report)

	all, err := s.ListEvaluations(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
