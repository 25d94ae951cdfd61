package store

import (
	"context"

	"github.com/joescharf/agentpipe/internal/models"
)

// RunListFilter specifies filters for listing runs.
type RunListFilter struct {
	Repo        string
	IssueNumber int
	Status      models.RunStatus
	Limit       int
}

// Store defines the persistence interface for agentpipe.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]*models.Run, error)
	UpdateRun(ctx context.Context, run *models.Run) error

	// Claims
	Claim(ctx context.Context, issueKey, runID string) (bool, error)
	ReleaseClaim(ctx context.Context, issueKey string) error

	// Evaluations
	CreateEvaluation(ctx context.Context, rec *models.EvaluationRecord) error
	ListEvaluations(ctx context.Context, repo string, prNumber int) ([]*models.EvaluationRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
