package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
)

// Recorder persists evaluation records.
type Recorder interface {
	CreateEvaluation(ctx context.Context, rec *models.EvaluationRecord) error
}

// Service runs the full evaluation of one pull request: fetch, score,
// decide, review, report.
type Service struct {
	GitHub     git.GitHubClient
	Evaluator  *Evaluator
	Executor   *Executor
	Fs         afero.Fs
	ReportsDir string
	Store      Recorder // optional
	UI         *output.UI
	Now        func() time.Time
}

// Run evaluates repo#number. A review failure is returned after the
// report has been written.
func (s *Service) Run(ctx context.Context, repo string, number int) (*Report, error) {
	ui := s.UI
	if ui == nil {
		ui = output.New()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	cr, err := Fetch(ctx, s.GitHub, repo, number)
	if err != nil {
		return nil, err
	}
	ui.VerboseLog("PR #%d: %d files, +%d/-%d, %d checks", number, len(cr.Files), cr.Additions, cr.Deletions, len(cr.Checks))

	ev := s.Evaluator.Evaluate(cr)
	d := Decide(ev, s.Evaluator.Criteria.ApprovalThreshold)

	report := &Report{
		Repo:       repo,
		PRNumber:   number,
		Timestamp:  now().UTC(),
		Evaluation: ev,
		Decision:   d,
		Criteria:   s.Evaluator.Criteria,
	}

	var execErr error
	if s.Executor != nil {
		report.Execution, execErr = s.Executor.Execute(ctx, repo, number, d)
		if execErr != nil {
			ui.Error("Failed to execute decision: %v", execErr)
		}
	}

	dryRun := s.Executor != nil && s.Executor.DryRun
	if s.Fs != nil && !dryRun {
		p, err := report.Write(s.Fs, s.ReportsDir)
		if err != nil {
			return report, err
		}
		ui.Info("Full report saved to %s", p)
	}

	if s.Store != nil && !dryRun {
		rec, err := report.Record()
		if err != nil {
			return report, err
		}
		if err := s.Store.CreateEvaluation(ctx, rec); err != nil {
			return report, fmt.Errorf("store evaluation: %w", err)
		}
	}

	return report, execErr
}
