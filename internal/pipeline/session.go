package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/interpret"
	"github.com/joescharf/agentpipe/internal/models"
)

// StageLog is one stage's entry in the session log.
type StageLog struct {
	Name       string            `json:"name"`
	StartedAt  time.Time         `json:"startedAt"`
	DurationMS int64             `json:"durationMs"`
	Continue   bool              `json:"continue"`
	Outputs    map[string]string `json:"outputs,omitempty"`
}

// SessionLog is the JSON debug record written for every run.
type SessionLog struct {
	RunID      string                 `json:"runId"`
	Repo       string                 `json:"repo"`
	Issue      int                    `json:"issue"`
	Generator  string                 `json:"generator,omitempty"`
	Status     models.RunStatus       `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	Task       *models.TaskDescriptor `json:"taskData,omitempty"`
	PlanSource models.PlanSource      `json:"planSource,omitempty"`
	ParseStage string                 `json:"parseStage,omitempty"`
	ParseError string                 `json:"parseError,omitempty"`
	Stages     []StageLog             `json:"stages"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
}

func newSessionLog(run *models.Run) *SessionLog {
	return &SessionLog{
		RunID:     run.ID,
		Repo:      run.Repo,
		Issue:     run.IssueNumber,
		Status:    run.Status,
		Stages:    []StageLog{},
		StartedAt: run.StartedAt,
	}
}

func (l *SessionLog) addStage(name string, began time.Time, took time.Duration, out Outcome) {
	l.Stages = append(l.Stages, StageLog{
		Name:       name,
		StartedAt:  began.UTC(),
		DurationMS: took.Milliseconds(),
		Continue:   out.Continue,
		Outputs:    out.Outputs,
	})
}

func (l *SessionLog) finish(run *models.Run, task *models.TaskDescriptor, res *interpret.Result) {
	l.Status = run.Status
	l.Reason = run.Reason
	l.Task = task
	if run.FinishedAt != nil {
		l.FinishedAt = *run.FinishedAt
	}
	if res == nil {
		return
	}
	l.PlanSource = res.Source
	if res.ParseErr != nil {
		l.ParseError = res.ParseErr.Error()
		var pe *interpret.ParseError
		if errors.As(res.ParseErr, &pe) {
			l.ParseStage = pe.Stage
		}
	}
}

// SessionFilename returns session-<runID>.json.
func SessionFilename(runID string) string {
	return "session-" + runID + ".json"
}

// Write saves the log under dir and returns its path.
func (l *SessionLog) Write(fs afero.Fs, dir string) (string, error) {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session log: %w", err)
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create logs dir: %w", err)
	}
	p := filepath.Join(dir, SessionFilename(l.RunID))
	if err := afero.WriteFile(fs, p, data, 0644); err != nil {
		return "", fmt.Errorf("write session log: %w", err)
	}
	return p, nil
}
