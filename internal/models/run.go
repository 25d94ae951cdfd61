package models

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one pipeline execution for one unit of work.
type Run struct {
	ID          string     `json:"id"`
	Repo        string     `json:"repo"`
	IssueNumber int        `json:"issue_number"`
	Status      RunStatus  `json:"status"`
	Stage       string     `json:"stage"`            // last stage reached
	Reason      string     `json:"reason,omitempty"` // skip or failure reason
	PlanSource  PlanSource `json:"plan_source,omitempty"`
	PRNumber    int        `json:"pr_number,omitempty"`
	PRURL       string     `json:"pr_url,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
