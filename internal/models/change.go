package models

import "time"

// AppliedFile is a plan file that was written to disk.
type AppliedFile struct {
	Path        string     `json:"path"`
	Action      FileAction `json:"action"`
	Explanation string     `json:"explanation"`
}

// ChangeRecord is the audit result of applying a plan.
type ChangeRecord struct {
	AppliedFiles []AppliedFile   `json:"files"`
	Analysis     string          `json:"analysis"`
	Instructions string          `json:"instructions"`
	TaskData     *TaskDescriptor `json:"taskData"`
	Timestamp    time.Time       `json:"timestamp"`
	SummaryPath  string          `json:"summaryPath,omitempty"`
}

// FilesModified returns the number of applied files.
func (c *ChangeRecord) FilesModified() int {
	return len(c.AppliedFiles)
}
