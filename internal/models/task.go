package models

import "time"

// TaskDescriptor is the structured task derived from one issue.
// Description is never empty; it falls back to Title.
type TaskDescriptor struct {
	ID           string    `json:"id"`
	IssueNumber  int       `json:"issueNumber"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	TaskType     string    `json:"taskType"`
	Priority     string    `json:"priority"`
	Requirements *string   `json:"requirements"`
	Author       string    `json:"author"`
	Labels       []string  `json:"labels"`
	CreatedAt    time.Time `json:"createdAt"`
}
