package models

// FileAction is what the plan does to a file.
type FileAction string

const (
	FileActionCreate FileAction = "create"
	FileActionModify FileAction = "modify"
)

// FileChange is a single file the plan writes.
type FileChange struct {
	Path        string     `json:"path" validate:"required"`
	Action      FileAction `json:"action" validate:"required,oneof=create modify"`
	Content     string     `json:"content"`
	Explanation string     `json:"explanation"`
}

// ImplementationPlan is the validated output of the generative model.
type ImplementationPlan struct {
	Analysis     string       `json:"analysis"`
	Files        []FileChange `json:"files" validate:"required,min=1,dive"`
	Instructions string       `json:"instructions,omitempty"`
}

// PlanSource records which interpreter stage produced a plan.
type PlanSource string

const (
	PlanSourceDirect   PlanSource = "direct"
	PlanSourceRepaired PlanSource = "repaired"
	PlanSourceFallback PlanSource = "fallback"
)
