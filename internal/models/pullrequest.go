package models

// CheckResult is one CI check on a change request.
type CheckResult struct {
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
}

// ChangedFile is a file touched by a change request. Binary files carry no patch.
type ChangedFile struct {
	Path      string `json:"path"`
	Patch     string `json:"patch,omitempty"`
	Binary    bool   `json:"binary,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// ChangeRequest describes a pull request for evaluation.
type ChangeRequest struct {
	Number      int           `json:"number"`
	Title       string        `json:"title"`
	Body        string        `json:"body,omitempty"`
	Author      string        `json:"author"`
	State       string        `json:"state,omitempty"`
	ReviewState string        `json:"reviewState,omitempty"`
	Files       []ChangedFile `json:"files"`
	Additions   int           `json:"additions"`
	Deletions   int           `json:"deletions"`
	Diff        string        `json:"diff"`
	Checks      []CheckResult `json:"checks"`
}

// PullRequest is a created pull request reference.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
}
