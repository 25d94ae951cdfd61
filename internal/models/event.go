package models

import "time"

// Label is an issue-tracker label as delivered in event payloads.
type Label struct {
	Name string `json:"name"`
}

// User identifies an issue-tracker account.
type User struct {
	Login string `json:"login"`
}

// Issue is the issue record carried by an inbound event.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []Label   `json:"labels"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// LabelNames returns the issue's label names in order.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// Comment is an issue comment, either attached to an event or listed from history.
type Comment struct {
	ID   int64  `json:"id,omitempty"`
	Body string `json:"body"`
	User User   `json:"user"`
}

// Repository is the minimal repository record in event payloads.
type Repository struct {
	FullName string `json:"full_name"`
}

// Event is an inbound issue-tracker webhook payload.
type Event struct {
	Action     string      `json:"action"`
	Issue      *Issue      `json:"issue,omitempty"`
	Comment    *Comment    `json:"comment,omitempty"`
	Repository *Repository `json:"repository,omitempty"`
}

// Repo returns owner/repo from the payload, or "" if absent.
func (e *Event) Repo() string {
	if e.Repository == nil {
		return ""
	}
	return e.Repository.FullName
}
