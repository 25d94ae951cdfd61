// Package extract turns loosely templated issue text into a TaskDescriptor.
//
// Each field is resolved by an ordered list of strategies, most templated
// first and most lenient last. The first strategy that yields non-empty
// text wins; otherwise the field default applies.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joescharf/agentpipe/internal/models"
)

// ErrMissingTaskInfo is returned when neither a title nor a description can be resolved.
var ErrMissingTaskInfo = errors.New("missing required task information (title or description)")

// Field defaults.
const (
	DefaultTaskType = "Development"
	DefaultPriority = "Medium"
)

// Strategy is one named extraction attempt.
type Strategy struct {
	Name string
	Fn   func(body string) (string, bool)
}

// regexStrategy returns the trimmed first capture group of re.
func regexStrategy(name, expr string) Strategy {
	re := regexp.MustCompile(expr)
	return Strategy{
		Name: name,
		Fn: func(body string) (string, bool) {
			m := re.FindStringSubmatch(body)
			if len(m) < 2 {
				return "", false
			}
			s := strings.TrimSpace(m[1])
			return s, s != ""
		},
	}
}

var (
	DescriptionStrategies = []Strategy{
		regexStrategy("heading", `(?i)###\s*(?:Task Description|Description)[ \t]*\n([\s\S]+?)(?:\n###|$)`),
		regexStrategy("section", `(?i)(?:Task Description|Description)[\s\S]*?###\s*([\s\S]+?)(?:\n###|$)`),
		regexStrategy("inline", `(?i)(?:Description|Summary):\s*([\s\S]+?)(?:\n\n|\n###|$)`),
		regexStrategy("leading", `^([\s\S]+?)(?:\n###|\n\n##|$)`),
	}

	TaskTypeStrategies = []Strategy{
		regexStrategy("heading", `(?i)### Task Type\s*\n([^\n]+)`),
		regexStrategy("inline", `(?i)(?:Task Type|Type)[\s\S]*?:\s*(.+)`),
		regexStrategy("section", `(?i)(?:Task Type|Type)[\s\S]*?###\s*(.+)`),
	}

	PriorityStrategies = []Strategy{
		regexStrategy("heading", `(?i)### Priority\s*\n([^\n]+)`),
		regexStrategy("inline", `(?i)Priority[\s\S]*?:\s*(.+)`),
		regexStrategy("section", `(?i)Priority[\s\S]*?###\s*(.+)`),
	}

	RequirementsStrategies = []Strategy{
		regexStrategy("section", `(?i)(?:Requirements|Acceptance Criteria)[\s\S]*?###\s*([\s\S]+?)(?:\n###|$)`),
		regexStrategy("inline", `(?i)(?:Requirements|Criteria):\s*([\s\S]+?)(?:\n\n|\n###|$)`),
	}
)

// First runs strategies in order and returns the first hit and its strategy name.
func First(body string, strategies []Strategy) (value, name string, ok bool) {
	for _, s := range strategies {
		if v, hit := s.Fn(body); hit {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// Description resolves the task description, falling back to title.
func Description(body, title string) string {
	if v, _, ok := First(body, DescriptionStrategies); ok {
		return v
	}
	return title
}

// TaskType resolves the task type.
func TaskType(body string) string {
	if v, _, ok := First(body, TaskTypeStrategies); ok {
		return v
	}
	return DefaultTaskType
}

// Priority resolves and normalizes the task priority.
func Priority(body string) string {
	if v, _, ok := First(body, PriorityStrategies); ok {
		return NormalizePriority(v)
	}
	return DefaultPriority
}

// NormalizePriority maps high/urgent to High and low to Low; anything else is
// lowercased with its first letter capitalized.
func NormalizePriority(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(p, "high"), strings.Contains(p, "urgent"):
		return "High"
	case strings.Contains(p, "low"):
		return "Low"
	case p == "":
		return DefaultPriority
	}
	r, size := utf8.DecodeRuneInString(p)
	return string(unicode.ToUpper(r)) + p[size:]
}

// Requirements resolves the optional requirements text.
func Requirements(body string) *string {
	if v, _, ok := First(body, RequirementsStrategies); ok {
		return &v
	}
	return nil
}

// Extract builds the TaskDescriptor for issue.
func Extract(issue *models.Issue) (*models.TaskDescriptor, error) {
	if issue == nil {
		return nil, errors.New("no issue found in event payload")
	}

	title := strings.TrimSpace(issue.Title)
	body := issue.Body

	task := &models.TaskDescriptor{
		ID:           fmt.Sprintf("issue-%d-%d", issue.Number, issue.CreatedAt.Unix()),
		IssueNumber:  issue.Number,
		Title:        title,
		Description:  Description(body, title),
		TaskType:     TaskType(body),
		Priority:     Priority(body),
		Requirements: Requirements(body),
		Author:       issue.User.Login,
		Labels:       issue.LabelNames(),
		CreatedAt:    issue.CreatedAt,
	}

	if task.Title == "" && task.Description == "" {
		return nil, ErrMissingTaskInfo
	}
	if task.Description == "" {
		task.Description = task.Title
	}
	return task, nil
}
