package trigger

import (
	"strings"
	"time"

	"github.com/joescharf/agentpipe/internal/models"
)

// Defaults for the reserved trigger tokens.
const (
	DefaultLabel       = "ai-agent"
	DefaultMention     = "@ai-agent"
	DefaultTitlePrefix = "[AI]"
	DefaultMinIssueAge = 30 * time.Second
)

// Config holds the reserved tokens an event is matched against.
type Config struct {
	Label       string
	Mention     string
	TitlePrefix string
	MinIssueAge time.Duration
}

// DefaultConfig returns the stock trigger tokens.
func DefaultConfig() Config {
	return Config{
		Label:       DefaultLabel,
		Mention:     DefaultMention,
		TitlePrefix: DefaultTitlePrefix,
		MinIssueAge: DefaultMinIssueAge,
	}
}

// Decision is the classifier's verdict with a human-readable reason.
type Decision struct {
	ShouldProcess bool
	Reason        string
}

// Classifier decides whether an inbound event should start the pipeline.
type Classifier struct {
	Config Config
	Now    func() time.Time
}

// New returns a Classifier using the wall clock.
func New(cfg Config) *Classifier {
	return &Classifier{Config: cfg, Now: time.Now}
}

// Classify evaluates the label, mention and title rules, OR'd together.
// A "labeled" event on an issue younger than MinIssueAge never triggers,
// which keeps the bot from reacting to labels applied at creation time.
func (c *Classifier) Classify(ev *models.Event) Decision {
	if ev == nil || ev.Issue == nil {
		return Decision{Reason: "no issue in event payload"}
	}
	issue := ev.Issue

	if ev.Action == "labeled" && !issue.CreatedAt.IsZero() {
		age := c.now().Sub(issue.CreatedAt)
		if age < c.Config.MinIssueAge {
			return Decision{Reason: "issue created " + age.Round(time.Second).String() + " ago; ignoring label event"}
		}
	}

	if c.Config.Label != "" {
		for _, l := range issue.Labels {
			if l.Name == c.Config.Label {
				return Decision{ShouldProcess: true, Reason: "label " + c.Config.Label}
			}
		}
	}

	if c.Config.Mention != "" && ev.Comment != nil && strings.Contains(ev.Comment.Body, c.Config.Mention) {
		return Decision{ShouldProcess: true, Reason: "comment mentions " + c.Config.Mention}
	}

	if c.Config.TitlePrefix != "" && strings.HasPrefix(issue.Title, c.Config.TitlePrefix) {
		return Decision{ShouldProcess: true, Reason: "title prefix " + c.Config.TitlePrefix}
	}

	return Decision{Reason: "no trigger matched"}
}

func (c *Classifier) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
