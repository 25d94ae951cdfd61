package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/extract"
	"github.com/joescharf/agentpipe/internal/models"
)

// Issue input flags shared by parse-issue, prompt and interpret.
var (
	issueEventPath string
	issueTitle     string
	issueBody      string
	issueNumber    int
)

func addIssueFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&issueEventPath, "event", "", "Read the issue from an event JSON file")
	cmd.Flags().StringVar(&issueTitle, "title", "", "Issue title")
	cmd.Flags().StringVar(&issueBody, "body", "", "Issue body; \"-\" reads stdin")
	cmd.Flags().IntVar(&issueNumber, "number", 0, "Issue number")
}

var parseIssueCmd = &cobra.Command{
	Use:   "parse-issue",
	Short: "Extract the task descriptor from an issue",
	Long: `Extract description, type, priority and requirements from an issue
and print the task descriptor as JSON.

The issue comes from --event, or from --title and --body.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := taskFromFlags()
		if err != nil {
			return err
		}
		return writeJSONOut(task)
	},
}

func init() {
	addIssueFlags(parseIssueCmd)
	rootCmd.AddCommand(parseIssueCmd)
}

// issueFromFlags builds the issue named by the shared flags.
func issueFromFlags() (*models.Issue, error) {
	if issueEventPath != "" {
		ev, err := loadEvent(issueEventPath)
		if err != nil {
			return nil, err
		}
		if ev.Issue == nil {
			return nil, fmt.Errorf("event %s carries no issue", issueEventPath)
		}
		return ev.Issue, nil
	}

	body := issueBody
	if body == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}
	return &models.Issue{Number: issueNumber, Title: issueTitle, Body: body}, nil
}

func taskFromFlags() (*models.TaskDescriptor, error) {
	issue, err := issueFromFlags()
	if err != nil {
		return nil, err
	}
	return extract.Extract(issue)
}

func writeJSONOut(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
