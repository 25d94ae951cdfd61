package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
)

var (
	runEventPath   string
	runSkipPublish bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one issue event end to end",
	Long: `Run the full pipeline for one issue event: classify, guard against
duplicates, extract the task, generate and apply an implementation, open a
pull request, and report back on the issue.

The event payload is read from --event, or from $GITHUB_EVENT_PATH when
running inside GitHub Actions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd)
	},
}

func init() {
	runCmd.Flags().StringVar(&runEventPath, "event", "", "Path to the event JSON (default $GITHUB_EVENT_PATH)")
	runCmd.Flags().BoolVar(&runSkipPublish, "skip-publish", false, "Apply changes but do not branch, push, or open a pull request")
	rootCmd.AddCommand(runCmd)
}

// loadEvent reads an event payload from path, "-" meaning stdin.
func loadEvent(path string) (*models.Event, error) {
	if path == "" {
		path = os.Getenv("GITHUB_EVENT_PATH")
	}
	if path == "" {
		return nil, fmt.Errorf("no event payload: pass --event or set GITHUB_EVENT_PATH")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}

	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parse event %s: %w", path, err)
	}
	return &ev, nil
}

func runRun(cmd *cobra.Command) error {
	ev, err := loadEvent(runEventPath)
	if err != nil {
		return err
	}

	gc := git.NewClient()
	repo := ev.Repo()
	if repo == "" {
		if repo, err = resolveRepo(gc); err != nil {
			return err
		}
	}

	runner, err := newRunner(afero.NewOsFs(), gc, git.NewGitHubClient(), repo)
	if err != nil {
		return err
	}
	runner.Config.SkipPublish = runSkipPublish

	res, err := runner.Run(cmd.Context(), ev)
	if err != nil {
		ui.Error("Run %s failed at %s", res.Run.ID, res.Run.Stage)
		return err
	}

	switch res.Run.Status {
	case models.RunStatusSkipped:
		ui.Info("Skipped: %s", res.Run.Reason)
	case models.RunStatusCompleted:
		if res.PR != nil {
			ui.Success("Pull request #%d created: %s", res.PR.Number, res.PR.URL)
		} else {
			ui.Success("Run %s completed", res.Run.ID)
		}
	}
	if res.LogPath != "" {
		ui.VerboseLog("Session log: %s", res.LogPath)
	}
	return nil
}
