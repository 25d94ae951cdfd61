package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/dedupe"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/output"
	"github.com/joescharf/agentpipe/internal/trigger"
)

var (
	triggerEventPath   string
	triggerCheckDedupe bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Check whether an event would start the pipeline",
	Long: `Classify an issue event against the trigger label, mention and title
prefix. With --dedupe, also consult the issue's comments and labels for
work already in progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerRun(cmd)
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerEventPath, "event", "", "Path to the event JSON (default $GITHUB_EVENT_PATH)")
	triggerCmd.Flags().BoolVar(&triggerCheckDedupe, "dedupe", false, "Also run the duplicate guard against GitHub")
	rootCmd.AddCommand(triggerCmd)
}

func triggerRun(cmd *cobra.Command) error {
	ev, err := loadEvent(triggerEventPath)
	if err != nil {
		return err
	}

	d := trigger.New(triggerConfig()).Classify(ev)
	fmt.Fprintf(ui.Out, "should_process: %s\n", output.Bool(d.ShouldProcess))
	fmt.Fprintf(ui.Out, "reason:         %s\n", d.Reason)
	if !d.ShouldProcess || !triggerCheckDedupe {
		return nil
	}

	gc := git.NewClient()
	repo := ev.Repo()
	if repo == "" {
		if repo, err = resolveRepo(gc); err != nil {
			return err
		}
	}
	// No claimer: a read-only check must not take the issue.
	guard := &dedupe.Guard{GitHub: git.NewGitHubClient(), BotLogin: viper.GetString("github.bot_login")}
	res, err := guard.Check(cmd.Context(), repo, ev.Issue.Number, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "continue:       %s\n", output.Bool(res.Continue))
	fmt.Fprintf(ui.Out, "dedupe_reason:  %s\n", res.Reason)
	return nil
}
