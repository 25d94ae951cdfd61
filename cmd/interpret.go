package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/apply"
	"github.com/joescharf/agentpipe/internal/interpret"
	"github.com/joescharf/agentpipe/internal/models"
)

var (
	interpretResponse string
	interpretApply    bool
)

var interpretCmd = &cobra.Command{
	Use:   "interpret",
	Short: "Turn a raw LLM reply into an implementation plan",
	Long: `Parse a raw LLM reply, repairing it or synthesizing a fallback plan as
needed, and print the plan as JSON. With --apply, write the plan's files
and the implementation summary into the working tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return interpretRun()
	},
}

func init() {
	addIssueFlags(interpretCmd)
	interpretCmd.Flags().StringVar(&interpretResponse, "response", "-", "File holding the raw reply; \"-\" reads stdin")
	interpretCmd.Flags().BoolVar(&interpretApply, "apply", false, "Apply the plan to the working tree")
	rootCmd.AddCommand(interpretCmd)
}

func interpretRun() error {
	var raw []byte
	var err error
	if interpretResponse == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(interpretResponse)
	}
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// The task only shapes fallback output; an empty issue is acceptable.
	task, err := taskFromFlags()
	if err != nil {
		task = &models.TaskDescriptor{IssueNumber: issueNumber, Title: issueTitle}
	}

	res, err := interpret.Interpret(string(raw), task)
	if err != nil {
		return err
	}
	if res.Source != models.PlanSourceDirect {
		ui.Warning("Plan obtained via %s: %v", res.Source, res.ParseErr)
	}

	if !interpretApply {
		return writeJSONOut(res.Plan)
	}

	if dryRun {
		for _, f := range res.Plan.Files {
			ui.DryRunMsg("Would %s %s", f.Action, f.Path)
		}
		ui.DryRunMsg("Would write %s", apply.SummaryFile)
		return nil
	}

	rec, err := apply.New(afero.NewOsFs(), workDir()).Apply(res.Plan, task)
	if err != nil {
		return err
	}
	for _, f := range rec.AppliedFiles {
		ui.Success("%s %s", f.Action, f.Path)
	}
	ui.Info("Summary written to %s", rec.SummaryPath)
	return nil
}
