package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/evaluate"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
)

var evaluateFormat string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <pr-number>",
	Short: "Score a pull request and post an automated review",
	Long: `Fetch a pull request, score it across file changes, code quality,
security, test coverage and CI checks, then approve or request changes.
Approved pull requests with high confidence are auto-merged when
evaluate.auto_merge is set. A JSON report is written to reports_dir.

Use --dry-run to score without posting a review.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid pull request number: %s", args[0])
		}
		return evaluateRun(cmd, number)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateFormat, "format", "table", "Output format: table, json, markdown")
	rootCmd.AddCommand(evaluateCmd)
}

func evaluateRun(cmd *cobra.Command, number int) error {
	repo, err := resolveRepo(git.NewClient())
	if err != nil {
		return err
	}

	var rec evaluate.Recorder
	if s, err := getStore(); err == nil {
		rec = s
	} else {
		ui.Warning("Evaluation history disabled: %v", err)
	}

	svc := newEvalService(afero.NewOsFs(), git.NewGitHubClient(), rec)
	report, runErr := svc.Run(cmd.Context(), repo, number)
	if report == nil {
		return runErr
	}

	if err := printReport(report); err != nil {
		return err
	}
	return runErr
}

func printReport(r *evaluate.Report) error {
	switch evaluateFormat {
	case "json":
		return writeJSONOut(r)
	case "markdown":
		fmt.Fprint(ui.Out, r.Markdown())
		return nil
	case "table":
	default:
		return fmt.Errorf("unknown format: %s", evaluateFormat)
	}

	threshold := r.Criteria.ApprovalThreshold
	ui.Header("PR #%d  %s", r.PRNumber, r.Repo)
	table := ui.Table([]string{"Category", "Score", "Weight", "Issues"})
	for _, cat := range models.Categories {
		s := r.Evaluation.Scores[cat]
		if s == nil {
			continue
		}
		_ = table.Append([]string{
			evaluate.CategoryTitle(cat),
			output.ScoreColor(s.Score, threshold),
			fmt.Sprintf("%.0f%%", evaluate.Weights[cat]*100),
			fmt.Sprintf("%d", len(s.Issues)),
		})
	}
	_ = table.Render()

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Total:      %s\n", output.ScoreColor(r.Evaluation.TotalScore, threshold))
	fmt.Fprintf(ui.Out, "Approved:   %s\n", output.Bool(r.Decision.Approved))
	fmt.Fprintf(ui.Out, "Confidence: %d%%\n", r.Decision.Confidence)
	for _, reason := range r.Decision.Reasoning {
		ui.Info("%s", reason)
	}
	for _, issue := range r.Evaluation.Issues {
		ui.Warning("%s", issue)
	}
	if r.Execution != nil && r.Execution.Merged {
		ui.Success("Auto-merge enabled")
	}
	return nil
}
