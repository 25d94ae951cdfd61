package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/output"
	"github.com/joescharf/agentpipe/internal/store"
)

var (
	historyFormat string
	historyType   string
	historyStatus string
	historyIssue  int
	historyPR     int
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show pipeline runs or PR evaluations",
	Long:  "List recorded pipeline runs or pull request evaluations as a table, JSON, CSV, or Markdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return historyRun(cmd.Context(), s)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json, csv, markdown")
	historyCmd.Flags().StringVar(&historyType, "type", "runs", "Data type: runs, evaluations")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter runs by status")
	historyCmd.Flags().IntVar(&historyIssue, "issue", 0, "Filter runs by issue number")
	historyCmd.Flags().IntVar(&historyPR, "pr", 0, "Filter evaluations by pull request number")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func historyRun(ctx context.Context, s store.Store) error {
	repo := viper.GetString("github.repo")
	switch historyType {
	case "runs":
		runs, err := s.ListRuns(ctx, store.RunListFilter{
			Repo:        repo,
			IssueNumber: historyIssue,
			Status:      models.RunStatus(historyStatus),
			Limit:       historyLimit,
		})
		if err != nil {
			return err
		}
		return printRuns(runs)
	case "evaluations":
		recs, err := s.ListEvaluations(ctx, repo, historyPR)
		if err != nil {
			return err
		}
		return printEvaluations(recs)
	default:
		return fmt.Errorf("unknown history type: %s (use: runs, evaluations)", historyType)
	}
}

func printRuns(runs []*models.Run) error {
	switch historyFormat {
	case "table":
		if len(runs) == 0 {
			ui.Info("No runs recorded.")
			return nil
		}
		table := ui.Table([]string{"ID", "Repo", "Issue", "Status", "Stage", "PR", "Started"})
		for _, r := range runs {
			pr := ""
			if r.PRNumber > 0 {
				pr = "#" + strconv.Itoa(r.PRNumber)
			}
			_ = table.Append([]string{
				r.ID, r.Repo, "#" + strconv.Itoa(r.IssueNumber),
				output.StatusColor(string(r.Status)), r.Stage, pr,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		return table.Render()
	case "json":
		if runs == nil {
			runs = []*models.Run{}
		}
		return writeJSONOut(runs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Repo", "Issue", "Status", "Stage", "Reason", "PlanSource", "PR", "Started"})
		for _, r := range runs {
			_ = w.Write([]string{r.ID, r.Repo, strconv.Itoa(r.IssueNumber), string(r.Status), r.Stage, r.Reason,
				string(r.PlanSource), strconv.Itoa(r.PRNumber), r.StartedAt.Format("2006-01-02T15:04:05Z")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Pipeline Runs")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Issue | Status | Stage | Reason | PR |")
		fmt.Fprintln(ui.Out, "|-------|--------|-------|--------|----|")
		for _, r := range runs {
			fmt.Fprintf(ui.Out, "| #%d | %s | %s | %s | %s |\n", r.IssueNumber, r.Status, r.Stage, r.Reason, r.PRURL)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", historyFormat)
	}
}

func printEvaluations(recs []*models.EvaluationRecord) error {
	switch historyFormat {
	case "table":
		if len(recs) == 0 {
			ui.Info("No evaluations recorded.")
			return nil
		}
		table := ui.Table([]string{"ID", "Repo", "PR", "Score", "Approved", "Confidence", "When"})
		for _, r := range recs {
			_ = table.Append([]string{
				r.ID, r.Repo, "#" + strconv.Itoa(r.PRNumber),
				strconv.Itoa(r.TotalScore), output.Bool(r.Approved), strconv.Itoa(r.Confidence) + "%",
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		return table.Render()
	case "json":
		if recs == nil {
			recs = []*models.EvaluationRecord{}
		}
		return writeJSONOut(recs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Repo", "PR", "Score", "Approved", "Confidence", "Created"})
		for _, r := range recs {
			_ = w.Write([]string{r.ID, r.Repo, strconv.Itoa(r.PRNumber), strconv.Itoa(r.TotalScore),
				strconv.FormatBool(r.Approved), strconv.Itoa(r.Confidence), r.CreatedAt.Format("2006-01-02T15:04:05Z")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# PR Evaluations")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| PR | Score | Approved | Confidence |")
		fmt.Fprintln(ui.Out, "|----|-------|----------|------------|")
		for _, r := range recs {
			fmt.Fprintf(ui.Out, "| #%d | %d | %t | %d%% |\n", r.PRNumber, r.TotalScore, r.Approved, r.Confidence)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", historyFormat)
	}
}
