package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/dedupe"
	"github.com/joescharf/agentpipe/internal/evaluate"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/notify"
	"github.com/joescharf/agentpipe/internal/pipeline"
	"github.com/joescharf/agentpipe/internal/project"
	"github.com/joescharf/agentpipe/internal/standards"
	"github.com/joescharf/agentpipe/internal/trigger"
)

// workDir returns the absolute configured working tree.
func workDir() string {
	dir := viper.GetString("work_dir")
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// resolveRepo returns github.repo, falling back to the origin remote of the
// working tree.
func resolveRepo(gc git.Client) (string, error) {
	if repo := viper.GetString("github.repo"); repo != "" {
		return repo, nil
	}
	repo, err := git.DetectRepo(gc, workDir())
	if err != nil {
		return "", fmt.Errorf("no repository configured (set github.repo or --repo): %w", err)
	}
	return repo, nil
}

func triggerConfig() trigger.Config {
	return trigger.Config{
		Label:       viper.GetString("trigger.label"),
		Mention:     viper.GetString("trigger.mention"),
		TitlePrefix: viper.GetString("trigger.title_prefix"),
		MinIssueAge: viper.GetDuration("trigger.min_issue_age"),
	}
}

// newRunner wires the issue pipeline from config. repo may be empty, in
// which case each event's repository is used.
func newRunner(fs afero.Fs, gc git.Client, ghc git.GitHubClient, repo string) (*pipeline.Runner, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	tc := triggerConfig()
	return &pipeline.Runner{
		Config: pipeline.Config{
			Repo:       repo,
			WorkDir:    workDir(),
			LogsDir:    viper.GetString("logs_dir"),
			BaseBranch: viper.GetString("github.base_branch"),
			LLMTimeout: viper.GetDuration("llm.timeout"),
			DryRun:     dryRun,
		},
		Classifier: trigger.New(tc),
		Guard: &dedupe.Guard{
			GitHub:   ghc,
			Claims:   s,
			BotLogin: viper.GetString("github.bot_login"),
		},
		NewGenerator: newGenerator,
		Scanner:      project.NewScanner(fs),
		Fs:           fs,
		Git:          gc,
		GitHub:       ghc,
		Notifier: &notify.Notifier{
			GitHub:  ghc,
			UI:      ui,
			DryRun:  dryRun,
			Mention: tc.Mention,
			Label:   tc.Label,
		},
		Store:   s,
		Checker: standards.NewChecker(fs),
		UI:      ui,
		Now:     time.Now,
	}, nil
}

// newEvalService wires the pull request evaluator from config. rec may be nil.
func newEvalService(fs afero.Fs, ghc git.GitHubClient, rec evaluate.Recorder) *evaluate.Service {
	criteria := evaluate.DefaultCriteria()
	if t := viper.GetInt("evaluate.approval_threshold"); t > 0 {
		criteria.ApprovalThreshold = t
	}
	return &evaluate.Service{
		GitHub:    ghc,
		Evaluator: evaluate.New(criteria),
		Executor: &evaluate.Executor{
			GitHub:    ghc,
			UI:        ui,
			AutoMerge: viper.GetBool("evaluate.auto_merge"),
			DryRun:    dryRun,
		},
		Fs:         fs,
		ReportsDir: viper.GetString("reports_dir"),
		Store:      rec,
		UI:         ui,
		Now:        time.Now,
	}
}
