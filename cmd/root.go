package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/output"
	"github.com/joescharf/agentpipe/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "agentpipe",
	Short: "AI issue-to-pull-request pipeline",
	Long: `agentpipe turns labeled GitHub issues into pull requests.

It classifies issue events, extracts a task, asks an LLM for an
implementation plan, applies it to the working tree, and opens a pull
request. It can also score pull requests and post an automated review.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/agentpipe/config.yaml)")
	rootCmd.PersistentFlags().String("repo", "", "Repository as owner/name (default: detected from origin)")
	_ = viper.BindPFlag("github.repo", rootCmd.PersistentFlags().Lookup("repo"))
}

func initConfig() {
	// .env values become process env before viper reads it; real env wins.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AGENTPIPE")
	viper.AutomaticEnv()
	_ = viper.BindEnv("gemini.api_key", "AGENTPIPE_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = viper.BindEnv("anthropic.api_key", "AGENTPIPE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("github.webhook_secret", "AGENTPIPE_GITHUB_WEBHOOK_SECRET", "GITHUB_WEBHOOK_SECRET")

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "agentpipe.db"))
	viper.SetDefault("work_dir", ".")
	viper.SetDefault("logs_dir", ".ai-logs")
	viper.SetDefault("reports_dir", ".")
	viper.SetDefault("github.repo", "")
	viper.SetDefault("github.base_branch", "main")
	viper.SetDefault("github.bot_login", "github-actions[bot]")
	viper.SetDefault("github.webhook_secret", "")
	viper.SetDefault("trigger.label", "ai-agent")
	viper.SetDefault("trigger.mention", "@ai-agent")
	viper.SetDefault("trigger.title_prefix", "[AI]")
	viper.SetDefault("trigger.min_issue_age", "30s")
	viper.SetDefault("llm.provider", "gemini")
	viper.SetDefault("llm.timeout", "5m")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("evaluate.auto_merge", true)
	viper.SetDefault("evaluate.approval_threshold", 75)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
