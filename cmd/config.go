package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agentpipe"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage agentpipe configuration.

Running bare 'agentpipe config' is the same as 'agentpipe config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# agentpipe configuration
# See: agentpipe config show (for effective values and sources)

# State/data directory (default: ~/.config/agentpipe)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/agentpipe/agentpipe.db)
# db_path: {{ .DBPath }}

# Working tree the pipeline applies changes to
work_dir: "{{ .WorkDir }}"

# Session logs, relative to work_dir
logs_dir: "{{ .LogsDir }}"

# GitHub
github:
  # owner/repo; detected from the origin remote when empty
  repo: "{{ .GitHubRepo }}"
  base_branch: "{{ .BaseBranch }}"
  # Login whose comments count as the agent's own
  bot_login: "{{ .BotLogin }}"

# Trigger tokens
trigger:
  label: "{{ .TriggerLabel }}"
  mention: "{{ .TriggerMention }}"
  title_prefix: "{{ .TriggerTitlePrefix }}"

# LLM backend: gemini, anthropic, or mock
llm:
  provider: "{{ .LLMProvider }}"
  timeout: "{{ .LLMTimeout }}"

# API keys are best kept in the environment (GEMINI_API_KEY, ANTHROPIC_API_KEY)
gemini:
  model: "{{ .GeminiModel }}"
anthropic:
  model: "{{ .AnthropicModel }}"

# PR evaluation
evaluate:
  auto_merge: {{ .AutoMerge }}
  approval_threshold: {{ .ApprovalThreshold }}
`

type configTemplateData struct {
	StateDir           string
	DBPath             string
	WorkDir            string
	LogsDir            string
	GitHubRepo         string
	BaseBranch         string
	BotLogin           string
	TriggerLabel       string
	TriggerMention     string
	TriggerTitlePrefix string
	LLMProvider        string
	LLMTimeout         string
	GeminiModel        string
	AnthropicModel     string
	AutoMerge          bool
	ApprovalThreshold  int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:           viper.GetString("state_dir"),
		DBPath:             viper.GetString("db_path"),
		WorkDir:            viper.GetString("work_dir"),
		LogsDir:            viper.GetString("logs_dir"),
		GitHubRepo:         viper.GetString("github.repo"),
		BaseBranch:         viper.GetString("github.base_branch"),
		BotLogin:           viper.GetString("github.bot_login"),
		TriggerLabel:       viper.GetString("trigger.label"),
		TriggerMention:     viper.GetString("trigger.mention"),
		TriggerTitlePrefix: viper.GetString("trigger.title_prefix"),
		LLMProvider:        viper.GetString("llm.provider"),
		LLMTimeout:         viper.GetString("llm.timeout"),
		GeminiModel:        viper.GetString("gemini.model"),
		AnthropicModel:     viper.GetString("anthropic.model"),
		AutoMerge:          viper.GetBool("evaluate.auto_merge"),
		ApprovalThreshold:  viper.GetInt("evaluate.approval_threshold"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "AGENTPIPE_STATE_DIR"},
	{Key: "db_path", EnvVar: "AGENTPIPE_DB_PATH"},
	{Key: "work_dir", EnvVar: "AGENTPIPE_WORK_DIR"},
	{Key: "logs_dir", EnvVar: "AGENTPIPE_LOGS_DIR"},
	{Key: "reports_dir", EnvVar: "AGENTPIPE_REPORTS_DIR"},
	{Key: "github.repo", EnvVar: "AGENTPIPE_GITHUB_REPO"},
	{Key: "github.base_branch", EnvVar: "AGENTPIPE_GITHUB_BASE_BRANCH"},
	{Key: "github.bot_login", EnvVar: "AGENTPIPE_GITHUB_BOT_LOGIN"},
	{Key: "trigger.label", EnvVar: "AGENTPIPE_TRIGGER_LABEL"},
	{Key: "trigger.mention", EnvVar: "AGENTPIPE_TRIGGER_MENTION"},
	{Key: "trigger.title_prefix", EnvVar: "AGENTPIPE_TRIGGER_TITLE_PREFIX"},
	{Key: "trigger.min_issue_age", EnvVar: "AGENTPIPE_TRIGGER_MIN_ISSUE_AGE"},
	{Key: "llm.provider", EnvVar: "AGENTPIPE_LLM_PROVIDER"},
	{Key: "llm.timeout", EnvVar: "AGENTPIPE_LLM_TIMEOUT"},
	{Key: "gemini.model", EnvVar: "AGENTPIPE_GEMINI_MODEL"},
	{Key: "anthropic.model", EnvVar: "AGENTPIPE_ANTHROPIC_MODEL"},
	{Key: "evaluate.auto_merge", EnvVar: "AGENTPIPE_EVALUATE_AUTO_MERGE"},
	{Key: "evaluate.approval_threshold", EnvVar: "AGENTPIPE_EVALUATE_APPROVAL_THRESHOLD"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'agentpipe config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
