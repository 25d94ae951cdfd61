package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/mcp"
	"github.com/joescharf/agentpipe/internal/project"
	"github.com/joescharf/agentpipe/internal/trigger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client check triggers, parse issues, render prompts,
interpret replies, evaluate pull requests, and browse run history.
Configure it with:

  {
    "mcpServers": {
      "agentpipe": { "command": "agentpipe", "args": ["mcp"] }
    }
  }

Available tools: agentpipe_check_trigger, agentpipe_parse_issue,
agentpipe_build_prompt, agentpipe_interpret_response,
agentpipe_evaluate_pr, agentpipe_list_runs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		// stdout carries the protocol; keep CLI output on stderr.
		ui.Out = ui.ErrOut

		fs := afero.NewOsFs()
		repo, _ := resolveRepo(git.NewClient())
		srv := mcp.NewServer(s,
			trigger.New(triggerConfig()),
			project.NewScanner(fs),
			newEvalService(fs, git.NewGitHubClient(), s),
			repo,
		)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
