package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/agentpipe/internal/evaluate"
	"github.com/joescharf/agentpipe/internal/extract"
	"github.com/joescharf/agentpipe/internal/interpret"
	"github.com/joescharf/agentpipe/internal/llm"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/project"
	"github.com/joescharf/agentpipe/internal/store"
	"github.com/joescharf/agentpipe/internal/trigger"
)

// PREvaluator evaluates one pull request.
type PREvaluator interface {
	Run(ctx context.Context, repo string, number int) (*evaluate.Report, error)
}

// Server exposes the pipeline's pure stages and run history as MCP tools.
type Server struct {
	store      store.Store
	classifier *trigger.Classifier
	scanner    *project.Scanner
	evaluator  PREvaluator
	repo       string
}

// NewServer creates the MCP server wrapper. evaluator may be nil, in which
// case agentpipe_evaluate_pr reports an error.
func NewServer(s store.Store, c *trigger.Classifier, sc *project.Scanner, ev PREvaluator, repo string) *Server {
	return &Server{
		store:      s,
		classifier: c,
		scanner:    sc,
		evaluator:  ev,
		repo:       repo,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("agentpipe", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.checkTriggerTool())
	srv.AddTool(s.parseIssueTool())
	srv.AddTool(s.buildPromptTool())
	srv.AddTool(s.interpretResponseTool())
	srv.AddTool(s.evaluatePRTool())
	srv.AddTool(s.listRunsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func decodeEvent(raw string) (*models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("invalid event JSON: %w", err)
	}
	return &ev, nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// agentpipe_check_trigger
func (s *Server) checkTriggerTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_check_trigger",
		mcp.WithDescription("Decide whether an issue event would start the pipeline. Returns should_process and the reason."),
		mcp.WithString("event", mcp.Required(), mcp.Description("Issue event payload as JSON")),
	)
	return tool, s.handleCheckTrigger
}

func (s *Server) handleCheckTrigger(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("event")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: event"), nil
	}
	ev, err := decodeEvent(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	d := s.classifier.Classify(ev)
	return jsonResult(map[string]any{
		"should_process": d.ShouldProcess,
		"reason":         d.Reason,
	})
}

// agentpipe_parse_issue
func (s *Server) parseIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_parse_issue",
		mcp.WithDescription("Extract the task descriptor (description, type, priority, requirements) from an issue title and body."),
		mcp.WithString("title", mcp.Description("Issue title")),
		mcp.WithString("body", mcp.Description("Issue body (markdown)")),
		mcp.WithNumber("number", mcp.Description("Issue number")),
	)
	return tool, s.handleParseIssue
}

func (s *Server) handleParseIssue(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := extract.Extract(&models.Issue{
		Number: request.GetInt("number", 0),
		Title:  request.GetString("title", ""),
		Body:   request.GetString("body", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse issue: %v", err)), nil
	}
	return jsonResult(task)
}

// agentpipe_build_prompt
func (s *Server) buildPromptTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_build_prompt",
		mcp.WithDescription("Render the implementation prompt for an issue against a project directory."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("body", mcp.Description("Issue body (markdown)")),
		mcp.WithNumber("number", mcp.Description("Issue number")),
		mcp.WithString("path", mcp.Description("Project root to scan; defaults to the current directory")),
	)
	return tool, s.handleBuildPrompt
}

func (s *Server) handleBuildPrompt(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	task, err := extract.Extract(&models.Issue{
		Number: request.GetInt("number", 0),
		Title:  title,
		Body:   request.GetString("body", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse issue: %v", err)), nil
	}

	var snap *project.Snapshot
	if s.scanner != nil {
		// Scan failures degrade to an empty project section.
		snap, _ = s.scanner.Snapshot(request.GetString("path", "."))
	}
	return mcp.NewToolResultText(llm.BuildImplementationPrompt(task, snap)), nil
}

// agentpipe_interpret_response
func (s *Server) interpretResponseTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_interpret_response",
		mcp.WithDescription("Turn a raw model reply into an implementation plan, repairing or falling back as needed. Returns the plan and how it was obtained."),
		mcp.WithString("response", mcp.Required(), mcp.Description("Raw model reply text")),
		mcp.WithString("title", mcp.Description("Issue title, used for fallback file naming")),
		mcp.WithString("description", mcp.Description("Task description, used for fallback content")),
		mcp.WithNumber("number", mcp.Description("Issue number")),
	)
	return tool, s.handleInterpretResponse
}

func (s *Server) handleInterpretResponse(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: response"), nil
	}
	task := &models.TaskDescriptor{
		IssueNumber: request.GetInt("number", 0),
		Title:       request.GetString("title", ""),
		Description: request.GetString("description", ""),
	}

	res, err := interpret.Interpret(raw, task)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to interpret response: %v", err)), nil
	}

	out := struct {
		Source     models.PlanSource          `json:"source"`
		ParseError string                     `json:"parse_error,omitempty"`
		Plan       *models.ImplementationPlan `json:"plan"`
	}{Source: res.Source, Plan: res.Plan}
	if res.ParseErr != nil {
		out.ParseError = res.ParseErr.Error()
	}
	return jsonResult(out)
}

// agentpipe_evaluate_pr
func (s *Server) evaluatePRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_evaluate_pr",
		mcp.WithDescription("Score a pull request against the approval criteria, post the review, and return the decision."),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Pull request number")),
		mcp.WithString("repo", mcp.Description("owner/repo; defaults to the configured repository")),
	)
	return tool, s.handleEvaluatePR
}

func (s *Server) handleEvaluatePR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.evaluator == nil {
		return mcp.NewToolResultError("evaluator not configured"), nil
	}
	number := request.GetInt("number", 0)
	if number <= 0 {
		return mcp.NewToolResultError("missing required parameter: number"), nil
	}
	repo := request.GetString("repo", s.repo)
	if repo == "" {
		return mcp.NewToolResultError("repo is required"), nil
	}

	report, err := s.evaluator.Run(ctx, repo, number)
	if report == nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to evaluate PR #%d: %v", number, err)), nil
	}

	out := map[string]any{
		"repo":        report.Repo,
		"pr_number":   report.PRNumber,
		"total_score": report.Evaluation.TotalScore,
		"approved":    report.Decision.Approved,
		"confidence":  report.Decision.Confidence,
		"reasoning":   report.Decision.Reasoning,
		"issues":      report.Evaluation.Issues,
	}
	if err != nil {
		out["warning"] = err.Error()
	}
	return jsonResult(out)
}

// agentpipe_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agentpipe_list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first."),
		mcp.WithString("repo", mcp.Description("Filter by owner/repo")),
		mcp.WithNumber("issue", mcp.Description("Filter by issue number")),
		mcp.WithString("status", mcp.Description("Filter by status: running, skipped, completed, failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.store.ListRuns(ctx, store.RunListFilter{
		Repo:        request.GetString("repo", ""),
		IssueNumber: request.GetInt("issue", 0),
		Status:      models.RunStatus(request.GetString("status", "")),
		Limit:       request.GetInt("limit", 20),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return jsonResult(runs)
}
