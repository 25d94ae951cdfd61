package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joescharf/agentpipe/internal/apply"
	"github.com/joescharf/agentpipe/internal/extract"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/interpret"
	"github.com/joescharf/agentpipe/internal/llm"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/notify"
	"github.com/joescharf/agentpipe/internal/project"
	"github.com/joescharf/agentpipe/internal/standards"
)

func (r *Runner) triggerStage(_ context.Context, st *state) Outcome {
	d := r.Classifier.Classify(st.event)
	r.ui().VerboseLog("Trigger: %s", d.Reason)
	if !d.ShouldProcess {
		return skip(st, d.Reason)
	}
	if st.repo == "" {
		return r.fail(st, notify.CategoryInput, errors.New("repository unknown: set github.repo or include repository in the payload"))
	}
	return next(map[string]string{"should_process": "true", "reason": d.Reason})
}

func (r *Runner) dedupeStage(ctx context.Context, st *state) Outcome {
	if r.Guard == nil {
		return next(map[string]string{"continue": "true", "reason": "guard disabled"})
	}
	guard := r.Guard
	if r.Config.DryRun {
		// Dry runs must not hold a claim that would block the real run.
		g := *r.Guard
		g.Claims = nil
		guard = &g
	}
	res, err := guard.Check(ctx, st.repo, st.run.IssueNumber, st.run.ID)
	if err != nil {
		return r.fail(st, notify.CategoryGitHub, err)
	}
	st.claimed = res.Claimed
	if !res.Continue {
		r.ui().Info("Skipping #%d: %s", st.run.IssueNumber, res.Reason)
		return skip(st, res.Reason)
	}
	return next(map[string]string{"continue": "true", "claimed": strconv.FormatBool(res.Claimed)})
}

func (r *Runner) extractStage(_ context.Context, st *state) Outcome {
	task, err := extract.Extract(st.event.Issue)
	if err != nil {
		return r.fail(st, notify.CategoryExtraction, err)
	}
	st.task = task
	r.ui().Info("Task #%d: %s [%s, %s]", task.IssueNumber, task.Title, task.TaskType, task.Priority)
	return next(map[string]string{"task_id": task.ID, "task_type": task.TaskType, "priority": task.Priority})
}

func (r *Runner) startStage(ctx context.Context, st *state) Outcome {
	if r.Notifier == nil {
		return next(nil)
	}
	if err := r.Notifier.Start(ctx, st.repo, st.task); err != nil {
		return r.fail(st, notify.CategoryGitHub, err)
	}
	return next(map[string]string{"comment": "posted"})
}

// prepareStage puts the work tree on an up-to-date base branch before the
// project is scanned and changes are written.
func (r *Runner) prepareStage(_ context.Context, st *state) Outcome {
	if r.Config.DryRun || r.Config.SkipPublish || r.Git == nil {
		return next(map[string]string{"prepared": "false"})
	}
	dir := r.workDir()
	base := r.baseBranch()

	if _, err := r.Git.RepoRoot(dir); err != nil {
		return r.fail(st, notify.CategoryWorkTree, err)
	}
	dirty, err := r.Git.IsDirty(dir, r.logsExclude())
	if err != nil {
		return r.fail(st, notify.CategoryWorkTree, err)
	}
	if dirty {
		return r.fail(st, notify.CategoryWorkTree, fmt.Errorf("work tree %s has uncommitted changes", dir))
	}

	current, err := r.Git.CurrentBranch(dir)
	if err != nil {
		return r.fail(st, notify.CategoryWorkTree, err)
	}
	if current != base {
		r.ui().VerboseLog("Switching from %s to %s", current, base)
		if err := r.Git.Checkout(dir, base); err != nil {
			return r.fail(st, notify.CategoryWorkTree, err)
		}
	}
	if err := r.Git.Pull(dir, base); err != nil {
		return r.fail(st, notify.CategoryWorkTree, err)
	}
	if r.Scanner != nil {
		r.Scanner.Invalidate(dir)
	}
	return next(map[string]string{"prepared": "true", "base": base, "from": current})
}

func (r *Runner) generateStage(ctx context.Context, st *state) Outcome {
	if r.NewGenerator == nil {
		return r.fail(st, notify.CategoryCredential, llm.ErrNoCredential)
	}
	gen, err := r.NewGenerator(ctx)
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			return r.fail(st, notify.CategoryCredential, err)
		}
		return r.fail(st, notify.CategoryGeneration, err)
	}
	st.log.Generator = gen.Name()

	scanner := r.Scanner
	if scanner == nil {
		scanner = project.NewScanner(r.fs())
		r.Scanner = scanner
	}
	snap, err := scanner.Snapshot(r.workDir())
	if err != nil {
		r.ui().Warning("Project scan failed, continuing without file listing: %v", err)
		snap = nil
	}

	prompt := llm.BuildImplementationPrompt(st.task, snap)

	genCtx := ctx
	if r.Config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, r.Config.LLMTimeout)
		defer cancel()
	}

	r.ui().Info("Generating implementation with %s", gen.Name())
	raw, err := gen.Generate(genCtx, prompt)
	if err != nil {
		return r.fail(st, notify.CategoryGeneration, err)
	}
	st.raw = raw
	return next(map[string]string{
		"generator":    gen.Name(),
		"prompt_chars": strconv.Itoa(len(prompt)),
		"reply_chars":  strconv.Itoa(len(raw)),
	})
}

func (r *Runner) interpretStage(_ context.Context, st *state) Outcome {
	res, err := interpret.Interpret(st.raw, st.task)
	if err != nil {
		return r.fail(st, notify.CategoryGeneration, err)
	}
	st.interp = res
	st.run.PlanSource = res.Source
	if res.Source != models.PlanSourceDirect {
		r.ui().Warning("Model reply needed %s handling: %v", res.Source, res.ParseErr)
	}
	return next(map[string]string{"source": string(res.Source), "files": strconv.Itoa(len(res.Plan.Files))})
}

func (r *Runner) applyStage(_ context.Context, st *state) Outcome {
	plan := st.interp.Plan
	if r.Config.DryRun {
		for _, f := range plan.Files {
			r.ui().DryRunMsg("Would %s %s", f.Action, f.Path)
		}
		return next(map[string]string{"files": strconv.Itoa(len(plan.Files)), "dry_run": "true"})
	}

	rec, err := apply.New(r.fs(), r.workDir()).Apply(plan, st.task)
	if err != nil {
		return r.fail(st, notify.CategoryApply, err)
	}
	st.record = rec
	if r.Scanner != nil {
		r.Scanner.Invalidate(r.workDir())
	}
	for _, f := range rec.AppliedFiles {
		r.ui().Success("%s %s", f.Action, f.Path)
	}

	if r.Checker != nil {
		for _, c := range standards.Failed(r.Checker.Run(r.workDir(), rec)) {
			r.ui().Warning("Check %s: %s", c.Name, c.Detail)
		}
	}
	return next(map[string]string{"files": strconv.Itoa(rec.FilesModified()), "summary": rec.SummaryPath})
}

// BranchName is ai-agent/issue-<n>-<unix seconds>.
func BranchName(issue int, unix int64) string {
	return fmt.Sprintf("ai-agent/issue-%d-%d", issue, unix)
}

// PullRequestBody is the implementation summary plus a closing reference.
func PullRequestBody(issue int, summary string) string {
	return strings.TrimRight(summary, "\n") + fmt.Sprintf("\n\nCloses #%d\n", issue)
}

func (r *Runner) publishStage(ctx context.Context, st *state) Outcome {
	if r.Config.DryRun || r.Config.SkipPublish || st.record == nil {
		return next(map[string]string{"published": "false"})
	}
	if r.Git == nil || r.GitHub == nil {
		return r.fail(st, notify.CategoryPublish, errors.New("git and GitHub clients are required to publish"))
	}

	dir := r.workDir()
	branch := BranchName(st.task.IssueNumber, r.now().Unix())
	if err := r.Git.CreateBranch(dir, branch); err != nil {
		return r.fail(st, notify.CategoryPublish, err)
	}
	st.branched = true
	hash, err := r.Git.CommitAll(dir, fmt.Sprintf("🤖 AI implementation for #%d: %s", st.task.IssueNumber, st.task.Title), r.logsExclude())
	if err != nil {
		return r.fail(st, notify.CategoryPublish, err)
	}
	if err := r.Git.Push(dir, branch); err != nil {
		return r.fail(st, notify.CategoryPublish, err)
	}

	pr, err := r.GitHub.CreatePullRequest(ctx, st.repo, git.NewPullRequest{
		Title: "🤖 AI: " + st.task.Title,
		Body:  PullRequestBody(st.task.IssueNumber, apply.SummaryMarkdown(st.record)),
		Head:  branch,
		Base:  r.baseBranch(),
	})
	if err != nil {
		return r.fail(st, notify.CategoryPublish, err)
	}
	st.pr = pr
	st.run.PRNumber = pr.Number
	st.run.PRURL = pr.URL
	r.ui().Success("Opened PR #%d: %s", pr.Number, pr.URL)

	return next(map[string]string{
		"branch":    branch,
		"commit":    hash,
		"pr_number": strconv.Itoa(pr.Number),
		"pr_url":    pr.URL,
	})
}

// notifyStage links the pull request. Errors are logged; the work is done.
func (r *Runner) notifyStage(ctx context.Context, st *state) Outcome {
	if r.Notifier == nil || st.pr == nil {
		return next(nil)
	}
	if err := r.Notifier.Completed(ctx, st.repo, st.task.IssueNumber, st.pr, st.record); err != nil {
		r.ui().Warning("Post completion comment: %v", err)
		return next(map[string]string{"comment": "failed"})
	}
	return next(map[string]string{"comment": "posted"})
}
