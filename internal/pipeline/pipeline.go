// Package pipeline runs an inbound issue event through every stage, from
// trigger classification to the pull request and completion comment.
//
// Stages run strictly in order. Each returns an Outcome; a stage that hits
// a fatal error records it through Runner.fail and stops the run, and the
// orchestrator then reports the failure on the issue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/dedupe"
	"github.com/joescharf/agentpipe/internal/git"
	"github.com/joescharf/agentpipe/internal/interpret"
	"github.com/joescharf/agentpipe/internal/llm"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/notify"
	"github.com/joescharf/agentpipe/internal/output"
	"github.com/joescharf/agentpipe/internal/project"
	"github.com/joescharf/agentpipe/internal/standards"
	"github.com/joescharf/agentpipe/internal/store"
	"github.com/joescharf/agentpipe/internal/trigger"
)

// Stage names, in execution order.
const (
	StageTrigger   = "trigger"
	StageDedupe    = "dedupe"
	StageExtract   = "extract"
	StageStart     = "start"
	StagePrepare   = "prepare"
	StageGenerate  = "generate"
	StageInterpret = "interpret"
	StageApply     = "apply"
	StagePublish   = "publish"
	StageNotify    = "notify"
)

// ErrRunFailed wraps the cause of a fatal stage failure.
var ErrRunFailed = errors.New("pipeline run failed")

// Outcome is what a stage hands to the orchestrator.
type Outcome struct {
	Outputs  map[string]string
	Continue bool
}

func next(outputs map[string]string) Outcome {
	return Outcome{Outputs: outputs, Continue: true}
}

// GeneratorFactory builds the generator lazily so a missing credential
// surfaces as a stage failure on the issue.
type GeneratorFactory func(ctx context.Context) (llm.Generator, error)

// Static wraps an existing generator.
func Static(g llm.Generator) GeneratorFactory {
	return func(context.Context) (llm.Generator, error) { return g, nil }
}

// Config holds per-deployment settings.
type Config struct {
	Repo       string // owner/name; the event's repository when empty
	WorkDir    string
	LogsDir    string // relative paths are resolved against WorkDir
	BaseBranch string
	LLMTimeout time.Duration
	DryRun     bool
	// SkipPublish applies the plan but leaves branching, pushing and the PR to the caller.
	SkipPublish bool
}

// Runner wires the stages together. Store, Checker, Git and the GitHub
// client are optional only where noted.
type Runner struct {
	Config       Config
	Classifier   *trigger.Classifier
	Guard        *dedupe.Guard
	NewGenerator GeneratorFactory
	Scanner      *project.Scanner
	Fs           afero.Fs
	Git          git.Client
	GitHub       git.GitHubClient
	Notifier     *notify.Notifier
	Store        store.Store        // optional
	Checker      *standards.Checker // optional
	UI           *output.UI
	Now          func() time.Time
}

// Result summarizes one run.
type Result struct {
	Run     *models.Run
	Task    *models.TaskDescriptor
	Plan    *models.ImplementationPlan
	Record  *models.ChangeRecord
	PR      *models.PullRequest
	Log     *SessionLog
	LogPath string
}

// state is the mutable context threaded through one run.
type state struct {
	event    *models.Event
	repo     string
	run      *models.Run
	stage    string
	task     *models.TaskDescriptor
	raw      string
	interp   *interpret.Result
	record   *models.ChangeRecord
	pr       *models.PullRequest
	claimed  bool
	branched bool
	failure  *notify.Failure
	skipped  string
	log      *SessionLog
}

type namedStage struct {
	name string
	fn   func(ctx context.Context, st *state) Outcome
}

func (r *Runner) stages() []namedStage {
	return []namedStage{
		{StageTrigger, r.triggerStage},
		{StageDedupe, r.dedupeStage},
		{StageExtract, r.extractStage},
		{StageStart, r.startStage},
		{StagePrepare, r.prepareStage},
		{StageGenerate, r.generateStage},
		{StageInterpret, r.interpretStage},
		{StageApply, r.applyStage},
		{StagePublish, r.publishStage},
		{StageNotify, r.notifyStage},
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) ui() *output.UI {
	if r.UI == nil {
		r.UI = output.New()
	}
	return r.UI
}

func (r *Runner) fs() afero.Fs {
	if r.Fs == nil {
		r.Fs = afero.NewOsFs()
	}
	return r.Fs
}

func (r *Runner) workDir() string {
	if r.Config.WorkDir == "" {
		return "."
	}
	return r.Config.WorkDir
}

func (r *Runner) baseBranch() string {
	if r.Config.BaseBranch == "" {
		return "main"
	}
	return r.Config.BaseBranch
}

// logsExclude is the logs dir relative to the work tree, or "" when it lies outside.
func (r *Runner) logsExclude() string {
	rel, err := filepath.Rel(r.workDir(), r.logsDir())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (r *Runner) logsDir() string {
	dir := r.Config.LogsDir
	if dir == "" {
		dir = ".ai-logs"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(r.workDir(), dir)
}

// fail routes a fatal stage error to the orchestrator.
func (r *Runner) fail(st *state, cat notify.Category, err error) Outcome {
	st.failure = &notify.Failure{Stage: st.stage, Category: cat, Err: err}
	return Outcome{Outputs: map[string]string{"error": err.Error()}}
}

// skip ends the run without a failure report.
func skip(st *state, reason string) Outcome {
	st.skipped = reason
	return Outcome{Outputs: map[string]string{"reason": reason}}
}

// Run processes ev. The returned Result is never nil. The error is non-nil
// only when a stage failed fatally; skipped runs return a nil error.
func (r *Runner) Run(ctx context.Context, ev *models.Event) (*Result, error) {
	st := &state{event: ev, repo: r.Config.Repo}
	if st.repo == "" && ev != nil {
		st.repo = ev.Repo()
	}

	st.run = &models.Run{Repo: st.repo, Status: models.RunStatusRunning, Stage: StageTrigger, StartedAt: r.now().UTC()}
	if ev != nil && ev.Issue != nil {
		st.run.IssueNumber = ev.Issue.Number
	}
	r.createRun(ctx, st.run)
	st.log = newSessionLog(st.run)

	for _, s := range r.stages() {
		st.stage = s.name
		st.run.Stage = s.name

		began := r.now()
		out := s.fn(ctx, st)
		st.log.addStage(s.name, began, r.now().Sub(began), out)
		r.ui().VerboseLog("stage %s: continue=%t %v", s.name, out.Continue, out.Outputs)

		if !out.Continue {
			break
		}
	}

	if st.branched {
		r.restoreBase(st)
	}

	var runErr error
	switch {
	case st.failure != nil:
		r.reportFailure(ctx, st)
		st.run.Status = models.RunStatusFailed
		st.run.Reason = fmt.Sprintf("%s: %v", st.failure.Category, st.failure.Err)
		runErr = fmt.Errorf("%w: %s: %w", ErrRunFailed, st.failure.Stage, st.failure.Err)
	case st.skipped != "":
		st.run.Status = models.RunStatusSkipped
		st.run.Reason = st.skipped
	default:
		st.run.Status = models.RunStatusCompleted
	}

	finished := r.now().UTC()
	st.run.FinishedAt = &finished
	r.updateRun(ctx, st.run)

	res := &Result{Run: st.run, Task: st.task, Record: st.record, PR: st.pr, Log: st.log}
	if st.interp != nil {
		res.Plan = st.interp.Plan
	}

	st.log.finish(st.run, st.task, st.interp)
	if !r.Config.DryRun {
		p, err := st.log.Write(r.fs(), r.logsDir())
		if err != nil {
			r.ui().Warning("Write session log: %v", err)
		} else {
			res.LogPath = p
		}
	}
	return res, runErr
}

// restoreBase returns the shared work tree to the base branch so the next
// run starts from it. A failure here is logged; the next run's prepare stage
// reports it on the issue.
func (r *Runner) restoreBase(st *state) {
	if err := r.Git.Checkout(r.workDir(), r.baseBranch()); err != nil {
		r.ui().Warning("Return to %s: %v", r.baseBranch(), err)
		return
	}
	st.branched = false
}

// reportFailure posts the failure comment and releases the local claim.
// Errors here are logged; the run is already failed.
func (r *Runner) reportFailure(ctx context.Context, st *state) {
	f := st.failure
	r.ui().Error("Stage %s failed (%s): %v", f.Stage, f.Category, f.Err)

	if st.repo == "" || st.run.IssueNumber == 0 {
		return
	}
	if r.Notifier != nil {
		if err := r.Notifier.Failure(ctx, st.repo, st.run.IssueNumber, *f); err != nil {
			r.ui().Warning("Post failure notification: %v", err)
		}
	}
	if st.claimed && r.Guard != nil {
		if err := r.Guard.Release(ctx, st.repo, st.run.IssueNumber); err != nil {
			r.ui().Warning("Release claim: %v", err)
		}
	}
}

func (r *Runner) createRun(ctx context.Context, run *models.Run) {
	if r.Store != nil {
		if err := r.Store.CreateRun(ctx, run); err != nil {
			r.ui().Warning("Record run: %v", err)
		}
	}
	if run.ID == "" {
		run.ID = fmt.Sprintf("local-%d", run.StartedAt.UnixNano())
	}
}

func (r *Runner) updateRun(ctx context.Context, run *models.Run) {
	if r.Store == nil {
		return
	}
	if err := r.Store.UpdateRun(ctx, run); err != nil {
		r.ui().Warning("Update run %s: %v", run.ID, err)
	}
}
