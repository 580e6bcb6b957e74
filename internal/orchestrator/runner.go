package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/config"
	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/gates"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/phases"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// OutcomeStatus is how one phase invocation ended.
type OutcomeStatus string

const (
	// StatusCompleted means the phase finished and the workflow advanced
	// (or graduated).
	StatusCompleted OutcomeStatus = "completed"
	// StatusBlocked means every task ran but the readiness gates did not
	// pass; the phase stays current.
	StatusBlocked OutcomeStatus = "blocked"
	// StatusFailed means the phase failed for good and its workflow
	// commits were reverted.
	StatusFailed OutcomeStatus = "failed"
	// StatusInterrupted means the invocation was cancelled; the next run
	// resumes from the checkpoint.
	StatusInterrupted OutcomeStatus = "interrupted"
)

// Outcome reports what one invocation of Next or Resume did.
type Outcome struct {
	Phase    types.Phase
	Status   OutcomeStatus
	RunState types.RunState

	// ReEntry is set when the invocation picked up an unfinished run.
	ReEntry *types.ReEntryEvent

	Progress  float64
	Gate      *gates.Evaluation
	Reasons   []string // why the phase did not advance
	Advanced  bool
	NextPhase types.Phase
	Graduated bool

	Commits []string // workflow commits created by this invocation
	Skipped []string // tasks marked failed under the skip policy
	Report  string   // report written on completion
	Revert  *git.RevertResult
	Err     error // the phase failure behind StatusFailed
}

func (o *Outcome) transition(to types.RunState) error {
	if !o.RunState.CanTransitionTo(to) {
		return types.NewInvalidState("run phase", "cannot move invocation of %s from %s to %s", o.Phase, o.RunState, to)
	}
	o.RunState = to
	return nil
}

// Next runs the current phase: it starts or re-enters the checkpoint, runs
// every runnable task and evaluates the gates to the next phase.
func (w *Workflow) Next(ctx context.Context) (*Outcome, error) {
	s, err := w.open(ctx, exclusive)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return s.runPhase(ctx, false)
}

// Resume continues an interrupted or failed run of the current phase. Unlike
// Next it refuses to start a phase that has no checkpoint.
func (w *Workflow) Resume(ctx context.Context) (*Outcome, error) {
	s, err := w.open(ctx, exclusive)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return s.runPhase(ctx, true)
}

func (s *session) runPhase(ctx context.Context, resumeOnly bool) (*Outcome, error) {
	state := s.state
	phase := state.CurrentPhase
	out := &Outcome{Phase: phase, RunState: types.RunNotStarted}
	op := "next"
	if resumeOnly {
		op = "resume"
	}

	if state.Graduated {
		return nil, types.NewInvalidState(op, "project %s has already graduated", state.Project.Name)
	}
	def, err := s.w.phases.For(phase)
	if err != nil {
		return nil, err
	}
	if err := s.preflight(ctx); err != nil {
		s.record(ctx, events.NewEvent(events.EventTypePhaseBlocked, phase, "", events.SeverityWarning, err.Error()))
		return nil, err
	}

	cp := state.Checkpoint(phase)
	switch {
	case cp == nil:
		if resumeOnly {
			return nil, types.NewInvalidState(op, "phase %s has not started; run 'brownfield next'", phase)
		}
		head, err := s.repo.Head(ctx)
		if err != nil {
			return nil, err
		}
		if cp, err = state.StartCheckpoint(phase, def.Specs(), head, s.now()); err != nil {
			return nil, err
		}
		if err := s.persist(phase); err != nil {
			return nil, err
		}
		s.logger.Info("phase started", zap.String("phase", string(phase)), zap.Int("tasks", len(cp.Tasks)))
		s.record(ctx, events.NewEvent(events.EventTypePhaseStarted, phase, "", events.SeverityInfo,
			fmt.Sprintf("%s started with %d tasks", phase.Title(), len(cp.Tasks))))

	case cp.DetectInterruption() || cp.HasFailures():
		ev, err := s.reenter(ctx, cp)
		if err != nil {
			return nil, err
		}
		out.ReEntry = &ev

	default:
		if resumeOnly {
			return nil, types.NewInvalidState(op, "phase %s has no interrupted tasks; run 'brownfield next'", phase)
		}
	}
	if err := out.transition(types.RunInProgress); err != nil {
		return nil, err
	}

	for task := cp.NextRunnable(); task != nil; task = cp.NextRunnable() {
		if ctx.Err() != nil {
			return s.interrupted(ctx, out, cp)
		}
		spec, ok := def.Lookup(task.ID)
		if !ok {
			return nil, types.NewInvalidState(op, "task %q is not defined for phase %s", task.ID, phase)
		}
		taskErr, err := s.runTask(ctx, cp, spec, out)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx, out, cp)
			}
			return nil, err
		}
		if taskErr == nil {
			continue
		}
		if s.w.settings.Retry.OnExhausted == config.OnExhaustedSkip {
			out.Skipped = append(out.Skipped, task.ID)
			continue
		}
		return s.fail(ctx, out, cp, &types.PhaseError{
			Phase:  phase,
			TaskID: task.ID,
			Reason: "task failed",
			Err:    taskErr,
		})
	}

	out.Progress = cp.ProgressPercentage()
	return s.finish(ctx, out, cp)
}

// preflight surfaces the repository conditions that block a run. Nothing
// has been mutated when it fails.
func (s *session) preflight(ctx context.Context) error {
	if err := s.guard.Require(ctx); err != nil {
		return err
	}
	if err := s.repo.CheckConflicts(ctx); err != nil {
		return err
	}
	status, err := s.repo.GetStatus(ctx)
	if err != nil {
		return err
	}
	if status.HasChanges {
		return fmt.Errorf("%w: %s (commit or stash them first)", git.ErrDirtyWorktree, strings.Join(status.Paths(), ", "))
	}
	return nil
}

// reenter records how an unfinished run is picked up. Failed tasks, or a
// run that ended in an abort, restart; anything else resumes where it
// stopped.
func (s *session) reenter(ctx context.Context, cp *types.PhaseCheckpoint) (types.ReEntryEvent, error) {
	var pending []string
	for _, t := range cp.Tasks {
		if t.Status != types.TaskComplete {
			pending = append(pending, t.ID)
		}
	}
	reason := fmt.Sprintf("%d of %d tasks incomplete", len(pending), len(cp.Tasks))

	action := types.ReEntryResumed
	if last, ok := s.state.LastReEntry(cp.Phase); cp.HasFailures() || (ok && last.Action == types.ReEntryAborted) {
		action = types.ReEntryRestarted
		if reset := cp.ResetFailed(s.now()); len(reset) > 0 {
			reason += fmt.Sprintf("; retrying failed tasks %s", strings.Join(reset, ", "))
		}
	}

	ev := s.state.RecordReEntry(cp.Phase, reason, action, s.now())
	if err := s.persist(cp.Phase); err != nil {
		return ev, err
	}
	s.logger.Info("re-entering phase",
		zap.String("phase", string(cp.Phase)),
		zap.String("action", string(action)),
		zap.String("reason", reason))
	s.recordData(ctx)(events.NewReEntryEvent(cp.Phase, fmt.Sprintf("%s %s: %s", action, cp.Phase, reason),
		events.ReEntryData{Action: action, ResumedTaskIDs: pending}))
	return ev, nil
}

// runTask executes one task under the retry policy. taskErr is the task's
// final failure; err means the run must stop with the task left in
// progress.
func (s *session) runTask(ctx context.Context, cp *types.PhaseCheckpoint, task phases.Task, out *Outcome) (taskErr error, err error) {
	env := s.env()
	phase := cp.Phase
	var (
		result  *phases.Result
		attempt int
		started time.Time
	)

	runErr := s.w.retry.run(ctx, s.w.sleep,
		func(n int, err error, wait time.Duration) {
			if rerr := cp.RecordAttemptError(task.ID, err.Error(), s.now()); rerr != nil {
				s.logger.Warn("recording attempt error", zap.Error(rerr))
			}
			if perr := s.persist(phase); perr != nil {
				s.logger.Warn("persisting attempt error", zap.Error(perr))
			}
			if derr := s.discardChanges(ctx); derr != nil {
				s.logger.Warn("discarding task changes", zap.Error(derr))
			}
			s.logger.Warn("task attempt failed, retrying",
				zap.String("task", task.ID),
				zap.Int("attempt", n),
				zap.Duration("backoff", wait),
				zap.Error(err))
			s.recordData(ctx)(events.NewTaskEvent(events.EventTypeTaskRetried, phase, task.ID, events.SeverityWarning,
				fmt.Sprintf("attempt %d of %s failed, retrying in %s", n, task.ID, wait),
				events.TaskData{Attempt: n, Error: err.Error()}))
		},
		func(ctx context.Context, n int) error {
			attempt = n
			if err := cp.StartTask(task.ID, s.now()); err != nil {
				return stop(err)
			}
			if err := s.persist(phase); err != nil {
				return stop(err)
			}
			s.recordData(ctx)(events.NewTaskEvent(events.EventTypeTaskStarted, phase, task.ID, events.SeverityInfo,
				task.Description, events.TaskData{Attempt: n}))
			started = time.Now()
			res, err := task.Run(ctx, env)
			if err != nil {
				return err
			}
			if res == nil {
				res = &phases.Result{}
			}
			result = res
			return nil
		})

	if runErr != nil {
		var st *stopError
		if errors.As(runErr, &st) {
			return nil, st.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err := s.discardChanges(ctx); err != nil {
			s.logger.Warn("discarding failed task changes", zap.Error(err))
		}
		if err := cp.MarkTaskFailed(task.ID, runErr.Error(), s.now()); err != nil {
			return nil, err
		}
		if err := s.persist(phase); err != nil {
			return nil, err
		}
		s.logger.Error("task failed",
			zap.String("phase", string(phase)),
			zap.String("task", task.ID),
			zap.Int("attempts", attempt),
			zap.Error(runErr))
		s.recordData(ctx)(events.NewTaskEvent(events.EventTypeTaskFailed, phase, task.ID, events.SeverityError,
			fmt.Sprintf("%s failed", task.ID), events.TaskData{Attempt: attempt, Error: runErr.Error()}))
		return runErr, nil
	}

	hash, err := s.commit(ctx, phase, task.ID, fmt.Sprintf("%s: %s", phase, task.Description), result.Files)
	if err != nil {
		return nil, err
	}
	refs := append([]string{}, result.Artifacts...)
	if hash != "" {
		refs = append(refs, "commit:"+hash)
		out.Commits = append(out.Commits, hash)
	}
	if err := cp.AddArtifacts(task.ID, refs, s.now()); err != nil {
		return nil, err
	}
	if err := cp.MarkTaskComplete(task.ID, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(phase); err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	s.logger.Info("task completed",
		zap.String("phase", string(phase)),
		zap.String("task", task.ID),
		zap.Int("attempt", attempt),
		zap.Duration("duration", elapsed))
	s.recordData(ctx)(events.NewTaskEvent(events.EventTypeTaskCompleted, phase, task.ID, events.SeverityInfo,
		task.Description, events.TaskData{Attempt: attempt, Duration: elapsed, Artifacts: refs}))

	for _, d := range result.Decisions {
		if d.Phase == "" {
			d.Phase = phase
		}
		if err := s.decide(ctx, d); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// commit records files as one workflow commit. No files, or files without
// changes, yield an empty hash.
func (s *session) commit(ctx context.Context, phase types.Phase, taskID, subject string, files []string) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	hash, err := s.committer.Commit(ctx, subject, files)
	if errors.Is(err, git.ErrNothingToCommit) {
		s.recordData(ctx)(events.NewCommitEvent(events.EventTypeCommitSkipped, phase, taskID,
			"nothing to commit", events.CommitData{Message: s.committer.Message(subject), Files: files}))
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.recordData(ctx)(events.NewCommitEvent(events.EventTypeCommitCreated, phase, taskID,
		fmt.Sprintf("committed %s", git.ShortHash(hash)),
		events.CommitData{Hash: hash, Message: s.committer.Message(subject), Files: files}))
	return hash, nil
}

// interrupted saves the checkpoint after a cancellation. The running task
// stays in progress and its partial changes are discarded.
func (s *session) interrupted(ctx context.Context, out *Outcome, cp *types.PhaseCheckpoint) (*Outcome, error) {
	bg := context.WithoutCancel(ctx)
	if err := s.discardChanges(bg); err != nil {
		s.logger.Warn("discarding interrupted task changes", zap.Error(err))
	}
	if err := s.persist(cp.Phase); err != nil {
		return nil, err
	}
	out.Status = StatusInterrupted
	out.Progress = cp.ProgressPercentage()
	s.logger.Warn("phase interrupted",
		zap.String("phase", string(cp.Phase)),
		zap.Float64("progress", out.Progress))
	return out, nil
}

// finish runs once every task is terminal: it evaluates the gates and
// advances, or graduates after the last phase.
func (s *session) finish(ctx context.Context, out *Outcome, cp *types.PhaseCheckpoint) (*Outcome, error) {
	phase := cp.Phase
	next, ok := phase.Next()
	if !ok {
		return s.graduate(ctx, out, cp)
	}

	in, err := s.collectInputs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx, out, cp)
		}
		return nil, err
	}
	eval, err := s.w.catalog.Evaluate(phase, next, s.state, in)
	if err != nil {
		return nil, err
	}
	out.Gate = eval
	s.recordData(ctx)(events.NewGateEvent(fmt.Sprintf("gates %s -> %s: %s", phase, next, passFail(eval.Passed)),
		events.GateData{From: phase, To: next, Passed: eval.Passed, UnmetReasons: eval.UnmetReasons}))

	if !eval.Passed {
		out.Reasons = eval.UnmetReasons
		failures := cp.RecordGateFailure(s.now())
		s.state.Touch(s.now())
		if err := s.persist(phase); err != nil {
			return nil, err
		}
		if limit := s.w.settings.Gates.MaxGateFailures; limit > 0 && failures > limit {
			return s.fail(ctx, out, cp, &types.PhaseError{
				Phase:  phase,
				Reason: fmt.Sprintf("readiness gates to %s failed %d times: %s", next, failures, strings.Join(eval.UnmetReasons, "; ")),
			})
		}
		out.Status = StatusBlocked
		s.logger.Warn("phase blocked by readiness gates",
			zap.String("phase", string(phase)),
			zap.String("next", string(next)),
			zap.Strings("unmet", eval.UnmetReasons))
		s.record(ctx, events.NewEvent(events.EventTypePhaseBlocked, phase, "", events.SeverityWarning,
			strings.Join(eval.UnmetReasons, "; ")))
		return out, nil
	}

	if err := s.complete(ctx, out, cp, in); err != nil {
		return nil, err
	}
	if err := s.state.AdvancePhase(next, eval.Passed, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(phase); err != nil {
		return nil, err
	}
	if err := s.decide(ctx, types.DecisionEntry{
		Phase:      phase,
		Decision:   fmt.Sprintf("Advance from %s to %s", phase, next),
		Rationale:  fmt.Sprintf("%d readiness gates passed", len(eval.Gates)),
		ChosenRisk: types.RiskLow,
	}); err != nil {
		return nil, err
	}
	if err := out.transition(types.RunCompleted); err != nil {
		return nil, err
	}
	out.Status = StatusCompleted
	out.Advanced = true
	out.NextPhase = next
	s.logger.Info("phase completed", zap.String("phase", string(phase)), zap.String("next", string(next)))
	s.record(ctx, events.NewEvent(events.EventTypePhaseCompleted, phase, "", events.SeverityInfo,
		fmt.Sprintf("%s complete, advanced to %s", phase.Title(), next.Title())))
	return out, nil
}

// graduate closes the last phase. Failed graduation tasks left by the skip
// policy block graduation until they are retried.
func (s *session) graduate(ctx context.Context, out *Outcome, cp *types.PhaseCheckpoint) (*Outcome, error) {
	if cp.HasFailures() {
		out.Status = StatusBlocked
		for _, t := range cp.Tasks {
			if t.Status == types.TaskFailed {
				out.Reasons = append(out.Reasons, fmt.Sprintf("task %s failed: %s", t.ID, t.LastError))
			}
		}
		s.record(ctx, events.NewEvent(events.EventTypePhaseBlocked, cp.Phase, "", events.SeverityWarning,
			strings.Join(out.Reasons, "; ")))
		return out, nil
	}

	in, err := s.collectInputs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx, out, cp)
		}
		return nil, err
	}
	if err := s.complete(ctx, out, cp, in); err != nil {
		return nil, err
	}
	s.state.Graduated = true
	s.state.Touch(s.now())
	if err := s.persist(cp.Phase); err != nil {
		return nil, err
	}

	rationale := "all phases complete"
	if b, m := s.state.Baseline, in.Metrics; b != nil && m != nil {
		rationale = fmt.Sprintf("all phases complete; test ratio %.2f -> %.2f", b.TestRatio, m.TestRatio)
	}
	if err := s.decide(ctx, types.DecisionEntry{
		Phase:      cp.Phase,
		Decision:   fmt.Sprintf("Graduate %s", s.state.Project.Name),
		Rationale:  rationale,
		ChosenRisk: types.RiskLow,
	}); err != nil {
		return nil, err
	}
	if err := out.transition(types.RunCompleted); err != nil {
		return nil, err
	}
	out.Status = StatusCompleted
	out.Graduated = true
	s.logger.Info("project graduated", zap.String("project", s.state.Project.Name))
	s.record(ctx, events.NewEvent(events.EventTypePhaseCompleted, cp.Phase, "", events.SeverityInfo,
		fmt.Sprintf("%s graduated", s.state.Project.Name)))
	return out, nil
}

// complete writes and commits the phase report and stamps the checkpoint.
func (s *session) complete(ctx context.Context, out *Outcome, cp *types.PhaseCheckpoint, in gates.Inputs) error {
	path, err := s.writeReport(cp.Phase, in.Metrics)
	if err != nil {
		return err
	}
	out.Report = path
	hash, err := s.commit(ctx, cp.Phase, "", fmt.Sprintf("%s: complete", cp.Phase), []string{path})
	if err != nil {
		return err
	}
	if hash != "" {
		out.Commits = append(out.Commits, hash)
	}
	cp.MarkCompleted(hash, s.now())
	return nil
}

// fail ends the invocation after an unrecoverable phase failure and reverts
// the phase's workflow commits.
func (s *session) fail(ctx context.Context, out *Outcome, cp *types.PhaseCheckpoint, perr *types.PhaseError) (*Outcome, error) {
	out.Err = perr
	out.Status = StatusFailed
	out.Progress = cp.ProgressPercentage()
	if err := out.transition(types.RunFailed); err != nil {
		return nil, err
	}
	s.logger.Error("phase failed", zap.String("phase", string(cp.Phase)), zap.Error(perr))
	s.record(ctx, events.NewEvent(events.EventTypePhaseFailed, cp.Phase, perr.TaskID, events.SeverityError, perr.Error()))

	if err := s.discardChanges(ctx); err != nil {
		return out, err
	}
	base := cp.BaseCommit
	if base == "" {
		base = s.state.BaselineCommit
	}
	res, err := s.revert(ctx, git.RevertTarget{Commit: base})
	if err != nil {
		return out, err
	}
	out.Revert = res
	if err := s.aborted(ctx, cp.Phase, perr.Error(), res); err != nil {
		return out, err
	}
	return out, nil
}

func passFail(passed bool) string {
	if passed {
		return "passed"
	}
	return "blocked"
}
