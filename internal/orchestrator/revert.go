package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// RevertOptions selects what an operator-requested revert undoes. Exactly
// one field must be set.
type RevertOptions struct {
	Commit string      // undo every workflow commit after this one
	LastN  int         // undo the N most recent workflow commits
	Phase  types.Phase // undo a phase and everything after it, then rewind to it
}

// ForceRevert undoes workflow commits on operator request and brings the
// checkpoints back in line with the repository.
func (w *Workflow) ForceRevert(ctx context.Context, opts RevertOptions) (*git.RevertResult, error) {
	set := 0
	for _, given := range []bool{opts.Commit != "", opts.LastN > 0, opts.Phase != ""} {
		if given {
			set++
		}
	}
	if set != 1 {
		return nil, types.NewInvalidState("revert", "exactly one of commit, last-N or phase must be given")
	}

	s, err := w.open(ctx, exclusive)
	if err != nil {
		return nil, err
	}
	defer s.close()

	target := git.RevertTarget{Commit: opts.Commit, LastN: opts.LastN}
	reason := "operator requested revert " + target.String()
	if opts.Phase != "" {
		if !opts.Phase.IsValid() {
			return nil, types.NewInvalidState("revert", "unknown phase %q", opts.Phase)
		}
		cp := s.state.Checkpoint(opts.Phase)
		if cp == nil {
			return nil, types.NewInvalidState("revert", "phase %s has not started", opts.Phase)
		}
		base := cp.BaseCommit
		if base == "" {
			base = s.state.BaselineCommit
		}
		target = git.RevertTarget{Commit: base}
		reason = fmt.Sprintf("operator requested revert of %s", opts.Phase)
	}

	res, err := s.revert(ctx, target)
	if err != nil {
		return nil, err
	}
	if opts.Phase != "" {
		if err := s.state.RewindTo(opts.Phase, s.now()); err != nil {
			return res, err
		}
		delete(s.state.Checkpoints, opts.Phase)
		if err := s.store.Checkpoints.Delete(opts.Phase); err != nil {
			return res, err
		}
	}
	if err := s.aborted(ctx, s.state.CurrentPhase, reason, res); err != nil {
		return res, err
	}
	return res, nil
}

// revert runs AutoRevert against target and reconciles the checkpoints with
// what was undone. A failed revert is fatal and left for the operator.
func (s *session) revert(ctx context.Context, target git.RevertTarget) (*git.RevertResult, error) {
	phase := s.state.CurrentPhase
	ar, err := git.NewAutoRevert(&git.AutoRevertConfig{
		Repo:     s.repo,
		Guard:    s.guard,
		History:  s.history,
		Prefix:   s.w.settings.CommitPrefix,
		Baseline: s.state.BaselineCommit,
		Mode:     git.RevertMode(s.w.settings.RevertMode),
	})
	if err != nil {
		return nil, err
	}

	res, err := ar.Revert(ctx, target)
	if err != nil {
		data := events.RevertData{Mode: s.w.settings.RevertMode, Target: target.String(), Error: err.Error()}
		var rerr *git.RevertError
		if errors.As(err, &rerr) {
			data.Head = rerr.Reached
			data.Reverted = rerr.Reverted
		}
		s.logger.Error("auto-revert failed, manual intervention required",
			zap.String("target", target.String()),
			zap.Error(err))
		s.recordData(ctx)(events.NewRevertEvent(phase, "auto-revert failed", data))
		return nil, err
	}

	s.applyRevert(res)
	hashes := make([]string, len(res.Reverted))
	for i, c := range res.Reverted {
		hashes[i] = c.Hash
	}
	s.recordData(ctx)(events.NewRevertEvent(phase, fmt.Sprintf("reverted %d workflow commits", len(hashes)),
		events.RevertData{Mode: string(res.Mode), Target: res.Target, Reverted: hashes, Head: res.Head}))
	return res, nil
}

// applyRevert resets every task whose commit was undone and rewinds the
// workflow to the earliest phase that lost work.
func (s *session) applyRevert(res *git.RevertResult) {
	reverted := make(map[string]bool, len(res.Reverted))
	for _, c := range res.Reverted {
		reverted[c.Hash] = true
	}
	if len(reverted) == 0 {
		return
	}

	now := s.now()
	var earliest types.Phase
	for _, p := range s.state.SortedPhases() {
		cp := s.state.Checkpoint(p)
		var ids []string
		for _, t := range cp.Tasks {
			for _, ref := range t.ArtifactRefs {
				if hash, ok := strings.CutPrefix(ref, "commit:"); ok && reverted[hash] {
					ids = append(ids, t.ID)
					break
				}
			}
		}
		touched := len(ids) > 0
		if touched {
			if err := cp.ResetTasks(ids, now); err != nil {
				s.logger.Warn("resetting reverted tasks", zap.String("phase", string(p)), zap.Error(err))
			}
		}
		if cp.CompletionCommit != "" && reverted[cp.CompletionCommit] {
			cp.ClearCompletion(now)
			touched = true
		}
		if touched && earliest == "" {
			earliest = p
		}
	}
	if earliest == "" {
		return
	}

	if earliest.Before(s.state.CurrentPhase) {
		s.logger.Warn("rewinding workflow after revert",
			zap.String("from", string(s.state.CurrentPhase)),
			zap.String("to", string(earliest)))
		if err := s.state.RewindTo(earliest, now); err != nil {
			s.logger.Warn("rewinding state", zap.Error(err))
		}
	} else {
		s.state.Graduated = false
		s.state.Touch(now)
	}
}

// aborted records the abort of a phase and persists the reconciled state.
func (s *session) aborted(ctx context.Context, phase types.Phase, reason string, res *git.RevertResult) error {
	s.state.RecordReEntry(phase, reason, types.ReEntryAborted, s.now())
	if err := s.store.DropCheckpoints(s.state.CurrentPhase); err != nil {
		return err
	}
	if err := s.persist(s.state.SortedPhases()...); err != nil {
		return err
	}
	s.recordData(ctx)(events.NewReEntryEvent(phase, fmt.Sprintf("aborted %s: %s", phase, reason),
		events.ReEntryData{Action: types.ReEntryAborted}))

	return s.decide(ctx, types.DecisionEntry{
		Phase:      phase,
		Decision:   fmt.Sprintf("Revert %d workflow commits (%s mode)", len(res.Reverted), res.Mode),
		Rationale:  firstLine(reason),
		ChosenRisk: types.RiskHigh,
		Alternatives: []types.Alternative{{
			Description:    "Keep the workflow commits and fix forward",
			RejectedReason: "changes from an aborted phase are not trusted",
		}},
	})
}
