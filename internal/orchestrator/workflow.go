package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/decisions"
	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/gates"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/report"
	"github.com/jacopone/brownkit-sub001/internal/storage"
	"github.com/jacopone/brownkit-sub001/internal/storage/migrations"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// testHookInitLocked runs once Init holds the session lock.
var testHookInitLocked func()

// InitOptions configure a new workflow.
type InitOptions struct {
	Name     string // project name; defaults to the root directory name
	Language string // handler key; empty uses the configured one or detection
}

// Init creates the state for a project in the Assessment phase. The current
// HEAD becomes the baseline commit that reverts never pass.
func (w *Workflow) Init(ctx context.Context, opts InitOptions) (*types.BrownfieldState, error) {
	if w.layout.IsInitialized() {
		return nil, types.NewInvalidState("init", "workflow already initialized at %s", w.layout.StatePath())
	}
	s, err := w.openBare(ctx, exclusive)
	if err != nil {
		return nil, err
	}
	defer s.close()
	if testHookInitLocked != nil {
		testHookInitLocked()
	}
	// Another init may have finished while we waited for the lock.
	if w.layout.IsInitialized() {
		return nil, types.NewInvalidState("init", "workflow already initialized at %s", w.layout.StatePath())
	}

	head, err := s.repo.Head(ctx)
	if err != nil {
		if errors.Is(err, git.ErrNoCommits) {
			return nil, fmt.Errorf("%w: make an initial commit first", err)
		}
		return nil, err
	}

	language := opts.Language
	if language == "" {
		language = w.settings.Language
	}
	if language != "" {
		if _, err := w.registry.Get(language); err != nil {
			return nil, err
		}
	} else {
		h, err := w.registry.Detect(w.layout.Root)
		var unsupported *plugins.UnsupportedLanguageError
		switch {
		case err == nil:
			language = h.Name()
		case errors.As(err, &unsupported):
			s.logger.Warn("no language handler detected; assessment will fail until one is configured")
		default:
			return nil, err
		}
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(w.layout.Root)
	}
	s.state = types.NewBrownfieldState(types.ProjectInfo{Name: name, Path: w.layout.Root, Language: language}, head, s.now())
	if err := s.store.State.Save(s.state); err != nil {
		return nil, err
	}
	if _, err := os.Stat(w.layout.ConfigPath()); os.IsNotExist(err) {
		if err := w.settings.Save(w.layout.ConfigPath()); err != nil {
			return nil, err
		}
	}

	s.logger.Info("workflow initialized",
		zap.String("project", name),
		zap.String("language", language),
		zap.String("baseline", git.ShortHash(head)))
	s.record(ctx, events.NewEvent(events.EventTypeWorkflowInitialized, types.PhaseAssessment, "", events.SeverityInfo,
		fmt.Sprintf("initialized %s at baseline %s", name, git.ShortHash(head))))
	if err := s.decide(ctx, types.DecisionEntry{
		Phase:      types.PhaseAssessment,
		Decision:   fmt.Sprintf("Start brownfield remediation of %s", name),
		Rationale:  fmt.Sprintf("baseline commit %s; workflow commits are prefixed %q", git.ShortHash(head), w.settings.CommitPrefix),
		ChosenRisk: types.RiskLow,
	}); err != nil {
		return nil, err
	}
	return s.state, nil
}

// StatusReport is a read-only view of the workflow.
type StatusReport struct {
	State       *types.BrownfieldState
	Checkpoint  *types.PhaseCheckpoint // current phase, nil before it starts
	Progress    float64
	Interrupted bool
	LastReEntry *types.ReEntryEvent
	Branch      string
	Protected   bool
	Lock        *storage.SessionLock // active session, if any
}

// Status reads the state without taking the lock or writing anything.
func (w *Workflow) Status(ctx context.Context) (*StatusReport, error) {
	s, err := w.open(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	defer s.close()

	r := &StatusReport{State: s.state}
	if cp := s.state.Checkpoint(s.state.CurrentPhase); cp != nil {
		r.Checkpoint = cp
		r.Progress = cp.ProgressPercentage()
		r.Interrupted = cp.DetectInterruption()
	}
	if ev, ok := s.state.LastReEntry(s.state.CurrentPhase); ok {
		r.LastReEntry = &ev
	}
	if r.Protected, r.Branch, err = s.guard.CheckProtected(ctx); err != nil {
		return nil, err
	}
	if lock, err := storage.ReadLock(w.layout.LockPath()); err == nil {
		r.Lock = lock
	}
	return r, nil
}

// GatesPreview evaluates the gates out of the current phase without running
// anything. It returns nil once the workflow is at its last phase.
func (w *Workflow) GatesPreview(ctx context.Context) (*gates.Evaluation, error) {
	s, err := w.open(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	defer s.close()

	in, err := s.collectInputs(ctx)
	if err != nil {
		return nil, err
	}
	return w.catalog.EvaluateNext(s.state, in)
}

// History lists the workflow commits, oldest first.
func (w *Workflow) History(ctx context.Context) ([]git.CommitInfo, error) {
	repo, err := git.Open(ctx, &git.Config{Path: w.layout.Root, Logger: w.logger})
	if err != nil {
		return nil, err
	}
	return git.NewHistoryTracker(repo, w.settings.CommitPrefix).GetBrownfieldCommits(ctx)
}

// Decisions reads the decision log, optionally limited to one phase.
func (w *Workflow) Decisions(phase types.Phase) ([]types.DecisionEntry, error) {
	entries, err := decisions.ReadEntries(w.layout.DecisionsPath())
	if err != nil {
		return nil, err
	}
	if phase == "" {
		return entries, nil
	}
	if !phase.IsValid() {
		return nil, types.NewInvalidState("decisions", "unknown phase %q", phase)
	}
	return decisions.FilterByPhase(entries, phase), nil
}

// Report renders the report of a phase from the current state. Validation
// and graduation reports compare against freshly collected metrics.
func (w *Workflow) Report(ctx context.Context, phase types.Phase) (report.Report, error) {
	if !phase.IsValid() {
		return nil, types.NewInvalidState("report", "unknown phase %q", phase)
	}
	s, err := w.open(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	defer s.close()

	var current *types.Metrics
	if phase == types.PhaseValidation || phase == types.PhaseGraduation {
		if current, err = w.metrics.Collect(ctx, w.layout.Root); err != nil {
			return nil, err
		}
	}
	return report.Build(phase, s.state, current)
}

// Activity lists journaled events matching filter, oldest first.
func (w *Workflow) Activity(ctx context.Context, filter events.Filter) ([]*events.Event, error) {
	if !w.layout.IsInitialized() {
		return nil, &types.StateNotFoundError{Path: w.layout.StatePath()}
	}
	if !w.settings.Journal.Enabled {
		return nil, fmt.Errorf("the event journal is disabled (journal.enabled: false)")
	}
	journal, err := events.OpenJournal(ctx, &events.JournalConfig{Path: w.layout.JournalPath(), Logger: w.logger})
	if err != nil {
		return nil, err
	}
	defer journal.Close()
	return journal.List(ctx, filter)
}

// MigrateOptions select the migration action.
type MigrateOptions struct {
	Check    bool // only report whether a migration is needed
	Rollback bool // restore the pre-migration backup
	Force    bool // roll back even if the state changed since the migration
}

// MigrationReport describes what Migrate found or did.
type MigrationReport struct {
	Needed     bool
	Result     *migrations.Result
	RolledBack bool
}

// Migrate upgrades the state file to the current schema, or rolls back the
// last migration.
func (w *Workflow) Migrate(ctx context.Context, opts MigrateOptions) (*MigrationReport, error) {
	if !w.layout.IsInitialized() {
		return nil, &types.StateNotFoundError{Path: w.layout.StatePath()}
	}
	m := migrations.NewManager(w.logger)
	path := w.layout.StatePath()

	if opts.Check {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading state file: %w", err)
		}
		needed, err := m.CheckMigrationNeeded(data)
		if err != nil {
			return nil, err
		}
		return &MigrationReport{Needed: needed}, nil
	}

	s, err := w.openBare(ctx, exclusive)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if opts.Rollback {
		if err := m.RollbackMigration(path, opts.Force); err != nil {
			return nil, err
		}
		s.record(ctx, events.NewEvent(events.EventTypeStateMigrated, "", "", events.SeverityWarning,
			"state migration rolled back"))
		return &MigrationReport{RolledBack: true}, nil
	}

	res, err := m.MigrateStateFile(path)
	if err != nil {
		return nil, err
	}
	if res.Migrated() {
		s.record(ctx, events.NewEvent(events.EventTypeStateMigrated, "", "", events.SeverityInfo,
			fmt.Sprintf("state migrated from %s to %s (backup %s)", res.FromVersion, res.ToVersion, res.BackupPath)))
	}
	return &MigrationReport{Needed: res.Migrated(), Result: res}, nil
}

// Reset archives the state file and removes every checkpoint artifact. The
// decision log, the journal and the repository history are kept.
func (w *Workflow) Reset(ctx context.Context) (string, error) {
	if !w.layout.IsInitialized() {
		return "", &types.StateNotFoundError{Path: w.layout.StatePath()}
	}
	s, err := w.openBare(ctx, exclusive)
	if err != nil {
		return "", err
	}
	defer s.close()

	phase := types.PhaseAssessment
	if state, err := s.store.State.Load(); err == nil {
		phase = state.CurrentPhase
	} else {
		s.logger.Warn("resetting unreadable state", zap.Error(err))
	}

	archive, err := s.store.State.Archive(s.now())
	if err != nil {
		return "", err
	}
	for _, p := range s.store.Checkpoints.List() {
		if err := s.store.Checkpoints.Delete(p); err != nil {
			return archive, err
		}
	}

	s.record(ctx, events.NewEvent(events.EventTypeStateReset, phase, "", events.SeverityWarning,
		fmt.Sprintf("state archived to %s", filepath.Base(archive))))
	if err := s.decide(ctx, types.DecisionEntry{
		Phase:      phase,
		Decision:   "Reset workflow state",
		Rationale:  fmt.Sprintf("operator requested a reset during %s; previous state archived as %s", phase, filepath.Base(archive)),
		ChosenRisk: types.RiskMedium,
	}); err != nil {
		return archive, err
	}
	return archive, nil
}
