// Package orchestrator drives the remediation workflow. It runs the tasks of
// the current phase under checkpointing, commits what they change, evaluates
// the readiness gates of the next transition and reverts workflow commits
// when a phase fails for good.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
	"github.com/jacopone/brownkit-sub001/internal/config"
	"github.com/jacopone/brownkit-sub001/internal/decisions"
	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/gates"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/phases"
	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/storage"
	"github.com/jacopone/brownkit-sub001/internal/storage/migrations"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Config holds orchestrator configuration
type Config struct {
	Root     string         // project root; defaults to storage.DiscoverProjectRoot
	Settings *config.Config // Optional: defaults to config.Default()
	Logger   *zap.Logger    // Optional: defaults to a no-op logger

	// Optional collaborators, mostly replaced in tests
	Registry  *plugins.Registry
	Phases    phases.Set
	Catalog   *gates.Catalog
	Metrics   analysis.MetricsCollector
	Debt      analysis.TechDebtAnalyzer
	Validator analysis.Validator
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error

	// Holder names the lock owner, e.g. "brownfield next"
	Holder string
}

// Workflow is the entry point for every workflow operation on one project.
type Workflow struct {
	layout    storage.Layout
	settings  *config.Config
	logger    *zap.Logger
	registry  *plugins.Registry
	phases    phases.Set
	catalog   *gates.Catalog
	metrics   analysis.MetricsCollector
	debt      analysis.TechDebtAnalyzer
	validator analysis.Validator
	retry     RetryPolicy
	now       func() time.Time
	sleep     sleepFunc
	holder    string
}

// New creates a workflow for the project at cfg.Root.
func New(cfg *Config) (*Workflow, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root := cfg.Root
	if root == "" {
		var err error
		if root, err = storage.DiscoverProjectRoot(); err != nil {
			return nil, err
		}
	}
	layout, err := storage.NewLayout(root, settings.StateDir)
	if err != nil {
		return nil, err
	}

	w := &Workflow{
		layout:    layout,
		settings:  settings,
		logger:    cfg.Logger,
		registry:  cfg.Registry,
		phases:    cfg.Phases,
		catalog:   cfg.Catalog,
		metrics:   cfg.Metrics,
		debt:      cfg.Debt,
		validator: cfg.Validator,
		retry:     RetryPolicyFromConfig(settings.Retry),
		now:       cfg.Now,
		sleep:     cfg.Sleep,
		holder:    cfg.Holder,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.registry == nil {
		w.registry = plugins.DefaultRegistry()
	}
	if w.phases == nil {
		w.phases = phases.Default()
	}
	if w.catalog == nil {
		w.catalog, err = gates.DefaultCatalog(gates.Thresholds{
			MaxCriticalDebt: settings.Gates.MaxCriticalDebt,
			MinTestRatio:    settings.Gates.MinTestRatio,
		})
		if err != nil {
			return nil, err
		}
	}
	if w.metrics == nil {
		w.metrics = analysis.NewFileMetrics()
	}
	if w.debt == nil {
		w.debt = analysis.NewMarkerAnalyzer()
	}
	if w.validator == nil {
		w.validator = analysis.NewCommandValidator(settings.Validation.Timeout.D(), w.logger)
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	if w.holder == "" {
		w.holder = "brownfield"
	}
	return w, nil
}

// Layout returns the on-disk layout of the project.
func (w *Workflow) Layout() storage.Layout { return w.layout }

// Settings returns the effective configuration.
func (w *Workflow) Settings() *config.Config { return w.settings }

type openMode int

const (
	readOnly openMode = iota
	exclusive
)

// session is one opened workflow: the state, the repository and the sinks
// that record what happens. An exclusive session holds the project lock.
type session struct {
	w         *Workflow
	mode      openMode
	logger    *zap.Logger
	lock      *storage.SessionLock
	store     *storage.Store
	state     *types.BrownfieldState
	repo      *git.Repo
	guard     *git.BranchGuard
	committer *git.SafeCommit
	history   *git.HistoryTracker
	decisions *decisions.Logger
	journal   events.Recorder
	closers   []func() error
}

// open opens a session on an initialized project and loads its state.
func (w *Workflow) open(ctx context.Context, mode openMode) (*session, error) {
	if !w.layout.IsInitialized() {
		return nil, &types.StateNotFoundError{Path: w.layout.StatePath()}
	}
	s, err := w.openBare(ctx, mode)
	if err != nil {
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// openBare opens everything but the state.
func (w *Workflow) openBare(ctx context.Context, mode openMode) (*session, error) {
	s := &session{w: w, mode: mode, logger: w.logger, journal: events.NopRecorder{}}

	store, err := storage.NewStore(&storage.Config{Layout: w.layout, Logger: w.logger})
	if err != nil {
		return nil, err
	}
	s.store = store

	sessionID := uuid.New().String()
	if mode == exclusive {
		lock, err := storage.AcquireLock(w.layout.LockPath(), w.holder)
		if err != nil {
			return nil, err
		}
		s.lock = lock
		s.closers = append(s.closers, lock.Release)
		sessionID = lock.SessionID
	}
	s.logger = w.logger.With(zap.String("session", sessionID[:8]))

	repo, err := git.Open(ctx, &git.Config{Path: w.layout.Root, Logger: s.logger})
	if err != nil {
		s.close()
		return nil, err
	}
	s.repo = repo
	s.guard = git.NewBranchGuard(repo, w.settings.ProtectedBranches)
	s.committer = git.NewSafeCommit(repo, s.guard, w.settings.CommitPrefix)
	s.history = git.NewHistoryTracker(repo, w.settings.CommitPrefix)

	if w.settings.Journal.Enabled {
		journal, err := events.OpenJournal(ctx, &events.JournalConfig{
			Path:      w.layout.JournalPath(),
			SessionID: sessionID,
			Logger:    s.logger,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.journal = journal
		s.closers = append(s.closers, journal.Close)
	}

	s.decisions, err = decisions.NewLogger(&decisions.Config{
		Sink:   decisions.NewMarkdownSink(w.layout.DecisionsPath()),
		Now:    w.now,
		Logger: s.logger,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// load reads the state, migrating and reconciling it when the session may
// write.
func (s *session) load(ctx context.Context) error {
	state, err := s.store.State.Load()
	if types.NeedsMigration(err) {
		if s.mode != exclusive || !s.w.settings.AutoMigrate {
			return fmt.Errorf("%w (run 'brownfield migrate')", err)
		}
		res, merr := migrations.NewManager(s.logger).MigrateStateFile(s.store.State.Path())
		if merr != nil {
			return merr
		}
		s.record(ctx, events.NewEvent(events.EventTypeStateMigrated, "", "", events.SeverityInfo,
			fmt.Sprintf("state migrated from %s to %s (backup %s)", res.FromVersion, res.ToVersion, res.BackupPath)))
		state, err = s.store.State.Load()
	}
	if err != nil {
		return err
	}

	adopted, err := s.store.Reconcile(state)
	if err != nil {
		return err
	}
	s.state = state
	if len(adopted) > 0 && s.mode == exclusive {
		if err := s.store.State.Save(state); err != nil {
			return err
		}
		for _, p := range adopted {
			s.record(ctx, events.NewEvent(events.EventTypeStateReconciled, p, "", events.SeverityWarning,
				fmt.Sprintf("recovered %s checkpoint newer than the state file", p)))
		}
	}
	return nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing session", zap.Error(err))
		}
	}
	s.closers = nil
}

func (s *session) now() time.Time { return s.w.now().UTC() }

// persist writes the checkpoints of the given phases and then the state.
func (s *session) persist(phases ...types.Phase) error {
	return s.store.Persist(s.state, phases...)
}

// record appends an event to the journal. Journal failures are logged and
// never stop the workflow.
func (s *session) record(ctx context.Context, ev *events.Event) {
	if ev == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("failed to record event",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

// recordData adapts record to the constructors that can fail:
// s.recordData(ctx)(events.NewTaskEvent(...)).
func (s *session) recordData(ctx context.Context) func(*events.Event, error) {
	return func(ev *events.Event, err error) {
		if err != nil {
			s.logger.Warn("failed to build event", zap.Error(err))
			return
		}
		s.record(ctx, ev)
	}
}

// decide appends to the decision log and journals it.
func (s *session) decide(ctx context.Context, entry types.DecisionEntry) error {
	stored, err := s.decisions.Record(entry)
	if err != nil {
		return err
	}
	s.record(ctx, events.NewEvent(events.EventTypeDecisionLogged, stored.Phase, "", events.SeverityInfo,
		fmt.Sprintf("decision %s: %s", stored.ID, firstLine(stored.Decision))))
	return nil
}

// env builds the environment handed to phase tasks.
func (s *session) env() *phases.Env {
	var cmds []analysis.Command
	for _, c := range s.w.settings.Validation.Commands {
		cmds = append(cmds, analysis.Command{Name: c.Name, Args: c.Args})
	}
	return &phases.Env{
		Root:      s.w.layout.Root,
		State:     s.state,
		Registry:  s.w.registry,
		Language:  s.w.settings.Language,
		Metrics:   s.w.metrics,
		Debt:      s.w.debt,
		Validator: s.w.validator,
		Commands:  cmds,
		Now:       s.now,
		Logger:    s.logger,
	}
}

// discardChanges restores the working tree to HEAD. The tree is clean when a
// run starts, so anything left is from the task that just failed.
func (s *session) discardChanges(ctx context.Context) error {
	status, err := s.repo.GetStatus(ctx)
	if err != nil {
		return err
	}
	if !status.HasChanges {
		return nil
	}
	s.logger.Info("discarding uncommitted task changes", zap.Strings("paths", status.Paths()))
	return s.repo.Discard(ctx, status.Paths())
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
