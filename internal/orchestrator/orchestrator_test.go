package orchestrator

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
	"github.com/jacopone/brownkit-sub001/internal/config"
	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/phases"
	"github.com/jacopone/brownkit-sub001/internal/storage"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// project is a throwaway repository with one baseline commit on a working
// branch.
type project struct {
	t   *testing.T
	dir string
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	p := &project{t: t, dir: t.TempDir()}
	p.git("init", "-q")
	p.git("config", "user.name", "Test User")
	p.git("config", "user.email", "test@example.com")
	p.git("config", "commit.gpgsign", "false")
	p.git("symbolic-ref", "HEAD", "refs/heads/brownfield/work")
	if files == nil {
		files = map[string]string{"README.md": "legacy\n"}
	}
	for name, content := range files {
		p.write(name, content)
	}
	p.git("add", "-A")
	p.git("commit", "-q", "-m", "initial commit")
	return p
}

func goFiles() map[string]string {
	return map[string]string{
		"go.mod":  "module example.com/legacy\n\ngo 1.21\n",
		"main.go": "package main\n\n// FIXME: handle signals\nfunc main() {}\n",
	}
}

func (p *project) git(args ...string) string {
	p.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = p.dir
	out, err := cmd.CombinedOutput()
	require.NoError(p.t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func (p *project) write(name, content string) {
	p.t.Helper()
	path := filepath.Join(p.dir, name)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(p.t, os.WriteFile(path, []byte(content), 0644))
}

func (p *project) exists(name string) bool {
	_, err := os.Stat(filepath.Join(p.dir, name))
	return err == nil
}

func (p *project) head() string { return p.git("rev-parse", "HEAD") }

func testSettings() *config.Config {
	s := config.Default()
	s.Retry.MaxAttempts = 2
	s.Retry.InitialBackoff = config.Duration(time.Millisecond)
	s.Retry.MaxBackoff = config.Duration(time.Millisecond)
	s.Retry.TaskTimeout = config.Duration(time.Minute)
	return s
}

type passingValidator struct{}

func (passingValidator) Validate(_ context.Context, _ string, cmds []analysis.Command) (*types.ValidationSummary, error) {
	summary := &types.ValidationSummary{RanAt: time.Now()}
	for _, c := range cmds {
		summary.Results = append(summary.Results, types.ValidationResult{Name: c.Name, Command: strings.Join(c.Args, " "), Passed: true})
	}
	return summary, nil
}

func newWorkflow(t *testing.T, p *project, settings *config.Config, set phases.Set) *Workflow {
	t.Helper()
	if settings == nil {
		settings = testSettings()
	}
	w, err := New(&Config{
		Root:      p.dir,
		Settings:  settings,
		Phases:    set,
		Validator: passingValidator{},
		Sleep:     noSleep(nil),
		Holder:    "test",
	})
	require.NoError(t, err)
	return w
}

func initWorkflow(t *testing.T, w *Workflow) *types.BrownfieldState {
	t.Helper()
	state, err := w.Init(context.Background(), InitOptions{Name: "legacy"})
	require.NoError(t, err)
	return state
}

func loadState(t *testing.T, w *Workflow) *types.BrownfieldState {
	t.Helper()
	state, err := storage.NewStateStore(w.Layout().StatePath(), nil).Load()
	require.NoError(t, err)
	return state
}

func ok(id string, ran *[]string) phases.Task {
	return phases.Task{ID: id, Description: "task " + id, Run: func(context.Context, *phases.Env) (*phases.Result, error) {
		*ran = append(*ran, id)
		return &phases.Result{Artifacts: []string{"ran:" + id}}, nil
	}}
}

func assessmentOnly(t *testing.T, tasks ...phases.Task) phases.Set {
	t.Helper()
	set, err := phases.NewSet(&phases.Definition{Phase: types.PhaseAssessment, Tasks: tasks})
	require.NoError(t, err)
	return set
}

func TestInit(t *testing.T) {
	p := newProject(t, goFiles())
	w := newWorkflow(t, p, nil, nil)
	ctx := context.Background()

	state := initWorkflow(t, w)
	assert.Equal(t, types.PhaseAssessment, state.CurrentPhase)
	assert.Equal(t, "go", state.Project.Language)
	assert.Equal(t, p.head(), state.BaselineCommit)
	assert.FileExists(t, w.Layout().ConfigPath())

	entries, err := w.Decisions("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Start brownfield remediation of legacy", entries[0].Decision)

	_, err = w.Init(ctx, InitOptions{})
	assert.True(t, types.IsInvalidState(err))

	// state lives in an ignored directory
	assert.Empty(t, p.git("status", "--porcelain"))
}

func TestInitRechecksStateUnderLock(t *testing.T) {
	p := newProject(t, nil)
	w := newWorkflow(t, p, nil, nil)
	other := types.NewBrownfieldState(types.ProjectInfo{Name: "first"}, p.head(), time.Now())

	testHookInitLocked = func() {
		require.NoError(t, storage.NewStateStore(w.Layout().StatePath(), nil).Save(other))
	}
	defer func() { testHookInitLocked = nil }()

	_, err := w.Init(context.Background(), InitOptions{Name: "second"})
	assert.True(t, types.IsInvalidState(err))
	assert.Equal(t, "first", loadState(t, w).Project.Name)
	assert.NoFileExists(t, w.Layout().LockPath())
}

func TestInitRejectsUnknownLanguage(t *testing.T) {
	p := newProject(t, nil)
	w := newWorkflow(t, p, nil, nil)
	_, err := w.Init(context.Background(), InitOptions{Language: "cobol"})
	assert.ErrorContains(t, err, "unsupported language")
	assert.False(t, w.Layout().IsInitialized())
}

func TestOperationsRequireInit(t *testing.T) {
	p := newProject(t, nil)
	w := newWorkflow(t, p, nil, nil)
	ctx := context.Background()

	_, err := w.Next(ctx)
	assert.True(t, types.IsStateNotFound(err))
	_, err = w.Status(ctx)
	assert.True(t, types.IsStateNotFound(err))
	assert.NoDirExists(t, w.Layout().StateDir)
}

// An interrupted phase resumes at the first unfinished task and the gates
// are evaluated once every task is done.
func TestInterruptedPhaseResumes(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	ctx, cancel := context.WithCancel(context.Background())
	set := assessmentOnly(t,
		ok("t1", &ran),
		phases.Task{ID: "t2", Description: "task t2", Run: func(context.Context, *phases.Env) (*phases.Result, error) {
			ran = append(ran, "t2")
			cancel()
			return &phases.Result{}, nil
		}},
		ok("t3", &ran),
	)
	w := newWorkflow(t, p, nil, set)
	initWorkflow(t, w)

	out, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, out.Status)
	assert.Equal(t, []string{"t1", "t2"}, ran)
	assert.InDelta(t, 66.67, out.Progress, 0.01)

	state := loadState(t, w)
	cp := state.Checkpoint(types.PhaseAssessment)
	require.NotNil(t, cp)
	assert.True(t, cp.DetectInterruption())
	assert.Equal(t, types.TaskPending, cp.Tasks[2].Status)

	out, err = w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ran)
	require.NotNil(t, out.ReEntry)
	assert.Equal(t, types.ReEntryResumed, out.ReEntry.Action)
	assert.Equal(t, "1 of 3 tasks incomplete", out.ReEntry.Reason)
	assert.Equal(t, 100.0, out.Progress)

	assert.Equal(t, StatusBlocked, out.Status)
	require.NotNil(t, out.Gate)
	assert.False(t, out.Gate.Passed)
	assert.Contains(t, out.Gate.UnmetReasons, "baseline metrics missing")

	state = loadState(t, w)
	assert.Equal(t, types.PhaseAssessment, state.CurrentPhase)
	assert.Equal(t, 1, state.Checkpoint(types.PhaseAssessment).GateFailures)
	require.Len(t, state.ReEntryEvents, 1)
}

func TestResumeRequiresAnInterruptedRun(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)

	_, err := w.Resume(context.Background())
	assert.True(t, types.IsInvalidState(err))
	assert.Empty(t, ran)
}

func TestProtectedBranchBlocksBeforeAnyMutation(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)
	p.git("checkout", "-q", "-b", "main")
	head := p.head()

	_, err := w.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, git.ErrProtectedBranch))
	assert.Empty(t, ran)
	assert.Equal(t, head, p.head())
	assert.Nil(t, loadState(t, w).Checkpoint(types.PhaseAssessment))
}

func TestDirtyWorktreeBlocks(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)
	p.write("scratch.txt", "wip\n")

	_, err := w.Next(context.Background())
	assert.ErrorIs(t, err, git.ErrDirtyWorktree)
	assert.Empty(t, ran)
}

func TestLockContention(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)

	lock, err := storage.AcquireLock(w.Layout().LockPath(), "other")
	require.NoError(t, err)
	defer lock.Release()

	_, err = w.Next(context.Background())
	assert.ErrorIs(t, err, storage.ErrWorkflowInProgress)
	assert.Empty(t, ran)

	// read-only operations do not need the lock
	status, err := w.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.Lock)
	assert.Equal(t, "other", status.Lock.Holder)
}

func writeTask(id, name string) phases.Task {
	return phases.Task{ID: id, Description: "write " + name, Run: func(_ context.Context, env *phases.Env) (*phases.Result, error) {
		if err := os.WriteFile(filepath.Join(env.Root, name), []byte(id+"\n"), 0644); err != nil {
			return nil, err
		}
		return &phases.Result{Files: []string{name}}, nil
	}}
}

// A task that keeps failing aborts the phase: its workflow commits are
// reverted and the next run restarts the failed work.
func TestExhaustedTaskAbortsAndReverts(t *testing.T) {
	p := newProject(t, nil)
	fixed := false
	attempts := 0
	set := assessmentOnly(t,
		writeTask("write-a", "a.txt"),
		phases.Task{ID: "flaky", Description: "flaky", Run: func(_ context.Context, env *phases.Env) (*phases.Result, error) {
			attempts++
			if fixed {
				return &phases.Result{}, nil
			}
			// partial output must not survive the failure
			_ = os.WriteFile(filepath.Join(env.Root, "partial.txt"), []byte("x"), 0644)
			return nil, errors.New("tool crashed")
		}},
	)
	w := newWorkflow(t, p, nil, set)
	initWorkflow(t, w)
	baseline := p.head()

	out, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, types.RunFailed, out.RunState)
	assert.Equal(t, 2, attempts)
	require.NotNil(t, out.Revert)
	assert.Len(t, out.Revert.Reverted, 1)
	var perr *types.PhaseError
	require.ErrorAs(t, out.Err, &perr)
	assert.Equal(t, "flaky", perr.TaskID)

	assert.False(t, p.exists("a.txt"))
	assert.False(t, p.exists("partial.txt"))
	assert.NotEqual(t, baseline, p.head(), "revert mode keeps history")

	state := loadState(t, w)
	last, found := state.LastReEntry(types.PhaseAssessment)
	require.True(t, found)
	assert.Equal(t, types.ReEntryAborted, last.Action)
	cp := state.Checkpoint(types.PhaseAssessment)
	assert.Equal(t, types.TaskPending, cp.Tasks[0].Status)
	assert.Empty(t, cp.Tasks[0].ArtifactRefs)
	assert.Equal(t, types.TaskFailed, cp.Tasks[1].Status)
	assert.Contains(t, cp.Tasks[1].LastError, "tool crashed")

	entries, err := w.Decisions(types.PhaseAssessment)
	require.NoError(t, err)
	assert.Equal(t, types.RiskHigh, entries[len(entries)-1].ChosenRisk)

	fixed = true
	out, err = w.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.ReEntry)
	assert.Equal(t, types.ReEntryRestarted, out.ReEntry.Action)
	assert.True(t, p.exists("a.txt"))
	assert.Equal(t, 100.0, out.Progress)
}

func TestTaskLifecycleIsJournaled(t *testing.T) {
	p := newProject(t, nil)
	calls := 0
	set := assessmentOnly(t, phases.Task{ID: "flaky", Description: "flaky", Run: func(_ context.Context, env *phases.Env) (*phases.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		if err := os.WriteFile(filepath.Join(env.Root, "fixed.txt"), []byte("ok\n"), 0644); err != nil {
			return nil, err
		}
		return &phases.Result{Files: []string{"fixed.txt"}}, nil
	}})
	w := newWorkflow(t, p, nil, set)
	initWorkflow(t, w)
	ctx := context.Background()

	_, err := w.Next(ctx)
	require.NoError(t, err)

	count := func(typ events.EventType) []*events.Event {
		evs, err := w.Activity(ctx, events.Filter{Type: typ})
		require.NoError(t, err)
		return evs
	}
	started := count(events.EventTypeTaskStarted)
	require.Len(t, started, 2)
	assert.Equal(t, "flaky", started[0].TaskID)
	assert.EqualValues(t, 2, started[1].Data["attempt"])

	retried := count(events.EventTypeTaskRetried)
	require.Len(t, retried, 1)
	assert.Equal(t, "transient", retried[0].Data["error"])

	assert.Len(t, count(events.EventTypeTaskCompleted), 1)
	commits := count(events.EventTypeCommitCreated)
	require.Len(t, commits, 1)
	assert.Equal(t, p.head(), commits[0].Data["hash"])

	gates := count(events.EventTypeGateEvaluated)
	require.Len(t, gates, 1)
	assert.Equal(t, false, gates[0].Data["passed"])
}

func TestSkipPolicyContinuesAndGateBlocks(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	settings := testSettings()
	settings.Retry.OnExhausted = config.OnExhaustedSkip
	set := assessmentOnly(t,
		phases.Task{ID: "broken", Description: "broken", Run: func(context.Context, *phases.Env) (*phases.Result, error) {
			return nil, errors.New("nope")
		}},
		ok("after", &ran),
	)
	w := newWorkflow(t, p, settings, set)
	initWorkflow(t, w)

	out, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, out.Skipped)
	assert.Equal(t, []string{"after"}, ran)
	assert.Equal(t, StatusBlocked, out.Status)
	assert.Contains(t, out.Reasons, "assessment tasks incomplete (50% complete)")
	assert.Nil(t, out.Revert)
}

func TestRepeatedGateFailuresEscalate(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	settings := testSettings()
	settings.Gates.MaxGateFailures = 1
	w := newWorkflow(t, p, settings, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)

	out, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, out.Status)

	out, err = w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "failed 2 times")
	last, _ := loadState(t, w).LastReEntry(types.PhaseAssessment)
	assert.Equal(t, types.ReEntryAborted, last.Action)
}

// The built-in phases take a small Go project from assessment to graduation.
func TestFullWorkflowGraduates(t *testing.T) {
	p := newProject(t, goFiles())
	w := newWorkflow(t, p, nil, nil)
	initWorkflow(t, w)
	ctx := context.Background()

	expected := []types.Phase{types.PhasePlan, types.PhaseRemediation, types.PhaseValidation, types.PhaseGraduation}
	for _, next := range expected {
		out, err := w.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, out.Status, "%s: %v", out.Phase, out.Reasons)
		assert.True(t, out.Advanced)
		assert.Equal(t, next, out.NextPhase)
		assert.FileExists(t, out.Report)
	}

	out, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, out.Graduated)

	state := loadState(t, w)
	assert.True(t, state.Graduated)
	assert.True(t, p.exists("smoke_test.go"))
	assert.True(t, p.exists(".golangci.yml"))
	assert.True(t, p.exists("docs/brownfield/graduation-report.md"))
	assert.Empty(t, p.git("status", "--porcelain"))

	commits, err := w.History(ctx)
	require.NoError(t, err)
	assert.Len(t, commits, 8)
	for _, c := range commits {
		assert.True(t, strings.HasPrefix(c.Subject, "[brownfield] "), c.Subject)
	}

	_, err = w.Next(ctx)
	assert.True(t, types.IsInvalidState(err))

	gate, err := w.GatesPreview(ctx)
	require.NoError(t, err)
	assert.Nil(t, gate)

	r, err := w.Report(ctx, types.PhaseGraduation)
	require.NoError(t, err)
	assert.Contains(t, r.ToMarkdown(), "Graduation")

	activity, err := w.Activity(ctx, events.Filter{Type: events.EventTypePhaseCompleted})
	require.NoError(t, err)
	assert.Len(t, activity, 5)
}

func TestForceRevertPhaseRewinds(t *testing.T) {
	p := newProject(t, goFiles())
	w := newWorkflow(t, p, nil, nil)
	initWorkflow(t, w)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := w.Next(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, types.PhaseValidation, loadState(t, w).CurrentPhase)
	require.True(t, p.exists("smoke_test.go"))

	res, err := w.ForceRevert(ctx, RevertOptions{Phase: types.PhaseRemediation})
	require.NoError(t, err)
	assert.Len(t, res.Reverted, 4)
	assert.False(t, p.exists("smoke_test.go"))

	state := loadState(t, w)
	assert.Equal(t, types.PhaseRemediation, state.CurrentPhase)
	assert.Nil(t, state.Checkpoint(types.PhaseRemediation))
	assert.NotNil(t, state.Checkpoint(types.PhasePlan))
	last, _ := state.LastReEntry(types.PhaseRemediation)
	assert.Equal(t, types.ReEntryAborted, last.Action)

	// the phase runs again from scratch
	out, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, p.exists("smoke_test.go"))
}

func TestForceRevertLastN(t *testing.T) {
	p := newProject(t, nil)
	w := newWorkflow(t, p, nil, assessmentOnly(t, writeTask("a", "a.txt"), writeTask("b", "b.txt")))
	initWorkflow(t, w)
	ctx := context.Background()
	_, err := w.Next(ctx)
	require.NoError(t, err)

	_, err = w.ForceRevert(ctx, RevertOptions{})
	assert.True(t, types.IsInvalidState(err))

	res, err := w.ForceRevert(ctx, RevertOptions{LastN: 1})
	require.NoError(t, err)
	require.Len(t, res.Reverted, 1)
	assert.True(t, p.exists("a.txt"))
	assert.False(t, p.exists("b.txt"))

	cp := loadState(t, w).Checkpoint(types.PhaseAssessment)
	assert.Equal(t, types.TaskComplete, cp.Tasks[0].Status)
	assert.Equal(t, types.TaskPending, cp.Tasks[1].Status)
}

func TestStatusAndGatesPreview(t *testing.T) {
	p := newProject(t, goFiles())
	w := newWorkflow(t, p, nil, nil)
	initWorkflow(t, w)
	ctx := context.Background()

	status, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAssessment, status.State.CurrentPhase)
	assert.Nil(t, status.Checkpoint)
	assert.Equal(t, "brownfield/work", status.Branch)
	assert.False(t, status.Protected)
	assert.Nil(t, status.Lock)

	eval, err := w.GatesPreview(ctx)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, types.PhasePlan, eval.To)
	assert.Equal(t, []string{"assessment tasks not started", "baseline metrics missing", "tech debt analysis missing"}, eval.UnmetReasons)
}

func TestReset(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)
	ctx := context.Background()
	_, err := w.Next(ctx)
	require.NoError(t, err)

	archive, err := w.Reset(ctx)
	require.NoError(t, err)
	assert.FileExists(t, archive)
	assert.False(t, w.Layout().IsInitialized())
	assert.NoFileExists(t, w.Layout().CheckpointPath(types.PhaseAssessment))

	entries, err := w.Decisions("")
	require.NoError(t, err)
	assert.Equal(t, "Reset workflow state", entries[len(entries)-1].Decision)

	initWorkflow(t, w)
}

const legacyState = `{
  "schema_version": "1.0.0",
  "project": {"name": "legacy", "path": "/srv/legacy"},
  "phase": "assessment",
  "checkpoints": [],
  "created_at": "2025-01-01T00:00:00Z",
  "updated_at": "2025-01-01T00:00:00Z"
}
`

func TestMigrate(t *testing.T) {
	p := newProject(t, nil)
	settings := testSettings()
	settings.AutoMigrate = false
	var ran []string
	w := newWorkflow(t, p, settings, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)
	require.NoError(t, os.WriteFile(w.Layout().StatePath(), []byte(legacyState), 0644))
	ctx := context.Background()

	_, err := w.Next(ctx)
	assert.True(t, types.NeedsMigration(err))
	assert.ErrorContains(t, err, "brownfield migrate")

	rep, err := w.Migrate(ctx, MigrateOptions{Check: true})
	require.NoError(t, err)
	assert.True(t, rep.Needed)

	rep, err = w.Migrate(ctx, MigrateOptions{})
	require.NoError(t, err)
	require.NotNil(t, rep.Result)
	assert.Equal(t, types.CurrentSchemaVersion, rep.Result.ToVersion)
	assert.Equal(t, types.PhaseAssessment, loadState(t, w).CurrentPhase)

	rep, err = w.Migrate(ctx, MigrateOptions{Rollback: true})
	require.NoError(t, err)
	assert.True(t, rep.RolledBack)
	data, err := os.ReadFile(w.Layout().StatePath())
	require.NoError(t, err)
	assert.Equal(t, legacyState, string(data))
}

func TestAutoMigrateOnOpen(t *testing.T) {
	p := newProject(t, nil)
	var ran []string
	w := newWorkflow(t, p, nil, assessmentOnly(t, ok("t1", &ran)))
	initWorkflow(t, w)
	require.NoError(t, os.WriteFile(w.Layout().StatePath(), []byte(legacyState), 0644))

	_, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ran)
	assert.Equal(t, types.CurrentSchemaVersion, loadState(t, w).SchemaVersion)
}
