package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dusk-indust/reelpipe/internal/runstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, ex Executors, opts ...Option) (*Runner, *runstate.Registry) {
	t.Helper()
	reg := runstate.NewRegistry()
	p, _ := newTestPipeline(t, ex, append([]Option{WithTracker(reg)}, opts...)...)
	r := NewRunner(context.Background(), reg, p, nil)
	t.Cleanup(r.Wait)
	return r, reg
}

func collect(t *testing.T, sub *runstate.Subscription) []runstate.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []runstate.Event
	for {
		env, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, env.Event)
	}
}

func stageEvents(events []runstate.Event) []runstate.StageSnapshot {
	var out []runstate.StageSnapshot
	for _, ev := range events {
		if se, ok := ev.(runstate.StageEvent); ok {
			out = append(out, se.Snapshot)
		}
	}
	return out
}

func terminalCount(events []runstate.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Kind().IsTerminal() {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Submit / ExecuteTracked
// ---------------------------------------------------------------------------

func TestRunner_Submit_CompletesRun(t *testing.T) {
	r, reg := newTestRunner(t, Executors{})

	st, err := r.Submit(demoRequest())
	require.NoError(t, err)
	require.NotEmpty(t, st.RunID)

	log, err := reg.Events(st.RunID)
	require.NoError(t, err)
	events := collect(t, log.Subscribe(0))

	got, err := reg.Get(st.RunID)
	require.NoError(t, err)
	assert.Equal(t, runstate.RunCompleted, got.Status)
	require.Len(t, got.Stages, len(runstate.Stages()))
	for _, s := range got.Stages {
		assert.Equal(t, runstate.StageDone, s.Status, "stage %s", s.Stage)
	}
	assert.False(t, got.Outputs.IsEmpty())

	require.NotEmpty(t, events)
	assert.Equal(t, runstate.EventInit, events[0].Kind())
	assert.Equal(t, runstate.EventRun, events[1].Kind())
	assert.Equal(t, runstate.EventComplete, events[len(events)-1].Kind())
	assert.Equal(t, 1, terminalCount(events))

	// Stage events follow the declared order and never repeat "running"
	// without an intervening done/error.
	lastIdx := -1
	running := ""
	for _, s := range stageEvents(events) {
		assert.GreaterOrEqual(t, s.Stage.Index(), lastIdx)
		lastIdx = s.Stage.Index()
		if s.Status == runstate.StageRunning {
			assert.Empty(t, running, "stage %s running twice", s.Stage)
			running = string(s.Stage)
		} else {
			running = ""
		}
	}

	complete := events[len(events)-1].(runstate.CompleteEvent)
	assert.Equal(t, "demo", complete.Response.RunName)
	assert.Len(t, complete.Response.Stages, len(runstate.Stages()))
}

func TestRunner_Submit_EditingFailure(t *testing.T) {
	ex := okExecutors(t.TempDir())
	ex.Editing = fakeEditor{fn: func(context.Context, EditRequest) (VideoResult, error) {
		return VideoResult{}, errors.New("no decodable clips")
	}}
	r, reg := newTestRunner(t, ex)

	st, err := r.Submit(demoRequest())
	require.NoError(t, err)

	log, _ := reg.Events(st.RunID)
	events := collect(t, log.Subscribe(0))

	got, err := reg.Get(st.RunID)
	require.NoError(t, err)
	assert.Equal(t, runstate.RunError, got.Status)
	assert.True(t, got.Outputs.IsEmpty())

	want := map[runstate.StageID]runstate.StageStatus{
		runstate.StageIngest:    runstate.StageDone,
		runstate.StageNarrative: runstate.StageDone,
		runstate.StageVoiceover: runstate.StageDone,
		runstate.StageEditing:   runstate.StageError,
		runstate.StagePackaging: runstate.StageQueued,
		runstate.StageAnalytics: runstate.StageQueued,
		runstate.StageCompleted: runstate.StageQueued,
	}
	for _, s := range got.Stages {
		assert.Equal(t, want[s.Stage], s.Status, "stage %s", s.Stage)
	}
	assert.Equal(t, "no decodable clips", got.Stages[runstate.StageEditing.Index()].DetailText())

	for _, s := range stageEvents(events) {
		assert.LessOrEqual(t, s.Stage.Index(), runstate.StageEditing.Index(), "no events after the failed stage")
	}
	assert.Equal(t, 1, terminalCount(events))
	errEv, ok := events[len(events)-1].(runstate.ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "stage editing failed")
}

func TestRunner_Submit_RejectsInvalidRequest(t *testing.T) {
	r, reg := newTestRunner(t, Executors{})

	_, err := r.Submit(runstate.RunRequest{RunName: "../../etc"})
	assert.ErrorIs(t, err, runstate.ErrInvalidRequest)
	assert.Zero(t, reg.Len())
}

func TestRunner_ExecuteTracked_RecoversOrchestrationPanic(t *testing.T) {
	reg := runstate.NewRegistry()
	p, _ := newTestPipeline(t, Executors{}, WithTracker(panicTracker{}))
	r := NewRunner(context.Background(), reg, p, nil)

	st, err := reg.Create(demoRequest())
	require.NoError(t, err)

	err = r.ExecuteTracked(context.Background(), st.RunID, st.Request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestration defect")

	got, _ := reg.Get(st.RunID)
	assert.Equal(t, runstate.RunError, got.Status)
	log, _ := reg.Events(st.RunID)
	assert.True(t, log.Closed())
}

func TestRunner_ExecuteTracked_PanicFailsRunningStage(t *testing.T) {
	reg := runstate.NewRegistry()
	p, _ := newTestPipeline(t, Executors{}, WithTracker(doneBreakingTracker{reg: reg}))
	r := NewRunner(context.Background(), reg, p, nil)

	st, err := reg.Create(demoRequest())
	require.NoError(t, err)

	err = r.ExecuteTracked(context.Background(), st.RunID, st.Request)
	require.Error(t, err)

	got, _ := reg.Get(st.RunID)
	assert.Equal(t, runstate.RunError, got.Status)
	ingest := got.Stages[runstate.StageIngest.Index()]
	assert.Equal(t, runstate.StageError, ingest.Status)
	assert.Contains(t, ingest.DetailText(), "orchestration defect")
	for _, s := range got.Stages[1:] {
		assert.Equal(t, runstate.StageQueued, s.Status, "stage %s", s.Stage)
	}
}

func TestRunner_ExecuteTracked_SecondCallLeavesLiveRunAlone(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ex := okExecutors(t.TempDir())
	base := ex.Ingest
	ex.Ingest = fakeIngester{fn: func(ctx context.Context, kw []string) (IngestResult, error) {
		close(started)
		<-release
		return base.Ingest(ctx, kw)
	}}
	r, reg := newTestRunner(t, ex)

	st, err := r.Submit(demoRequest())
	require.NoError(t, err)
	<-started

	err = r.ExecuteTracked(context.Background(), st.RunID, st.Request)
	require.ErrorIs(t, err, runstate.ErrInvalidTransition)

	got, _ := reg.Get(st.RunID)
	assert.Equal(t, runstate.RunRunning, got.Status)
	log, _ := reg.Events(st.RunID)
	assert.False(t, log.Closed())

	close(release)
	events := collect(t, log.Subscribe(0))
	assert.Equal(t, 1, terminalCount(events))
	_, ok := events[len(events)-1].(runstate.CompleteEvent)
	assert.True(t, ok)

	got, _ = reg.Get(st.RunID)
	assert.Equal(t, runstate.RunCompleted, got.Status)
	for _, s := range got.Stages {
		assert.Equal(t, runstate.StageDone, s.Status, "stage %s", s.Stage)
	}
}

func TestRunner_ShutdownFailsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	ex := okExecutors(t.TempDir())
	ex.Narrative = fakeWriter{fn: func(ctx context.Context, _ runstate.RunRequest) (NarrativeResult, error) {
		close(started)
		<-ctx.Done()
		return NarrativeResult{}, ctx.Err()
	}}

	reg := runstate.NewRegistry()
	p, _ := newTestPipeline(t, ex, WithTracker(reg))
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(ctx, reg, p, nil)

	st, err := r.Submit(demoRequest())
	require.NoError(t, err)
	<-started
	cancel()
	r.Wait()

	got, _ := reg.Get(st.RunID)
	assert.Equal(t, runstate.RunError, got.Status)
	assert.Equal(t, runstate.StageError, got.Stages[runstate.StageNarrative.Index()].Status)
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestRunner_TwoSubscribersSeeTerminalEvent(t *testing.T) {
	gate := make(chan struct{})
	ex := okExecutors(t.TempDir())
	base := ex.Ingest
	ex.Ingest = fakeIngester{fn: func(ctx context.Context, kw []string) (IngestResult, error) {
		<-gate
		return base.Ingest(ctx, kw)
	}}
	r, reg := newTestRunner(t, ex)

	st, err := r.Submit(demoRequest())
	require.NoError(t, err)
	log, _ := reg.Events(st.RunID)

	results := make([][]runstate.Event, 2)
	var wg sync.WaitGroup
	for i := range results {
		sub := log.Subscribe(0)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = collect(t, sub)
		}(i)
	}
	close(gate)
	wg.Wait()

	require.NotEmpty(t, results[0])
	assert.Equal(t, results[0], results[1])
	for _, evs := range results {
		assert.Equal(t, runstate.EventComplete, evs[len(evs)-1].Kind())
		assert.Equal(t, 1, terminalCount(evs))
	}
}

func TestRunner_StatusIsMonotonic(t *testing.T) {
	r, reg := newTestRunner(t, Executors{})
	st, err := r.Submit(demoRequest())
	require.NoError(t, err)

	seenTerminal := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := reg.Get(st.RunID)
		require.NoError(t, err)
		if seenTerminal {
			require.True(t, got.Status.IsTerminal(), "status regressed to %s", got.Status)
			break
		}
		if got.Status.IsTerminal() {
			seenTerminal = true
		}
	}
	assert.True(t, seenTerminal)
}

// ---------------------------------------------------------------------------
// Janitor
// ---------------------------------------------------------------------------

func TestRunner_RunJanitorPrunesFinishedRuns(t *testing.T) {
	r, reg := newTestRunner(t, Executors{})
	_, err := r.Submit(demoRequest())
	require.NoError(t, err)
	r.Wait()
	require.Equal(t, 1, reg.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunJanitor(ctx, time.Millisecond, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunner_RunJanitorDisabledWithoutTTL(t *testing.T) {
	r, _ := newTestRunner(t, Executors{})
	assert.NoError(t, r.RunJanitor(context.Background(), 0, time.Second))
}
