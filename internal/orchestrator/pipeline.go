package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// completedLayout matches the completion timestamp format clients already
// parse: microsecond ISO-8601 in UTC with a literal Z.
const completedLayout = "2006-01-02T15:04:05.000000Z"

// Pipeline drives the fixed stage sequence for a run. It holds no per-run
// state and is safe for concurrent use by many runs.
type Pipeline struct {
	stages  []stage
	paths   PathRewriter
	tracker Tracker
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline builds a pipeline over ex. outputsDir is the root whose files
// are exposed to clients as "outputs/...".
func NewPipeline(ex Executors, outputsDir string, opts ...Option) (*Pipeline, error) {
	if err := ex.validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	p := &Pipeline{
		paths:  NewPathRewriter(outputsDir),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stages = buildStages(ex, p.paths)
	return p, nil
}

// Paths returns the pipeline's public path rewriter.
func (p *Pipeline) Paths() PathRewriter { return p.paths }

// Run executes every stage in order. When runID is non-empty each transition
// is reported to the tracker; an empty runID runs untracked.
//
// On the first failing stage Run records an error snapshot, skips the rest and
// returns a *StageError. It never panics: executor panics are converted into
// stage failures.
func (p *Pipeline) Run(ctx context.Context, runID string, req runstate.RunRequest) (runstate.RunResponse, error) {
	rc := &RunContext{RunID: runID, Request: req}
	snapshots := make([]runstate.StageSnapshot, 0, len(p.stages)+1)
	log := p.logger.With("run_id", runID, "run_name", req.RunName)

	log.Info("pipeline run started")
	for _, st := range p.stages {
		log.Info("stage started", "stage", st.id)
		p.report(log, runID, runstate.NewSnapshot(st.id, runstate.StageRunning, "", nil))

		// Checked after the running report so every error snapshot follows
		// a running one.
		if err := ctx.Err(); err != nil {
			return runstate.RunResponse{}, p.fail(log, runID, st.id, err)
		}

		detail, payload, err := st.run(ctx, rc)
		if err != nil {
			return runstate.RunResponse{}, p.fail(log, runID, st.id, err)
		}

		snap := runstate.NewSnapshot(st.id, runstate.StageDone, detail, payload)
		snapshots = append(snapshots, snap)
		p.report(log, runID, snap)
		log.Info("stage finished", "stage", st.id)
	}

	done := runstate.NewSnapshot(runstate.StageCompleted, runstate.StageDone,
		"Run finished at "+p.now().UTC().Format(completedLayout), nil)
	snapshots = append(snapshots, done)
	p.report(log, runID, done)
	log.Info("pipeline run finished")

	return runstate.RunResponse{
		RunName: req.RunName,
		Stages:  snapshots,
		Outputs: buildOutputs(rc, p.paths),
	}, nil
}

func (p *Pipeline) fail(log *slog.Logger, runID string, id runstate.StageID, err error) error {
	var pe *PanicError
	if errors.As(err, &pe) {
		log.Error("stage panicked", "stage", id, "err", pe, "stack", string(pe.Stack))
	} else {
		log.Error("stage failed", "stage", id, "err", err)
	}
	p.report(log, runID, runstate.NewSnapshot(id, runstate.StageError, err.Error(), nil))
	return &StageError{Stage: id, Err: err}
}

// report forwards a snapshot to the tracker. Tracker failures are logged and
// never abort the run.
func (p *Pipeline) report(log *slog.Logger, runID string, snap runstate.StageSnapshot) {
	if runID == "" || p.tracker == nil {
		return
	}
	if err := p.tracker.UpdateStage(runID, snap.Stage, snap.Status, snap.DetailText(), snap.Payload); err != nil {
		log.Warn("stage update rejected", "stage", snap.Stage, "status", snap.Status, "err", err)
	}
}
