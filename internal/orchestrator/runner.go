package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// Runner owns tracked execution: it creates runs in the registry, drives
// them through the pipeline in the background and guarantees that every run
// it starts ends in completed or error with its event log closed.
type Runner struct {
	reg      *runstate.Registry
	pipeline *Pipeline
	logger   *slog.Logger

	// base is the parent context of every background run. Cancelling it
	// (process shutdown) fails in-flight runs.
	base context.Context
	wg   sync.WaitGroup
}

// NewRunner returns a Runner whose background runs derive from ctx rather
// than from any request context.
func NewRunner(ctx context.Context, reg *runstate.Registry, p *Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{reg: reg, pipeline: p, logger: logger, base: ctx}
}

// Registry returns the registry runs are recorded in.
func (r *Runner) Registry() *runstate.Registry { return r.reg }

// Submit registers req and starts executing it in the background. It returns
// as soon as the run exists, with the init event already published.
func (r *Runner) Submit(req runstate.RunRequest) (runstate.Status, error) {
	st, err := r.reg.Create(req)
	if err != nil {
		return runstate.Status{}, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.ExecuteTracked(r.base, st.RunID, st.Request)
	}()

	r.logger.Info("run submitted", "run_id", st.RunID, "run_name", st.RunName)
	return st, nil
}

// ExecuteTracked runs req as runID and finalizes the run. Stage failures and
// orchestration defects, panics included, mark the run as error; nothing
// escapes this call with the run still open.
//
// A run that is no longer queued belongs to another execution: the call
// returns ErrInvalidTransition and leaves that run untouched.
func (r *Runner) ExecuteTracked(ctx context.Context, runID string, req runstate.RunRequest) (err error) {
	log := r.logger.With("run_id", runID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("orchestration panic", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("orchestrator: orchestration defect: %v", rec)
			r.finalizeFailed(log, runID, err.Error())
		}
	}()

	if err := r.reg.MarkStarted(runID); err != nil {
		if errors.Is(err, runstate.ErrInvalidTransition) {
			log.Warn("run not started", "err", err)
			return err
		}
		r.finalizeFailed(log, runID, err.Error())
		return err
	}

	resp, err := r.pipeline.Run(ctx, runID, req)
	if err != nil {
		log.Error("pipeline run failed", "err", err)
		r.finalizeFailed(log, runID, err.Error())
		return err
	}

	if err := r.reg.MarkCompleted(runID, resp); err != nil {
		log.Error("mark completed", "err", err)
		r.finalizeFailed(log, runID, err.Error())
		return err
	}
	return nil
}

// finalizeFailed closes the run as error. A stage still reported as running
// is moved to error first so no snapshot outlives the run in a live state.
func (r *Runner) finalizeFailed(log *slog.Logger, runID, msg string) {
	if st, err := r.reg.Get(runID); err == nil && !st.Status.IsTerminal() {
		for _, snap := range st.Stages {
			if snap.Status != runstate.StageRunning {
				continue
			}
			if err := r.reg.UpdateStage(runID, snap.Stage, runstate.StageError, msg, nil); err != nil {
				log.Warn("stage update rejected", "stage", snap.Stage, "err", err)
			}
		}
	}
	if err := r.reg.MarkFailed(runID, msg); err != nil {
		log.Warn("mark failed", "err", err)
	}
}

// Wait blocks until every submitted run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// RunJanitor prunes runs that reached a terminal status more than ttl ago,
// checking every interval, until ctx is done. It always returns nil so it can
// run inside an errgroup next to the HTTP server.
func (r *Runner) RunJanitor(ctx context.Context, ttl, interval time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := r.reg.Prune(now.UTC().Add(-ttl)); n > 0 {
				r.logger.Info("pruned finished runs", "count", n)
			}
		}
	}
}
