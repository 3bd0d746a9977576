package runstate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// queuedDetail is shown for stages that have not started yet.
const queuedDetail = "Awaiting execution"

// NewRunID returns a random, process-unique run identifier (32 hex chars).
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// runRecord holds the mutable state of one run. Only the orchestrator driving
// the run writes to it; readers copy under the read lock.
type runRecord struct {
	mu        sync.RWMutex
	id        string
	name      string
	request   RunRequest
	status    RunStatus
	stages    map[StageID]StageSnapshot
	outputs   Outputs
	events    *EventLog
	createdAt time.Time
	updatedAt time.Time
}

// orderedStagesLocked returns the stage snapshots in sequence order. The
// caller must hold rec.mu.
func (rec *runRecord) orderedStagesLocked() []StageSnapshot {
	out := make([]StageSnapshot, 0, len(stageOrder))
	for _, id := range stageOrder {
		out = append(out, rec.stages[id])
	}
	return out
}

func (rec *runRecord) view() Status {
	rec.mu.RLock()
	defer rec.mu.RUnlock()

	return Status{
		RunID:     rec.id,
		RunName:   rec.name,
		Request:   rec.request.clone(),
		Status:    rec.status,
		Stages:    rec.orderedStagesLocked(),
		Outputs:   rec.outputs,
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}
}

// Registry is the concurrency-safe authority for run identity and state.
// Runs are kept in a map keyed by ID with a separate slice maintaining
// creation order for listing.
type Registry struct {
	mu       sync.RWMutex
	runs     map[string]*runRecord
	orderIDs []string

	newID func() string
	now   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces NewRunID.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// NewRegistry returns an empty Registry ready for use.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		runs:  make(map[string]*runRecord),
		newID: NewRunID,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new run for req. All stages are seeded as queued and the
// init event is on the run's log before the run ID becomes visible to any
// reader.
func (r *Registry) Create(req RunRequest) (Status, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return Status{}, err
	}

	now := r.now()
	rec := &runRecord{
		id:        r.newID(),
		name:      req.RunName,
		request:   req,
		status:    RunQueued,
		stages:    make(map[StageID]StageSnapshot, len(stageOrder)),
		events:    NewEventLog(),
		createdAt: now,
		updatedAt: now,
	}
	for _, id := range stageOrder {
		rec.stages[id] = NewSnapshot(id, StageQueued, queuedDetail, nil)
	}

	if _, err := rec.events.Publish(InitEvent{
		RunID:   rec.id,
		RunName: rec.name,
		Stages:  rec.orderedStagesLocked(),
	}); err != nil {
		return Status{}, fmt.Errorf("runstate: publish init: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.runs[rec.id]; exists {
		r.mu.Unlock()
		return Status{}, fmt.Errorf("runstate: run %q already exists", rec.id)
	}
	r.runs[rec.id] = rec
	r.orderIDs = append(r.orderIDs, rec.id)
	r.mu.Unlock()

	return rec.view(), nil
}

// Get returns a consistent point-in-time view of the run.
func (r *Registry) Get(id string) (Status, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec.view(), nil
}

// Events returns the run's event log for a streaming subscriber.
func (r *Registry) Events(id string) (*EventLog, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec.events, nil
}

// List returns views of every run in creation order.
func (r *Registry) List() []Status {
	r.mu.RLock()
	recs := make([]*runRecord, 0, len(r.orderIDs))
	for _, id := range r.orderIDs {
		recs = append(recs, r.runs[id])
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.view())
	}
	return out
}

// Len returns the number of runs held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// UpdateStage replaces the stage's snapshot and publishes a stage event.
// Unknown runs are ignored so orchestration can outlive registry cleanup.
func (r *Registry) UpdateStage(id string, stage StageID, status StageStatus, detail string, payload Payload) error {
	if stage.Index() < 0 {
		return fmt.Errorf("runstate: unknown stage %q", stage)
	}
	rec, ok := r.lookup(id)
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.status.IsTerminal() {
		return fmt.Errorf("%w: stage %s update on %s run %s", ErrInvalidTransition, stage, rec.status, id)
	}
	snap := NewSnapshot(stage, status, detail, payload)
	rec.stages[stage] = snap
	rec.updatedAt = r.now()
	_, err := rec.events.Publish(StageEvent{RunID: id, Snapshot: snap})
	return err
}

// MarkStarted moves a queued run to running.
func (r *Registry) MarkStarted(id string) error {
	return r.transition(id, RunRunning, nil, nil)
}

// MarkCompleted records the outputs, publishes the run and complete events and
// closes the event log.
func (r *Registry) MarkCompleted(id string, resp RunResponse) error {
	return r.transition(id, RunCompleted, func(rec *runRecord) {
		rec.outputs = resp.Outputs
	}, CompleteEvent{RunID: id, Response: resp})
}

// MarkFailed publishes the run and error events and closes the event log.
func (r *Registry) MarkFailed(id string, message string) error {
	return r.transition(id, RunError, nil, ErrorEvent{RunID: id, Message: message})
}

// transition applies a status change under the run's lock. Terminal
// transitions publish the terminal event and close the log in the same
// critical section, so no reader can see a terminal status with an open log.
func (r *Registry) transition(id string, next RunStatus, apply func(*runRecord), terminal Event) error {
	rec, ok := r.lookup(id)
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.status.CanTransition(next) {
		return fmt.Errorf("%w: run %s from %s to %s", ErrInvalidTransition, id, rec.status, next)
	}
	rec.status = next
	if apply != nil {
		apply(rec)
	}
	rec.updatedAt = r.now()

	if _, err := rec.events.Publish(RunEvent{RunID: id, Status: next}); err != nil {
		return err
	}
	if terminal == nil {
		return nil
	}
	if _, err := rec.events.Publish(terminal); err != nil {
		return err
	}
	return rec.events.Close()
}

// Prune removes terminal runs last updated before cutoff and returns how many
// were removed. Open streams on a pruned run keep draining its closed log.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.orderIDs[:0]
	removed := 0
	for _, id := range r.orderIDs {
		rec := r.runs[id]
		rec.mu.RLock()
		expired := rec.status.IsTerminal() && rec.updatedAt.Before(cutoff)
		rec.mu.RUnlock()
		if expired {
			delete(r.runs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.orderIDs = kept
	return removed
}

func (r *Registry) lookup(id string) (*runRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	return rec, ok
}
