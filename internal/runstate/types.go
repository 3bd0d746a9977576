package runstate

import (
	"errors"
	"time"
)

// Sentinel errors returned by the Registry and EventLog.
var (
	ErrRunNotFound       = errors.New("runstate: run not found")
	ErrInvalidTransition = errors.New("runstate: invalid status transition")
	ErrInvalidRequest    = errors.New("runstate: invalid run request")
	ErrLogClosed         = errors.New("runstate: event log closed")
)

// --- Enums ---

// StageID identifies one stage of a pipeline run. The declared order is the
// execution order.
type StageID string

const (
	StageIngest    StageID = "ingest"
	StageNarrative StageID = "narrative"
	StageVoiceover StageID = "voiceover"
	StageEditing   StageID = "editing"
	StagePackaging StageID = "packaging"
	StageAnalytics StageID = "analytics"
	StageCompleted StageID = "completed"
)

var stageOrder = [...]StageID{
	StageIngest,
	StageNarrative,
	StageVoiceover,
	StageEditing,
	StagePackaging,
	StageAnalytics,
	StageCompleted,
}

// Stages returns every StageID in execution order. The returned slice is a
// fresh copy.
func Stages() []StageID {
	out := make([]StageID, len(stageOrder))
	copy(out, stageOrder[:])
	return out
}

// Index returns the position of s in the stage sequence, or -1 if s is not a
// declared stage.
func (s StageID) Index() int {
	for i, id := range stageOrder {
		if id == s {
			return i
		}
	}
	return -1
}

func (s StageID) String() string { return string(s) }

// StageStatus is the state of a single stage within a run.
type StageStatus string

const (
	StageQueued  StageStatus = "queued"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageError   StageStatus = "error"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// IsTerminal returns true once no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunError
}

// CanTransition reports whether a run may move from s to next. Status only
// moves forward: queued → running → completed|error. A queued run may also
// fail directly when orchestration breaks before the first stage.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunQueued:
		return next == RunRunning || next == RunError
	case RunRunning:
		return next == RunCompleted || next == RunError
	default:
		return false
	}
}

// --- Snapshots ---

// Payload is the client-facing projection of a stage result. It is only ever
// built by the per-stage projection functions in the orchestrator and is not
// modified after it is attached to a snapshot.
type Payload map[string]any

// AssetSummary is the reduced view of an ingested asset exposed to clients.
type AssetSummary struct {
	ID        string `json:"id"`
	LocalPath string `json:"local_path"`
	License   string `json:"license"`
}

// StageSnapshot is an immutable record of one stage's state. A new snapshot
// replaces the previous one in the run record.
type StageSnapshot struct {
	Stage   StageID     `json:"stage"`
	Status  StageStatus `json:"status"`
	Detail  *string     `json:"detail"`
	Payload Payload     `json:"payload"`
}

// NewSnapshot builds a snapshot, omitting the detail when it is empty.
func NewSnapshot(stage StageID, status StageStatus, detail string, payload Payload) StageSnapshot {
	snap := StageSnapshot{Stage: stage, Status: status, Payload: payload}
	if detail != "" {
		snap.Detail = &detail
	}
	return snap
}

// DetailText returns the detail string or "" when unset.
func (s StageSnapshot) DetailText() string {
	if s.Detail == nil {
		return ""
	}
	return *s.Detail
}

// --- Outputs ---

// PlatformOutput is the deliverable for a single target platform.
type PlatformOutput struct {
	VideoPath *string  `json:"video_path"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags"`
	CTA       string   `json:"cta"`
}

// AnalyticsSummary carries the engagement heuristics computed for a run.
type AnalyticsSummary struct {
	ExpectedCTR         float64 `json:"expected_ctr"`
	RetentionScore      float64 `json:"retention_score"`
	NarrativeComplexity float64 `json:"narrative_complexity"`
}

// Outputs is the result bundle of a completed run. The zero value is the
// empty bundle reported before a run reaches a terminal status.
type Outputs struct {
	Instagram *PlatformOutput   `json:"instagram,omitempty"`
	TikTok    *PlatformOutput   `json:"tiktok,omitempty"`
	Metadata  Payload           `json:"metadata,omitempty"`
	Analytics *AnalyticsSummary `json:"analytics,omitempty"`
}

// IsEmpty reports whether no output has been recorded.
func (o Outputs) IsEmpty() bool {
	return o.Instagram == nil && o.TikTok == nil && len(o.Metadata) == 0 && o.Analytics == nil
}

// --- Responses ---

// RunResponse is the final result of a pipeline execution.
type RunResponse struct {
	RunName string          `json:"run_name"`
	Stages  []StageSnapshot `json:"stages"`
	Outputs Outputs         `json:"outputs"`
}

// Status is a consistent point-in-time view of a run.
type Status struct {
	RunID     string          `json:"run_id"`
	RunName   string          `json:"run_name"`
	Request   RunRequest      `json:"request"`
	Status    RunStatus       `json:"status"`
	Stages    []StageSnapshot `json:"stages"`
	Outputs   Outputs         `json:"outputs"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
