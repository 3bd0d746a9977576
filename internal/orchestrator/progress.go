package orchestrator

import (
	"fmt"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// Tracker records stage transitions of a tracked run. *runstate.Registry
// implements it.
type Tracker interface {
	UpdateStage(runID string, stage runstate.StageID, status runstate.StageStatus, detail string, payload runstate.Payload) error
}

var _ Tracker = (*runstate.Registry)(nil)

// FormatEvent formats a run event as a human-readable status line.
func FormatEvent(ev runstate.Event) string {
	switch e := ev.(type) {
	case runstate.InitEvent:
		return fmt.Sprintf("[%s] run %s queued (%d stages)", e.RunName, e.RunID, len(e.Stages))
	case runstate.RunEvent:
		return fmt.Sprintf("run %s", e.Status)
	case runstate.StageEvent:
		return FormatSnapshot(e.Snapshot)
	case runstate.CompleteEvent:
		return fmt.Sprintf("✓ run %s complete", e.Response.RunName)
	case runstate.ErrorEvent:
		return fmt.Sprintf("✗ run failed: %s", e.Message)
	default:
		return fmt.Sprintf("? unknown event %T", ev)
	}
}

// FormatSnapshot formats one stage snapshot.
func FormatSnapshot(s runstate.StageSnapshot) string {
	switch s.Status {
	case runstate.StageQueued:
		return fmt.Sprintf("  ○ %s (queued)", s.Stage)
	case runstate.StageRunning:
		return fmt.Sprintf("  ● %s...", s.Stage)
	case runstate.StageDone:
		if d := s.DetailText(); d != "" {
			return fmt.Sprintf("  ✓ %s: %s", s.Stage, d)
		}
		return fmt.Sprintf("  ✓ %s complete", s.Stage)
	case runstate.StageError:
		return fmt.Sprintf("  ✗ %s failed: %s", s.Stage, s.DetailText())
	default:
		return fmt.Sprintf("  ? %s (unknown status)", s.Stage)
	}
}
