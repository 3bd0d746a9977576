package orchestrator

import (
	"testing"

	"github.com/dusk-indust/reelpipe/internal/runstate"
	"github.com/stretchr/testify/assert"
)

func TestFormatSnapshot(t *testing.T) {
	tests := []struct {
		snap runstate.StageSnapshot
		want string
	}{
		{runstate.NewSnapshot(runstate.StageIngest, runstate.StageQueued, "Awaiting execution", nil), "  ○ ingest (queued)"},
		{runstate.NewSnapshot(runstate.StageNarrative, runstate.StageRunning, "", nil), "  ● narrative..."},
		{runstate.NewSnapshot(runstate.StageEditing, runstate.StageDone, "Rendered TikTok master.", nil), "  ✓ editing: Rendered TikTok master."},
		{runstate.NewSnapshot(runstate.StageEditing, runstate.StageDone, "", nil), "  ✓ editing complete"},
		{runstate.NewSnapshot(runstate.StageVoiceover, runstate.StageError, "boom", nil), "  ✗ voiceover failed: boom"},
		{runstate.NewSnapshot(runstate.StageVoiceover, "weird", "", nil), "  ? voiceover (unknown status)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSnapshot(tt.snap))
	}
}

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "[demo] run r1 queued (7 stages)",
		FormatEvent(runstate.InitEvent{RunID: "r1", RunName: "demo", Stages: make([]runstate.StageSnapshot, 7)}))
	assert.Equal(t, "run running", FormatEvent(runstate.RunEvent{RunID: "r1", Status: runstate.RunRunning}))
	assert.Equal(t, "✓ run demo complete",
		FormatEvent(runstate.CompleteEvent{RunID: "r1", Response: runstate.RunResponse{RunName: "demo"}}))
	assert.Equal(t, "✗ run failed: stage editing failed: x",
		FormatEvent(runstate.ErrorEvent{RunID: "r1", Message: "stage editing failed: x"}))
	assert.Equal(t, "  ● ingest...",
		FormatEvent(runstate.StageEvent{RunID: "r1", Snapshot: runstate.NewSnapshot(runstate.StageIngest, runstate.StageRunning, "", nil)}))
}
