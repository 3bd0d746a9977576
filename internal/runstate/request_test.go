package runstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRequest_Validate(t *testing.T) {
	both := []Platform{PlatformInstagram, PlatformTikTok}

	tests := []struct {
		name    string
		req     RunRequest
		wantErr string
	}{
		{"valid", RunRequest{RunName: "spring_2026.v1", Platforms: both}, ""},
		{"single platform", RunRequest{RunName: "x", Platforms: []Platform{PlatformTikTok}}, ""},
		{"empty name", RunRequest{RunName: "", Platforms: both}, "run name"},
		{"slash", RunRequest{RunName: "a/b", Platforms: both}, "run name"},
		{"dotdot", RunRequest{RunName: "..", Platforms: both}, "run name"},
		{"leading dot", RunRequest{RunName: ".hidden", Platforms: both}, "run name"},
		{"space", RunRequest{RunName: "a b", Platforms: both}, "run name"},
		{"no platforms", RunRequest{RunName: "x"}, "at least one platform"},
		{"unknown platform", RunRequest{RunName: "x", Platforms: []Platform{"youtube"}}, "unknown platform"},
		{"duplicate platform", RunRequest{RunName: "x", Platforms: []Platform{PlatformTikTok, PlatformTikTok}}, "duplicate platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunRequest_WithDefaults(t *testing.T) {
	got := RunRequest{RunName: "  padded  "}.WithDefaults()
	assert.Equal(t, "padded", got.RunName)
	assert.Equal(t, []Platform{PlatformInstagram, PlatformTikTok}, got.Platforms)
	assert.Equal(t, DefaultKeywords, got.Keywords)

	// An explicit empty keyword list is preserved.
	got = RunRequest{Keywords: []string{}}.WithDefaults()
	assert.Equal(t, DefaultRunName, got.RunName)
	assert.NotNil(t, got.Keywords)
	assert.Empty(t, got.Keywords)

	// Repeated platforms keep their first position.
	got = RunRequest{Platforms: []Platform{PlatformTikTok, PlatformInstagram, PlatformTikTok}}.WithDefaults()
	assert.Equal(t, []Platform{PlatformTikTok, PlatformInstagram}, got.Platforms)
	assert.NoError(t, got.Validate())
}

func TestRunRequest_WithDefaultsDoesNotAlias(t *testing.T) {
	notes := "for the spring campaign"
	in := RunRequest{RunName: "x", Platforms: []Platform{PlatformTikTok}, Keywords: []string{"k"}, Notes: &notes}
	out := in.WithDefaults()

	out.Keywords[0] = "changed"
	out.Platforms[0] = PlatformInstagram
	*out.Notes = "changed"

	assert.Equal(t, "k", in.Keywords[0])
	assert.Equal(t, PlatformTikTok, in.Platforms[0])
	assert.Equal(t, "for the spring campaign", notes)

	// Default keywords are copied too.
	d := RunRequest{}.WithDefaults()
	d.Keywords[0] = "changed"
	assert.Equal(t, "luxury education", DefaultKeywords[0])
}

func TestRunRequest_HasPlatform(t *testing.T) {
	req := RunRequest{Platforms: []Platform{PlatformTikTok}}
	assert.True(t, req.HasPlatform(PlatformTikTok))
	assert.False(t, req.HasPlatform(PlatformInstagram))
}

func TestStages_OrderAndIndex(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 7)
	assert.Equal(t, StageIngest, stages[0])
	assert.Equal(t, StageCompleted, stages[6])
	for i, s := range stages {
		assert.Equal(t, i, s.Index())
	}
	assert.Equal(t, -1, StageID("nope").Index())

	stages[0] = "mutated"
	assert.Equal(t, StageIngest, Stages()[0])
}

func TestRunStatus_CanTransition(t *testing.T) {
	assert.True(t, RunQueued.CanTransition(RunRunning))
	assert.True(t, RunQueued.CanTransition(RunError))
	assert.False(t, RunQueued.CanTransition(RunCompleted))
	assert.True(t, RunRunning.CanTransition(RunCompleted))
	assert.True(t, RunRunning.CanTransition(RunError))
	assert.False(t, RunRunning.CanTransition(RunQueued))
	assert.False(t, RunCompleted.CanTransition(RunError))
	assert.False(t, RunError.CanTransition(RunRunning))
}
