package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// Test doubles with function fields. A nil field falls back to a canned
// successful result rooted at the fakes' outputs directory.

type fakeIngester struct {
	fn func(ctx context.Context, keywords []string) (IngestResult, error)
}

func (f fakeIngester) Ingest(ctx context.Context, keywords []string) (IngestResult, error) {
	return f.fn(ctx, keywords)
}

type fakeWriter struct {
	fn func(ctx context.Context, req runstate.RunRequest) (NarrativeResult, error)
}

func (f fakeWriter) Write(ctx context.Context, req runstate.RunRequest) (NarrativeResult, error) {
	return f.fn(ctx, req)
}

type fakeVoice struct {
	fn func(ctx context.Context, runName, script string) (VoiceoverResult, error)
}

func (f fakeVoice) Synthesize(ctx context.Context, runName, script string) (VoiceoverResult, error) {
	return f.fn(ctx, runName, script)
}

type fakeEditor struct {
	fn func(ctx context.Context, req EditRequest) (VideoResult, error)
}

func (f fakeEditor) Edit(ctx context.Context, req EditRequest) (VideoResult, error) {
	return f.fn(ctx, req)
}

type fakePackager struct {
	fn func(ctx context.Context, req PackageRequest) (PackageResult, error)
}

func (f fakePackager) Package(ctx context.Context, req PackageRequest) (PackageResult, error) {
	return f.fn(ctx, req)
}

type fakeAnalyzer struct {
	fn func(ctx context.Context, script, caption string) (AnalyticsResult, error)
}

func (f fakeAnalyzer) Analyze(ctx context.Context, script, caption string) (AnalyticsResult, error) {
	return f.fn(ctx, script, caption)
}

// okExecutors returns executors that all succeed, writing nothing to disk.
func okExecutors(outputs string) Executors {
	return Executors{
		Ingest: fakeIngester{fn: func(_ context.Context, kw []string) (IngestResult, error) {
			return IngestResult{
				Assets: []Asset{
					{ID: "a1", LocalPath: filepath.Join(outputs, "downloads", "a1.mp4"), Keywords: []string{"stem kids"}, License: "CC0", SourceURL: "https://cdn.example/a1.mp4"},
					{ID: "a2", LocalPath: "/srv/stock/a2.mp4", Keywords: []string{"family learning"}, License: "Pexels"},
				},
				RequestedKeywords: kw,
				AssetsDir:         "/srv/stock",
			}, nil
		}},
		Narrative: fakeWriter{fn: func(_ context.Context, req runstate.RunRequest) (NarrativeResult, error) {
			return NarrativeResult{
				Script:            "A short master script for " + req.RunName,
				InstagramCaption:  "ig caption",
				InstagramHashtags: []string{"LuxuryEducation", "FutureMinds"},
				TikTokCaption:     "tt caption",
				TikTokHashtags:    []string{"STEMKids"},
				CTA:               "Book a private tour.",
			}, nil
		}},
		Voiceover: fakeVoice{fn: func(_ context.Context, runName, _ string) (VoiceoverResult, error) {
			return VoiceoverResult{
				Path:     filepath.Join(outputs, "audio", runName+"_voiceover.mp3"),
				Status:   VoiceoverGenerated,
				Voice:    "voice-1",
				Provider: "elevenlabs",
			}, nil
		}},
		Editing: fakeEditor{fn: func(_ context.Context, req EditRequest) (VideoResult, error) {
			videos := make(map[runstate.Platform]string, len(req.Platforms))
			for _, p := range req.Platforms {
				videos[p] = filepath.Join(outputs, req.RunName+"_"+string(p)+".mp4")
			}
			return VideoResult{Videos: videos}, nil
		}},
		Packaging: fakePackager{fn: func(_ context.Context, req PackageRequest) (PackageResult, error) {
			dir := filepath.Join(outputs, req.RunName)
			return PackageResult{MetadataPath: filepath.Join(dir, "metadata.json"), BundleDir: dir}, nil
		}},
		Analytics: fakeAnalyzer{fn: func(context.Context, string, string) (AnalyticsResult, error) {
			return AnalyticsResult{ExpectedCTR: 0.08, RetentionScore: 0.73, NarrativeComplexity: 0.41}, nil
		}},
	}
}

// panicTracker panics on every update to simulate an orchestration defect
// outside the per-stage boundary.
type panicTracker struct{}

func (panicTracker) UpdateStage(string, runstate.StageID, runstate.StageStatus, string, runstate.Payload) error {
	panic("tracker exploded")
}

// recordingTracker records every snapshot it receives.
type recordingTracker struct {
	snaps []runstate.StageSnapshot
}

func (r *recordingTracker) UpdateStage(_ string, stage runstate.StageID, status runstate.StageStatus, detail string, payload runstate.Payload) error {
	r.snaps = append(r.snaps, runstate.NewSnapshot(stage, status, detail, payload))
	return nil
}

// doneBreakingTracker forwards to a registry but panics when a stage is
// reported done, leaving that stage running in the registry.
type doneBreakingTracker struct {
	reg *runstate.Registry
}

func (d doneBreakingTracker) UpdateStage(id string, stage runstate.StageID, status runstate.StageStatus, detail string, payload runstate.Payload) error {
	if status == runstate.StageDone {
		panic("projection exploded")
	}
	return d.reg.UpdateStage(id, stage, status, detail, payload)
}
