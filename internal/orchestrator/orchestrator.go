package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// Asset is one stock clip prepared by the ingest stage.
type Asset struct {
	ID          string
	LocalPath   string
	Keywords    []string
	License     string
	SourceURL   string
	Placeholder bool // generated locally because the source was unavailable
}

// IngestResult is the output of the ingest stage.
type IngestResult struct {
	Assets            []Asset
	RequestedKeywords []string
	AssetsDir         string
}

// Placeholders returns how many assets were generated placeholders.
func (r IngestResult) Placeholders() int {
	n := 0
	for _, a := range r.Assets {
		if a.Placeholder {
			n++
		}
	}
	return n
}

// ClipPaths returns the local path of every asset, in selection order.
func (r IngestResult) ClipPaths() []string {
	out := make([]string, 0, len(r.Assets))
	for _, a := range r.Assets {
		if a.LocalPath != "" {
			out = append(out, a.LocalPath)
		}
	}
	return out
}

// NarrativeResult holds the master script and per-platform copy.
type NarrativeResult struct {
	Script            string   `json:"script"`
	InstagramCaption  string   `json:"instagram_caption"`
	InstagramHashtags []string `json:"instagram_hashtags"`
	TikTokCaption     string   `json:"tiktok_caption"`
	TikTokHashtags    []string `json:"tiktok_hashtags"`
	CTA               string   `json:"cta"`
}

// Caption returns the caption written for p.
func (n NarrativeResult) Caption(p runstate.Platform) string {
	if p == runstate.PlatformTikTok {
		return n.TikTokCaption
	}
	return n.InstagramCaption
}

// Hashtags returns the hashtags written for p.
func (n NarrativeResult) Hashtags(p runstate.Platform) []string {
	if p == runstate.PlatformTikTok {
		return n.TikTokHashtags
	}
	return n.InstagramHashtags
}

// VoiceoverStatus reports how the narration audio was obtained.
type VoiceoverStatus string

const (
	VoiceoverGenerated VoiceoverStatus = "generated"
	VoiceoverFallback  VoiceoverStatus = "fallback"
	VoiceoverFailed    VoiceoverStatus = "failed"
)

// VoiceoverResult is the output of the voiceover stage. A failed status is
// not a stage failure: editing proceeds without audio.
type VoiceoverResult struct {
	Path     string
	Status   VoiceoverStatus
	Voice    string
	Provider string
	Source   string // fallback file copied into Path
	Error    string
}

// HasAudio reports whether Path points at usable narration.
func (v VoiceoverResult) HasAudio() bool {
	return v.Path != "" && v.Status != VoiceoverFailed
}

// VideoResult maps each rendered platform to its video file.
type VideoResult struct {
	Videos map[runstate.Platform]string
}

// PackageResult locates the packaged deliverables.
type PackageResult struct {
	MetadataPath string
	BundleDir    string
	ObjectPrefix string // set when the bundle was mirrored to object storage
}

// AnalyticsResult carries the engagement heuristics.
type AnalyticsResult struct {
	ExpectedCTR         float64
	RetentionScore      float64
	NarrativeComplexity float64
}

// EditRequest is the input of the editing stage.
type EditRequest struct {
	RunName   string
	Platforms []runstate.Platform
	Clips     []string
	AudioPath string // empty renders without narration
}

// PackageRequest is the input of the packaging stage.
type PackageRequest struct {
	RunName   string
	Narrative NarrativeResult
	Ingest    IngestResult
	Video     VideoResult
}

// Stage executors. Each one is a blocking call; the pipeline runs it off the
// orchestration goroutine.

type AssetIngester interface {
	Ingest(ctx context.Context, keywords []string) (IngestResult, error)
}

type NarrativeWriter interface {
	Write(ctx context.Context, req runstate.RunRequest) (NarrativeResult, error)
}

type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, runName, script string) (VoiceoverResult, error)
}

type VideoEditor interface {
	Edit(ctx context.Context, req EditRequest) (VideoResult, error)
}

type Packager interface {
	Package(ctx context.Context, req PackageRequest) (PackageResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, script, caption string) (AnalyticsResult, error)
}

// Executors bundles one executor per real stage.
type Executors struct {
	Ingest    AssetIngester
	Narrative NarrativeWriter
	Voiceover VoiceSynthesizer
	Editing   VideoEditor
	Packaging Packager
	Analytics Analyzer
}

func (e Executors) validate() error {
	var errs []error
	check := func(stage runstate.StageID, missing bool) {
		if missing {
			errs = append(errs, fmt.Errorf("no executor for stage %s", stage))
		}
	}
	check(runstate.StageIngest, e.Ingest == nil)
	check(runstate.StageNarrative, e.Narrative == nil)
	check(runstate.StageVoiceover, e.Voiceover == nil)
	check(runstate.StageEditing, e.Editing == nil)
	check(runstate.StagePackaging, e.Packaging == nil)
	check(runstate.StageAnalytics, e.Analytics == nil)
	return errors.Join(errs...)
}

// RunContext accumulates stage results as a run progresses. Each stage reads
// the fields of the stages before it and fills in its own.
type RunContext struct {
	RunID   string
	Request runstate.RunRequest

	Ingest    *IngestResult
	Narrative *NarrativeResult
	Voiceover *VoiceoverResult
	Video     *VideoResult
	Package   *PackageResult
	Analytics *AnalyticsResult
}

// StageError tags an executor failure with the stage that produced it.
type StageError struct {
	Stage runstate.StageID
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
