package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// stage is one entry of the fixed stage table. run executes the stage's
// executor, stores its result on the RunContext and returns the detail and
// client payload for the done snapshot.
type stage struct {
	id  runstate.StageID
	run func(ctx context.Context, rc *RunContext) (string, runstate.Payload, error)
}

// describe builds a stage from a typed executor call. The executor runs on a
// worker goroutine; store, detail and project run on the caller's goroutine
// once it returns.
func describe[T any](
	id runstate.StageID,
	exec func(context.Context, *RunContext) (T, error),
	store func(*RunContext, T),
	detail func(*RunContext, T) string,
	project func(T) runstate.Payload,
) stage {
	return stage{
		id: id,
		run: func(ctx context.Context, rc *RunContext) (string, runstate.Payload, error) {
			v, err := offload(ctx, func(ctx context.Context) (T, error) {
				return exec(ctx, rc)
			})
			if err != nil {
				return "", nil, err
			}
			store(rc, v)
			return detail(rc, v), project(v), nil
		},
	}
}

// buildStages returns the stage table in execution order.
func buildStages(ex Executors, paths PathRewriter) []stage {
	return []stage{
		describe(runstate.StageIngest,
			func(ctx context.Context, rc *RunContext) (IngestResult, error) {
				return ex.Ingest.Ingest(ctx, rc.Request.Keywords)
			},
			func(rc *RunContext, v IngestResult) { rc.Ingest = &v },
			func(_ *RunContext, v IngestResult) string { return ingestDetail(v) },
			func(v IngestResult) runstate.Payload { return projectIngest(v, paths) },
		),
		describe(runstate.StageNarrative,
			func(ctx context.Context, rc *RunContext) (NarrativeResult, error) {
				return ex.Narrative.Write(ctx, rc.Request)
			},
			func(rc *RunContext, v NarrativeResult) { rc.Narrative = &v },
			func(*RunContext, NarrativeResult) string {
				return "Generated master script and dual-platform captions."
			},
			func(v NarrativeResult) runstate.Payload { return projectNarrative(v, paths) },
		),
		describe(runstate.StageVoiceover,
			func(ctx context.Context, rc *RunContext) (VoiceoverResult, error) {
				return ex.Voiceover.Synthesize(ctx, rc.Request.RunName, rc.Narrative.Script)
			},
			func(rc *RunContext, v VoiceoverResult) { rc.Voiceover = &v },
			func(_ *RunContext, v VoiceoverResult) string {
				status := string(v.Status)
				if status == "" {
					status = "unknown"
				}
				return fmt.Sprintf("Voiceover status: %s.", status)
			},
			func(v VoiceoverResult) runstate.Payload { return projectVoiceover(v, paths) },
		),
		describe(runstate.StageEditing,
			func(ctx context.Context, rc *RunContext) (VideoResult, error) {
				req := EditRequest{
					RunName:   rc.Request.RunName,
					Platforms: rc.Request.Platforms,
					Clips:     rc.Ingest.ClipPaths(),
				}
				if rc.Voiceover.HasAudio() {
					req.AudioPath = rc.Voiceover.Path
				}
				return ex.Editing.Edit(ctx, req)
			},
			func(rc *RunContext, v VideoResult) { rc.Video = &v },
			func(rc *RunContext, _ VideoResult) string { return editingDetail(rc.Request.Platforms) },
			func(v VideoResult) runstate.Payload { return projectVideo(v, paths) },
		),
		describe(runstate.StagePackaging,
			func(ctx context.Context, rc *RunContext) (PackageResult, error) {
				return ex.Packaging.Package(ctx, PackageRequest{
					RunName:   rc.Request.RunName,
					Narrative: *rc.Narrative,
					Ingest:    *rc.Ingest,
					Video:     *rc.Video,
				})
			},
			func(rc *RunContext, v PackageResult) { rc.Package = &v },
			func(*RunContext, PackageResult) string {
				return "Packaged deliverables into metadata bundle."
			},
			func(v PackageResult) runstate.Payload { return projectPackage(v, paths) },
		),
		describe(runstate.StageAnalytics,
			func(ctx context.Context, rc *RunContext) (AnalyticsResult, error) {
				return ex.Analytics.Analyze(ctx, rc.Narrative.Script, primaryCaption(rc))
			},
			func(rc *RunContext, v AnalyticsResult) { rc.Analytics = &v },
			func(*RunContext, AnalyticsResult) string { return "Computed engagement heuristics." },
			projectAnalytics,
		),
	}
}

// primaryCaption is the caption scored by analytics: Instagram's when it is
// a target, otherwise the first requested platform's.
func primaryCaption(rc *RunContext) string {
	if rc.Request.HasPlatform(runstate.PlatformInstagram) || len(rc.Request.Platforms) == 0 {
		return rc.Narrative.InstagramCaption
	}
	return rc.Narrative.Caption(rc.Request.Platforms[0])
}

// ---------------------------------------------------------------------------
// Details
// ---------------------------------------------------------------------------

func ingestDetail(v IngestResult) string {
	if n := v.Placeholders(); n > 0 {
		return fmt.Sprintf("Prepared %d clips (%d placeholders generated).", len(v.Assets), n)
	}
	return fmt.Sprintf("Prepared %d curated clips.", len(v.Assets))
}

var platformLabels = map[runstate.Platform]string{
	runstate.PlatformInstagram: "Instagram",
	runstate.PlatformTikTok:    "TikTok",
}

func editingDetail(platforms []runstate.Platform) string {
	labels := make([]string, 0, len(platforms))
	for _, p := range platforms {
		labels = append(labels, platformLabels[p])
	}
	switch len(labels) {
	case 0:
		return "Rendered no masters."
	case 1:
		return fmt.Sprintf("Rendered %s master.", labels[0])
	default:
		return fmt.Sprintf("Rendered %s and %s masters.",
			strings.Join(labels[:len(labels)-1], ", "), labels[len(labels)-1])
	}
}

// ---------------------------------------------------------------------------
// Payload projections
//
// Each projection lists exactly the fields a client may see. Strings pass
// through the path rewriter, lists are flattened to their string form and
// numbers stay numeric.
// ---------------------------------------------------------------------------

func stringForm(items []string) string {
	return strings.Join(items, ", ")
}

func projectIngest(v IngestResult, paths PathRewriter) runstate.Payload {
	assets := make([]runstate.AssetSummary, 0, len(v.Assets))
	for _, a := range v.Assets {
		assets = append(assets, runstate.AssetSummary{
			ID:        a.ID,
			LocalPath: paths.Rewrite(a.LocalPath),
			License:   a.License,
		})
	}
	return runstate.Payload{
		"assets":             assets,
		"requested_keywords": stringForm(v.RequestedKeywords),
		"assets_dir":         paths.Rewrite(v.AssetsDir),
	}
}

func projectNarrative(v NarrativeResult, paths PathRewriter) runstate.Payload {
	return runstate.Payload{
		"master_script":      paths.Rewrite(v.Script),
		"instagram_caption":  paths.Rewrite(v.InstagramCaption),
		"instagram_hashtags": stringForm(v.InstagramHashtags),
		"tiktok_caption":     paths.Rewrite(v.TikTokCaption),
		"tiktok_hashtags":    stringForm(v.TikTokHashtags),
		"cta":                paths.Rewrite(v.CTA),
	}
}

func projectVoiceover(v VoiceoverResult, paths PathRewriter) runstate.Payload {
	out := runstate.Payload{
		"voiceover_path": paths.Rewrite(v.Path),
		"status":         string(v.Status),
	}
	optional := map[string]string{
		"voice":    v.Voice,
		"provider": v.Provider,
		"source":   paths.Rewrite(v.Source),
		"error":    v.Error,
	}
	for k, s := range optional {
		if s != "" {
			out[k] = s
		}
	}
	return out
}

func projectVideo(v VideoResult, paths PathRewriter) runstate.Payload {
	out := make(runstate.Payload, len(v.Videos))
	for p, path := range v.Videos {
		out[string(p)+"_video"] = paths.Rewrite(path)
	}
	return out
}

func projectPackage(v PackageResult, paths PathRewriter) runstate.Payload {
	out := runstate.Payload{
		"metadata_path": paths.Rewrite(v.MetadataPath),
		"bundle_dir":    paths.Rewrite(v.BundleDir),
	}
	if v.ObjectPrefix != "" {
		out["object_prefix"] = v.ObjectPrefix
	}
	return out
}

func projectAnalytics(v AnalyticsResult) runstate.Payload {
	return runstate.Payload{
		"expected_ctr":         v.ExpectedCTR,
		"retention_score":      v.RetentionScore,
		"narrative_complexity": v.NarrativeComplexity,
	}
}

// ---------------------------------------------------------------------------
// Outputs
// ---------------------------------------------------------------------------

// buildOutputs assembles the outputs bundle from a fully populated context.
func buildOutputs(rc *RunContext, paths PathRewriter) runstate.Outputs {
	var out runstate.Outputs
	for _, p := range rc.Request.Platforms {
		po := &runstate.PlatformOutput{
			VideoPath: paths.PublicPtr(rc.Video.Videos[p]),
			Caption:   rc.Narrative.Caption(p),
			Hashtags:  append([]string(nil), rc.Narrative.Hashtags(p)...),
			CTA:       rc.Narrative.CTA,
		}
		switch p {
		case runstate.PlatformInstagram:
			out.Instagram = po
		case runstate.PlatformTikTok:
			out.TikTok = po
		}
	}
	out.Metadata = projectPackage(*rc.Package, paths)
	out.Analytics = &runstate.AnalyticsSummary{
		ExpectedCTR:         rc.Analytics.ExpectedCTR,
		RetentionScore:      rc.Analytics.RetentionScore,
		NarrativeComplexity: rc.Analytics.NarrativeComplexity,
	}
	return out
}
