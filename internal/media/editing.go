package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
	"github.com/dusk-indust/reelpipe/internal/runstate"
)

var _ orchestrator.VideoEditor = (*Editor)(nil)

// Profile is the render target of one platform.
type Profile struct {
	FPS         int
	MaxDuration time.Duration
}

// Profiles holds the per-platform render settings. Both platforms use a
// 1080x1920 vertical frame.
var Profiles = map[runstate.Platform]Profile{
	runstate.PlatformInstagram: {FPS: 24, MaxDuration: 45 * time.Second},
	runstate.PlatformTikTok:    {FPS: 30, MaxDuration: 35 * time.Second},
}

// Editor renders one master per requested platform into the outputs root as
// <run>_<platform>.mp4.
type Editor struct {
	OutputsDir string
	Renderer   Renderer
	Logger     *slog.Logger
}

// NewEditor returns an Editor writing to outputsDir.
func NewEditor(outputsDir string, r Renderer, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{OutputsDir: outputsDir, Renderer: r, Logger: logger}
}

// Edit renders every platform in req. Any render failure fails the stage.
func (e *Editor) Edit(ctx context.Context, req orchestrator.EditRequest) (orchestrator.VideoResult, error) {
	if err := os.MkdirAll(e.OutputsDir, 0o755); err != nil {
		return orchestrator.VideoResult{}, fmt.Errorf("media: create outputs dir: %w", err)
	}
	if len(req.Clips) == 0 {
		e.Logger.Warn("no clips supplied, rendering branded placeholder timeline", "run_name", req.RunName)
	}
	audio := e.resolveAudio(req.AudioPath)
	e.Logger.Info("editing voiceover resolution",
		"run_name", req.RunName, "input_path", req.AudioPath, "resolved_path", audio)

	videos := make(map[runstate.Platform]string, len(req.Platforms))
	for _, p := range req.Platforms {
		profile, ok := Profiles[p]
		if !ok {
			return orchestrator.VideoResult{}, fmt.Errorf("media: no render profile for platform %q", p)
		}
		out := filepath.Join(e.OutputsDir, fmt.Sprintf("%s_%s.mp4", req.RunName, p))
		spec := RenderSpec{
			Clips:       req.Clips,
			Audio:       audio,
			Output:      out,
			Width:       FrameWidth,
			Height:      FrameHeight,
			FPS:         profile.FPS,
			MaxDuration: profile.MaxDuration,
		}
		e.Logger.Info("rendering video", "platform", p, "path", out)
		if err := e.Renderer.Render(ctx, spec); err != nil {
			return orchestrator.VideoResult{}, fmt.Errorf("media: render %s: %w", p, err)
		}
		videos[p] = out
	}
	return orchestrator.VideoResult{Videos: videos}, nil
}

// resolveAudio returns a readable narration file for path, or "" when there
// is none. Relative paths are tried against the outputs root, with or
// without a leading "outputs/" segment.
func (e *Editor) resolveAudio(path string) string {
	if path == "" {
		return ""
	}
	if fileExists(path) {
		return path
	}
	if !filepath.IsAbs(path) {
		candidates := []string{filepath.Join(e.OutputsDir, path)}
		if rest, ok := strings.CutPrefix(filepath.ToSlash(path), orchestrator.PublicPrefix+"/"); ok {
			candidates = append(candidates, filepath.Join(e.OutputsDir, filepath.FromSlash(rest)))
		}
		for _, c := range candidates {
			if fileExists(c) {
				return c
			}
		}
	}
	e.Logger.Warn("voiceover file missing, proceeding without audio", "voiceover_path", path)
	return ""
}
