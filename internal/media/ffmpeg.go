package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var _ Renderer = (*FFmpegRenderer)(nil)

// Per-clip cap before concatenation.
const maxSegment = 15 * time.Second

// FFmpegRenderer renders videos by running the ffmpeg binary.
type FFmpegRenderer struct {
	Binary string // defaults to "ffmpeg" on PATH
	Logger *slog.Logger
}

func (r *FFmpegRenderer) binary() string {
	if r.Binary == "" {
		return "ffmpeg"
	}
	return r.Binary
}

// Render implements Renderer.
func (r *FFmpegRenderer) Render(ctx context.Context, spec RenderSpec) error {
	if err := os.MkdirAll(filepath.Dir(spec.Output), 0o755); err != nil {
		return err
	}
	return r.run(ctx, RenderArgs(spec))
}

// Placeholder implements Renderer.
func (r *FFmpegRenderer) Placeholder(ctx context.Context, output string, d time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return r.run(ctx, PlaceholderArgs(output, d))
}

func (r *FFmpegRenderer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if r.Logger != nil {
		r.Logger.Debug("running ffmpeg", "args", strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 400))
	}
	return nil
}

// RenderArgs builds the ffmpeg command line for spec: every clip is trimmed,
// scaled to cover the frame, centre-cropped and concatenated. With audio the
// video is padded with its last frame and the output ends with the narration,
// capped at MaxDuration.
func RenderArgs(spec RenderSpec) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	var filters []string
	labels := make([]string, 0, len(spec.Clips))
	normalize := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d",
		spec.Width, spec.Height, spec.Width, spec.Height, spec.FPS)

	if len(spec.Clips) == 0 {
		args = append(args, "-f", "lavfi", "-i", colorSource(spec.Width, spec.Height, spec.FPS, emptyTimeline))
		filters = append(filters, "[0:v]"+normalize+"[v0]")
		labels = append(labels, "[v0]")
	} else {
		for i, clip := range spec.Clips {
			args = append(args, "-i", clip)
			filters = append(filters, fmt.Sprintf("[%d:v]trim=duration=%s,setpts=PTS-STARTPTS,%s[v%d]",
				i, seconds(maxSegment), normalize, i))
			labels = append(labels, fmt.Sprintf("[v%d]", i))
		}
	}

	audioIndex := -1
	if spec.Audio != "" {
		audioIndex = max(len(spec.Clips), 1)
		args = append(args, "-i", spec.Audio)
	}

	concat := fmt.Sprintf("%sconcat=n=%d:v=1:a=0", strings.Join(labels, ""), len(labels))
	if audioIndex >= 0 {
		concat += fmt.Sprintf(",tpad=stop_mode=clone:stop_duration=%s", seconds(spec.MaxDuration))
	}
	filters = append(filters, concat+"[outv]")

	args = append(args, "-filter_complex", strings.Join(filters, ";"), "-map", "[outv]")
	if audioIndex >= 0 {
		args = append(args, "-map", fmt.Sprintf("%d:a", audioIndex), "-c:a", "aac", "-b:a", "192k", "-shortest")
	}
	args = append(args,
		"-t", seconds(spec.MaxDuration),
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(spec.FPS),
		spec.Output,
	)
	return args
}

// PlaceholderArgs builds the command line for a solid brand-colour clip.
func PlaceholderArgs(output string, d time.Duration) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", colorSource(FrameWidth, FrameHeight, 24, d),
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		output,
	}
}

func colorSource(w, h, fps int, d time.Duration) string {
	return fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s", PlaceholderColor, w, h, fps, seconds(d))
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
