// Package media provides the default stage executors: stock asset ingestion,
// narrative generation, voiceover synthesis, video editing, packaging and
// analytics.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrEmptyScript is returned by the synthesizer when there is nothing to say.
var ErrEmptyScript = errors.New("media: cannot synthesize an empty script")

// Brand placeholder clip: a solid frame in the primary brand colour.
const (
	FrameWidth          = 1080
	FrameHeight         = 1920
	PlaceholderColor    = "0x300A55"
	placeholderDuration = 6 * time.Second
	emptyTimeline       = 12 * time.Second
)

// RenderSpec describes one vertical video to render.
type RenderSpec struct {
	Clips       []string // concatenated in order; empty renders a placeholder timeline
	Audio       string   // optional narration track
	Output      string
	Width       int
	Height      int
	FPS         int
	MaxDuration time.Duration
}

// Renderer produces video files. FFmpegRenderer is the production
// implementation; tests substitute a fake.
type Renderer interface {
	Render(ctx context.Context, spec RenderSpec) error
	Placeholder(ctx context.Context, output string, d time.Duration) error
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// writeFileAtomic streams r into a temporary file next to path and renames it
// into place, so readers never observe a partial file.
func writeFileAtomic(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFileAtomic(dst, in)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// httpStatusError reads a short excerpt of a failed response body.
func httpStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("media: %s: HTTP %d: %s", op, resp.StatusCode, string(body))
}
