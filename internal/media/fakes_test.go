package media

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRenderer writes a small marker file instead of invoking ffmpeg.
type fakeRenderer struct {
	mu           sync.Mutex
	renders      []RenderSpec
	placeholders []string
	renderErr    error
	placeholdErr error
}

func (f *fakeRenderer) Render(_ context.Context, spec RenderSpec) error {
	f.mu.Lock()
	f.renders = append(f.renders, spec)
	f.mu.Unlock()
	if f.renderErr != nil {
		return f.renderErr
	}
	return writeMarker(spec.Output)
}

func (f *fakeRenderer) Placeholder(_ context.Context, output string, _ time.Duration) error {
	f.mu.Lock()
	f.placeholders = append(f.placeholders, output)
	f.mu.Unlock()
	if f.placeholdErr != nil {
		return f.placeholdErr
	}
	return writeMarker(output)
}

func writeMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("video"), 0o644)
}
