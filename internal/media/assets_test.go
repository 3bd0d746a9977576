package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir string, entries []ManifestEntry) {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644))
}

func ids(entries []ManifestEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// ---------------------------------------------------------------------------
// SelectAssets
// ---------------------------------------------------------------------------

func TestSelectAssets(t *testing.T) {
	manifest := []ManifestEntry{
		{ID: "a", Keywords: []string{"beach"}},
		{ID: "b", Keywords: []string{"STEM kids", "family learning"}},
		{ID: "c", Keywords: []string{"luxury education"}},
		{ID: "d", Keywords: []string{"stem KIDS"}},
		{ID: "e", Keywords: []string{"family learning", "luxury education", "stem kids"}},
	}

	tests := []struct {
		name     string
		keywords []string
		want     []string
	}{
		{"ranked by overlap", []string{"STEM kids", "family learning", "luxury education"}, []string{"e", "b", "c"}},
		{"case insensitive", []string{"stem kids"}, []string{"b", "d", "e"}},
		{"no keywords", nil, []string{"a", "b", "c"}},
		{"fewer than two matches falls back to all", []string{"beach"}, []string{"a", "b", "c"}},
		{"no matches", []string{"mountains"}, []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SelectAssets(manifest, tt.keywords)))
		})
	}
}

func TestSelectAssets_ShortManifest(t *testing.T) {
	manifest := []ManifestEntry{{ID: "only", Keywords: []string{"x"}}}
	assert.Equal(t, []string{"only"}, ids(SelectAssets(manifest, []string{"x"})))
	assert.Empty(t, SelectAssets(nil, []string{"x"}))
}

// ---------------------------------------------------------------------------
// LoadManifest
// ---------------------------------------------------------------------------

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, ManifestFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock manifest not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{"), 0o644))
	_, err = LoadManifest(filepath.Join(dir, ManifestFile))
	assert.Error(t, err)

	writeManifest(t, dir, []ManifestEntry{{ID: "x"}})
	_, err = LoadManifest(filepath.Join(dir, ManifestFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filename")
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngester_CopiesDownloadsAndPlaceholders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/remote.mp4":
			_, _ = w.Write([]byte("remote-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "library"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "library", "local.mp4"), []byte("local-bytes"), 0o644))

	writeManifest(t, dir, []ManifestEntry{
		{ID: "local", Filename: "local.mp4", LocalPath: "library/local.mp4", Keywords: []string{"k"}, License: "CC0"},
		{ID: "remote", Filename: "remote.mp4", SourceURL: srv.URL + "/remote.mp4", Keywords: []string{"k"}},
		{ID: "broken", Filename: "broken.mp4", SourceURL: srv.URL + "/missing.mp4", Keywords: []string{"k"}},
	})

	renderer := &fakeRenderer{}
	in := NewIngester(dir, renderer, quietLogger())
	in.HTTP = srv.Client()

	res, err := in.Ingest(context.Background(), []string{"k"})
	require.NoError(t, err)
	require.Len(t, res.Assets, 3)

	local := res.Assets[0]
	assert.Equal(t, filepath.Join(dir, "downloads", "local.mp4"), local.LocalPath)
	assert.Equal(t, "CC0", local.License)
	assert.False(t, local.Placeholder)
	data, err := os.ReadFile(local.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "local-bytes", string(data))

	remote := res.Assets[1]
	assert.Equal(t, "unknown", remote.License)
	data, err = os.ReadFile(remote.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(data))

	broken := res.Assets[2]
	assert.True(t, broken.Placeholder)
	assert.Equal(t, filepath.Join(dir, "placeholders", "broken_placeholder.mp4"), broken.LocalPath)
	assert.Equal(t, []string{broken.LocalPath}, renderer.placeholders)
	assert.Equal(t, 1, res.Placeholders())

	assert.Equal(t, []string{"k"}, res.RequestedKeywords)
	assert.Equal(t, filepath.Join(dir, "downloads"), res.AssetsDir)
}

func TestIngester_UsesCachedDownload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "downloads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "downloads", "cached.mp4"), []byte("cached"), 0o644))
	writeManifest(t, dir, []ManifestEntry{{ID: "c", Filename: "cached.mp4"}})

	renderer := &fakeRenderer{}
	res, err := NewIngester(dir, renderer, quietLogger()).Ingest(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.False(t, res.Assets[0].Placeholder)
	assert.Empty(t, renderer.placeholders)
}

func TestIngester_PlaceholderFailureFailsStage(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, []ManifestEntry{{ID: "x", Filename: "x.mp4"}})

	renderer := &fakeRenderer{placeholdErr: errors.New("ffmpeg not found")}
	_, err := NewIngester(dir, renderer, quietLogger()).Ingest(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
	assert.Contains(t, err.Error(), "no source URL or local path")
}

func TestIngester_MissingManifest(t *testing.T) {
	_, err := NewIngester(t.TempDir(), &fakeRenderer{}, quietLogger()).Ingest(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock manifest not found")
}
