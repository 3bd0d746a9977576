package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
)

var _ orchestrator.AssetIngester = (*Ingester)(nil)

// ManifestFile is the stock manifest looked up in the assets directory.
const ManifestFile = "stock_manifest.json"

// maxSelected is how many clips a run uses.
const maxSelected = 3

// ManifestEntry is one stock asset listed in the manifest.
type ManifestEntry struct {
	ID        string   `json:"id"`
	Filename  string   `json:"filename"`
	SourceURL string   `json:"source_url,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	License   string   `json:"license,omitempty"`
	LocalPath string   `json:"local_path,omitempty"` // relative to the assets dir
}

// Ingester selects stock clips by keyword and makes them available locally,
// generating a placeholder clip when an asset cannot be obtained.
type Ingester struct {
	AssetsDir string
	Renderer  Renderer
	HTTP      *http.Client
	Logger    *slog.Logger
}

// NewIngester returns an Ingester reading assetsDir.
func NewIngester(assetsDir string, r Renderer, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		AssetsDir: assetsDir,
		Renderer:  r,
		HTTP:      defaultHTTPClient(60 * time.Second),
		Logger:    logger,
	}
}

func (in *Ingester) downloadDir() string    { return filepath.Join(in.AssetsDir, "downloads") }
func (in *Ingester) placeholderDir() string { return filepath.Join(in.AssetsDir, "placeholders") }

// Ingest loads the manifest, selects up to three assets and prepares each one.
func (in *Ingester) Ingest(ctx context.Context, keywords []string) (orchestrator.IngestResult, error) {
	manifest, err := LoadManifest(filepath.Join(in.AssetsDir, ManifestFile))
	if err != nil {
		return orchestrator.IngestResult{}, err
	}
	for _, dir := range []string{in.downloadDir(), in.placeholderDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return orchestrator.IngestResult{}, fmt.Errorf("media: create %s: %w", dir, err)
		}
	}

	selected := SelectAssets(manifest, keywords)
	assets := make([]orchestrator.Asset, 0, len(selected))
	for _, entry := range selected {
		asset, err := in.prepare(ctx, entry)
		if err != nil {
			return orchestrator.IngestResult{}, err
		}
		assets = append(assets, asset)
	}

	return orchestrator.IngestResult{
		Assets:            assets,
		RequestedKeywords: append([]string(nil), keywords...),
		AssetsDir:         in.downloadDir(),
	}, nil
}

func (in *Ingester) prepare(ctx context.Context, entry ManifestEntry) (orchestrator.Asset, error) {
	asset := orchestrator.Asset{
		ID:        entry.ID,
		Keywords:  entry.Keywords,
		License:   entry.License,
		SourceURL: entry.SourceURL,
		LocalPath: filepath.Join(in.downloadDir(), filepath.Base(entry.Filename)),
	}
	if asset.License == "" {
		asset.License = "unknown"
	}
	if fileExists(asset.LocalPath) {
		in.Logger.Debug("asset cached", "asset_id", entry.ID)
		return asset, nil
	}

	fetchErr := in.fetch(ctx, entry, asset.LocalPath)
	if fetchErr == nil {
		return asset, nil
	}
	if ctx.Err() != nil {
		return orchestrator.Asset{}, ctx.Err()
	}

	in.Logger.Warn("asset unavailable, generating placeholder clip", "asset_id", entry.ID, "err", fetchErr)
	path, err := in.placeholder(ctx, entry.ID)
	if err != nil {
		return orchestrator.Asset{}, fmt.Errorf("media: placeholder for asset %s: %w", entry.ID, errors.Join(fetchErr, err))
	}
	asset.LocalPath = path
	asset.Placeholder = true
	return asset, nil
}

func (in *Ingester) fetch(ctx context.Context, entry ManifestEntry, dst string) error {
	switch {
	case entry.LocalPath != "":
		src := filepath.Join(in.AssetsDir, filepath.FromSlash(entry.LocalPath))
		if !fileExists(src) {
			return fmt.Errorf("local asset not found at %s", src)
		}
		in.Logger.Info("copying local asset", "asset_id", entry.ID)
		return copyFile(dst, src)
	case entry.SourceURL != "":
		in.Logger.Info("downloading asset", "asset_id", entry.ID)
		return in.download(ctx, entry.SourceURL, dst)
	default:
		return errors.New("no source URL or local path available")
	}
}

func (in *Ingester) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("media: create request: %w", err)
	}
	client := in.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("media: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpStatusError("download "+url, resp)
	}
	return writeFileAtomic(dst, resp.Body)
}

func (in *Ingester) placeholder(ctx context.Context, id string) (string, error) {
	out := filepath.Join(in.placeholderDir(), id+"_placeholder.mp4")
	if fileExists(out) {
		return out, nil
	}
	if in.Renderer == nil {
		return "", errors.New("no renderer configured")
	}
	in.Logger.Info("generating placeholder clip", "asset_id", id)
	if err := in.Renderer.Placeholder(ctx, out, placeholderDuration); err != nil {
		return "", err
	}
	return out, nil
}

// LoadManifest reads and validates a stock manifest.
func LoadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("media: stock manifest not found at %s", path)
		}
		return nil, fmt.Errorf("media: read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("media: parse manifest %s: %w", path, err)
	}
	for i, e := range entries {
		if e.ID == "" || e.Filename == "" {
			return nil, fmt.Errorf("media: manifest entry %d: id and filename are required", i)
		}
	}
	return entries, nil
}

// SelectAssets ranks manifest entries by how many of their keywords were
// requested (case-insensitive) and returns the best three. When fewer than
// two entries match at all, the ranking falls back to every entry so a run
// always has footage. With no keywords the first three entries are used.
func SelectAssets(manifest []ManifestEntry, keywords []string) []ManifestEntry {
	wanted := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		wanted[strings.ToLower(k)] = true
	}
	if len(wanted) == 0 {
		return head(manifest, maxSelected)
	}

	type scored struct {
		score int
		entry ManifestEntry
	}
	ranked := make([]scored, 0, len(manifest))
	for _, e := range manifest {
		n := 0
		for _, k := range e.Keywords {
			if wanted[strings.ToLower(k)] {
				n++
			}
		}
		ranked = append(ranked, scored{n, e})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var top []ManifestEntry
	for _, s := range ranked {
		if s.score > 0 {
			top = append(top, s.entry)
		}
	}
	if len(top) < 2 {
		top = top[:0]
		for _, s := range ranked {
			top = append(top, s.entry)
		}
	}
	return head(top, maxSelected)
}

func head(entries []ManifestEntry, n int) []ManifestEntry {
	if len(entries) > n {
		entries = entries[:n]
	}
	return append([]ManifestEntry(nil), entries...)
}
