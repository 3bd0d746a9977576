package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
)

var _ orchestrator.Packager = (*BundlePackager)(nil)

// MetadataFile is the bundle manifest written for every run.
const MetadataFile = "metadata.json"

// BundleMirror copies a packaged bundle to remote storage and returns where
// it landed. objectstore.Mirror implements it.
type BundleMirror interface {
	MirrorDir(ctx context.Context, dir, prefix string) (string, error)
}

// BundlePackager writes <outputs>/<run>/metadata.json describing the run's
// deliverables and optionally mirrors the bundle directory.
type BundlePackager struct {
	OutputsDir string
	Mirror     BundleMirror // optional
	Logger     *slog.Logger
}

// NewBundlePackager returns a packager writing under outputsDir. mirror may
// be nil.
func NewBundlePackager(outputsDir string, mirror BundleMirror, logger *slog.Logger) *BundlePackager {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundlePackager{OutputsDir: outputsDir, Mirror: mirror, Logger: logger}
}

type bundleAsset struct {
	ID          string   `json:"id"`
	LocalPath   string   `json:"local_path"`
	Keywords    []string `json:"keywords"`
	License     string   `json:"license"`
	SourceURL   string   `json:"source_url"`
	Placeholder bool     `json:"placeholder"`
}

type bundleAssets struct {
	Assets            []bundleAsset `json:"assets"`
	RequestedKeywords []string      `json:"requested_keywords"`
	AssetsDir         string        `json:"assets_dir"`
}

// BundleMetadata is the content of metadata.json.
type BundleMetadata struct {
	RunName   string                       `json:"run_name"`
	Narrative orchestrator.NarrativeResult `json:"narrative"`
	Assets    bundleAssets                 `json:"assets"`
	Videos    map[string]string            `json:"videos"`
}

// Package writes the metadata bundle. A mirror failure fails the stage: a
// configured mirror is part of the deliverable.
func (p *BundlePackager) Package(ctx context.Context, req orchestrator.PackageRequest) (orchestrator.PackageResult, error) {
	dir := filepath.Join(p.OutputsDir, req.RunName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return orchestrator.PackageResult{}, fmt.Errorf("media: create bundle dir: %w", err)
	}

	paths := orchestrator.NewPathRewriter(p.OutputsDir)
	meta := BundleMetadata{
		RunName:   req.RunName,
		Narrative: req.Narrative,
		Assets: bundleAssets{
			Assets:            make([]bundleAsset, 0, len(req.Ingest.Assets)),
			RequestedKeywords: req.Ingest.RequestedKeywords,
			AssetsDir:         bundlePath(paths, req.Ingest.AssetsDir),
		},
		Videos: make(map[string]string, len(req.Video.Videos)),
	}
	for _, a := range req.Ingest.Assets {
		ba := bundleAsset(a)
		ba.LocalPath = bundlePath(paths, a.LocalPath)
		meta.Assets.Assets = append(meta.Assets.Assets, ba)
	}
	for platform, path := range req.Video.Videos {
		meta.Videos[string(platform)+"_video"] = bundlePath(paths, path)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return orchestrator.PackageResult{}, fmt.Errorf("media: marshal metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFile)
	if err := writeFileAtomic(path, bytes.NewReader(data)); err != nil {
		return orchestrator.PackageResult{}, fmt.Errorf("media: write metadata: %w", err)
	}
	p.Logger.Info("packaged outputs", "metadata", path)

	res := orchestrator.PackageResult{MetadataPath: path, BundleDir: dir}
	if p.Mirror != nil {
		prefix, err := p.Mirror.MirrorDir(ctx, dir, req.RunName)
		if err != nil {
			return orchestrator.PackageResult{}, fmt.Errorf("media: mirror bundle: %w", err)
		}
		res.ObjectPrefix = prefix
		p.Logger.Info("mirrored bundle", "prefix", prefix)
	}
	return res, nil
}

// bundlePath is how a local path appears in metadata.json, which is served
// with the outputs. Files under the outputs root get their public form and
// other absolute paths are reduced to their base name.
func bundlePath(paths orchestrator.PathRewriter, path string) string {
	if pub, ok := paths.Public(path); ok {
		return pub
	}
	if filepath.IsAbs(path) {
		return filepath.Base(path)
	}
	return path
}
