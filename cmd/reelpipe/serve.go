package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/reelpipe/internal/api"
	"github.com/dusk-indust/reelpipe/internal/config"
	"github.com/dusk-indust/reelpipe/internal/mcptools"
	"github.com/dusk-indust/reelpipe/internal/media"
	"github.com/dusk-indust/reelpipe/internal/objectstore"
	"github.com/dusk-indust/reelpipe/internal/orchestrator"
	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// service is the wired pipeline: executors, registry and the options the
// transports need.
type service struct {
	logger   *slog.Logger
	registry *runstate.Registry
	pipeline *orchestrator.Pipeline
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service, error) {
	for _, dir := range []string{cfg.AssetsDir, cfg.OutputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	renderer := &media.FFmpegRenderer{Binary: cfg.FFmpeg, Logger: logger}

	writer := media.NewGeminiWriter(cfg.Narrative.APIKey, logger)
	if cfg.Narrative.Model != "" {
		writer.Model = cfg.Narrative.Model
	}
	if cfg.Narrative.BaseURL != "" {
		writer.BaseURL = cfg.Narrative.BaseURL
	}

	tts := media.NewElevenLabsSynthesizer(cfg.TTS.APIKey, cfg.OutputsDir, logger)
	if cfg.TTS.VoiceID != "" {
		tts.VoiceID = cfg.TTS.VoiceID
	}
	if cfg.TTS.Model != "" {
		tts.Model = cfg.TTS.Model
	}
	if cfg.TTS.BaseURL != "" {
		tts.BaseURL = cfg.TTS.BaseURL
	}
	tts.FallbackFile = cfg.TTS.FallbackFile

	var mirror media.BundleMirror
	if cfg.Storage.Enabled() {
		m, err := newMirror(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		mirror = m
	}

	registry := runstate.NewRegistry()
	pipeline, err := orchestrator.NewPipeline(orchestrator.Executors{
		Ingest:    media.NewIngester(cfg.AssetsDir, renderer, logger),
		Narrative: writer,
		Voiceover: tts,
		Editing:   media.NewEditor(cfg.OutputsDir, renderer, logger),
		Packaging: media.NewBundlePackager(cfg.OutputsDir, mirror, logger),
		Analytics: &media.Heuristics{Logger: logger},
	}, cfg.OutputsDir, orchestrator.WithTracker(registry), orchestrator.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &service{
		logger:   logger,
		registry: registry,
		pipeline: pipeline,
	}, nil
}

func newMirror(ctx context.Context, cfg objectstore.Config, logger *slog.Logger) (*objectstore.Mirror, error) {
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := objectstore.EnsureBucket(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	logger.Info("mirroring bundles to object storage", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return objectstore.NewMirror(client, cfg, logger)
}

// serveHTTP runs the API, and the retention janitor when a TTL is set, until
// ctx is done. In-flight runs fail on shutdown.
func (s *service) serveHTTP(ctx context.Context, cfg *config.Config) error {
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	return s.serveListener(ctx, cfg, ln)
}

func (s *service) serveListener(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	runner := orchestrator.NewRunner(gctx, s.registry, s.pipeline, s.logger)
	defer runner.Wait()

	srv := &api.Server{
		Logger:      s.logger,
		Runs:        runner,
		Registry:    s.registry,
		OutputsDir:  cfg.OutputsDir,
		CORSOrigins: cfg.Server.CORSOrigins,
		KeepAlive:   cfg.Server.KeepAlive,
	}
	if cfg.MCP.HTTP {
		srv.MCP = mcptools.NewHTTPHandler(mcptools.NewServer(mcptools.NewRunService(runner, s.registry)))
	}

	g.Go(func() error { return srv.Serve(gctx, ln) })
	g.Go(func() error { return runner.RunJanitor(gctx, cfg.Retention.TTL, cfg.Retention.Interval) })
	return g.Wait()
}

// serveMCP serves the run tools on stdio. Runs still going when the client
// disconnects are failed.
func (s *service) serveMCP(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	runner := orchestrator.NewRunner(runCtx, s.registry, s.pipeline, s.logger)
	defer func() {
		cancel()
		runner.Wait()
	}()

	return mcptools.RunStdio(ctx, mcptools.NewServer(mcptools.NewRunService(runner, s.registry)))
}
