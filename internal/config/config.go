package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/reelpipe/internal/objectstore"
)

// Config holds service settings loaded from reelpipe.yml, then overridden by
// the environment.
type Config struct {
	Server     ServerConfig       `yaml:"server,omitempty"`
	AssetsDir  string             `yaml:"assetsDir,omitempty"`
	OutputsDir string             `yaml:"outputsDir,omitempty"`
	Narrative  NarrativeConfig    `yaml:"narrative,omitempty"`
	TTS        TTSConfig          `yaml:"tts,omitempty"`
	FFmpeg     string             `yaml:"ffmpeg,omitempty"`
	Storage    objectstore.Config `yaml:"storage,omitempty"`
	Retention  RetentionConfig    `yaml:"retention,omitempty"`
	Log        LogConfig          `yaml:"log,omitempty"`
	MCP        MCPConfig          `yaml:"mcp,omitempty"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr,omitempty"`
	CORSOrigins []string      `yaml:"corsOrigins,omitempty"`
	KeepAlive   time.Duration `yaml:"keepAlive,omitempty"`
}

// NarrativeConfig configures the Gemini script writer. Empty fields keep the
// writer's defaults.
type NarrativeConfig struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty"`
}

// TTSConfig configures the ElevenLabs voiceover.
type TTSConfig struct {
	APIKey       string `yaml:"apiKey,omitempty"`
	VoiceID      string `yaml:"voiceID,omitempty"`
	Model        string `yaml:"model,omitempty"`
	BaseURL      string `yaml:"baseURL,omitempty"`
	FallbackFile string `yaml:"fallbackFile,omitempty"`
}

// RetentionConfig controls pruning of finished runs. A zero TTL keeps runs
// for the life of the process.
type RetentionConfig struct {
	TTL      time.Duration `yaml:"ttl,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

type MCPConfig struct {
	HTTP bool `yaml:"http,omitempty"` // mount the streamable HTTP transport at /mcp
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		AssetsDir:  "assets",
		OutputsDir: "outputs",
		Storage:    objectstore.Config{Region: "us-east-1"},
		Retention:  RetentionConfig{Interval: time.Minute},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads reelpipe.yml or reelpipe.yaml from dir on top of Default, then
// applies environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"reelpipe.yml", "reelpipe.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = envString("REELPIPE_ADDR", c.Server.Addr)
	c.Server.CORSOrigins = envList("REELPIPE_CORS_ORIGINS", c.Server.CORSOrigins)
	c.AssetsDir = envString("REELPIPE_ASSETS_DIR", c.AssetsDir)
	c.OutputsDir = envString("REELPIPE_OUTPUTS_DIR", c.OutputsDir)
	c.FFmpeg = envString("REELPIPE_FFMPEG", c.FFmpeg)
	c.Log.Level = envString("REELPIPE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("REELPIPE_LOG_FORMAT", c.Log.Format)

	c.Narrative.APIKey = envString("GEMINI_API_KEY", c.Narrative.APIKey)
	c.Narrative.Model = envString("GEMINI_MODEL", c.Narrative.Model)

	c.TTS.APIKey = envString("TTS_API_KEY", c.TTS.APIKey)
	c.TTS.VoiceID = envString("TTS_VOICE_ID", c.TTS.VoiceID)
	c.TTS.Model = envString("TTS_MODEL", c.TTS.Model)
	c.TTS.FallbackFile = envString("TTS_FALLBACK_FILE", c.TTS.FallbackFile)

	c.Storage.Endpoint = envString("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = envString("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = envString("MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Region = envString("MINIO_REGION", c.Storage.Region)
	c.Storage.Bucket = envString("MINIO_BUCKET", c.Storage.Bucket)
	c.Storage.Prefix = envString("MINIO_PREFIX", c.Storage.Prefix)

	var errs []error
	var err error
	if c.Storage.UseSSL, err = envBool("MINIO_USE_SSL", c.Storage.UseSSL); err != nil {
		errs = append(errs, err)
	}
	if c.MCP.HTTP, err = envBool("REELPIPE_MCP_HTTP", c.MCP.HTTP); err != nil {
		errs = append(errs, err)
	}
	if c.Retention.TTL, err = envDuration("REELPIPE_RETENTION_TTL", c.Retention.TTL); err != nil {
		errs = append(errs, err)
	}
	if c.Server.KeepAlive, err = envDuration("REELPIPE_SSE_KEEPALIVE", c.Server.KeepAlive); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
	}
	if strings.TrimSpace(c.AssetsDir) == "" {
		errs = append(errs, errors.New("assetsDir is required"))
	}
	if strings.TrimSpace(c.OutputsDir) == "" {
		errs = append(errs, errors.New("outputsDir is required"))
	}
	if c.Server.KeepAlive < 0 {
		errs = append(errs, errors.New("server.keepAlive must not be negative"))
	}
	if c.Retention.TTL < 0 || c.Retention.Interval < 0 {
		errs = append(errs, errors.New("retention durations must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.Storage.Enabled() {
		if err := c.Storage.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}
