package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
)

var _ orchestrator.VoiceSynthesizer = (*ElevenLabsSynthesizer)(nil)

const (
	DefaultTTSBaseURL = "https://api.elevenlabs.io"
	DefaultTTSVoiceID = "JBFqnCBsd6RMkjVDRZzb"
	DefaultTTSModel   = "eleven_multilingual_v2"
	ttsOutputFormat   = "mp3_44100_128"
	ttsProvider       = "elevenlabs"
	ttsUnavailable    = "tts_unavailable"
)

// ElevenLabsSynthesizer streams narration audio into <outputs>/audio. When
// the provider is not configured or fails it copies FallbackFile instead, and
// when that is missing too it reports status failed so editing can continue
// without audio.
type ElevenLabsSynthesizer struct {
	APIKey       string
	VoiceID      string
	Model        string
	BaseURL      string
	OutputsDir   string
	FallbackFile string
	HTTP         *http.Client
	Logger       *slog.Logger
}

// NewElevenLabsSynthesizer returns a synthesizer writing under outputsDir.
func NewElevenLabsSynthesizer(apiKey, outputsDir string, logger *slog.Logger) *ElevenLabsSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsSynthesizer{
		APIKey:     apiKey,
		VoiceID:    DefaultTTSVoiceID,
		Model:      DefaultTTSModel,
		BaseURL:    DefaultTTSBaseURL,
		OutputsDir: outputsDir,
		HTTP:       defaultHTTPClient(120 * time.Second),
		Logger:     logger,
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize renders script as <outputs>/audio/<runName>_voiceover.mp3.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, runName, script string) (orchestrator.VoiceoverResult, error) {
	if strings.TrimSpace(script) == "" {
		return orchestrator.VoiceoverResult{}, ErrEmptyScript
	}
	out := filepath.Join(s.OutputsDir, "audio", runName+"_voiceover.mp3")
	log := s.Logger.With("run_name", runName)

	if s.APIKey == "" {
		log.Warn("tts not configured, using fallback voiceover if available")
		return s.fallback(log, out, ""), nil
	}

	log.Info("generating voiceover audio", "provider", ttsProvider, "voice", s.VoiceID)
	if err := s.stream(ctx, script, out); err != nil {
		if ctx.Err() != nil {
			return orchestrator.VoiceoverResult{}, ctx.Err()
		}
		log.Warn("voiceover synthesis failed", "err", err)
		return s.fallback(log, out, err.Error()), nil
	}
	return orchestrator.VoiceoverResult{
		Path:     out,
		Status:   orchestrator.VoiceoverGenerated,
		Voice:    s.VoiceID,
		Provider: ttsProvider,
	}, nil
}

func (s *ElevenLabsSynthesizer) stream(ctx context.Context, script, out string) error {
	body, err := json.Marshal(ttsRequest{
		Text:    script,
		ModelID: s.Model,
		VoiceSettings: voiceSettings{
			Stability:       0,
			SimilarityBoost: 1,
			Style:           0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return fmt.Errorf("media: marshal tts request: %w", err)
	}

	q := url.Values{}
	q.Set("output_format", ttsOutputFormat)
	q.Set("optimize_streaming_latency", "0")
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?%s",
		strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.VoiceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("media: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.APIKey)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("media: tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpStatusError("text-to-speech", resp)
	}
	if err := writeFileAtomic(out, resp.Body); err != nil {
		return fmt.Errorf("media: write voiceover: %w", err)
	}
	return nil
}

func (s *ElevenLabsSynthesizer) fallback(log *slog.Logger, out, cause string) orchestrator.VoiceoverResult {
	if s.FallbackFile != "" && fileExists(s.FallbackFile) {
		err := copyFile(out, s.FallbackFile)
		if err == nil {
			log.Info("applied fallback voiceover", "source", s.FallbackFile, "target", out)
			return orchestrator.VoiceoverResult{
				Path:   out,
				Status: orchestrator.VoiceoverFallback,
				Source: s.FallbackFile,
				Error:  cause,
			}
		}
		log.Warn("failed to apply fallback voiceover", "err", err)
	}

	log.Warn("fallback voiceover not available, continuing without audio")
	if cause == "" {
		cause = ttsUnavailable
	}
	// A stale file from an earlier run must not be mistaken for this run's audio.
	_ = os.Remove(out)
	return orchestrator.VoiceoverResult{
		Path:   out,
		Status: orchestrator.VoiceoverFailed,
		Error:  cause,
	}
}
