package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
	"github.com/dusk-indust/reelpipe/internal/runstate"
)

var _ orchestrator.NarrativeWriter = (*GeminiWriter)(nil)

const (
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultCTA           = "Book a Private Discovery Tour"
)

// GeminiWriter generates the script and captions with the Gemini
// generateContent API. Without an API key, or when the call fails, it
// returns deterministic house copy so a run never fails on narrative.
type GeminiWriter struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewGeminiWriter returns a writer for apiKey using the default model.
func NewGeminiWriter(apiKey string, logger *slog.Logger) *GeminiWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiWriter{
		APIKey:  apiKey,
		Model:   DefaultGeminiModel,
		BaseURL: DefaultGeminiBaseURL,
		HTTP:    defaultHTTPClient(90 * time.Second),
		Logger:  logger,
	}
}

// Write returns narrative copy for req.
func (w *GeminiWriter) Write(ctx context.Context, req runstate.RunRequest) (orchestrator.NarrativeResult, error) {
	log := w.Logger.With("run_name", req.RunName)
	if w.APIKey != "" {
		log.Info("invoking gemini for narrative generation", "model", w.Model)
		res, err := w.generate(ctx, BuildPrompt(req))
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return orchestrator.NarrativeResult{}, ctx.Err()
		}
		log.Warn("gemini narrative generation failed, using fallback", "err", err)
	}
	log.Info("falling back to deterministic narrative generation")
	return FallbackNarrative(), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (w *GeminiWriter) generate(ctx context.Context, prompt string) (orchestrator.NarrativeResult, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return orchestrator.NarrativeResult{}, fmt.Errorf("media: marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(w.BaseURL, "/"), url.PathEscape(w.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return orchestrator.NarrativeResult{}, fmt.Errorf("media: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", w.APIKey)

	resp, err := w.HTTP.Do(httpReq)
	if err != nil {
		return orchestrator.NarrativeResult{}, fmt.Errorf("media: gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orchestrator.NarrativeResult{}, httpStatusError("gemini generateContent", resp)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return orchestrator.NarrativeResult{}, fmt.Errorf("media: decode gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return orchestrator.NarrativeResult{}, errors.New("media: gemini returned no candidates")
	}
	var text strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return ParseNarrative(text.String())
}

// ParseNarrative decodes a model reply, tolerating a ```json fenced block.
func ParseNarrative(text string) (orchestrator.NarrativeResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return orchestrator.NarrativeResult{}, errors.New("media: gemini returned no text")
	}

	var raw struct {
		Script            string   `json:"script"`
		InstagramCaption  string   `json:"instagram_caption"`
		InstagramHashtags []string `json:"instagram_hashtags"`
		TikTokCaption     string   `json:"tiktok_caption"`
		TikTokHashtags    []string `json:"tiktok_hashtags"`
		CTA               *string  `json:"cta"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return orchestrator.NarrativeResult{}, fmt.Errorf("media: gemini response was not valid JSON: %w", err)
	}

	res := orchestrator.NarrativeResult{
		Script:            raw.Script,
		InstagramCaption:  raw.InstagramCaption,
		InstagramHashtags: raw.InstagramHashtags,
		TikTokCaption:     raw.TikTokCaption,
		TikTokHashtags:    raw.TikTokHashtags,
		CTA:               defaultCTA,
	}
	if raw.CTA != nil {
		res.CTA = *raw.CTA
	}
	return res, nil
}

// BuildPrompt returns the creative brief sent to the model.
func BuildPrompt(req runstate.RunRequest) string {
	keywords := "luxury education, neuroscience, bespoke parenting"
	if len(req.Keywords) > 0 {
		keywords = strings.Join(req.Keywords, ", ")
	}
	platforms := "instagram, tiktok"
	if len(req.Platforms) > 0 {
		names := make([]string, len(req.Platforms))
		for i, p := range req.Platforms {
			names[i] = string(p)
		}
		platforms = strings.Join(names, ", ")
	}

	var b strings.Builder
	b.WriteString(`You are the creative director for Masterminds Academy (https://mastermindsacademy.org),
a luxury, neuroscience-led educational institution for high-net-worth families in the UAE and US.

Generate a JSON object with the following keys:
- script: 90-120 word master narration in British English, majestic yet warm.
- instagram_caption: 3-4 sentence caption tailored to organic + lead generation.
- instagram_hashtags: Array of 6-8 concise hashtags targeting luxury education parents.
- tiktok_caption: 120 character hook-driven caption with a soft luxury appeal.
- tiktok_hashtags: Array of 5-6 emotionally resonant hashtags suited to TikTok trends.
- cta: A clear, aspirational call-to-action inviting a private tour or consultation.

Guardrails:
- Maintain authentic human tone, referencing neuroscience-backed learning and bespoke programs.
- Weave in UAE/US context subtly.
- Avoid clichés, emojis, and salesy language.
- Do not include quotation marks unless necessary for quoting.

`)
	fmt.Fprintf(&b, "Run Name: %s\nDesired Platforms: %s\nInspiration Keywords: %s\n", req.RunName, platforms, keywords)
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		fmt.Fprintf(&b, "Creative Direction Notes: %s\n", strings.TrimSpace(*req.Notes))
	}
	b.WriteString("\nReturn only valid JSON with string keys matching the schema above.\n")
	return b.String()
}

// FallbackNarrative is the deterministic house copy.
func FallbackNarrative() orchestrator.NarrativeResult {
	return orchestrator.NarrativeResult{
		Script: "At Masterminds Academy, every detail is choreographed by neuroscientists and designers " +
			"to ignite a child's emerging genius. From Dubai to New York, our ateliers, sensory " +
			"labs, and mentorship suites craft fearless thinkers prepared for a changing world.",
		InstagramCaption: "Where neuroscience meets bespoke education. Our ateliers, bi-lateral learning studios, and " +
			"elite faculty collaborate with families to craft luminous futures. Book a private tour of " +
			"Masterminds Academy and experience the art of elevated learning.",
		InstagramHashtags: []string{
			"LuxuryEducation", "NeuroscienceLearning", "ParenthoodRedefined",
			"DubaiFamilies", "USParents", "FutureMinds", "HNWParenting",
		},
		TikTokCaption: "Inside the academy rewiring education for visionary families. From sensory labs to bespoke coaching, " +
			"discover how we cultivate audacious young minds.",
		TikTokHashtags: []string{"LuxuryLearning", "STEMKids", "NeuroscienceEducation", "DubaiToNYC", "FutureLeaders"},
		CTA:            "Explore our bespoke programs. Book a private tour.",
	}
}
