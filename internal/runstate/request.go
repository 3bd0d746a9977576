package runstate

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Platform is a social export target.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformInstagram || p == PlatformTikTok
}

// DefaultRunName is used when a request omits the run name.
const DefaultRunName = "demo-run"

// DefaultKeywords seed asset selection when a request carries none.
var DefaultKeywords = []string{"luxury education", "STEM kids", "family learning"}

// runNamePattern keeps run names usable as a single path segment.
var runNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// RunRequest is the immutable input of a pipeline run.
type RunRequest struct {
	RunName   string     `json:"run_name"`
	Platforms []Platform `json:"platforms"`
	Keywords  []string   `json:"stock_keywords"`
	Notes     *string    `json:"notes,omitempty"`
}

// WithDefaults returns a copy of r with empty fields filled in. Keywords are
// only defaulted when the field is nil, so an explicit empty list is kept.
// Repeated platforms collapse to their first occurrence.
func (r RunRequest) WithDefaults() RunRequest {
	out := r.clone()
	out.RunName = strings.TrimSpace(out.RunName)
	if out.RunName == "" {
		out.RunName = DefaultRunName
	}
	if len(out.Platforms) == 0 {
		out.Platforms = []Platform{PlatformInstagram, PlatformTikTok}
	}
	out.Platforms = dedupPlatforms(out.Platforms)
	if out.Keywords == nil {
		out.Keywords = slices.Clone(DefaultKeywords)
	}
	return out
}

func dedupPlatforms(in []Platform) []Platform {
	out := make([]Platform, 0, len(in))
	for _, p := range in {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the run name is path-safe and every platform is known
// and listed once. Run it on the result of WithDefaults.
func (r RunRequest) Validate() error {
	if !runNamePattern.MatchString(r.RunName) || r.RunName == "." || r.RunName == ".." {
		return fmt.Errorf("%w: run name %q must be a single path segment of letters, digits, '.', '_' or '-'",
			ErrInvalidRequest, r.RunName)
	}
	if len(r.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrInvalidRequest)
	}
	seen := make(map[Platform]bool, len(r.Platforms))
	for _, p := range r.Platforms {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate platform %q", ErrInvalidRequest, p)
		}
		seen[p] = true
	}
	return nil
}

// HasPlatform reports whether p is among the requested platforms.
func (r RunRequest) HasPlatform(p Platform) bool {
	return slices.Contains(r.Platforms, p)
}

// clone returns a deep copy so the stored request cannot be changed through
// the caller's slices. Nil and empty slices stay distinct.
func (r RunRequest) clone() RunRequest {
	out := r
	out.Platforms = slices.Clone(r.Platforms)
	out.Keywords = slices.Clone(r.Keywords)
	if r.Notes != nil {
		n := *r.Notes
		out.Notes = &n
	}
	return out
}
