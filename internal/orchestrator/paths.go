package orchestrator

import (
	"path/filepath"
	"strings"
)

// PublicPrefix is the first segment of every path exposed to clients.
const PublicPrefix = "outputs"

// PathRewriter maps files under the outputs root to their public form
// "outputs/<path-under-root>". Local paths outside the root are never
// exposed in this form.
type PathRewriter struct {
	Root string
}

// NewPathRewriter returns a rewriter for root, made absolute when possible.
func NewPathRewriter(root string) PathRewriter {
	if root == "" {
		return PathRewriter{}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return PathRewriter{Root: abs}
}

// Public returns the public form of path and true if path lies under the
// root. Relative paths are not resolved against the working directory.
func (p PathRewriter) Public(path string) (string, bool) {
	if p.Root == "" || path == "" || !filepath.IsAbs(path) {
		return "", false
	}
	rel, err := filepath.Rel(p.Root, filepath.Clean(path))
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return PublicPrefix, true
	}
	return PublicPrefix + "/" + filepath.ToSlash(rel), true
}

// Rewrite returns the public form of s when s is a path under the root and
// s unchanged otherwise.
func (p PathRewriter) Rewrite(s string) string {
	if pub, ok := p.Public(s); ok {
		return pub
	}
	return s
}

// PublicPtr is Public for optional output fields: nil when path is not
// publishable.
func (p PathRewriter) PublicPtr(path string) *string {
	pub, ok := p.Public(path)
	if !ok {
		return nil
	}
	return &pub
}
