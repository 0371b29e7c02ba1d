// Package workdir allocates and removes the per-job scratch directories.
package workdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xraph/jobrunner"
)

// Allocator creates exclusively owned directories under a single base root.
type Allocator struct {
	base string
}

// New returns an Allocator rooted at base, creating base if needed.
func New(base string) (*Allocator, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/workdir: resolve base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("jobrunner/workdir: create base: %w", err)
	}
	return &Allocator{base: filepath.Clean(abs)}, nil
}

// Base returns the absolute base root.
func (a *Allocator) Base() string { return a.base }

// Allocate creates a fresh, empty directory named job_<kind>_<random>
// readable only by the current user.
func (a *Allocator) Allocate(kind string) (string, error) {
	dir, err := os.MkdirTemp(a.base, "job_"+sanitize(kind)+"_")
	if err != nil {
		return "", fmt.Errorf("jobrunner/workdir: allocate: %w", err)
	}
	return dir, nil
}

// Remove deletes path recursively. Paths outside the base root are refused
// with jobrunner.ErrInvalidWorkDir. A directory that is already gone is not
// an error.
func (a *Allocator) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !a.Contains(path) {
		return fmt.Errorf("%w: %s", jobrunner.ErrInvalidWorkDir, path)
	}
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("jobrunner/workdir: remove: %w", err)
	}
	return nil
}

// Contains reports whether path lies strictly below the base root.
func (a *Allocator) Contains(path string) bool {
	rel, err := filepath.Rel(a.base, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// sanitize maps kind onto characters safe for a single path element.
func sanitize(kind string) string {
	if kind == "" {
		return "job"
	}
	var b strings.Builder
	for _, r := range kind {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
