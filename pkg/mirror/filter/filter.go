// Package filter decides which paths of a tree take part in mirroring.
// The same Filter is applied to the source walk, the replica walk and the
// bootstrap copy, so an excluded path is neither copied nor deleted.
package filter

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern indicates that a glob pattern failed to compile.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// Filter holds compiled include and exclude glob patterns.
//
// Patterns use '/' as the separator, so "*" never crosses a directory
// boundary while "**" does. A pattern matches a path if it matches either
// the full slash-separated relative path or its final element, which lets
// "*.tmp" exclude temporary files at any depth.
type Filter struct {
	// Exclude contains glob patterns. Matching files and directories are skipped.
	Exclude []string

	// Include contains glob patterns. If non-empty, files must match at
	// least one. Directories are always traversed.
	Include []string

	// ExcludeHidden skips files and directories whose name begins with a dot.
	ExcludeHidden bool

	exclude []glob.Glob
	include []glob.Glob
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter with the given options and compiles its patterns.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.exclude, err = compile(f.Exclude); err != nil {
		return nil, err
	}
	if f.include, err = compile(f.Include); err != nil {
		return nil, err
	}
	return f, nil
}

// WithExclude sets the exclude glob patterns. Empty patterns are ignored.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = nonEmpty(patterns)
	}
}

// WithInclude sets the include glob patterns. Empty patterns are ignored.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = nonEmpty(patterns)
	}
}

// WithExcludeHidden sets whether dot-prefixed names are skipped.
func WithExcludeHidden(exclude bool) Option {
	return func(f *Filter) {
		f.ExcludeHidden = exclude
	}
}

// SkipDir reports whether the directory at rel (slash-separated, relative
// to the tree root) should be pruned from the walk. The root itself ("."
// or "") is never skipped. A nil Filter skips nothing.
func (f *Filter) SkipDir(rel string) bool {
	if f == nil || rel == "" || rel == "." {
		return false
	}
	if f.ExcludeHidden && isHidden(rel) {
		return true
	}
	return matchAny(f.exclude, rel)
}

// Match reports whether the file at rel takes part in mirroring. A nil
// Filter matches every file.
func (f *Filter) Match(rel string) bool {
	if f == nil {
		return true
	}
	if f.ExcludeHidden && isHidden(rel) {
		return false
	}
	if matchAny(f.exclude, rel) {
		return false
	}
	if len(f.include) > 0 && !matchAny(f.include, rel) {
		return false
	}
	return true
}

// Empty reports whether the filter has no effect.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.exclude) == 0 && len(f.include) == 0 && !f.ExcludeHidden)
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, rel string) bool {
	if len(globs) == 0 {
		return false
	}
	base := path.Base(rel)
	for _, g := range globs {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func isHidden(rel string) bool {
	return strings.HasPrefix(path.Base(rel), ".")
}

func nonEmpty(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
