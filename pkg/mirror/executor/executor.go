// Package executor applies reconciliation actions to the replica tree.
//
// Both trees are accessed through afero filesystems rooted at the tree
// roots, so action paths are the slash-separated snapshot keys. Copies
// are written to a temporary file in the destination directory and
// renamed into place, so a reader of the replica never observes a
// partially written file.
package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/filter"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// tempPattern names in-flight copies inside the replica.
const tempPattern = ".mirrorsync-tmp-*"

// DefaultBufferSize is the copy buffer size when none is configured.
const DefaultBufferSize = 64 * types.KiB

var (
	// ErrNotRegular is returned when a copy source is not a regular file.
	ErrNotRegular = errors.New("not a regular file")

	// ErrUnknownAction is returned for an action kind the executor does
	// not handle.
	ErrUnknownAction = errors.New("unknown action kind")
)

// ActionError reports the failure of a single action.
type ActionError struct {
	Action types.Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Executor applies actions from a source tree to a replica tree.
type Executor struct {
	source  afero.Fs
	replica afero.Fs

	pruneEmptyDirs bool
	filter         *filter.Filter
	bufferSize     int64
}

// Option is a functional option for configuring an Executor.
type Option func(*Executor)

// WithPruneEmptyDirs sets whether directories left empty by a Delete or
// Rename are removed. The replica root is never removed.
func WithPruneEmptyDirs(prune bool) Option {
	return func(e *Executor) {
		e.pruneEmptyDirs = prune
	}
}

// WithFilter sets the filter honored by Mirror.
func WithFilter(f *filter.Filter) Option {
	return func(e *Executor) {
		e.filter = f
	}
}

// WithBufferSize sets the copy buffer size. Values <= 0 are ignored.
func WithBufferSize(size int64) Option {
	return func(e *Executor) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// New returns an Executor over the OS filesystem rooted at sourceRoot
// and replicaRoot.
func New(sourceRoot, replicaRoot string, opts ...Option) *Executor {
	osFs := afero.NewOsFs()
	return NewWithFs(
		afero.NewBasePathFs(osFs, absPath(sourceRoot)),
		afero.NewBasePathFs(osFs, absPath(replicaRoot)),
		opts...,
	)
}

// absPath makes root absolute; BasePathFs rejects every name under a
// relative base such as ".".
func absPath(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// NewWithFs returns an Executor over the given filesystems, each rooted
// at its tree root.
func NewWithFs(source, replica afero.Fs, opts ...Option) *Executor {
	e := &Executor{
		source:         source,
		replica:        replica,
		pruneEmptyDirs: true,
		bufferSize:     DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply performs a single action. Any failure is returned as an
// *ActionError.
func (e *Executor) Apply(action types.Action) error {
	_, err := e.apply(action)
	return err
}

func (e *Executor) apply(action types.Action) (int64, error) {
	var (
		n   int64
		err error
	)

	switch action.Kind {
	case types.Create, types.Modify:
		n, err = e.copyFile(action.Path)
	case types.Rename:
		err = e.rename(action.Path, action.NewPath)
	case types.Delete:
		err = e.remove(action.Path)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownAction, int(action.Kind))
	}

	if err != nil {
		return 0, &ActionError{Action: action, Err: err}
	}
	return n, nil
}

// copyFile copies the source file at rel over the replica file at rel,
// preserving permission bits and modification time.
func (e *Executor) copyFile(rel string) (int64, error) {
	name := filepath.FromSlash(rel)

	src, err := e.source.Open(name)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = src.Close()
	}()

	info, err := src.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", rel, ErrNotRegular)
	}

	dir := filepath.Dir(name)
	if err := e.replica.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := afero.TempFile(e.replica, dir, tempPattern)
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = e.replica.Remove(tmpName)
		}
	}()

	n, err := io.CopyBuffer(tmp, src, make([]byte, e.bufferSize))
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	if err := e.replica.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return 0, err
	}
	if err := e.clearEmptyDir(name); err != nil {
		return 0, err
	}
	if err := e.replica.Rename(tmpName, name); err != nil {
		return 0, err
	}
	committed = true

	if err := e.replica.Chtimes(name, info.ModTime(), info.ModTime()); err != nil {
		return n, err
	}
	return n, nil
}

// rename moves a replica file, creating the parents of the new path.
func (e *Executor) rename(oldRel, newRel string) error {
	oldName := filepath.FromSlash(oldRel)
	newName := filepath.FromSlash(newRel)

	if err := e.replica.MkdirAll(filepath.Dir(newName), 0o755); err != nil {
		return err
	}
	if err := e.clearEmptyDir(newName); err != nil {
		return err
	}
	if err := e.replica.Rename(oldName, newName); err != nil {
		return err
	}

	e.prune(oldRel)
	return nil
}

// remove deletes a replica file. A file that is already gone counts as
// removed.
func (e *Executor) remove(rel string) error {
	err := e.replica.Remove(filepath.FromSlash(rel))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	e.prune(rel)
	return nil
}

// prune removes the now-empty ancestors of rel, deepest first, stopping
// at the first non-empty directory or the replica root.
func (e *Executor) prune(rel string) {
	if !e.pruneEmptyDirs {
		return
	}

	for dir := path.Dir(rel); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		name := filepath.FromSlash(dir)
		entries, err := afero.ReadDir(e.replica, name)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := e.replica.Remove(name); err != nil {
			return
		}
	}
}

// clearEmptyDir removes a directory standing at name when no file lives
// anywhere beneath it, so a file can take its place.
func (e *Executor) clearEmptyDir(name string) error {
	info, err := e.lstat(name)
	if err != nil || !info.IsDir() {
		return nil
	}
	if e.holdsFiles(name) {
		return nil
	}
	return e.replica.RemoveAll(name)
}

// holdsFiles reports whether anything other than a directory lives under
// dir. Unreadable directories count as holding files.
func (e *Executor) holdsFiles(dir string) bool {
	entries, err := afero.ReadDir(e.replica, dir)
	if err != nil {
		return true
	}
	for _, entry := range entries {
		if !entry.IsDir() || e.holdsFiles(filepath.Join(dir, entry.Name())) {
			return true
		}
	}
	return false
}

func (e *Executor) lstat(name string) (os.FileInfo, error) {
	if l, ok := e.replica.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return e.replica.Stat(name)
}
