package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/cache"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// ErrRootNotFound is returned when the tree root is missing or is not a
// directory.
var ErrRootNotFound = errors.New("snapshot root not found")

// Result is the outcome of one Build.
type Result struct {
	// Snapshot maps every readable regular file to its fingerprint.
	Snapshot types.Snapshot

	// Files is the number of files in Snapshot.
	Files int64

	// Bytes is the total size of the files in Snapshot.
	Bytes int64

	// Errors lists entries that could not be read. They are absent from
	// Snapshot.
	Errors []types.ScanError

	// CacheHits counts fingerprints reused from the cache.
	CacheHits int64

	// Elapsed is the wall time of the build.
	Elapsed time.Duration
}

// Builder produces snapshots. A Builder may be reused and may run
// concurrent builds of different roots.
type Builder struct {
	opts Options
}

// New creates a Builder with the given options.
// Options are validated and defaults are applied.
func New(opts Options) *Builder {
	_ = opts.Validate()
	return &Builder{opts: opts}
}

// build holds the state of a single Build call.
type build struct {
	opts Options
	root string

	files     atomic.Int64
	bytes     atomic.Int64
	cacheHits atomic.Int64

	mu       sync.Mutex
	snapshot types.Snapshot
	errors   []types.ScanError
	fresh    map[string]*cache.CachedEntry
}

// Build walks root and fingerprints every regular file beneath it.
// Symbolic links, directories and special files are not entries. A file
// that cannot be read is left out of the snapshot and reported in
// Result.Errors. Build returns early only if ctx is cancelled or root is
// unusable.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	resolved, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	st := &build{
		opts:     b.opts,
		root:     resolved,
		snapshot: make(types.Snapshot),
	}
	if b.opts.Cache != nil {
		st.fresh = make(map[string]*cache.CachedEntry)
	}

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: b.opts.Workers,
	}
	if err := fastwalk.Walk(&conf, resolved, st.visit(ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("walking %s: %w", resolved, err)
	}

	st.flushCache()

	return &Result{
		Snapshot:  st.snapshot,
		Files:     st.files.Load(),
		Bytes:     st.bytes.Load(),
		Errors:    st.errors,
		CacheHits: st.cacheHits.Load(),
		Elapsed:   time.Since(start),
	}, nil
}

// resolveRoot resolves root to an absolute, symlink-free directory path.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}
	return resolved, nil
}

// visit returns the fastwalk callback. It runs on many goroutines.
func (st *build) visit(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			st.addError(path, err)
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		rel, relErr := st.relative(path)
		if relErr != nil {
			st.addError(path, relErr)
			return nil
		}

		if d.IsDir() {
			if st.opts.Filter.SkipDir(rel) {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !st.opts.Filter.Match(rel) {
			return nil
		}

		st.processFile(path, rel, d)
		return nil
	}
}

// relative converts an absolute walk path to a slash-separated key.
func (st *build) relative(path string) (string, error) {
	rel, err := filepath.Rel(st.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// processFile fingerprints one regular file and records it.
func (st *build) processFile(path, rel string, d fs.DirEntry) {
	info, err := d.Info()
	if err != nil {
		st.addError(rel, err)
		return
	}

	size := info.Size()
	mtime := info.ModTime().UnixNano()
	algorithm := string(st.opts.Hasher.Algorithm)

	var fp types.Fingerprint
	hit := false
	if st.opts.Cache != nil {
		fp, hit = st.opts.Cache.Lookup(st.root, rel, size, mtime, algorithm)
	}

	if hit {
		st.cacheHits.Add(1)
	} else {
		fp, err = st.opts.Hasher.SumFile(path)
		if err != nil {
			st.addError(rel, err)
			return
		}
	}

	st.files.Add(1)
	st.bytes.Add(size)

	st.mu.Lock()
	st.snapshot[rel] = fp
	if st.fresh != nil && !hit {
		st.fresh[rel] = &cache.CachedEntry{
			Size:      size,
			Mtime:     mtime,
			Algorithm: algorithm,
			Digest:    string(fp),
		}
	}
	st.mu.Unlock()
}

// addError records a per-entry failure without stopping the walk.
func (st *build) addError(path string, err error) {
	st.mu.Lock()
	st.errors = append(st.errors, types.ScanError{
		Path:  path,
		Error: err.Error(),
	})
	st.mu.Unlock()
}

// flushCache stores fresh fingerprints and forgets files that are gone.
// Cache failures only cost speed on the next build, so they are logged
// rather than returned.
func (st *build) flushCache() {
	if st.opts.Cache == nil {
		return
	}

	logger := logging.Get("snapshot")
	if err := st.opts.Cache.Update(st.root, st.fresh); err != nil {
		logger.Warn("cache update failed", "root", st.root, "error", err)
	}
	if _, err := st.opts.Cache.Prune(st.root, st.snapshot); err != nil {
		logger.Warn("cache prune failed", "root", st.root, "error", err)
	}
}
