package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// Result is the outcome of one action in ApplyAll.
type Result struct {
	Action types.Action
	Bytes  int64
	Err    error
}

// Summary totals an ApplyAll run.
type Summary struct {
	Applied int   `json:"applied"`
	Failed  int   `json:"failed"`
	Bytes   int64 `json:"bytes"`
}

// ApplyAll applies actions in order. A failing action does not stop the
// remaining ones. report, if non-nil, is called once per action.
//
// A rename whose target is still occupied, by a directory holding files
// or by a file in place of a parent directory, is parked under a
// temporary name in the replica root. Parked renames finish once the run
// of consecutive renames they belong to is done, by which point every
// other rename has vacated its old path.
func (e *Executor) ApplyAll(actions []types.Action, report func(Result)) Summary {
	var (
		s      Summary
		parked []parkedRename
	)

	record := func(action types.Action, n int64, err error) {
		if err != nil {
			s.Failed++
		} else {
			s.Applied++
			s.Bytes += n
		}
		if report != nil {
			report(Result{Action: action, Bytes: n, Err: err})
		}
	}
	finish := func() {
		for _, p := range parked {
			record(p.action, 0, e.unpark(p))
		}
		parked = nil
	}

	for _, action := range actions {
		if action.Kind != types.Rename {
			finish()
		}

		n, err := e.apply(action)
		if err != nil && action.Kind == types.Rename {
			if tmp, parkErr := e.park(action.Path); parkErr == nil {
				parked = append(parked, parkedRename{action: action, tmp: tmp})
				continue
			}
		}
		record(action, n, err)
	}
	finish()

	return s
}

// parkedRename is a rename waiting under a temporary name for its target
// to be vacated.
type parkedRename struct {
	action types.Action
	tmp    string
}

// park moves the replica file at rel to a fresh temporary name in the
// replica root and returns that name.
func (e *Executor) park(rel string) (string, error) {
	tmp, err := afero.TempFile(e.replica, ".", tempPattern)
	if err != nil {
		return "", err
	}
	tmpName := strings.TrimPrefix(filepath.ToSlash(tmp.Name()), "/")
	if err := tmp.Close(); err != nil {
		_ = e.replica.Remove(tmpName)
		return "", err
	}

	if err := e.replica.Rename(filepath.FromSlash(rel), filepath.FromSlash(tmpName)); err != nil {
		_ = e.replica.Remove(tmpName)
		return "", err
	}
	e.prune(rel)
	return tmpName, nil
}

// unpark moves a parked file to its rename target. If that still fails
// the file goes back to its old path, so the next cycle sees the replica
// as it was.
func (e *Executor) unpark(p parkedRename) error {
	err := e.rename(p.tmp, p.action.NewPath)
	if err == nil {
		return nil
	}
	if restoreErr := e.rename(p.tmp, p.action.Path); restoreErr != nil {
		_ = e.replica.Remove(filepath.FromSlash(p.tmp))
	}
	return &ActionError{Action: p.action, Err: err}
}

// Stats describes a bootstrap copy.
type Stats struct {
	Removed int64 `json:"removed"`
	Files   int64 `json:"files"`
	Dirs    int64 `json:"dirs"`
	Bytes   int64 `json:"bytes"`
}

// Mirror replaces the replica contents with a full copy of the source.
// Paths rejected by the filter are neither removed from the replica nor
// copied from the source. Only directories and regular files are copied.
func (e *Executor) Mirror() (Stats, error) {
	var stats Stats

	if err := e.replica.MkdirAll(".", 0o755); err != nil {
		return stats, fmt.Errorf("creating replica root: %w", err)
	}

	removed, err := e.clearReplica()
	stats.Removed = removed
	if err != nil {
		return stats, fmt.Errorf("clearing replica: %w", err)
	}

	err = afero.Walk(e.source, ".", func(name string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel := filepath.ToSlash(name)

		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if e.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			if err := e.replica.MkdirAll(name, info.Mode().Perm()|0o700); err != nil {
				return err
			}
			stats.Dirs++
			return nil
		}

		if !info.Mode().IsRegular() || !e.filter.Match(rel) {
			return nil
		}

		n, err := e.copyFile(rel)
		if err != nil {
			return &ActionError{Action: types.NewCreate(rel), Err: err}
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("copying source: %w", err)
	}

	return stats, nil
}

// clearReplica removes every replica entry the filter admits, then any
// directories left empty. Excluded entries stay in place.
func (e *Executor) clearReplica() (int64, error) {
	var (
		removed int64
		files   []string
		dirs    []string
	)

	err := afero.Walk(e.replica, ".", func(name string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel := filepath.ToSlash(name)

		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if e.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			dirs = append(dirs, name)
			return nil
		}

		if e.filter.Match(rel) {
			files = append(files, name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, name := range files {
		if err := e.replica.Remove(name); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}

	// Deepest first, so children go before their parents.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, name := range dirs {
		entries, err := afero.ReadDir(e.replica, name)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := e.replica.Remove(name); err != nil {
			return removed, err
		}
	}

	return removed, nil
}
