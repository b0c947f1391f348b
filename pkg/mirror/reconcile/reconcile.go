// Package reconcile compares two snapshots of a tree and produces the
// ordered list of actions that turns the replica into the source.
//
// Every replica entry is classified exactly once:
//
//   - same path in source, same fingerprint: unchanged
//   - same path in source, other fingerprint: Modify
//   - path absent from source, content still present at a new source
//     path: Rename to that path
//   - otherwise: Delete
//
// Source paths that neither exist in the replica nor received a rename
// become Create actions.
package reconcile

import (
	"sort"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// Index maps a fingerprint to the source paths that may receive a rename
// carrying that content. Only source paths absent from the replica are
// indexed, and each list is sorted ascending.
type Index map[types.Fingerprint][]string

// BuildIndex builds the rename candidate index for source against replica.
func BuildIndex(source, replica types.Snapshot) Index {
	idx := make(Index)
	for path, fp := range source {
		if _, ok := replica[path]; ok {
			continue
		}
		idx[fp] = append(idx[fp], path)
	}
	for fp := range idx {
		sort.Strings(idx[fp])
	}
	return idx
}

// Candidates returns the sorted candidate paths for fp.
func (idx Index) Candidates(fp types.Fingerprint) []string {
	return idx[fp]
}

// Reconcile returns the actions that converge replica onto source. It is
// a pure function of its inputs.
//
// The result is in execution order: all Deletes, then all Renames, then
// Modifies and Creates. Deletes and Renames are ordered by their replica
// path, Modifies and Creates by path. When several replica files share
// content, they claim rename targets in ascending path order, each
// taking the smallest unclaimed candidate.
func Reconcile(source, replica types.Snapshot) []types.Action {
	idx := BuildIndex(source, replica)
	next := make(map[types.Fingerprint]int, len(idx))
	claimed := make(map[string]struct{})

	var deletes, renames, updates []types.Action

	for _, path := range replica.Paths() {
		fp := replica[path]

		if sourceFP, ok := source[path]; ok {
			if sourceFP != fp {
				updates = append(updates, types.NewModify(path))
			}
			continue
		}

		if candidates := idx[fp]; next[fp] < len(candidates) {
			target := candidates[next[fp]]
			next[fp]++
			claimed[target] = struct{}{}
			renames = append(renames, types.NewRename(path, target))
			continue
		}

		deletes = append(deletes, types.NewDelete(path))
	}

	for path := range source {
		if _, ok := replica[path]; ok {
			continue
		}
		if _, ok := claimed[path]; ok {
			continue
		}
		updates = append(updates, types.NewCreate(path))
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Path < updates[j].Path
	})

	actions := make([]types.Action, 0, len(deletes)+len(renames)+len(updates))
	actions = append(actions, deletes...)
	actions = append(actions, renames...)
	actions = append(actions, updates...)
	return actions
}

// Summary counts actions per kind.
type Summary struct {
	Creates  int `json:"creates" yaml:"creates"`
	Modifies int `json:"modifies" yaml:"modifies"`
	Renames  int `json:"renames" yaml:"renames"`
	Deletes  int `json:"deletes" yaml:"deletes"`
}

// Total returns the number of actions counted.
func (s Summary) Total() int {
	return s.Creates + s.Modifies + s.Renames + s.Deletes
}

// Summarize counts the actions of each kind.
func Summarize(actions []types.Action) Summary {
	var s Summary
	for _, a := range actions {
		switch a.Kind {
		case types.Create:
			s.Creates++
		case types.Modify:
			s.Modifies++
		case types.Rename:
			s.Renames++
		case types.Delete:
			s.Deletes++
		}
	}
	return s
}

// Apply returns the snapshot that results from applying actions to
// replica, using source for the content of copied files. It models the
// executor without touching a filesystem.
func Apply(source, replica types.Snapshot, actions []types.Action) types.Snapshot {
	out := replica.Clone()
	for _, a := range actions {
		switch a.Kind {
		case types.Create, types.Modify:
			out[a.Path] = source[a.Path]
		case types.Rename:
			fp, ok := out[a.Path]
			if !ok {
				continue
			}
			delete(out, a.Path)
			out[a.NewPath] = fp
		case types.Delete:
			delete(out, a.Path)
		}
	}
	return out
}
