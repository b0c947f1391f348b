package poller

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

func newPollerPrune(t *testing.T, src, dst string, prune bool) *Poller {
	t.Helper()
	p, err := New(Options{
		Source:         src,
		Replica:        dst,
		Clock:          clockwork.NewFakeClock(),
		Workers:        2,
		PruneEmptyDirs: prune,
	})
	require.NoError(t, err)
	return p
}

func move(t *testing.T, root, from, to string) {
	t.Helper()
	target := filepath.Join(root, filepath.FromSlash(to))
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.Rename(filepath.Join(root, filepath.FromSlash(from)), target))
}

// assertConverged runs one cycle and checks the replica matches the source
// with no failed actions and nothing left to do.
func assertConverged(t *testing.T, p *Poller, src, dst string) *CycleReport {
	t.Helper()
	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Applied.Failed, "failures: %v", report.Failures)
	assert.Equal(t, tree(t, src), tree(t, dst))

	again, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Actions)
	return report
}

func TestCycleRenamesIntoVacatedPaths(t *testing.T) {
	tests := []struct {
		name    string
		initial map[string]string
		change  func(t *testing.T, src string)
		want    []types.Action
	}{
		{
			name:    "file takes the place of a directory moved away",
			initial: map[string]string{"a": "X", "z/q": "Y"},
			change: func(t *testing.T, src string) {
				move(t, src, "z/q", "w")
				require.NoError(t, os.Remove(filepath.Join(src, "z")))
				move(t, src, "a", "z")
			},
			want: []types.Action{types.NewRename("a", "z"), types.NewRename("z/q", "w")},
		},
		{
			name:    "file moves under a path another file vacated",
			initial: map[string]string{"a": "B", "z": "A"},
			change: func(t *testing.T, src string) {
				move(t, src, "z", "y")
				move(t, src, "a", "z/a")
			},
			want: []types.Action{types.NewRename("a", "z/a"), types.NewRename("z", "y")},
		},
	}

	for _, tt := range tests {
		for _, prune := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/prune=%v", tt.name, prune), func(t *testing.T) {
				src, dst := t.TempDir(), t.TempDir()
				for rel, content := range tt.initial {
					writeFile(t, src, rel, content)
				}
				p := newPollerPrune(t, src, dst, prune)
				require.NoError(t, p.Bootstrap())

				tt.change(t, src)

				report := assertConverged(t, p, src, dst)
				assert.Equal(t, tt.want, report.Actions)
			})
		}
	}
}

func TestCycleDirectoryBecomesFile(t *testing.T) {
	for _, prune := range []bool{true, false} {
		t.Run(fmt.Sprintf("prune=%v", prune), func(t *testing.T) {
			src, dst := t.TempDir(), t.TempDir()
			writeFile(t, src, "d/x", "1")
			p := newPollerPrune(t, src, dst, prune)
			require.NoError(t, p.Bootstrap())

			require.NoError(t, os.RemoveAll(filepath.Join(src, "d")))
			writeFile(t, src, "d", "2")

			report := assertConverged(t, p, src, dst)
			assert.Equal(t, []types.Action{types.NewDelete("d/x"), types.NewCreate("d")}, report.Actions)
		})
	}
}

// placeFile adds rel unless some path would then be both a file and a
// directory.
func placeFile(files map[string]string, rel, content string) {
	for existing := range files {
		if existing == rel || strings.HasPrefix(existing, rel+"/") || strings.HasPrefix(rel, existing+"/") {
			return
		}
	}
	files[rel] = content
}

func randomRel(rng *rand.Rand) string {
	names := []string{"a", "b", "z"}
	parts := make([]string, 1+rng.Intn(3))
	for i := range parts {
		parts[i] = names[rng.Intn(len(names))]
	}
	return strings.Join(parts, "/")
}

// materialize replaces the contents of root with files.
func materialize(t *testing.T, root string, files map[string]string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.RemoveAll(filepath.Join(root, e.Name())))
	}
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
}

// randomEdit returns a tree and an edited version of it in which files
// are kept, moved between directory levels, modified, copied, deleted,
// and created, reusing a small set of names so files and directories
// trade places.
func randomEdit(rng *rand.Rand) (map[string]string, map[string]string) {
	n := 0
	fresh := func() string {
		n++
		return fmt.Sprintf("content-%d", n)
	}

	before := make(map[string]string)
	for i := 2 + rng.Intn(6); i > 0; i-- {
		placeFile(before, randomRel(rng), fresh())
	}

	paths := make([]string, 0, len(before))
	for rel := range before {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	after := make(map[string]string)
	for _, rel := range paths {
		content := before[rel]
		switch rng.Intn(6) {
		case 0:
			placeFile(after, rel, content)
		case 1, 2:
			placeFile(after, randomRel(rng), content)
		case 3:
			placeFile(after, rel, fresh())
		case 4:
			placeFile(after, rel, content)
			placeFile(after, randomRel(rng), content)
		}
	}
	for i := rng.Intn(3); i > 0; i-- {
		placeFile(after, randomRel(rng), fresh())
	}
	return before, after
}

func TestCycleConvergesOnDiskRandomized(t *testing.T) {
	for _, prune := range []bool{true, false} {
		for seed := int64(0); seed < 100; seed++ {
			t.Run(fmt.Sprintf("prune=%v/seed=%d", prune, seed), func(t *testing.T) {
				before, after := randomEdit(rand.New(rand.NewSource(seed)))

				src, dst := t.TempDir(), t.TempDir()
				materialize(t, src, before)
				p := newPollerPrune(t, src, dst, prune)
				require.NoError(t, p.Bootstrap())
				require.Equal(t, before, tree(t, dst))

				materialize(t, src, after)
				assertConverged(t, p, src, dst)
			})
		}
	}
}
