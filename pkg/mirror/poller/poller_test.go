package poller

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/filter"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// tree returns every regular file under root with its content.
func tree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func newPoller(t *testing.T, src, dst string, clock clockwork.Clock) *Poller {
	t.Helper()
	p, err := New(Options{
		Source:         src,
		Replica:        dst,
		Interval:       time.Minute,
		Clock:          clock,
		Workers:        2,
		PruneEmptyDirs: true,
	})
	require.NoError(t, err)
	return p
}

// events subscribes to the log stream for the duration of the test.
func events(t *testing.T) <-chan logging.LogEntry {
	t.Helper()
	ch := logging.Subscribe()
	t.Cleanup(func() { logging.Unsubscribe(ch) })
	return ch
}

// drain returns the poller entries currently buffered in ch.
func drain(ch <-chan logging.LogEntry) []logging.LogEntry {
	var out []logging.LogEntry
	for {
		select {
		case e := <-ch:
			if e.Component == "poller" {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

// waitFor blocks until an entry with msg arrives on ch.
func waitFor(t *testing.T, ch <-chan logging.LogEntry, msg string) logging.LogEntry {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Component == "poller" && e.Message == msg {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", msg)
			return logging.LogEntry{}
		}
	}
}

func messages(entries []logging.LogEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func find(entries []logging.LogEntry, msg string) (logging.LogEntry, bool) {
	for _, e := range entries {
		if e.Message == msg {
			return e, true
		}
	}
	return logging.LogEntry{}, false
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Replica: "r"})
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = New(Options{Source: "s"})
	assert.ErrorIs(t, err, ErrNoReplica)

	_, err = New(Options{Source: "s", Replica: "r", Interval: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	p, err := New(Options{Source: "s", Replica: "r"})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.opts.Interval)
	assert.Equal(t, StateIdle, p.State())
}

func TestBootstrapReplacesReplica(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "x.txt", "hello")
	writeFile(t, src, "sub/y.txt", "world")
	writeFile(t, dst, "stale.txt", "old")

	ch := events(t)
	p := newPoller(t, src, dst, clockwork.NewFakeClock())
	require.NoError(t, p.Bootstrap())

	assert.Equal(t, tree(t, src), tree(t, dst))
	assert.Equal(t, StatePolling, p.State())

	e, ok := find(drain(ch), "bootstrap complete")
	require.True(t, ok)
	files, _ := e.Value("files")
	assert.Equal(t, int64(2), files)

	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Actions, "first cycle after bootstrap must be a no-op")
}

func TestBootstrapSourceMissing(t *testing.T) {
	dst := t.TempDir()
	ch := events(t)
	p := newPoller(t, filepath.Join(t.TempDir(), "gone"), dst, clockwork.NewFakeClock())

	err := p.Bootstrap()
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Equal(t, StateFatal, p.State())

	e, ok := find(drain(ch), "source path missing")
	require.True(t, ok)
	assert.Equal(t, logging.LevelFatal, e.Level)
}

func TestBootstrapSourceIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	p := newPoller(t, file, t.TempDir(), clockwork.NewFakeClock())
	assert.ErrorIs(t, p.Bootstrap(), ErrSourceMissing)
}

func TestCycleScenarios(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	ch := events(t)
	p := newPoller(t, src, dst, clockwork.NewFakeClock())
	require.NoError(t, p.Bootstrap())
	drain(ch)

	steps := []struct {
		name    string
		mutate  func()
		actions []types.Action
		event   string
		fields  map[string]string
		want    map[string]string
	}{
		{
			name:    "create",
			mutate:  func() { writeFile(t, src, "x.txt", "hello") },
			actions: []types.Action{types.NewCreate("x.txt")},
			event:   "created",
			fields:  map[string]string{"path": "x.txt"},
			want:    map[string]string{"x.txt": "hello"},
		},
		{
			name:    "modify",
			mutate:  func() { writeFile(t, src, "x.txt", "hello world") },
			actions: []types.Action{types.NewModify("x.txt")},
			event:   "content modified",
			fields:  map[string]string{"path": "x.txt"},
			want:    map[string]string{"x.txt": "hello world"},
		},
		{
			name: "rename",
			mutate: func() {
				require.NoError(t, os.Rename(filepath.Join(src, "x.txt"), filepath.Join(src, "y.txt")))
			},
			actions: []types.Action{types.NewRename("x.txt", "y.txt")},
			event:   "moved",
			fields:  map[string]string{"from": "x.txt", "to": "y.txt"},
			want:    map[string]string{"y.txt": "hello world"},
		},
		{
			name:    "delete",
			mutate:  func() { require.NoError(t, os.Remove(filepath.Join(src, "y.txt"))) },
			actions: []types.Action{types.NewDelete("y.txt")},
			event:   "removed",
			fields:  map[string]string{"path": "y.txt"},
			want:    map[string]string{},
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			step.mutate()

			report, err := p.Cycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, step.actions, report.Actions)
			assert.Zero(t, report.Applied.Failed)
			assert.Equal(t, step.want, tree(t, dst))

			entries := drain(ch)
			e, ok := find(entries, step.event)
			require.True(t, ok, "events: %v", messages(entries))
			for k, v := range step.fields {
				got, ok := e.Value(k)
				require.True(t, ok, "missing field %s", k)
				assert.Equal(t, v, got)
			}
			cycleID, ok := e.Value("cycle")
			require.True(t, ok)
			assert.Equal(t, report.ID, cycleID)

			again, err := p.Cycle(context.Background())
			require.NoError(t, err)
			assert.Empty(t, again.Actions, "second cycle must be idempotent")
			drain(ch)
		})
	}
}

func TestCycleDuplicateContent(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	p := newPoller(t, src, dst, clockwork.NewFakeClock())

	writeFile(t, src, "a.txt", "dup")
	writeFile(t, src, "b.txt", "dup")
	writeFile(t, dst, "old.txt", "dup")

	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Action{
		types.NewRename("old.txt", "a.txt"),
		types.NewCreate("b.txt"),
	}, report.Actions)
	assert.Equal(t, map[string]string{"a.txt": "dup", "b.txt": "dup"}, tree(t, dst))
}

func TestCycleConverges(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	p := newPoller(t, src, dst, clockwork.NewFakeClock())

	writeFile(t, src, "keep.txt", "same")
	writeFile(t, src, "edit.txt", "v1")
	writeFile(t, src, "dir/move.txt", "moving")
	writeFile(t, src, "gone.txt", "bye")
	require.NoError(t, p.Bootstrap())

	writeFile(t, src, "edit.txt", "v2")
	require.NoError(t, os.Rename(filepath.Join(src, "dir", "move.txt"), filepath.Join(src, "moved.txt")))
	require.NoError(t, os.Remove(filepath.Join(src, "gone.txt")))
	writeFile(t, src, "new/file.txt", "fresh")

	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Modifies)
	assert.Equal(t, 1, report.Summary.Renames)
	assert.Equal(t, 1, report.Summary.Deletes)
	assert.Equal(t, 1, report.Summary.Creates)

	assert.Equal(t, tree(t, src), tree(t, dst))
	_, err = os.Stat(filepath.Join(dst, "dir"))
	assert.True(t, os.IsNotExist(err), "emptied directory should be pruned")
}

func TestCycleHonorsFilter(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	f, err := filter.New(filter.WithExclude("*.log"))
	require.NoError(t, err)

	p, err := New(Options{Source: src, Replica: dst, Filter: f, Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)

	writeFile(t, src, "app.log", "source log")
	writeFile(t, src, "data.txt", "data")
	writeFile(t, dst, "local.log", "replica log")

	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Action{types.NewCreate("data.txt")}, report.Actions)
	assert.Equal(t, map[string]string{"data.txt": "data", "local.log": "replica log"}, tree(t, dst))
}

func TestCycleRecreatesMissingReplica(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "replica")
	writeFile(t, src, "x.txt", "hello")

	p := newPoller(t, src, dst, clockwork.NewFakeClock())
	report, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Action{types.NewCreate("x.txt")}, report.Actions)
	assert.Equal(t, map[string]string{"x.txt": "hello"}, tree(t, dst))
}

func TestCycleSourceMissing(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "x.txt", "hello")
	p := newPoller(t, src, dst, clockwork.NewFakeClock())
	require.NoError(t, p.Bootstrap())

	require.NoError(t, os.RemoveAll(src))

	_, err := p.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Equal(t, StateFatal, p.State())
	assert.Equal(t, map[string]string{"x.txt": "hello"}, tree(t, dst), "replica is left alone")
}

func TestCycleActionFailureContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "locked/x.txt", "x")
	writeFile(t, src, "y.txt", "y")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "locked"), 0o755))
	require.NoError(t, os.Chmod(filepath.Join(dst, "locked"), 0o555))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(dst, "locked"), 0o755) })

	ch := events(t)
	p := newPoller(t, src, dst, clockwork.NewFakeClock())
	report, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Applied.Failed)
	assert.Equal(t, 1, report.Applied.Applied)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, types.NewCreate("locked/x.txt"), report.Failures[0].Action)

	e, ok := find(drain(ch), "action failed")
	require.True(t, ok)
	path, _ := e.Value("path")
	assert.Equal(t, "locked/x.txt", path)
	assert.Equal(t, map[string]string{"y.txt": "y"}, tree(t, dst))
}

func TestRunPollsUntilCancelled(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "x.txt", "hello")

	ch := events(t)
	clock := clockwork.NewFakeClock()
	p := newPoller(t, src, dst, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, ch, "bootstrap complete")
	waitFor(t, ch, "cycle complete")
	clock.BlockUntil(1)

	writeFile(t, src, "y.txt", "world")
	clock.Advance(time.Minute)

	created := waitFor(t, ch, "created")
	path, _ := created.Value("path")
	assert.Equal(t, "y.txt", path)
	waitFor(t, ch, "cycle complete")
	clock.BlockUntil(1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, StateCancelled, p.State())
	waitFor(t, ch, "exiting")

	got := tree(t, dst)
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"x.txt", "y.txt"}, keys)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "x.txt", "hello")
	p := newPoller(t, src, dst, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, StateCancelled, p.State())
	assert.Empty(t, tree(t, dst))
}

func TestRunSourceMissing(t *testing.T) {
	p := newPoller(t, filepath.Join(t.TempDir(), "gone"), t.TempDir(), clockwork.NewFakeClock())
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Equal(t, StateFatal, p.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(99).String())
}
