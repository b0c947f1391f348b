// Package poller runs the mirror loop: bootstrap the replica with a full
// copy of the source, then repeatedly snapshot both trees, reconcile
// them and apply the resulting actions, sleeping between cycles.
//
// Cancellation is observed only between cycles. Work inside a cycle is
// never interrupted.
package poller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/executor"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/reconcile"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/snapshot"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

var (
	// ErrSourceMissing is returned when the source root does not exist or
	// is not a directory.
	ErrSourceMissing = errors.New("source path missing")

	// ErrBootstrap is returned when the initial copy fails.
	ErrBootstrap = errors.New("bootstrap failed")
)

// State is the lifecycle state of a Poller.
type State int32

// Poller states.
const (
	StateIdle State = iota
	StateBootstrapping
	StatePolling
	StateFatal
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBootstrapping:
		return "bootstrapping"
	case StatePolling:
		return "polling"
	case StateFatal:
		return "fatal"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CycleReport describes one reconciliation cycle.
type CycleReport struct {
	// ID correlates the cycle's log records.
	ID string

	// Actions are the reconciled actions in execution order.
	Actions []types.Action

	// Summary counts Actions per kind.
	Summary reconcile.Summary

	// Applied totals the executed actions.
	Applied executor.Summary

	// Failures holds the actions that could not be applied.
	Failures []*executor.ActionError

	// Skipped counts files left out of either snapshot because they
	// could not be read.
	Skipped int

	// Elapsed is the wall time of the cycle.
	Elapsed time.Duration
}

// Poller mirrors one source tree onto one replica tree.
type Poller struct {
	opts    Options
	clock   clockwork.Clock
	builder *snapshot.Builder
	exec    *executor.Executor
	log     *logging.Logger
	state   atomic.Int32
}

// New creates a Poller. It does not touch the filesystem.
func New(opts Options) (*Poller, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	builder := snapshot.New(snapshot.Options{
		Hasher:  opts.Hasher,
		Filter:  opts.Filter,
		Workers: opts.Workers,
		Cache:   opts.Cache,
	})

	exec := executor.New(opts.Source, opts.Replica,
		executor.WithPruneEmptyDirs(opts.PruneEmptyDirs),
		executor.WithFilter(opts.Filter),
		executor.WithBufferSize(opts.BufferSize),
	)

	return &Poller{
		opts:    opts,
		clock:   opts.Clock,
		builder: builder,
		exec:    exec,
		log:     logging.Get("poller"),
	}, nil
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

// Run bootstraps the replica and polls until ctx is cancelled or a fatal
// error occurs. Cancellation returns nil.
func (p *Poller) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return p.cancel()
	}

	if err := p.Bootstrap(); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return p.cancel()
		}

		if _, err := p.Cycle(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return p.cancel()
		case <-p.clock.After(p.opts.Interval):
		}
	}
}

func (p *Poller) cancel() error {
	p.setState(StateCancelled)
	p.log.Info("exiting")
	return nil
}

func (p *Poller) fatal(err error) error {
	p.setState(StateFatal)
	return err
}

// Bootstrap replaces the replica with a full copy of the source.
func (p *Poller) Bootstrap() error {
	p.setState(StateBootstrapping)

	if err := p.checkSource(); err != nil {
		return p.fatal(err)
	}

	start := p.clock.Now()
	stats, err := p.exec.Mirror()
	if err != nil {
		p.log.Fatal("bootstrap failed", "source", p.opts.Source, "replica", p.opts.Replica, "error", err)
		return p.fatal(fmt.Errorf("%w: %w", ErrBootstrap, err))
	}

	p.log.Info("bootstrap complete",
		"files", stats.Files,
		"bytes", stats.Bytes,
		"size", types.FormatSize(stats.Bytes),
		"removed", stats.Removed,
		"elapsed", p.clock.Since(start),
	)
	p.setState(StatePolling)
	return nil
}

// Cycle runs one reconciliation cycle. Actions that fail are logged and
// reported; only a missing source is returned as an error.
func (p *Poller) Cycle(ctx context.Context) (*CycleReport, error) {
	ctx = context.WithoutCancel(ctx)
	p.setState(StatePolling)

	report := &CycleReport{ID: uuid.NewString()}
	log := p.log.With("cycle", report.ID)
	start := p.clock.Now()

	if err := p.checkSource(); err != nil {
		return nil, p.fatal(err)
	}

	source, err := p.builder.Build(ctx, p.opts.Source)
	if err != nil {
		if errors.Is(err, snapshot.ErrRootNotFound) {
			p.log.Fatal("source path missing", "path", p.opts.Source)
			return nil, p.fatal(fmt.Errorf("%w: %s", ErrSourceMissing, p.opts.Source))
		}
		return nil, p.fatal(fmt.Errorf("snapshot source: %w", err))
	}
	p.reportSkipped(log, source)

	replica, err := p.builder.Build(ctx, p.opts.Replica)
	switch {
	case errors.Is(err, snapshot.ErrRootNotFound):
		log.Warn("replica missing, recreating", "path", p.opts.Replica)
		replica = &snapshot.Result{Snapshot: types.Snapshot{}}
	case err != nil:
		return nil, p.fatal(fmt.Errorf("snapshot replica: %w", err))
	default:
		p.reportSkipped(log, replica)
	}
	report.Skipped = len(source.Errors) + len(replica.Errors)

	report.Actions = reconcile.Reconcile(source.Snapshot, replica.Snapshot)
	report.Summary = reconcile.Summarize(report.Actions)

	report.Applied = p.exec.ApplyAll(report.Actions, func(r executor.Result) {
		if r.Err != nil {
			var actionErr *executor.ActionError
			if errors.As(r.Err, &actionErr) {
				report.Failures = append(report.Failures, actionErr)
			}
			log.Error("action failed", "kind", r.Action.Kind, "path", r.Action.Path, "error", r.Err)
			return
		}
		logAction(log, r.Action)
	})

	report.Elapsed = p.clock.Since(start)
	log.Info("cycle complete",
		"files", source.Files,
		"creates", report.Summary.Creates,
		"modifies", report.Summary.Modifies,
		"renames", report.Summary.Renames,
		"deletes", report.Summary.Deletes,
		"failed", report.Applied.Failed,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// checkSource logs and returns ErrSourceMissing unless the source root is
// an existing directory.
func (p *Poller) checkSource() error {
	info, err := os.Stat(p.opts.Source)
	if err == nil && info.IsDir() {
		return nil
	}
	p.log.Fatal("source path missing", "path", p.opts.Source)
	return fmt.Errorf("%w: %s", ErrSourceMissing, p.opts.Source)
}

func (p *Poller) reportSkipped(log *logging.Logger, res *snapshot.Result) {
	for _, e := range res.Errors {
		log.Warn("skipped unreadable file", "path", e.Path, "error", e.Error)
	}
}

// logAction emits the event for a successfully applied action.
func logAction(log *logging.Logger, a types.Action) {
	switch a.Kind {
	case types.Modify:
		log.Info("content modified", "path", a.Path)
	case types.Rename:
		log.Info("moved", "from", a.Path, "to", a.NewPath)
	case types.Delete:
		log.Info("removed", "path", a.Path)
	case types.Create:
		log.Info("created", "path", a.Path)
	}
}
