package poller

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/cache"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/filter"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/fingerprint"
)

// DefaultInterval is the sleep between cycles when none is configured.
const DefaultInterval = 30 * time.Second

var (
	// ErrNoSource is returned by New when no source root is set.
	ErrNoSource = errors.New("source path is required")

	// ErrNoReplica is returned by New when no replica root is set.
	ErrNoReplica = errors.New("replica path is required")

	// ErrInvalidInterval is returned by New for a negative interval.
	ErrInvalidInterval = errors.New("interval cannot be negative")
)

// Options configures a Poller.
type Options struct {
	// Source is the tree being mirrored.
	Source string

	// Replica is the tree kept identical to Source.
	Replica string

	// Interval is the sleep between cycles. Zero uses DefaultInterval.
	Interval time.Duration

	// Clock drives the sleep. Nil uses the real clock.
	Clock clockwork.Clock

	// Hasher fingerprints files. Nil uses the default hasher.
	Hasher *fingerprint.Hasher

	// Filter excludes paths from both trees.
	Filter *filter.Filter

	// Workers is the snapshot walk concurrency. Zero tunes automatically.
	Workers int

	// Cache is an optional fingerprint cache shared by both snapshots.
	Cache *cache.Cache

	// PruneEmptyDirs removes replica directories emptied by a delete or
	// rename.
	PruneEmptyDirs bool

	// BufferSize is the copy buffer size. Zero uses the executor default.
	BufferSize int64
}

func (o *Options) validate() error {
	if o.Source == "" {
		return ErrNoSource
	}
	if o.Replica == "" {
		return ErrNoReplica
	}
	if o.Interval < 0 {
		return ErrInvalidInterval
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return nil
}
