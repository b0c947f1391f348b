// Package snapshot captures the content state of a directory tree as a
// map from relative path to fingerprint. Files are discovered with
// fastwalk and fingerprinted in parallel; the walk completes before
// Build returns.
package snapshot

import (
	"github.com/jamesainslie/mirrorsync/pkg/mirror/cache"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/filter"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/fingerprint"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/tuner"
)

// Options configures a Builder.
type Options struct {
	// Hasher computes file fingerprints. Nil uses fingerprint.Default().
	Hasher *fingerprint.Hasher

	// Filter selects which paths take part. Nil includes everything.
	Filter *filter.Filter

	// Workers is the number of concurrent walk goroutines.
	// Zero or negative selects a value from the tuner.
	Workers int

	// Cache is an optional fingerprint cache. If nil, every file is read
	// on every build.
	Cache *cache.Cache
}

// Validate fills in defaults for unset fields.
func (o *Options) Validate() error {
	if o.Hasher == nil {
		o.Hasher = fingerprint.Default()
	}
	if o.Workers < 1 {
		o.Workers = tuner.Workers(0)
	}
	return nil
}
