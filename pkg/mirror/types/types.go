// Package types provides the core data types shared by the mirrorsync packages:
// snapshots of a directory tree, the content fingerprints they are keyed to,
// and the filesystem actions that converge a replica onto its source.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Fingerprint is an opaque digest of a file's byte content, in the
// "<algorithm>:<hex>" form. Two files with identical bytes hashed with the
// same algorithm always produce equal fingerprints.
type Fingerprint = digest.Digest

// Snapshot maps a root-relative, slash-separated file path to the fingerprint
// of that file's content at capture time.
//
// A Snapshot is built from scratch for every cycle and is treated as
// immutable once returned by the builder.
type Snapshot map[string]Fingerprint

// Paths returns the snapshot's paths in ascending lexicographic order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Fingerprints returns the set of distinct fingerprints in the snapshot.
func (s Snapshot) Fingerprints() map[Fingerprint]struct{} {
	set := make(map[Fingerprint]struct{}, len(s))
	for _, fp := range s {
		set[fp] = struct{}{}
	}
	return set
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for p, fp := range s {
		out[p] = fp
	}
	return out
}

// Equal reports whether both snapshots hold the same paths with the same
// fingerprints.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for p, fp := range s {
		if ofp, ok := other[p]; !ok || ofp != fp {
			return false
		}
	}
	return true
}

// ActionKind identifies what an Action does to the replica.
type ActionKind int

// Action kinds.
const (
	// Create copies a file that exists only in the source.
	Create ActionKind = iota
	// Modify recopies a file whose content differs at the same path.
	Modify
	// Rename moves a replica file whose content reappeared under another path.
	Rename
	// Delete removes a replica file with no counterpart in the source.
	Delete
)

// String returns the lowercase name of the kind.
func (k ActionKind) String() string {
	switch k {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Rename:
		return "rename"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so kinds render by name.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action is a single filesystem change to apply to the replica.
type Action struct {
	// Kind is the type of change.
	Kind ActionKind `json:"kind" yaml:"kind"`

	// Path is the affected path. For Rename it is the old replica path.
	Path string `json:"path" yaml:"path"`

	// NewPath is the rename target. Empty for every other kind.
	NewPath string `json:"new_path,omitempty" yaml:"new_path,omitempty"`
}

// NewCreate returns a Create action for path.
func NewCreate(path string) Action { return Action{Kind: Create, Path: path} }

// NewModify returns a Modify action for path.
func NewModify(path string) Action { return Action{Kind: Modify, Path: path} }

// NewRename returns a Rename action moving oldPath to newPath.
func NewRename(oldPath, newPath string) Action {
	return Action{Kind: Rename, Path: oldPath, NewPath: newPath}
}

// NewDelete returns a Delete action for path.
func NewDelete(path string) Action { return Action{Kind: Delete, Path: path} }

// String renders the action for diagnostics, e.g. "rename a.txt -> b.txt".
func (a Action) String() string {
	if a.Kind == Rename {
		return fmt.Sprintf("%s %s -> %s", a.Kind, a.Path, a.NewPath)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Path)
}

// ScanError pairs a path with the error encountered while snapshotting it.
type ScanError struct {
	// Path is the file or directory path where the error occurred.
	Path string `json:"path"`

	// Error is the error message describing what went wrong.
	Error string `json:"error"`
}

// sizePattern matches size strings like "64K", "1M", "512KiB", "1.5GB".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// Units are binary: "64K", "64KB" and "64KiB" all mean 65536 bytes. A bare
// number is a byte count. Decimal values are truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string,
// e.g. FormatSize(65536) returns "64 KiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
