// Package fingerprint computes content digests of files for snapshot
// comparison. Files are streamed in fixed-size chunks so memory use is
// bounded regardless of file size.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // md5 is offered for compatibility, not security
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// Algorithm names a supported hash function.
type Algorithm string

// Supported algorithms.
const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"
	XXHash Algorithm = "xxhash"
)

// Defaults applied when no explicit configuration is given.
const (
	DefaultAlgorithm = SHA256
	DefaultChunkSize = 64 * types.KiB
)

var (
	// ErrUnknownAlgorithm is returned for an algorithm name that is not supported.
	ErrUnknownAlgorithm = errors.New("unknown fingerprint algorithm")

	// ErrInvalidChunkSize is returned when the chunk size is zero or negative.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// Algorithms returns the names of all supported algorithms.
func Algorithms() []string {
	return []string{string(SHA256), string(SHA512), string(MD5), string(XXHash)}
}

// ParseAlgorithm parses a case-insensitive algorithm name. An empty string
// selects DefaultAlgorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	name := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	switch name {
	case "":
		return DefaultAlgorithm, nil
	case SHA256, SHA512, MD5, XXHash:
		return name, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Hasher fingerprints byte streams with a fixed algorithm and chunk size.
// A Hasher holds no mutable state and is safe for concurrent use.
type Hasher struct {
	Algorithm Algorithm
	ChunkSize int64
}

// New returns a Hasher for the named algorithm reading chunkSize bytes at a
// time.
func New(algorithm string, chunkSize int64) (*Hasher, error) {
	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	return &Hasher{Algorithm: alg, ChunkSize: chunkSize}, nil
}

// Default returns a Hasher using DefaultAlgorithm and DefaultChunkSize.
func Default() *Hasher {
	return &Hasher{Algorithm: DefaultAlgorithm, ChunkSize: DefaultChunkSize}
}

func (h *Hasher) newHash() (hash.Hash, error) {
	switch h.Algorithm {
	case SHA256:
		return digest.SHA256.Hash(), nil
	case SHA512:
		return digest.SHA512.Hash(), nil
	case MD5:
		return md5.New(), nil //nolint:gosec // see import
	case XXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, h.Algorithm)
	}
}

// Sum reads r to EOF in ChunkSize pieces and returns its fingerprint.
func (h *Hasher) Sum(r io.Reader) (types.Fingerprint, error) {
	if h.ChunkSize <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidChunkSize, h.ChunkSize)
	}

	hh, err := h.newHash()
	if err != nil {
		return "", err
	}

	buf := make([]byte, h.ChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			// hash.Hash.Write never returns an error.
			_, _ = hh.Write(buf[:n])
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}

	return digest.NewDigest(digest.Algorithm(h.Algorithm), hh), nil
}

// SumFile fingerprints the file at path. Open and read failures are
// returned as errors; there is no placeholder digest for unreadable files.
func (h *Hasher) SumFile(path string) (types.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fp, err := h.Sum(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return fp, nil
}
