package cache

import (
	"bytes"
	"encoding/gob"
)

// CacheVersion is incremented when the cache format changes.
const CacheVersion = 1

// KeySeparator separates root from relative path in cache keys.
const KeySeparator = '\x00'

// CachedEntry records the digest computed for a file together with the
// metadata it was computed against.
type CachedEntry struct {
	Version   int
	Size      int64  // File size in bytes
	Mtime     int64  // Modification time as UnixNano
	Algorithm string // Fingerprint algorithm name
	Digest    string // Full "<algorithm>:<hex>" fingerprint
}

// Fresh reports whether the entry still describes a file with the given
// size and modification time, hashed with algorithm.
func (e *CachedEntry) Fresh(size, mtime int64, algorithm string) bool {
	return e.Version == CacheVersion &&
		e.Size == size &&
		e.Mtime == mtime &&
		e.Algorithm == algorithm &&
		e.Digest != ""
}

// Encode serializes the entry to bytes using gob.
func (e *CachedEntry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *CachedEntry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey creates a cache key from root and relative path.
// Format: <root>\x00<relative_path>
func MakeKey(root, relPath string) []byte {
	return []byte(root + string(KeySeparator) + relPath)
}

// ParseKey extracts root and relative path from a cache key.
func ParseKey(key []byte) (root, relPath string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix for all keys under a root.
func MakeKeyPrefix(root string) []byte {
	return []byte(root + string(KeySeparator))
}
