package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestCachedEntryEncodeDecode(t *testing.T) {
	original := CachedEntry{
		Version:   CacheVersion,
		Size:      1024,
		Mtime:     time.Now().UnixNano(),
		Algorithm: "sha256",
		Digest:    "sha256:abc",
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded CachedEntry
	if err := decoded.Decode(encoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded != original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestCachedEntryFresh(t *testing.T) {
	entry := CachedEntry{Version: CacheVersion, Size: 10, Mtime: 100, Algorithm: "sha256", Digest: "sha256:abc"}

	tests := []struct {
		name      string
		size      int64
		mtime     int64
		algorithm string
		want      bool
	}{
		{name: "all match", size: 10, mtime: 100, algorithm: "sha256", want: true},
		{name: "size changed", size: 11, mtime: 100, algorithm: "sha256", want: false},
		{name: "mtime changed", size: 10, mtime: 101, algorithm: "sha256", want: false},
		{name: "algorithm changed", size: 10, mtime: 100, algorithm: "md5", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.Fresh(tt.size, tt.mtime, tt.algorithm); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}

	old := entry
	old.Version = CacheVersion - 1
	if old.Fresh(10, 100, "sha256") {
		t.Error("entry from an older cache version should not be fresh")
	}
}

func TestMakeKey(t *testing.T) {
	got := MakeKey("/src", "a/b.txt")
	want := []byte("/src\x00a/b.txt")
	if !bytes.Equal(got, want) {
		t.Errorf("MakeKey() = %q, want %q", got, want)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		wantRoot string
		wantRel  string
	}{
		{"/src\x00a/b.txt", "/src", "a/b.txt"},
		{"/src\x00", "/src", ""},
		{"/src", "/src", ""},
	}

	for _, tt := range tests {
		root, rel := ParseKey([]byte(tt.key))
		if root != tt.wantRoot || rel != tt.wantRel {
			t.Errorf("ParseKey(%q) = (%q, %q), want (%q, %q)", tt.key, root, rel, tt.wantRoot, tt.wantRel)
		}
	}
}

func TestMakeKeyPrefix(t *testing.T) {
	prefix := MakeKeyPrefix("/src")
	if !bytes.HasPrefix(MakeKey("/src", "x"), prefix) {
		t.Error("key should start with its root prefix")
	}
	if bytes.HasPrefix(MakeKey("/src2", "x"), prefix) {
		t.Error("sibling root sharing a string prefix must not match")
	}
}
