package types

import (
	"testing"

	"github.com/opencontainers/go-digest"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero bytes", input: "0", want: 0},
		{name: "bytes with B suffix", input: "512B", want: 512},
		{name: "kilobytes uppercase", input: "64K", want: 64 * 1024},
		{name: "kilobytes lowercase", input: "64k", want: 64 * 1024},
		{name: "kilobytes with B", input: "64KB", want: 64 * 1024},
		{name: "kilobytes with iB", input: "64KiB", want: 64 * 1024},
		{name: "megabytes", input: "4MiB", want: 4 * 1024 * 1024},
		{name: "gigabytes", input: "2G", want: 2 * 1024 * 1024 * 1024},
		{name: "terabytes", input: "1T", want: 1024 * 1024 * 1024 * 1024},
		{name: "surrounding whitespace", input: "  1M  ", want: 1024 * 1024},
		{name: "decimal values truncated", input: "1.5K", want: 1536},

		{name: "empty string", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "invalid suffix", input: "100X", wantErr: true},
		{name: "negative value", input: "-64K", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
		{name: "invalid format", input: "1M1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "zero", bytes: 0, want: "0 B"},
		{name: "negative clamps to zero", bytes: -5, want: "0 B"},
		{name: "bytes", bytes: 500, want: "500 B"},
		{name: "kilobytes", bytes: 1024, want: "1.0 KiB"},
		{name: "default chunk", bytes: 64 * 1024, want: "64 KiB"},
		{name: "mixed size", bytes: 1536 * 1024, want: "1.5 MiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSize(tt.bytes); got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestSnapshotPathsSorted(t *testing.T) {
	s := Snapshot{
		"b/c.txt": digest.FromString("1"),
		"a.txt":   digest.FromString("2"),
		"b.txt":   digest.FromString("3"),
	}

	got := s.Paths()
	want := []string{"a.txt", "b.txt", "b/c.txt"}
	if len(got) != len(want) {
		t.Fatalf("Paths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSnapshotFingerprintsAndEqual(t *testing.T) {
	dup := digest.FromString("dup")
	s := Snapshot{"a.txt": dup, "b.txt": dup, "c.txt": digest.FromString("c")}

	if n := len(s.Fingerprints()); n != 2 {
		t.Errorf("Fingerprints() has %d entries, want 2", n)
	}

	clone := s.Clone()
	if !s.Equal(clone) {
		t.Error("clone should equal original")
	}

	clone["a.txt"] = digest.FromString("changed")
	if s.Equal(clone) {
		t.Error("modified clone should not equal original")
	}
	if s["a.txt"] != dup {
		t.Error("modifying the clone must not touch the original")
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{NewCreate("x.txt"), "create x.txt"},
		{NewModify("x.txt"), "modify x.txt"},
		{NewDelete("y.txt"), "delete y.txt"},
		{NewRename("x.txt", "y.txt"), "rename x.txt -> y.txt"},
		{Action{Kind: ActionKind(42), Path: "z"}, "unknown z"},
	}

	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
