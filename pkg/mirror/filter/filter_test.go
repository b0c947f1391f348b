package filter

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !f.Empty() {
		t.Error("new filter should be empty")
	}
	if len(f.Exclude) != 0 {
		t.Errorf("Exclude = %v, want empty", f.Exclude)
	}
	if len(f.Include) != 0 {
		t.Errorf("Include = %v, want empty", f.Include)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(WithExclude("[unterminated"))
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestWithExclude_DropsEmpty(t *testing.T) {
	f, err := New(WithExclude("*.tmp", "", "  "))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(f.Exclude) != 1 || f.Exclude[0] != "*.tmp" {
		t.Errorf("Exclude = %v, want [*.tmp]", f.Exclude)
	}
}

func TestMatch_Exclude(t *testing.T) {
	f, err := New(WithExclude("*.tmp", "build/*.o"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"a.txt", true},
		{"a.tmp", false},
		{"deep/nested/a.tmp", false},
		{"build/main.o", false},
		{"src/build/main.o", true},
		{"build/sub/main.o", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatch_Include(t *testing.T) {
	f, err := New(WithInclude("*.go", "docs/**"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", true},
		{"pkg/x/y.go", true},
		{"README.md", false},
		{"docs/guide/intro.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatch_ExcludeWinsOverInclude(t *testing.T) {
	f, err := New(WithInclude("*.go"), WithExclude("*_test.go"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.Match("x_test.go") {
		t.Error("excluded file should not match even when included")
	}
	if !f.Match("x.go") {
		t.Error("included file should match")
	}
}

func TestSkipDir(t *testing.T) {
	f, err := New(WithExclude("node_modules", ".git"), WithInclude("*.go"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{".", false},
		{"", false},
		{"node_modules", true},
		{"web/node_modules", true},
		{".git", true},
		{"src", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.SkipDir(tt.path); got != tt.want {
				t.Errorf("SkipDir(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExcludeHidden(t *testing.T) {
	f, err := New(WithExcludeHidden(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.Empty() {
		t.Error("filter with ExcludeHidden should not be empty")
	}
	if f.Match("dir/.env") {
		t.Error("hidden file should not match")
	}
	if !f.SkipDir(".cache") {
		t.Error("hidden directory should be skipped")
	}
	if !f.Match("dir/env") {
		t.Error("visible file should match")
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	if !f.Match("anything") {
		t.Error("nil filter should match every file")
	}
	if f.SkipDir("anything") {
		t.Error("nil filter should not skip directories")
	}
	if !f.Empty() {
		t.Error("nil filter should be empty")
	}
}
