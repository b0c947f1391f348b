// Package output renders reconciliation plans in various formats
// (pretty, plain, json, yaml).
//
// Formatters are kept in a registry and selected by name at runtime:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/reconcile"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// Result is a reconciliation plan ready for display.
type Result struct {
	// Source is the source tree root.
	Source string `json:"source" yaml:"source"`

	// Replica is the replica tree root.
	Replica string `json:"replica" yaml:"replica"`

	// Actions are the planned actions in execution order.
	Actions []types.Action `json:"actions" yaml:"actions"`

	// Summary counts Actions per kind.
	Summary reconcile.Summary `json:"summary" yaml:"summary"`

	// SourceFiles is the number of files in the source snapshot.
	SourceFiles int64 `json:"source_files" yaml:"source_files"`

	// ReplicaFiles is the number of files in the replica snapshot.
	ReplicaFiles int64 `json:"replica_files" yaml:"replica_files"`

	// Elapsed is the time spent building both snapshots.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`

	// Warnings lists files that could not be read.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// InSync reports whether the plan has nothing to do.
func (r *Result) InSync() bool {
	return len(r.Actions) == 0
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// document is the structure shared by the json and yaml formatters.
type document struct {
	Actions []documentAction  `json:"actions" yaml:"actions"`
	Summary reconcile.Summary `json:"summary" yaml:"summary"`
	Meta    documentMeta      `json:"meta" yaml:"meta"`
}

type documentAction struct {
	Kind    string `json:"kind" yaml:"kind"`
	Path    string `json:"path" yaml:"path"`
	NewPath string `json:"new_path,omitempty" yaml:"new_path,omitempty"`
}

type documentMeta struct {
	Source       string   `json:"source" yaml:"source"`
	Replica      string   `json:"replica" yaml:"replica"`
	SourceFiles  int64    `json:"source_files" yaml:"source_files"`
	ReplicaFiles int64    `json:"replica_files" yaml:"replica_files"`
	Elapsed      string   `json:"elapsed" yaml:"elapsed"`
	InSync       bool     `json:"in_sync" yaml:"in_sync"`
	Warnings     []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func buildDocument(r *Result) document {
	actions := make([]documentAction, len(r.Actions))
	for i, a := range r.Actions {
		actions[i] = documentAction{
			Kind:    a.Kind.String(),
			Path:    a.Path,
			NewPath: a.NewPath,
		}
	}

	return document{
		Actions: actions,
		Summary: r.Summary,
		Meta: documentMeta{
			Source:       r.Source,
			Replica:      r.Replica,
			SourceFiles:  r.SourceFiles,
			ReplicaFiles: r.ReplicaFiles,
			Elapsed:      r.Elapsed.Round(time.Millisecond).String(),
			InSync:       r.InSync(),
			Warnings:     r.Warnings,
		},
	}
}
