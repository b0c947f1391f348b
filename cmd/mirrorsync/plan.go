package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/config"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/output"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/reconcile"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/snapshot"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the actions the next cycle would apply",
	Long: `Snapshot both trees once and print the actions that would bring the replica
in line with the source. Nothing is modified.

A missing replica is treated as empty.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringP("format", "o", "pretty",
		fmt.Sprintf("output format (%s)", strings.Join(output.Available(), ", ")))
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	formatter, err := output.Get(format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := buildPlan(contextOf(cmd), cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("formatting plan: %w", err)
	}
	_, err = io.Copy(os.Stdout, &buf)
	return err
}

// buildPlan snapshots both trees and reconciles them.
func buildPlan(ctx context.Context, cfg *config.Config) (*output.Result, error) {
	opts, closeCache, err := pollerOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	builder := snapshot.New(snapshot.Options{
		Hasher:  opts.Hasher,
		Filter:  opts.Filter,
		Workers: opts.Workers,
		Cache:   opts.Cache,
	})

	start := time.Now()
	source, err := builder.Build(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("snapshot source: %w", err)
	}

	replica, err := builder.Build(ctx, cfg.Replica)
	if errors.Is(err, snapshot.ErrRootNotFound) {
		replica = &snapshot.Result{Snapshot: types.Snapshot{}}
	} else if err != nil {
		return nil, fmt.Errorf("snapshot replica: %w", err)
	}

	actions := reconcile.Reconcile(source.Snapshot, replica.Snapshot)

	result := &output.Result{
		Source:       cfg.Source,
		Replica:      cfg.Replica,
		Actions:      actions,
		Summary:      reconcile.Summarize(actions),
		SourceFiles:  source.Files,
		ReplicaFiles: replica.Files,
		Elapsed:      time.Since(start),
	}
	for _, e := range append(source.Errors, replica.Errors...) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", e.Path, e.Error))
	}
	return result, nil
}
