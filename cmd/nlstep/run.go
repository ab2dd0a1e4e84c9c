package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nlstep/nlstep/internal/config"
	"github.com/nlstep/nlstep/internal/store"
	"github.com/nlstep/nlstep/pkg/bdd"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [feature paths...]",
		Short: "Run feature files through the step engine",
		RunE:  runRunE,
	}
	cmd.Flags().String("tags", "", "godog tag expression, e.g. \"@api && ~@wip\"")
	cmd.Flags().String("format", "pretty", "godog output format")
	cmd.Flags().String("suite", "default", "suite name used in run history")
	cmd.Flags().Bool("record", false, "persist the run to the history database")
	return cmd
}

func runRunE(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	tags, _ := cmd.Flags().GetString("tags")
	format, _ := cmd.Flags().GetString("format")
	suiteName, _ := cmd.Flags().GetString("suite")
	record, _ := cmd.Flags().GetBool("record")

	ctx := cmd.Context()
	recorder, cleanup, err := openRecorder(ctx, cfg, suiteName, record)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := bdd.RunOptions{
		Paths:  args,
		Tags:   tags,
		Format: format,
	}
	if recorder != nil {
		opts.Sink = recorder
	}

	status := bdd.Run(suiteName, cfg, logger, opts)

	if recorder != nil {
		if err := recorder.Finish(ctx); err != nil {
			logger.Warn("failed to close run record", "error", err)
		}
	}
	if status != 0 {
		return fmt.Errorf("suite %q failed", suiteName)
	}
	return nil
}

// openRecorder opens the history store and starts a run row when recording
// is requested. The returned cleanup is always safe to call.
func openRecorder(ctx context.Context, cfg config.Config, suiteName string, record bool) (*store.Recorder, func(), error) {
	if !record {
		return nil, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("create db directory: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, func() {}, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, func() {}, err
	}
	recorder, err := store.NewRecorder(ctx, s, suiteName)
	if err != nil {
		_ = s.Close()
		return nil, func() {}, err
	}
	return recorder, func() { _ = s.Close() }, nil
}
