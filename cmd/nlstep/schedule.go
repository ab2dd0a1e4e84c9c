package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nlstep/nlstep/internal/config"
	"github.com/nlstep/nlstep/internal/scheduler"
	"github.com/nlstep/nlstep/pkg/bdd"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run configured suites on their cron schedules until interrupted",
		RunE:  scheduleRunE,
	}
	cmd.Flags().Bool("record", false, "persist scheduled runs to the history database")
	return cmd
}

func scheduleRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no schedules configured")
	}
	logger := newLogger(cfg)
	record, _ := cmd.Flags().GetBool("record")

	jobs := make([]scheduler.Job, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		jobs = append(jobs, scheduler.Job{
			Name:           s.Name,
			CronExpression: s.Cron,
			FeaturePaths:   s.Paths,
			Tags:           s.Tags,
		})
	}

	runner := &suiteRunner{cfg: cfg, logger: logger, record: record}
	sched, err := scheduler.NewScheduler(jobs, runner, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

// suiteRunner adapts bdd.Run to the scheduler's runner contract.
type suiteRunner struct {
	cfg    config.Config
	logger *slog.Logger
	record bool
}

func (r *suiteRunner) RunSuite(ctx context.Context, job scheduler.Job) error {
	recorder, cleanup, err := openRecorder(ctx, r.cfg, job.Name, r.record)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := bdd.RunOptions{
		Paths:  job.FeaturePaths,
		Tags:   job.Tags,
		Format: "progress",
	}
	if recorder != nil {
		opts.Sink = recorder
	}

	status := bdd.Run(job.Name, r.cfg, r.logger, opts)

	if recorder != nil {
		if err := recorder.Finish(ctx); err != nil {
			r.logger.Warn("failed to close run record", "error", err)
		}
	}
	if status != 0 {
		return fmt.Errorf("suite %q failed", job.Name)
	}
	return nil
}
