package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nlstep/nlstep/internal/config"
	"github.com/nlstep/nlstep/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nlstep",
		Short:         "nlstep - natural-language step engine for BDD suites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("base-url", "", "base URL for relative API paths")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newRunCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadEngineConfig layers the config file under the persistent flag
// overrides.
func loadEngineConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})
	return slog.New(logging.NewCorrelationHandler(handler))
}
