package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"droneops-gcs/internal/config"
	"droneops-gcs/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "droneops-gcs",
	Short: "DroneOps ground control station",
	Long:  "droneops-gcs streams vehicle telemetry to an operator dashboard, serves a mock backend and records telemetry sessions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		opts := logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		// the dashboard owns the terminal, so its logs only go to the file sink
		if cmd.Name() == dashboardCmd.Name() {
			opts.Out = io.Discard
		}
		logger, logCloser, err = logging.Setup(opts)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(replayCmd)
}
