package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneops-gcs/internal/logging"
	"droneops-gcs/internal/server"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mock vehicle backend",
	Long:  "serve exposes the SSE telemetry emitter, the WebSocket feed and the command API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	log := logging.FromContext(ctx)
	name := cfg.Server.Profile
	if name == "" {
		name = cfg.Telemetry.Profile
	}
	gen, err := newGenerator(name)
	if err != nil {
		return err
	}
	srv := server.New(server.Options{
		Generator: gen,
		Interval:  cfg.Server.Interval,
		Counter:   server.CounterMode(cfg.Server.Counter),
		APIKey:    cfg.Backend.APIKey,
		Logger:    log,
		Debug:     serveDebug,
	})
	log.Info("starting backend", "profile", name)
	err = srv.Run(ctx, cfg.Server.Listen)
	log.Info("backend stopped")
	return err
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable gin debug mode")
}
