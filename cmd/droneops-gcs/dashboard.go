package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droneops-gcs/internal/command"
	"droneops-gcs/internal/tui"
)

var dashLocal bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the operator dashboard",
	Long:  "dashboard shows live telemetry and sends arm, disarm, takeoff and land commands. It falls back to locally generated telemetry when the stream is unreachable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("dashboard requires an interactive terminal")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		src, label, err := openSource(ctx, !dashLocal, true)
		cancel()
		if err != nil {
			return err
		}
		defer src.Close()

		client := command.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, &http.Client{Timeout: 10 * time.Second}, logger)
		return tui.New(src, client, tui.Options{SourceLabel: label, AltScreen: true}).Run()
	},
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashLocal, "local", false, "Use locally generated telemetry without contacting the backend")
}
