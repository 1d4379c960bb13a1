package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"droneops-gcs/internal/record"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayPretty    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded telemetry log",
	Long:  "replay feeds samples from a JSONL log back into the configured sinks or STDOUT, keeping the recorded pacing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, cleanup, err := newWriters(ctx, cfg, writerOptions{
			Session:   uuid.NewString(),
			Source:    replayInput,
			PrintOnly: replayPrintOnly,
			Pretty:    replayPretty,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := record.ReplayFile(ctx, replayInput, w, replaySpeed, logger)
		logger.Info("replay finished", "samples", n)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 disables pacing)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of the configured sinks")
	replayCmd.Flags().BoolVar(&replayPretty, "pretty", false, "Print colorized lines instead of JSON on STDOUT")
	replayCmd.MarkFlagRequired("input")
}
