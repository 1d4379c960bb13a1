package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"droneops-gcs/internal/logging"
	"droneops-gcs/internal/record"
)

var (
	recPrintOnly bool
	recPretty    bool
	recFallback  bool
	recLogFile   string
	recSession   string
	recStats     time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the telemetry stream",
	Long:  "record subscribes to the telemetry stream and writes every sample to the configured sinks (JSONL file, STDOUT, GreptimeDB, SQLite or Postgres).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRecord(ctx)
	},
}

func runRecord(ctx context.Context) error {
	log := logging.FromContext(ctx)
	session := recSession
	if session == "" {
		session = uuid.NewString()
	}
	src, label, err := openSource(ctx, true, recFallback)
	if err != nil {
		return err
	}
	defer src.Close()

	w, cleanup, err := newWriters(ctx, cfg, writerOptions{
		Session:   session,
		Source:    label,
		PrintOnly: recPrintOnly,
		Pretty:    recPretty,
		LogFile:   recLogFile,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	rec := record.NewRecorder(w, cfg.Record.FlushInterval, cfg.Record.BatchSize, log)
	log.Info("recording", "session", session, "source", label)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rec.Run(gctx, src) })
	if recStats > 0 {
		g.Go(func() error {
			t := time.NewTicker(recStats)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					st := rec.Stats()
					log.Info("recorder stats", "written", st.Written, "dropped", st.Dropped, "failed", st.Failed)
				}
			}
		})
	}
	err = g.Wait()
	st := rec.Stats()
	log.Info("recording stopped", "session", session, "written", st.Written, "dropped", st.Dropped, "failed", st.Failed)
	return err
}

func init() {
	recordCmd.Flags().BoolVar(&recPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of the configured sinks")
	recordCmd.Flags().BoolVar(&recPretty, "pretty", false, "Print colorized lines instead of JSON on STDOUT")
	recordCmd.Flags().BoolVar(&recFallback, "fallback", false, "Record locally generated telemetry when the stream is unreachable")
	recordCmd.Flags().StringVar(&recLogFile, "log-file", "", "Also append samples to this JSONL file")
	recordCmd.Flags().StringVar(&recSession, "session", "", "Session id (random when empty)")
	recordCmd.Flags().DurationVar(&recStats, "stats-interval", 0, "Log recorder counters at this interval (0 disables)")
}
