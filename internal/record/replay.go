package record

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"droneops-gcs/internal/telemetry"
)

const maxLineSize = 1 << 20

// Replay writes the samples of a JSONL log to w. A speed > 0 reproduces the
// recorded spacing divided by speed; speed <= 0 replays without delay.
// Malformed lines are logged and skipped. It returns the number of samples
// written.
func Replay(ctx context.Context, r io.Reader, w Writer, speed float64, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var prev time.Time
	n, line := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		s, err := telemetry.Decode(sc.Bytes())
		if err != nil {
			log.Warn("skipping malformed line", "line", line, "err", err)
			continue
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(s.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return n, ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := w.Write(s); err != nil {
			return n, err
		}
		n++
		prev = s.Timestamp
	}
	return n, sc.Err()
}

// ReplayFile opens a file and replays its samples.
func ReplayFile(ctx context.Context, path string, w Writer, speed float64, log *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, w, speed, log)
}
