// Package record persists telemetry samples to files, stdout, GreptimeDB and
// SQL databases, and replays recorded logs.
package record

import "droneops-gcs/internal/telemetry"

// Writer persists one sample.
type Writer interface {
	Write(telemetry.Sample) error
}

// BatchWriter is implemented by writers that can persist several samples in
// one round trip.
type BatchWriter interface {
	WriteBatch([]telemetry.Sample) error
}

// WriteAll uses WriteBatch when w supports it and falls back to Write.
func WriteAll(w Writer, samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if bw, ok := w.(BatchWriter); ok {
		return bw.WriteBatch(samples)
	}
	for _, s := range samples {
		if err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}
