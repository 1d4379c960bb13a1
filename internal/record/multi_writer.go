package record

import (
	"errors"
	"io"

	"droneops-gcs/internal/telemetry"
)

// MultiWriter fans samples out to several writers. A failing writer does not
// stop the others; the errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends a sample to all writers.
func (mw *MultiWriter) Write(s telemetry.Sample) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple samples to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(samples []telemetry.Sample) error {
	var errs []error
	for _, w := range mw.writers {
		if err := WriteAll(w, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
