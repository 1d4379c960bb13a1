package record

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"droneops-gcs/internal/telemetry"
)

// FileWriter appends samples to a JSONL file.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write logs a single sample.
func (f *FileWriter) Write(s telemetry.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(s); err != nil {
		return err
	}
	return f.buf.Flush()
}

// WriteBatch logs multiple samples with a single flush.
func (f *FileWriter) WriteBatch(samples []telemetry.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range samples {
		if err := f.enc.Encode(s); err != nil {
			return err
		}
	}
	return f.buf.Flush()
}

// Close flushes and closes the file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ferr := f.buf.Flush()
	if err := f.f.Close(); err != nil {
		return err
	}
	return ferr
}
