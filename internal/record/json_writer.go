package record

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"droneops-gcs/internal/telemetry"
)

// JSONWriter prints one JSON object per line, stdout by default.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter writes to out, or stdout when out is nil.
func NewJSONWriter(out io.Writer) *JSONWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONWriter{enc: json.NewEncoder(out)}
}

func (w *JSONWriter) Write(s telemetry.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(s)
}
