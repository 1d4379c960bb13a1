// ConsoleWriter prints human-friendly, colorized samples.
package record

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"droneops-gcs/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// lowBatteryPercent marks the battery reading yellow.
const lowBatteryPercent = 30.0

// ConsoleWriter prints samples using ANSI colors. The first write prints a
// session header.
type ConsoleWriter struct {
	mu      sync.Mutex
	out     io.Writer
	session string
	source  string
	once    sync.Once
	modes   map[string]string
	nextCol int
}

var modePalette = []string{colorGreen, colorBlue, colorMagenta, colorCyan, colorYellow}

// NewConsoleWriter writes to out, or stdout when out is nil.
func NewConsoleWriter(out io.Writer, session, source string) *ConsoleWriter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleWriter{out: out, session: session, source: source, modes: make(map[string]string)}
}

func (w *ConsoleWriter) modeColor(mode string) string {
	if c, ok := w.modes[mode]; ok {
		return c
	}
	c := modePalette[w.nextCol%len(modePalette)]
	w.modes[mode] = c
	w.nextCol++
	return c
}

func (w *ConsoleWriter) printHeader() {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Session:\t%s\n", w.session)
	if w.source != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", w.source)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs one sample on a single line.
func (w *ConsoleWriter) Write(s telemetry.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printHeader)

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, s.Timestamp.Format(time.RFC3339), colorReset)
	if !s.Connected {
		fmt.Fprintf(w.out, "%sdisconnected%s\n", colorRed, colorReset)
		return nil
	}
	if p := s.Position; p != nil {
		fmt.Fprintf(w.out, "%slat=%.5f%s ", colorGreen, p.Lat, colorReset)
		fmt.Fprintf(w.out, "%slon=%.5f%s ", colorYellow, p.Lon, colorReset)
		fmt.Fprintf(w.out, "%salt=%.1f%s ", colorMagenta, p.RelativeAlt, colorReset)
	}
	if a := s.Attitude; a != nil {
		fmt.Fprintf(w.out, "%shdg=%.1f%s ", colorCyan, a.Yaw, colorReset)
	}
	if b := s.Battery; b != nil {
		col := colorCyan
		if b.RemainingPercent < lowBatteryPercent {
			col = colorYellow
		}
		fmt.Fprintf(w.out, "%sbatt=%.1f%s ", col, b.RemainingPercent, colorReset)
	}
	if s.FlightMode != "" {
		fmt.Fprintf(w.out, "%smode=%s%s ", w.modeColor(s.FlightMode), s.FlightMode, colorReset)
	}
	status, col := "healthy", colorGreen
	if s.Health != nil {
		for _, c := range s.Health.Checks() {
			if !c.OK {
				status, col = "check="+c.Name, colorRed
				break
			}
		}
	}
	fmt.Fprintf(w.out, "%sstatus=%s%s\n", col, status, colorReset)
	return nil
}
