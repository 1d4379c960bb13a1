package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"droneops-gcs/internal/telemetry"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// DefaultGreptimePort is the GreptimeDB gRPC port.
const DefaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter writes samples to GreptimeDB via the ingester client. The
// table is created on first write.
type GreptimeWriter struct {
	client  greptimeClient
	table   string
	session string
	timeout time.Duration
	log     *slog.Logger
}

// GreptimeOptions configures NewGreptimeWriter.
type GreptimeOptions struct {
	Endpoint string
	Port     int
	Database string
	Table    string
	Session  string
	Logger   *slog.Logger
}

// NewGreptimeWriter connects to GreptimeDB.
func NewGreptimeWriter(opts GreptimeOptions) (*GreptimeWriter, error) {
	if opts.Port == 0 {
		opts.Port = DefaultGreptimePort
	}
	if opts.Database == "" {
		opts.Database = "public"
	}
	cfg := greptime.NewConfig(opts.Endpoint).WithPort(opts.Port).WithDatabase(opts.Database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeWriter(client, opts), nil
}

func newGreptimeWriter(client greptimeClient, opts GreptimeOptions) *GreptimeWriter {
	if opts.Table == "" {
		opts.Table = telemetry.SampleTableName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GreptimeWriter{
		client:  client,
		table:   opts.Table,
		session: opts.Session,
		timeout: 10 * time.Second,
		log:     opts.Logger.With("component", "greptime_writer"),
	}
}

// Write inserts a single sample.
func (w *GreptimeWriter) Write(s telemetry.Sample) error {
	return w.WriteBatch([]telemetry.Sample{s})
}

// WriteBatch inserts multiple samples in one request.
func (w *GreptimeWriter) WriteBatch(samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tbl, err := w.buildTable(samples)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("write failed", "rows", len(samples), "err", err)
		return err
	}
	w.log.Debug("wrote rows", "rows", len(samples))
	return nil
}

func (w *GreptimeWriter) buildTable(samples []telemetry.Sample) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		typ  types.ColumnType
		tag  bool
	}{
		{"session_id", types.STRING, true},
		{"flight_mode", types.STRING, true},
		{"connected", types.BOOLEAN, false},
		{"lat", types.FLOAT64, false},
		{"lon", types.FLOAT64, false},
		{"relative_alt_m", types.FLOAT64, false},
		{"absolute_alt_m", types.FLOAT64, false},
		{"roll_deg", types.FLOAT64, false},
		{"pitch_deg", types.FLOAT64, false},
		{"yaw_deg", types.FLOAT64, false},
		{"north_m_s", types.FLOAT64, false},
		{"east_m_s", types.FLOAT64, false},
		{"down_m_s", types.FLOAT64, false},
		{"voltage_v", types.FLOAT64, false},
		{"remaining_percent", types.FLOAT64, false},
		{"healthy", types.BOOLEAN, false},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, s := range samples {
		r := flatten(s)
		if err := tbl.AddRow(w.session, r.FlightMode, r.Connected,
			r.Lat, r.Lon, r.RelativeAlt, r.AbsoluteAlt,
			r.Roll, r.Pitch, r.Yaw,
			r.North, r.East, r.Down,
			r.Voltage, r.Remaining, r.Healthy, s.Timestamp); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
