package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"droneops-gcs/internal/telemetry"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQL drivers understood by NewSQLWriter.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLWriter inserts samples into a SQLite or Postgres table, one transaction
// per batch.
type SQLWriter struct {
	db      *sql.DB
	driver  string
	table   string
	session string
	insert  string
	log     *slog.Logger
}

// SQLOptions configures NewSQLWriter.
type SQLOptions struct {
	Driver  string
	DSN     string
	Table   string
	Session string
	Logger  *slog.Logger
}

// NewSQLWriter opens the database and creates the table if needed.
func NewSQLWriter(ctx context.Context, opts SQLOptions) (*SQLWriter, error) {
	if opts.Driver != DriverSQLite && opts.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", opts.Driver)
	}
	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}
	w, err := newSQLWriter(ctx, db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func newSQLWriter(ctx context.Context, db *sql.DB, opts SQLOptions) (*SQLWriter, error) {
	if opts.Table == "" {
		opts.Table = telemetry.SampleTableName
	}
	if !identRe.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &SQLWriter{
		db:      db,
		driver:  opts.Driver,
		table:   opts.Table,
		session: opts.Session,
		log:     opts.Logger.With("component", "sql_writer", "driver", opts.Driver),
	}
	if opts.Driver == DriverSQLite {
		// single writer connection avoids SQLITE_BUSY under concurrent batches
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			w.log.Warn("failed to set WAL mode", "err", err)
		}
	}
	if _, err := db.ExecContext(ctx, w.createTableSQL()); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", w.table, err)
	}
	w.insert = w.insertSQL()
	return w, nil
}

var sampleColumns = []string{
	"session_id", "ts", "connected", "flight_mode",
	"lat", "lon", "relative_alt_m", "absolute_alt_m",
	"roll_deg", "pitch_deg", "yaw_deg",
	"north_m_s", "east_m_s", "down_m_s",
	"voltage_v", "remaining_percent", "healthy",
}

func (w *SQLWriter) createTableSQL() string {
	dbl, boolean, bigint := "REAL", "INTEGER", "INTEGER"
	if w.driver == DriverPostgres {
		dbl, boolean, bigint = "DOUBLE PRECISION", "BOOLEAN", "BIGINT"
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT NOT NULL,
			ts %s NOT NULL,
			connected %s NOT NULL,
			flight_mode TEXT,
			lat %[4]s, lon %[4]s, relative_alt_m %[4]s, absolute_alt_m %[4]s,
			roll_deg %[4]s, pitch_deg %[4]s, yaw_deg %[4]s,
			north_m_s %[4]s, east_m_s %[4]s, down_m_s %[4]s,
			voltage_v %[4]s, remaining_percent %[4]s,
			healthy %[3]s NOT NULL
		)`, w.table, bigint, boolean, dbl)
}

func (w *SQLWriter) insertSQL() string {
	ph := make([]string, len(sampleColumns))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.table, strings.Join(sampleColumns, ", "), strings.Join(ph, ", "))
}

// Write inserts a single sample.
func (w *SQLWriter) Write(s telemetry.Sample) error {
	return w.WriteBatch([]telemetry.Sample{s})
}

// WriteBatch inserts samples in one transaction.
func (w *SQLWriter) WriteBatch(samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, w.insert)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		r := flatten(s)
		if _, err := stmt.ExecContext(ctx, w.session, s.Timestamp.UnixMilli(), r.Connected, r.FlightMode,
			r.Lat, r.Lon, r.RelativeAlt, r.AbsoluteAlt,
			r.Roll, r.Pitch, r.Yaw,
			r.North, r.East, r.Down,
			r.Voltage, r.Remaining, r.Healthy); err != nil {
			tx.Rollback()
			w.log.Error("insert failed", "err", err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.log.Debug("wrote rows", "rows", len(samples))
	return nil
}

// Count returns the number of rows recorded for the writer's session.
func (w *SQLWriter) Count(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = $1", w.table)
	err := w.db.QueryRowContext(ctx, q, w.session).Scan(&n)
	return n, err
}

// Close closes the database handle.
func (w *SQLWriter) Close() error {
	return w.db.Close()
}
