package record

import (
	"context"
	"errors"
	"testing"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeWriter(m, GreptimeOptions{Table: "drone_telemetry", Session: "s1"})
	ss := samples(2)

	if err := w.WriteBatch(ss); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	schema := rows.Schema
	if schema[0].ColumnName != "session_id" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("unexpected first column %+v", schema[0])
	}
	if schema[3].ColumnName != "lat" || schema[3].Datatype != gpb.ColumnDataType_FLOAT64 {
		t.Fatalf("unexpected lat column %+v", schema[3])
	}
	if last := schema[len(schema)-1]; last.SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("expected time index last, got %+v", last)
	}
	if got := rows.Rows[0].Values[0].GetStringValue(); got != "s1" {
		t.Fatalf("session_id = %q", got)
	}
	if got := rows.Rows[1].Values[3].GetF64Value(); got != ss[1].Position.Lat {
		t.Fatalf("lat = %v, want %v", got, ss[1].Position.Lat)
	}
	if got := rows.Rows[0].Values[1].GetStringValue(); got != ss[0].FlightMode {
		t.Fatalf("flight_mode = %q", got)
	}
}

func TestGreptimeWriterError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := newGreptimeWriter(m, GreptimeOptions{})
	if err := w.Write(samples(1)[0]); err == nil {
		t.Fatalf("expected write error")
	}
	if w.table != "drone_telemetry" {
		t.Fatalf("expected default table name, got %q", w.table)
	}
}
