// internal/repository/capture_repository_test.go
package repository

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"comm-debugger/internal/model"
)

func TestBuildListQuery(t *testing.T) {
	kind := model.TransportTCP
	eventType := model.EventError
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    *CaptureFilter
		wantWhere []string
		wantArgs  int
		wantLimit int
	}{
		{
			name:      "nil filter",
			filter:    nil,
			wantArgs:  1,
			wantLimit: defaultCaptureLimit,
		},
		{
			name:      "kind and type",
			filter:    &CaptureFilter{Kind: &kind, Type: &eventType, Limit: 20},
			wantWhere: []string{"kind = $1", "event_type = $2"},
			wantArgs:  3,
			wantLimit: 20,
		},
		{
			name:      "since with oversized limit",
			filter:    &CaptureFilter{Since: &since, Limit: 50000},
			wantWhere: []string{"captured_at >= $1"},
			wantArgs:  2,
			wantLimit: maxCaptureLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.filter)

			if len(args) != tt.wantArgs {
				t.Fatalf("args = %v, want %d entries", args, tt.wantArgs)
			}
			for _, cond := range tt.wantWhere {
				if !strings.Contains(query, cond) {
					t.Errorf("query %q missing %q", query, cond)
				}
			}
			if len(tt.wantWhere) == 0 && strings.Contains(query, "WHERE") {
				t.Errorf("unexpected WHERE in %q", query)
			}
			if !strings.Contains(query, "ORDER BY captured_at DESC") {
				t.Errorf("query %q is not ordered newest first", query)
			}
			if got := args[len(args)-1]; got != tt.wantLimit {
				t.Errorf("limit = %v, want %d", got, tt.wantLimit)
			}
		})
	}
}

type fakeRow struct {
	values []interface{}
	err    error
}

func (f fakeRow) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = f.values[i].(uuid.UUID)
		case *string:
			*p = f.values[i].(string)
		case *[]byte:
			*p = f.values[i].([]byte)
		case *sql.NullString:
			*p = f.values[i].(sql.NullString)
		case *time.Time:
			*p = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanCapture(t *testing.T) {
	id := uuid.New()
	at := time.Now()

	row := fakeRow{values: []interface{}{
		id, "ch-1", "SERIAL", "transfer",
		nullString("RECEIVED"), nullString("COM3"), []byte{0x01, 0x02}, nullString(""),
		nullString(""), nullString(""), at,
	}}

	record, err := scanCapture(row)
	if err != nil {
		t.Fatalf("scanCapture() error = %v", err)
	}
	if record.ID != id || record.Kind != model.TransportSerial || record.Type != model.EventTransfer {
		t.Errorf("record = %+v", record)
	}
	if record.Direction != model.DirectionReceived || record.Peer != "COM3" || len(record.Payload) != 2 {
		t.Errorf("record = %+v", record)
	}
	if record.Severity != "" || record.Code != "" {
		t.Errorf("expected empty error fields, got %+v", record)
	}

	if _, err := scanCapture(fakeRow{err: errors.New("boom")}); err == nil {
		t.Error("expected scan error")
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should be NULL")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("nullString(x) = %+v", ns)
	}
}
