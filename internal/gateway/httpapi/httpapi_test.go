package httpapi

import (
	"testing"
	"time"
)

func TestExportFilterTimeRange(t *testing.T) {
	tests := []struct {
		name    string
		filter  ExportFilter
		wantErr bool
		check   func(t *testing.T, start, end time.Time)
	}{
		{
			name:   "empty filter disables both bounds",
			filter: ExportFilter{},
			check: func(t *testing.T, start, end time.Time) {
				if !start.IsZero() || !end.IsZero() {
					t.Errorf("start = %v, end = %v, want both zero", start, end)
				}
			},
		},
		{
			name:   "valid bounds",
			filter: ExportFilter{Start: "2026-02-01T00:00:00Z", End: "2026-02-02T00:00:00Z"},
			check: func(t *testing.T, start, end time.Time) {
				if !end.After(start) {
					t.Errorf("end %v should be after start %v", end, start)
				}
			},
		},
		{
			name:    "malformed start",
			filter:  ExportFilter{Start: "yesterday"},
			wantErr: true,
		},
		{
			name:    "malformed end",
			filter:  ExportFilter{End: "2026-02-01"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.filter.timeRange()
			if (err != nil) != tt.wantErr {
				t.Fatalf("timeRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, start, end)
			}
		})
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := newCorrelationID()
	b := newCorrelationID()
	if len(a) != 16 {
		t.Errorf("len = %d, want 16 hex chars", len(a))
	}
	if a == b {
		t.Error("correlation IDs should be unique")
	}
}
