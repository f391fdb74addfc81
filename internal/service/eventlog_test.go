package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"water_heater/internal/models"
)

// listRecorder captures the arguments passed to List.
type listRecorder struct {
	gotFrom time.Time
	gotTo   time.Time
	gotType string

	events []models.HeaterEvent
	err    error
	calls  int
}

func (f *listRecorder) List(_ context.Context, from, to time.Time, typ string) ([]models.HeaterEvent, error) {
	f.calls++
	f.gotFrom = from
	f.gotTo = to
	f.gotType = typ
	return f.events, f.err
}

func Test_normalizeToUTC(t *testing.T) {
	t.Parallel()

	if got := normalizeToUTC(time.Time{}); !got.IsZero() {
		t.Fatalf("zero time changed: %v", got)
	}

	in := time.Date(2025, time.August, 1, 12, 34, 56, 0, time.FixedZone("UTC+3", 3*3600))
	got := normalizeToUTC(in)
	want := time.Date(2025, time.August, 1, 9, 34, 56, 0, time.UTC)
	if got.Location() != time.UTC || !got.Equal(want) {
		t.Fatalf("normalizeToUTC = %v; want %v", got, want)
	}
}

func Test_normalizeAndValidateFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       LogFilter
		wantType string
		wantErr  error
	}{
		{name: "empty filter", in: LogFilter{}},
		{
			name: "from after to",
			in: LogFilter{
				From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			},
			wantErr: errInvalidTimeRange,
		},
		{name: "type trimmed and uppercased", in: LogFilter{Type: " safety_latch "}, wantType: models.EventSafetyLatch},
		{name: "unknown type", in: LogFilter{Type: "pressure"}, wantErr: errUnknownEventType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, _, gotType, err := normalizeAndValidateFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v; want %v", err, tc.wantErr)
			}
			if gotType != tc.wantType {
				t.Fatalf("type = %q; want %q", gotType, tc.wantType)
			}
			if tc.wantErr != nil && !IsFilterError(err) {
				t.Fatalf("IsFilterError(%v) = false", err)
			}
		})
	}
}

func TestEventLogService_List_DelegatesNormalizedParams(t *testing.T) {
	t.Parallel()

	rec := &listRecorder{events: []models.HeaterEvent{{EventID: "1", Type: models.EventRecycle}}}
	svc := NewEventLogService(rec)

	from := time.Date(2025, time.October, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	to := time.Date(2025, time.October, 1, 12, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))

	out, err := svc.List(t.Context(), LogFilter{From: from, To: to, Type: " recycle"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "1" {
		t.Fatalf("unexpected events: %+v", out)
	}
	if !rec.gotFrom.Equal(time.Date(2025, time.October, 1, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", rec.gotFrom)
	}
	if !rec.gotTo.Equal(time.Date(2025, time.October, 1, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", rec.gotTo)
	}
	if rec.gotType != models.EventRecycle {
		t.Fatalf("type = %q", rec.gotType)
	}
}

func TestEventLogService_List_ValidationSkipsStore(t *testing.T) {
	t.Parallel()

	rec := &listRecorder{}
	svc := NewEventLogService(rec)

	if _, err := svc.List(t.Context(), LogFilter{Type: "nope"}); !IsFilterError(err) {
		t.Fatalf("expected filter error, got %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("store called %d times on invalid filter", rec.calls)
	}
}

func TestEventLogService_List_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	rec := &listRecorder{err: errors.New("db down")}
	svc := NewEventLogService(rec)

	_, err := svc.List(t.Context(), LogFilter{})
	if !errors.Is(err, rec.err) {
		t.Fatalf("expected store error, got %v", err)
	}
	if IsFilterError(err) {
		t.Fatalf("store error reported as filter error")
	}
}
