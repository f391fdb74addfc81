package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"water_heater/internal/models"
)

// LogFilter narrows an event log query. Zero times leave that bound open and
// an empty Type matches every event.
type LogFilter struct {
	From time.Time
	To   time.Time
	Type string
}

type eventLister interface {
	List(ctx context.Context, from, to time.Time, typ string) ([]models.HeaterEvent, error)
}

type EventLogService struct {
	events eventLister
}

func NewEventLogService(events eventLister) *EventLogService {
	return &EventLogService{events: events}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	errUnknownEventType = errors.New("unknown event type")
)

// IsFilterError reports whether err was caused by a bad filter rather than
// by the store.
func IsFilterError(err error) bool {
	return errors.Is(err, errInvalidTimeRange) || errors.Is(err, errUnknownEventType)
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	typ := normalizeEventType(f.Type)
	if typ != "" && !models.IsEventType(typ) {
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %q", errUnknownEventType, typ)
	}
	return from, to, typ, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.HeaterEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.events.List(ctx, from, to, typ)
}
