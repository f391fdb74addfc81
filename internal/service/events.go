package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"water_heater/internal/logger"
	"water_heater/internal/models"
)

// eventSink is the append side of the event log.
type eventSink interface {
	Append(ctx context.Context, e models.HeaterEvent) error
}

func newEvent(at time.Time, typ, description string, meta map[string]any) models.HeaterEvent {
	ev := models.HeaterEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  at.UTC(),
		Type:        typ,
		Description: description,
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	return ev
}

// recordEvent appends ev, logging rather than returning a failure: losing an
// event must never stop the control loop.
func recordEvent(ctx context.Context, sink eventSink, log *logger.Logger, ev models.HeaterEvent) {
	if sink == nil {
		return
	}
	if err := sink.Append(ctx, ev); err != nil {
		log.Warnw("event_append_failed", "type", ev.Type, "err", err)
	}
}

// RecordBoot logs the process start with its build version.
func RecordBoot(ctx context.Context, sink eventSink, log *logger.Logger, version string) {
	if log == nil {
		log = logger.Nop()
	}
	recordEvent(ctx, sink, log, newEvent(time.Now(), models.EventBoot, "controller started", map[string]any{
		"version": version,
	}))
}
