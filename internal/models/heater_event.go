package models

import "time"

// Event types written to the event log.
const (
	EventBoot          = "BOOT"
	EventConnected     = "CONNECTED"
	EventHeaterStart   = "HEATER_START"
	EventHeaterStop    = "HEATER_STOP"
	EventRecycle       = "RECYCLE"
	EventSafetyLatch   = "SAFETY_LATCH"
	EventActuatorError = "ACTUATOR_ERROR"
	EventReboot        = "REBOOT"
)

// HeaterEvent is a single log entry.
type HeaterEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}

// IsEventType reports whether s is a known event type.
func IsEventType(s string) bool {
	switch s {
	case EventBoot, EventConnected, EventHeaterStart, EventHeaterStop,
		EventRecycle, EventSafetyLatch, EventActuatorError, EventReboot:
		return true
	}
	return false
}
