package models

import "time"

// HeaterState is the snapshot exposed over HTTP and persisted after every
// control cycle. Temperatures use the sensor's configured unit.
type HeaterState struct {
	ID                 int       `json:"id"`
	Phase              string    `json:"phase"` // CONNECTING | RUNNING | REBOOTING
	CurrentTemp        float64   `json:"current_temp"`
	UpperTemp          float64   `json:"upper_temp"`
	LowerTemp          float64   `json:"lower_temp"`
	HeaterOn           bool      `json:"heater_on"`
	HeaterStartedAt    time.Time `json:"heater_started_at"`
	HeaterStartedAgo   string    `json:"heater_started_ago,omitempty"`
	CoolingDown        bool      `json:"cooling_down"`
	TemperatureAtStart float64   `json:"temperature_at_start"`
	SafetyLatched      bool      `json:"safety_latched"`
	Pressure           *float64  `json:"pressure,omitempty"`
	PressureAt         time.Time `json:"pressure_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
