package service

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"water_heater/internal/models"
)

type snapshotSource interface {
	Snapshot() models.HeaterState
}

type phaseSource interface {
	Phase() string
}

type pressureSource interface {
	LastPressure() (float64, time.Time, bool)
}

type stateLoader interface {
	Load(ctx context.Context) (models.HeaterState, error)
}

// MonitoringService assembles the read-only state view. With a live
// controller attached it reads memory; otherwise it falls back to the last
// persisted snapshot.
type MonitoringService struct {
	states   stateLoader
	heater   snapshotSource
	phase    phaseSource
	pressure pressureSource
	now      func() time.Time
}

func NewMonitoringService(states stateLoader) *MonitoringService {
	return &MonitoringService{states: states, now: time.Now}
}

// Attach wires the live sources. Any of them may be nil.
func (s *MonitoringService) Attach(heater snapshotSource, phase phaseSource, pressure pressureSource) {
	s.heater = heater
	s.phase = phase
	s.pressure = pressure
}

// GetState returns the current controller state.
func (s *MonitoringService) GetState(ctx context.Context) (models.HeaterState, error) {
	var st models.HeaterState
	if s.heater != nil {
		st = s.heater.Snapshot()
	} else {
		loaded, err := s.states.Load(ctx)
		if err != nil {
			return models.HeaterState{}, err
		}
		st = loaded
		if st.ID == 0 {
			st = s.baselineState()
		}
	}

	if s.phase != nil {
		st.Phase = s.phase.Phase()
	}
	if s.pressure != nil {
		if v, at, ok := s.pressure.LastPressure(); ok {
			st.Pressure = &v
			st.PressureAt = toUTC(at)
		}
	}
	st.UpdatedAt = toUTC(st.UpdatedAt)
	st.HeaterStartedAt = toUTC(st.HeaterStartedAt)
	if !st.HeaterStartedAt.IsZero() {
		st.HeaterStartedAgo = humanize.RelTime(st.HeaterStartedAt, s.now(), "ago", "from now")
	}
	return st, nil
}

// baselineState is returned before the first snapshot was ever saved.
func (s *MonitoringService) baselineState() models.HeaterState {
	return models.HeaterState{
		ID:        1, // single-row table
		Phase:     PhaseConnecting,
		UpdatedAt: s.now().UTC(),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
