package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"water_heater/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	heaterStateRowID = 1

	upsertStateSQL = `
		INSERT INTO heater_state (id, phase, temp, upper_temp, lower_temp, heater_on, started_at,
			cooling_down, temp_at_start, safety_latched, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase=excluded.phase,
			temp=excluded.temp,
			upper_temp=excluded.upper_temp,
			lower_temp=excluded.lower_temp,
			heater_on=excluded.heater_on,
			started_at=excluded.started_at,
			cooling_down=excluded.cooling_down,
			temp_at_start=excluded.temp_at_start,
			safety_latched=excluded.safety_latched,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, phase, temp, upper_temp, lower_temp, heater_on, started_at,
			cooling_down, temp_at_start, safety_latched, updated_at
		FROM heater_state WHERE id=?
	`
)

// Save upserts the single heater_state row.
func (r *StateSQLite) Save(ctx context.Context, s models.HeaterState) error {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	var started any
	if !s.HeaterStartedAt.IsZero() {
		started = s.HeaterStartedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		heaterStateRowID,
		s.Phase,
		s.CurrentTemp,
		s.UpperTemp,
		s.LowerTemp,
		s.HeaterOn,
		started,
		s.CoolingDown,
		s.TemperatureAtStart,
		s.SafetyLatched,
		updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save heater state: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or a zero state when none was saved yet.
func (r *StateSQLite) Load(ctx context.Context) (models.HeaterState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, heaterStateRowID)

	var (
		s       models.HeaterState
		started sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.Phase,
		&s.CurrentTemp,
		&s.UpperTemp,
		&s.LowerTemp,
		&s.HeaterOn,
		&started,
		&s.CoolingDown,
		&s.TemperatureAtStart,
		&s.SafetyLatched,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.HeaterState{}, nil
		}
		return models.HeaterState{}, fmt.Errorf("load heater state: %w", err)
	}
	if started.Valid {
		s.HeaterStartedAt = started.Time.UTC()
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
