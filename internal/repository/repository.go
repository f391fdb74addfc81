package repository

import (
	"context"
	"database/sql"
	"time"

	"water_heater/internal/models"
)

// sqliteTimestamp is the text layout used for event timestamps so range
// filters compare lexically.
const sqliteTimestamp = "2006-01-02 15:04:05"

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StateRepo keeps the last controller snapshot. It is informational only: the
// controller never restores its state from it.
type StateRepo interface {
	Save(ctx context.Context, s models.HeaterState) error
	Load(ctx context.Context) (models.HeaterState, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.HeaterEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.HeaterEvent, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
