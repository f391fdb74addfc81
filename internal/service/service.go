package service

import (
	"context"
	"time"

	"water_heater/internal/models"
	"water_heater/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Monitoring exposes the read-only controller state.
type Monitoring interface {
	GetState(ctx context.Context) (models.HeaterState, error)
}

// EventLog exposes the append-only event log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.HeaterEvent, error)
}

// Service aggregates what the HTTP layer needs.
type Service struct {
	Monitoring
	EventLog
	Authorization

	// Metrics is nil when metrics are disabled.
	Metrics *Metrics
}

// AuthSettings configures token issuing.
type AuthSettings struct {
	SigningKey string
	TokenTTL   time.Duration
}

// NewService wires the repository layer into the API services. The live
// controller is attached to the returned MonitoringService by the caller.
func NewService(repos *repository.Repository, auth AuthSettings, metrics *Metrics) (*Service, *MonitoringService) {
	mon := NewMonitoringService(repos.StateRepo)
	return &Service{
		Monitoring:    mon,
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
		Metrics:       metrics,
	}, mon
}
