// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/rolesim/internal/domain"
)

// ErrNotFound is returned when an updated row does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for persisting trainees and sessions.
type Repository interface {
	// GetTrainee retrieves a trainee by ID. It returns (nil, nil) when absent.
	GetTrainee(ctx context.Context, traineeID string) (*domain.Trainee, error)

	// UpsertTrainee creates or updates a trainee record.
	UpsertTrainee(ctx context.Context, trainee *domain.Trainee) error

	// UpdateLastSeen updates the last_seen_at timestamp for a trainee.
	UpdateLastSeen(ctx context.Context, traineeID string, lastSeen time.Time) error

	// GetSession retrieves a session by ID. It returns (nil, nil) when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession creates or replaces a session, history included.
	SaveSession(ctx context.Context, session *domain.Session) error

	// ListIdleSessions returns open sessions not updated since before.
	ListIdleSessions(ctx context.Context, before time.Time) ([]*domain.Session, error)

	// DeleteClosedSessions removes closed sessions last updated before the
	// cutoff and returns the removed IDs.
	DeleteClosedSessions(ctx context.Context, before time.Time) ([]string, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
