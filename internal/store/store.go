// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/sagredo/internal/domain"
)

// ErrNotFound is returned when an attempt is not in the archive.
var ErrNotFound = errors.New("attempt not found")

// ListFilter narrows ListAttempts. Zero values match everything.
type ListFilter struct {
	State string
	Limit int
}

// Repository defines the interface for archiving finished proof attempts.
type Repository interface {
	// SaveAttempt inserts or replaces an archived attempt.
	SaveAttempt(ctx context.Context, rec *domain.AttemptRecord) error

	// GetAttempt retrieves an attempt with its transcript, or ErrNotFound.
	GetAttempt(ctx context.Context, id string) (*domain.AttemptRecord, error)

	// ListAttempts returns summaries, newest first.
	ListAttempts(ctx context.Context, filter ListFilter) ([]domain.AttemptSummary, error)

	// DeleteAttemptsBefore removes attempts that started before cutoff.
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
