package repository

import (
	"context"

	"deserlab/internal/model"
)

// AttemptRepository defines data access for assignment attempts using SQL queries only.
// No business logic here, strictly persistence operations.
type AttemptRepository interface {
	// Create inserts a new attempt record and returns the stored row.
	Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error)

	// FindByID returns an attempt by its ID. It returns sql.ErrNoRows when missing.
	FindByID(ctx context.Context, id string) (*model.Attempt, error)

	// Progress aggregates the attempts of userID on assignment.
	// A user without attempts gets a zero Progress, not an error.
	Progress(ctx context.Context, userID, assignment string) (*model.Progress, error)
}
