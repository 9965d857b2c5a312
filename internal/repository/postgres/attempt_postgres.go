package postgres

import (
	"context"
	"database/sql"

	"deserlab/internal/model"
	"deserlab/internal/repository"
)

// AttemptPostgres is a PostgreSQL implementation of repository.AttemptRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type AttemptPostgres struct {
	db *sql.DB
}

// NewAttemptPostgres creates a new AttemptPostgres repository.
func NewAttemptPostgres(db *sql.DB) *AttemptPostgres {
	return &AttemptPostgres{db: db}
}

var _ repository.AttemptRepository = (*AttemptPostgres)(nil)

// Create inserts a new attempt row and returns the stored record.
func (r *AttemptPostgres) Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	const q = `
		INSERT INTO lesson_attempts (id, user_id, assignment, solved, feedback_key, delay_ms, archive_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, assignment, solved, feedback_key, delay_ms, archive_key, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		a.ID,
		a.UserID,
		a.Assignment,
		a.Solved,
		a.FeedbackKey,
		a.DelayMs,
		a.ArchiveKey,
		a.CreatedAt,
	)
	var out model.Attempt
	if err := scanAttempt(row, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single attempt by its ID.
func (r *AttemptPostgres) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	const q = `
		SELECT id, user_id, assignment, solved, feedback_key, delay_ms, archive_key, created_at
		FROM lesson_attempts
		WHERE id = $1
	`
	var a model.Attempt
	if err := scanAttempt(r.db.QueryRowContext(ctx, q, id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Progress counts the attempts of a user on an assignment and whether any of them solved it.
func (r *AttemptPostgres) Progress(ctx context.Context, userID, assignment string) (*model.Progress, error) {
	const q = `
		SELECT COUNT(*), COALESCE(BOOL_OR(solved), false), MAX(created_at)
		FROM lesson_attempts
		WHERE user_id = $1 AND assignment = $2
	`
	p := model.Progress{UserID: userID, Assignment: assignment}
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, userID, assignment).Scan(&p.Attempts, &p.Solved, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		p.LastAttemptAt = &t
	}
	return &p, nil
}

func scanAttempt(row *sql.Row, a *model.Attempt) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.Assignment,
		&a.Solved,
		&a.FeedbackKey,
		&a.DelayMs,
		&a.ArchiveKey,
		&a.CreatedAt,
	)
}
