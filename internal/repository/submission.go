package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amplimindcc/backend-sub000/internal/domain"
	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, submission *domain.Submission) error {
	query := `
		INSERT INTO submissions (user_email, project_id, state, expiration_time, turn_in_time, late, version, created_at, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		submission.UserEmail,
		submission.ProjectID,
		string(submission.State),
		nullTime(submission.ExpirationTime),
		submission.TurnInTime,
		submission.Late,
		now,
	)
	if err != nil {
		return handleError(err)
	}

	submission.Version = 1
	submission.CreatedAt = now
	submission.EditedAt = now
	return nil
}

func (r *SubmissionRepository) GetByOwner(ctx context.Context, email string) (*domain.Submission, error) {
	query := `
		SELECT user_email, project_id, state, expiration_time, turn_in_time, late, version, created_at, edited_at
		FROM submissions
		WHERE user_email = $1
	`

	var (
		submission     domain.Submission
		state          string
		expirationTime sql.NullTime
		turnInTime     sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&submission.UserEmail,
		&submission.ProjectID,
		&state,
		&expirationTime,
		&turnInTime,
		&submission.Late,
		&submission.Version,
		&submission.CreatedAt,
		&submission.EditedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission for %s: %w", email, errdefs.ErrNotFound)
		}
		return nil, err
	}

	submission.State = domain.ToSubmissionState(state)
	if expirationTime.Valid {
		submission.ExpirationTime = expirationTime.Time
	}
	if turnInTime.Valid {
		t := turnInTime.Time
		submission.TurnInTime = &t
	}
	return &submission, nil
}

// Update applies the row only when the caller still holds the version it
// read; a lost race surfaces as a conflict instead of a silent overwrite.
func (r *SubmissionRepository) Update(ctx context.Context, submission *domain.Submission) error {
	query := `
		UPDATE submissions
		SET state = $1, expiration_time = $2, turn_in_time = $3, late = $4, version = version + 1, edited_at = $5
		WHERE user_email = $6 AND version = $7
	`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		string(submission.State),
		nullTime(submission.ExpirationTime),
		submission.TurnInTime,
		submission.Late,
		now,
		submission.UserEmail,
		submission.Version,
	)
	if err != nil {
		return handleError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("submission for %s changed concurrently: %w", submission.UserEmail, errdefs.ErrConflict)
	}

	submission.Version++
	submission.EditedAt = now
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
