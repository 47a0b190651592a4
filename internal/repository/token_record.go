package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRecordRepository stores the latest issued expiry per subject and
// purpose. Validation compares a token's embedded expiry against this
// record to reject tokens superseded by a later issuance.
type TokenRecordRepository struct {
	db *sql.DB
}

func NewTokenRecordRepository(db *sql.DB) *TokenRecordRepository {
	return &TokenRecordRepository{db: db}
}

func (r *TokenRecordRepository) SetLatest(ctx context.Context, email, purpose string, expiresAt time.Time) error {
	query := `
		INSERT INTO token_records (email, purpose, expires_at_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (email, purpose) DO UPDATE SET expires_at_ms = EXCLUDED.expires_at_ms
	`

	_, err := r.db.ExecContext(ctx, query, email, purpose, expiresAt.UnixMilli())
	return err
}

func (r *TokenRecordRepository) Latest(ctx context.Context, email, purpose string) (time.Time, error) {
	query := `
		SELECT expires_at_ms
		FROM token_records
		WHERE email = $1 AND purpose = $2
	`

	var millis int64
	err := r.db.QueryRowContext(ctx, query, email, purpose).Scan(&millis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}
