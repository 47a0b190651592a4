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

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, created_at, edited_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		now,
	)
	if err != nil {
		return handleError(err)
	}

	user.CreatedAt = now
	user.EditedAt = now
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT email, password_hash, role, created_at, edited_at
		FROM users
		WHERE email = $1
	`

	var (
		user domain.User
		role string
	)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
		&user.EditedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, errdefs.ErrNotFound)
		}
		return nil, err
	}

	user.Role = domain.UserRole(role)
	return &user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, email string, passwordHash []byte) error {
	query := `
		UPDATE users
		SET password_hash = $1, edited_at = $2
		WHERE email = $3
	`

	res, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), email)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", email, errdefs.ErrNotFound)
	}
	return nil
}
