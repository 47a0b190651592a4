package service

import (
	"context"
	"time"

	"github.com/amplimindcc/backend-sub000/internal/archive"
	"github.com/amplimindcc/backend-sub000/internal/domain"
)

type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, email string, passwordHash []byte) error
}

type SubmissionStore interface {
	Create(ctx context.Context, submission *domain.Submission) error
	GetByOwner(ctx context.Context, email string) (*domain.Submission, error)
	Update(ctx context.Context, submission *domain.Submission) error
}

type TokenRecordStore interface {
	SetLatest(ctx context.Context, email, purpose string, expiresAt time.Time) error
	Latest(ctx context.Context, email, purpose string) (time.Time, error)
}

type SubmissionPublisher interface {
	Publish(ctx context.Context, identity string, bundle *archive.Bundle, description string) error
	TriggerCI(ctx context.Context, identity string) error
	LatestReport(ctx context.Context, identity string) ([]byte, error)
}

// ArchiveStore snapshots the raw uploaded archive. Optional collaborator.
type ArchiveStore interface {
	Put(ctx context.Context, identity string, archive []byte) error
}

// EventSink receives lifecycle events. Optional collaborator; emit failures
// are logged, never surfaced to the caller.
type EventSink interface {
	Send(ctx context.Context, key string, message interface{}) error
}
