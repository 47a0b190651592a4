package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/amplimindcc/backend-sub000/internal/archive"
	"github.com/amplimindcc/backend-sub000/internal/domain"
	"github.com/amplimindcc/backend-sub000/internal/errdefs"
	"github.com/amplimindcc/backend-sub000/internal/token"
	"github.com/amplimindcc/backend-sub000/pkg/logger"
)

const minPasswordLength = 8

type Config struct {
	InviteTTL         time.Duration
	ResetTTL          time.Duration
	ChallengeDuration time.Duration
}

// ChallengeService coordinates the lifecycle of a candidate's submission:
// invitation, registration, archive submission with publishing, and review.
type ChallengeService struct {
	users    UserStore
	subs     SubmissionStore
	records  TokenRecordStore
	tokens   *token.Service
	guard    *archive.Guard
	pub      SubmissionPublisher
	archives ArchiveStore
	events   EventSink
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	locks    *keyMutex
}

func NewChallengeService(
	users UserStore,
	subs SubmissionStore,
	records TokenRecordStore,
	tokens *token.Service,
	guard *archive.Guard,
	pub SubmissionPublisher,
	archives ArchiveStore,
	events EventSink,
	cfg Config,
	log *logger.Logger,
) *ChallengeService {
	return &ChallengeService{
		users:    users,
		subs:     subs,
		records:  records,
		tokens:   tokens,
		guard:    guard,
		pub:      pub,
		archives: archives,
		events:   events,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		locks:    newKeyMutex(),
	}
}

// Invite creates the candidate's user and INIT submission and issues the
// single-use invite token. The token is returned to the caller layer, which
// is responsible for delivering it.
func (s *ChallengeService) Invite(ctx context.Context, email string, projectID uuid.UUID) (string, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("malformed email %q: %w", email, errdefs.ErrValidation)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return "", fmt.Errorf("user %s: %w", email, errdefs.ErrAlreadyExists)
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		return "", err
	}

	user := &domain.User{Email: email, Role: domain.UserRoleCandidate}
	if err := s.users.Create(ctx, user); err != nil {
		return "", err
	}

	submission := &domain.Submission{
		UserEmail: email,
		ProjectID: projectID,
		State:     domain.StateInit,
	}
	if err := s.subs.Create(ctx, submission); err != nil {
		return "", err
	}

	tok, err := s.issueToken(ctx, email, token.PurposeInvite, s.cfg.InviteTTL)
	if err != nil {
		return "", err
	}

	s.emit(ctx, "candidate_invited", email)
	return tok, nil
}

// Register consumes an invite token, sets the candidate's password and
// starts the implementation clock.
func (s *ChallengeService) Register(ctx context.Context, tok, password string) error {
	// Hash first so a weak password does not burn the single-use token.
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	claims, err := s.ValidateAndConsumeToken(ctx, tok, token.PurposeInvite)
	if err != nil {
		return err
	}

	if err := s.applyRegistration(ctx, claims.Subject, hash); err != nil {
		// Give the token back so the candidate can retry after a failure
		// of the work the consumption guarded.
		s.tokens.Release(tok)
		return err
	}

	s.emit(ctx, "candidate_registered", claims.Subject)
	return nil
}

func (s *ChallengeService) applyRegistration(ctx context.Context, email string, hash []byte) error {
	if err := s.users.UpdatePassword(ctx, email, hash); err != nil {
		return err
	}

	unlock := s.locks.lock(email)
	defer unlock()

	submission, err := s.subs.GetByOwner(ctx, email)
	if err != nil {
		return err
	}
	if err := submission.Transition(domain.StateInImplementation); err != nil {
		return err
	}
	submission.ExpirationTime = s.now().Add(s.cfg.ChallengeDuration)
	return s.subs.Update(ctx, submission)
}

// ValidateAndConsumeToken performs the full single-use check: cryptographic
// validity, expiry, purpose, supersession by a later issuance, and the
// consumed set. Each failure kind is distinct so callers can map it to the
// right response.
func (s *ChallengeService) ValidateAndConsumeToken(ctx context.Context, tok, purpose string) (token.Claims, error) {
	claims, err := s.tokens.Validate(tok)
	if err != nil {
		return token.Claims{}, err
	}

	if claims.Purpose != purpose {
		return token.Claims{}, fmt.Errorf("token purpose %q does not match %q: %w",
			claims.Purpose, purpose, errdefs.ErrTokenInvalid)
	}

	// The cipher has no revocation list; a re-issued token invalidates its
	// predecessors by recording only the latest expiry per subject+purpose.
	latest, err := s.records.Latest(ctx, claims.Subject, purpose)
	if err != nil {
		return token.Claims{}, err
	}
	if !latest.IsZero() && claims.Expiry().Before(latest) {
		return token.Claims{}, fmt.Errorf("token superseded by a later issuance: %w", errdefs.ErrTokenInvalid)
	}

	if !s.tokens.ConsumeOnce(tok, claims.Expiry()) {
		return token.Claims{}, fmt.Errorf("token for %s: %w", claims.Subject, errdefs.ErrTokenConsumed)
	}
	return claims, nil
}

// Submit validates the uploaded archive, records the turn-in and publishes
// the contents. The SUBMITTED state and the publish either both happen or
// neither does: a failed publish rolls the persisted state back.
func (s *ChallengeService) Submit(ctx context.Context, email string, archiveBytes []byte, description string) error {
	unlock := s.locks.lock(email)
	defer unlock()

	submission, err := s.subs.GetByOwner(ctx, email)
	if err != nil {
		return err
	}

	bundle, err := s.guard.Validate(archiveBytes)
	if err != nil {
		return err
	}

	prevState := submission.State
	if err := submission.Transition(domain.StateSubmitted); err != nil {
		return err
	}

	turnIn := s.now()
	submission.TurnInTime = &turnIn
	// Late submissions are accepted and flagged, never rejected.
	submission.Late = !submission.ExpirationTime.IsZero() && turnIn.After(submission.ExpirationTime)

	if err := s.subs.Update(ctx, submission); err != nil {
		return err
	}

	if s.archives != nil {
		if err := s.archives.Put(ctx, email, archiveBytes); err != nil {
			s.log.Warn("failed to snapshot archive", zap.String("email", email), zap.Error(err))
		}
	}

	if err := s.pub.Publish(ctx, email, bundle, description); err != nil {
		s.rollbackSubmit(ctx, submission, prevState)
		return fmt.Errorf("publish failed for %s: %w", email, err)
	}

	if err := s.pub.TriggerCI(ctx, email); err != nil {
		s.log.Warn("failed to trigger review workflow", zap.String("email", email), zap.Error(err))
	}

	s.emit(ctx, "solution_submitted", email)
	return nil
}

// rollbackSubmit restores the pre-submit row so a failed publish never
// leaves SUBMITTED recorded without a published repository behind it.
func (s *ChallengeService) rollbackSubmit(ctx context.Context, submission *domain.Submission, prevState domain.SubmissionState) {
	submission.State = prevState
	submission.TurnInTime = nil
	submission.Late = false
	if err := s.subs.Update(ctx, submission); err != nil {
		s.log.Error("failed to roll back submission state",
			zap.String("email", submission.UserEmail), zap.Error(err))
	}
}

// MarkReviewed completes the review of a submitted challenge.
func (s *ChallengeService) MarkReviewed(ctx context.Context, email string) error {
	unlock := s.locks.lock(email)
	defer unlock()

	submission, err := s.subs.GetByOwner(ctx, email)
	if err != nil {
		return err
	}
	if err := submission.Transition(domain.StateReviewed); err != nil {
		return err
	}
	if err := s.subs.Update(ctx, submission); err != nil {
		return err
	}

	s.emit(ctx, "submission_reviewed", email)
	return nil
}

// ReviewReport fetches the newest workflow artifact for a turned-in
// submission, typically the automated test report.
func (s *ChallengeService) ReviewReport(ctx context.Context, email string) ([]byte, error) {
	submission, err := s.subs.GetByOwner(ctx, email)
	if err != nil {
		return nil, err
	}
	switch submission.State {
	case domain.StateSubmitted, domain.StateInReview, domain.StateReviewed:
	default:
		return nil, &domain.IllegalTransitionError{From: submission.State, To: domain.StateSubmitted}
	}
	return s.pub.LatestReport(ctx, email)
}

// RequestPasswordReset issues a reset token for an existing user.
func (s *ChallengeService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		return "", err
	}
	tok, err := s.issueToken(ctx, email, token.PurposePasswordReset, s.cfg.ResetTTL)
	if err != nil {
		return "", err
	}
	return tok, nil
}

// ResetPassword consumes a reset token and replaces the user's password.
func (s *ChallengeService) ResetPassword(ctx context.Context, tok, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	claims, err := s.ValidateAndConsumeToken(ctx, tok, token.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, claims.Subject, hash); err != nil {
		s.tokens.Release(tok)
		return err
	}
	return nil
}

func (s *ChallengeService) issueToken(ctx context.Context, email, purpose string, ttl time.Duration) (string, error) {
	tok, expiry, err := s.tokens.Issue(email, purpose, ttl)
	if err != nil {
		return "", err
	}
	if err := s.records.SetLatest(ctx, email, purpose, expiry); err != nil {
		return "", err
	}
	return tok, nil
}

func (s *ChallengeService) emit(ctx context.Context, eventType, email string) {
	if s.events == nil {
		return
	}
	event := map[string]interface{}{
		"type":  eventType,
		"email": email,
		"at":    s.now().UTC(),
	}
	if err := s.events.Send(ctx, email, event); err != nil {
		s.log.Warn("failed to emit lifecycle event",
			zap.String("type", eventType), zap.String("email", email), zap.Error(err))
	}
}

func hashPassword(password string) ([]byte, error) {
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w",
			minPasswordLength, errdefs.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}
