package token

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
	"github.com/amplimindcc/backend-sub000/pkg/logger"
)

const (
	PurposeInvite        = "invite"
	PurposePasswordReset = "password_reset"

	// DefaultSweepInterval is how often consumed-token fingerprints whose
	// embedded expiry has passed are evicted.
	DefaultSweepInterval = 15 * time.Minute
)

// Claims is the decrypted payload of a token.
type Claims struct {
	Subject   string `json:"sub"`
	Purpose   string `json:"purpose"`
	ExpiresAt int64  `json:"exp"` // unix milliseconds
}

func (c Claims) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// Service issues and validates AEAD-sealed, expiring, single-use tokens.
// Tokens are opaque to callers; no claim is readable without the key.
type Service struct {
	aead          cipher.AEAD
	sweepInterval time.Duration
	now           func() time.Time
	log           *logger.Logger

	mu       sync.Mutex
	consumed map[string]int64 // token fingerprint -> expiry millis
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) { s.sweepInterval = d }
}

func NewService(key []byte, log *logger.Logger, opts ...Option) (*Service, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init token cipher: %w", err)
	}
	s := &Service{
		aead:          aead,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		log:           log,
		consumed:      make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue seals the claims plus an absolute expiry into an opaque token.
// The expiry is truncated to the millisecond precision the claim carries,
// so the returned value and the sealed one always agree.
func (s *Service) Issue(subject, purpose string, ttl time.Duration) (string, time.Time, error) {
	expiry := time.UnixMilli(s.now().Add(ttl).UnixMilli())
	payload, err := json.Marshal(Claims{
		Subject:   subject,
		Purpose:   purpose,
		ExpiresAt: expiry.UnixMilli(),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to marshal claims: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, payload, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), expiry, nil
}

// Validate decrypts and authenticates the token. Any structural or
// authentication failure yields ErrTokenInvalid; an authentic token past its
// embedded expiry yields the claims together with ErrTokenExpired.
func (s *Service) Validate(tok string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return Claims{}, fmt.Errorf("malformed token: %w", errdefs.ErrTokenInvalid)
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	payload, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Claims{}, fmt.Errorf("token failed authentication: %w", errdefs.ErrTokenInvalid)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("malformed token payload: %w", errdefs.ErrTokenInvalid)
	}

	if s.now().After(claims.Expiry()) {
		return claims, fmt.Errorf("token expired at %s: %w", claims.Expiry().UTC(), errdefs.ErrTokenExpired)
	}
	return claims, nil
}

// Fingerprint identifies a token without retaining its full ciphertext.
func Fingerprint(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func (s *Service) MarkConsumed(tok string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed[Fingerprint(tok)] = expiry.UnixMilli()
}

func (s *Service) IsConsumed(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.consumed[Fingerprint(tok)]
	return ok
}

// ConsumeOnce records the token as consumed and reports whether this call
// was the first to do so. The lookup and insert happen under one lock hold,
// so of any number of concurrent presentations exactly one wins.
func (s *Service) ConsumeOnce(tok string, expiry time.Time) bool {
	fp := Fingerprint(tok)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumed[fp]; ok {
		return false
	}
	s.consumed[fp] = expiry.UnixMilli()
	return true
}

// Release forgets a consumed fingerprint so the token may be presented
// again. Callers use it to compensate when the work the consumption guarded
// did not happen.
func (s *Service) Release(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumed, Fingerprint(tok))
}

// StartSweeper evicts expired fingerprints on a fixed interval until the
// context is cancelled.
func (s *Service) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("token sweeper stopped")
			return
		case <-ticker.C:
			removed := s.sweepExpired(s.now())
			if removed > 0 {
				s.log.Infof("swept %d expired token fingerprints", removed)
			}
		}
	}
}

func (s *Service) sweepExpired(now time.Time) int {
	cutoff := now.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, exp := range s.consumed {
		if exp < cutoff {
			delete(s.consumed, fp)
			removed++
		}
	}
	return removed
}
