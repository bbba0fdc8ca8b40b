package service

import (
	"context"
	"errors"
	"time"

	"twofactor-session/internal/security"
	"twofactor-session/internal/session/domain"
	sessionrepo "twofactor-session/internal/session/repository"
	userdomain "twofactor-session/internal/user/domain"
	userrepo "twofactor-session/internal/user/repository"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned by Revoke when the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrForbidden is returned by Revoke when the session belongs to another user.
	ErrForbidden = errors.New("session belongs to another user")
)

// Store manages the server-side session lifecycle. Expiry is enforced at read time;
// expired rows are treated as absent until PurgeExpired reclaims them.
type Store struct {
	sessions sessionrepo.Repository
	users    userrepo.Repository
	ttl      time.Duration
	now      func() time.Time
	newID    func() (string, error)
}

// NewStore returns a Store. ttl <= 0 uses DefaultTTL.
func NewStore(sessions sessionrepo.Repository, users userrepo.Repository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		now:      time.Now,
		newID: func() (string, error) {
			return security.NewOpaqueToken(security.SessionTokenBytes)
		},
	}
}

// SetClock replaces the time source (tests).
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create persists a new session for userID with a fresh unguessable id and returns it.
// The caller transmits session.ID to the client.
func (s *Store) Create(ctx context.Context, userID string, md domain.Metadata) (*domain.Session, error) {
	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		ID:        id,
		UserID:    userID,
		IPAddress: md.IPAddress,
		UserAgent: md.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns the owning user while the session exists and has not expired.
// An absent or expired session, or one whose user no longer exists, yields (nil, nil).
// Errors are returned only for store failures.
func (s *Store) Validate(ctx context.Context, sessionID string) (*userdomain.User, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.users.GetByID(ctx, sess.UserID)
}

// Get returns the session if it exists and is unexpired, otherwise (nil, nil).
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.ActiveAt(s.now()) {
		return nil, nil
	}
	return sess, nil
}

// List returns the user's unexpired sessions, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID, s.now().UTC())
}

// Revoke deletes the session when requestingUserID owns it. It returns ErrNotFound for
// missing or expired sessions and ErrForbidden for sessions owned by another user.
// The caller's current session is not special-cased here.
func (s *Store) Revoke(ctx context.Context, sessionID, requestingUserID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotFound
	}
	if sess.UserID != requestingUserID {
		return ErrForbidden
	}
	return s.sessions.Delete(ctx, sessionID)
}

// Destroy deletes the session unconditionally. Destroying a missing session is not an error.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// PurgeExpired removes expired sessions from storage and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}
