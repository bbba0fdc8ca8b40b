package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"twofactor-session/internal/session/domain"
	userdomain "twofactor-session/internal/user/domain"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	failGet  error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (m *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	s := m.sessions[id]
	if s == nil {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memSessionRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUserRepo(users ...*userdomain.User) *memUserRepo {
	m := &memUserRepo{users: make(map[string]*userdomain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	if u == nil {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	return nil, nil
}

func (m *memUserRepo) Create(ctx context.Context, u *userdomain.User) error { return nil }

func (m *memUserRepo) SetTOTPSecret(ctx context.Context, userID, secret string) (bool, error) {
	return false, nil
}

func (m *memUserRepo) EnableTwoFactor(ctx context.Context, userID, secret string) (bool, error) {
	return false, nil
}

func (m *memUserRepo) DisableTwoFactor(ctx context.Context, userID string) error { return nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *memSessionRepo, *fakeClock) {
	t.Helper()
	repo := newMemSessionRepo()
	users := newMemUserRepo(
		&userdomain.User{ID: "alice", Email: "a@x.com", PasswordHash: "h"},
		&userdomain.User{ID: "bob", Email: "b@x.com", PasswordHash: "h"},
	)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStore(repo, users, 24*time.Hour)
	s.SetClock(clock.Now)
	return s, repo, clock
}

func TestStore_CreateAndValidate(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "alice", domain.Metadata{IPAddress: "10.0.0.1", UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create returned empty id")
	}
	if want := clock.Now().Add(24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}
	if sess.IPAddress != "10.0.0.1" || sess.UserAgent != "curl/8" {
		t.Errorf("metadata not recorded: %+v", sess)
	}

	u, err := s.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u == nil || u.ID != "alice" {
		t.Fatalf("Validate = %+v, want alice", u)
	}
}

func TestStore_CreateUniqueIDs(t *testing.T) {
	s, _, _ := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		sess, err := s.Create(context.Background(), "alice", domain.Metadata{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[sess.ID] {
			t.Fatalf("duplicate session id %q", sess.ID)
		}
		seen[sess.ID] = true
	}
}

func TestStore_ValidateExpiry(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx, "alice", domain.Metadata{})

	clock.Advance(24*time.Hour - time.Second)
	if u, _ := s.Validate(ctx, sess.ID); u == nil {
		t.Fatal("session should be valid just before expiry")
	}
	clock.Advance(time.Second)
	u, err := s.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate expired: want nil error, got %v", err)
	}
	if u != nil {
		t.Fatal("session must be invalid at expiry")
	}
}

func TestStore_ValidateUnknownAndEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)
	for _, id := range []string{"", "does-not-exist"} {
		u, err := s.Validate(context.Background(), id)
		if err != nil || u != nil {
			t.Errorf("Validate(%q) = %v, %v; want nil, nil", id, u, err)
		}
	}
}

func TestStore_ValidateStoreFailure(t *testing.T) {
	s, repo, _ := newTestStore(t)
	repo.failGet = errors.New("connection refused")
	if _, err := s.Validate(context.Background(), "some-id"); err == nil {
		t.Fatal("Validate should surface store failures")
	}
}

func TestStore_DestroyIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx, "alice", domain.Metadata{})

	if err := s.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if u, _ := s.Validate(ctx, sess.ID); u != nil {
		t.Fatal("session must be invalid after Destroy")
	}
	if err := s.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if err := s.Destroy(ctx, ""); err != nil {
		t.Fatalf("Destroy empty id: %v", err)
	}
}

func TestStore_ListNewestFirstExcludesExpired(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	old, _ := s.Create(ctx, "alice", domain.Metadata{})
	clock.Advance(time.Hour)
	mid, _ := s.Create(ctx, "alice", domain.Metadata{})
	clock.Advance(time.Hour)
	newest, _ := s.Create(ctx, "alice", domain.Metadata{})
	_, _ = s.Create(ctx, "bob", domain.Metadata{})

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List len = %d, want 3", len(list))
	}
	if list[0].ID != newest.ID || list[1].ID != mid.ID || list[2].ID != old.ID {
		t.Errorf("List not newest-first: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	clock.Advance(23 * time.Hour)
	list, _ = s.List(ctx, "alice")
	if len(list) != 1 || list[0].ID != newest.ID {
		t.Errorf("after oldest expire, List = %d sessions, want only newest", len(list))
	}
}

func TestStore_Revoke(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()
	aliceSess, _ := s.Create(ctx, "alice", domain.Metadata{})
	bobSess, _ := s.Create(ctx, "bob", domain.Metadata{})

	if err := s.Revoke(ctx, bobSess.ID, "alice"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Revoke other user's session: want ErrForbidden, got %v", err)
	}
	if u, _ := s.Validate(ctx, bobSess.ID); u == nil {
		t.Error("forbidden revoke must not delete the session")
	}
	if err := s.Revoke(ctx, "missing", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke missing: want ErrNotFound, got %v", err)
	}
	if err := s.Revoke(ctx, aliceSess.ID, "alice"); err != nil {
		t.Fatalf("Revoke own session: %v", err)
	}
	if u, _ := s.Validate(ctx, aliceSess.ID); u != nil {
		t.Error("revoked session must be invalid")
	}
	if err := s.Revoke(ctx, aliceSess.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke twice: want ErrNotFound, got %v", err)
	}

	clock.Advance(25 * time.Hour)
	if err := s.Revoke(ctx, bobSess.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke expired: want ErrNotFound, got %v", err)
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	s, repo, clock := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, "alice", domain.Metadata{})
	clock.Advance(12 * time.Hour)
	keep, _ := s.Create(ctx, "alice", domain.Metadata{})
	clock.Advance(13 * time.Hour)

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired removed %d, want 1", n)
	}
	if _, ok := repo.sessions[keep.ID]; !ok {
		t.Error("unexpired session must be kept")
	}
}

func TestNewStore_DefaultTTL(t *testing.T) {
	s := NewStore(newMemSessionRepo(), newMemUserRepo(), 0)
	if s.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", s.TTL(), DefaultTTL)
	}
}
