// Package servicetest provides in-memory repositories and a controllable clock for tests
// that drive the auth service without a database.
package servicetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"twofactor-session/internal/audit"
	mfadomain "twofactor-session/internal/mfa/domain"
	mfaintentdomain "twofactor-session/internal/mfaintent/domain"
	sessiondomain "twofactor-session/internal/session/domain"
	userdomain "twofactor-session/internal/user/domain"
	userrepo "twofactor-session/internal/user/repository"
)

// Users is an in-memory user repository. Reads fail with the error set by Fail.
type Users struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
	fail error

	// BeforeEnable runs at the start of EnableTwoFactor, outside the lock.
	BeforeEnable func(userID string)
}

func NewUsers() *Users {
	return &Users{byID: make(map[string]*userdomain.User)}
}

// Fail makes every subsequent read return err. Pass nil to recover.
func (r *Users) Fail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Len returns the number of stored users.
func (r *Users) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Users) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	u := r.byID[id]
	if u == nil {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *Users) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return userrepo.ErrDuplicateEmail
		}
	}
	c := *u
	r.byID[u.ID] = &c
	return nil
}

func (r *Users) SetTOTPSecret(ctx context.Context, userID, secret string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID[userID]
	if u == nil || u.TwoFactorEnabled {
		return false, nil
	}
	u.TOTPSecret = secret
	return true, nil
}

func (r *Users) EnableTwoFactor(ctx context.Context, userID, secret string) (bool, error) {
	if r.BeforeEnable != nil {
		r.BeforeEnable(userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID[userID]
	if u == nil || u.TwoFactorEnabled || u.TOTPSecret == "" || u.TOTPSecret != secret {
		return false, nil
	}
	u.TwoFactorEnabled = true
	return true, nil
}

func (r *Users) DisableTwoFactor(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.byID[userID]; u != nil {
		u.TwoFactorEnabled = false
		u.TOTPSecret = ""
	}
	return nil
}

// Sessions is an in-memory session repository.
type Sessions struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*sessiondomain.Session)}
}

func (r *Sessions) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.m[s.ID] = &c
	return nil
}

func (r *Sessions) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.m[id]
	if s == nil {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *Sessions) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *Sessions) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if !s.ExpiresAt.After(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Intents is an in-memory pending second-factor repository. Create supersedes the user's earlier intent.
type Intents struct {
	mu sync.Mutex
	m  map[string]*mfaintentdomain.Intent
}

func NewIntents() *Intents {
	return &Intents{m: make(map[string]*mfaintentdomain.Intent)}
}

func (r *Intents) Create(ctx context.Context, i *mfaintentdomain.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.m {
		if existing.UserID == i.UserID {
			delete(r.m, id)
		}
	}
	c := *i
	r.m[i.ID] = &c
	return nil
}

func (r *Intents) GetByID(ctx context.Context, id string) (*mfaintentdomain.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.m[id]
	if i == nil {
		return nil, nil
	}
	c := *i
	return &c, nil
}

func (r *Intents) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return false, nil
	}
	delete(r.m, id)
	return true, nil
}

func (r *Intents) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, i := range r.m {
		if !i.ExpiresAt.After(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// RecoveryCodes is an in-memory recovery code repository. Lookups fail with the error set by Fail.
type RecoveryCodes struct {
	mu   sync.Mutex
	m    map[string]*mfadomain.RecoveryCode
	fail error
}

func NewRecoveryCodes() *RecoveryCodes {
	return &RecoveryCodes{m: make(map[string]*mfadomain.RecoveryCode)}
}

// Fail makes every subsequent lookup return err. Pass nil to recover.
func (r *RecoveryCodes) Fail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *RecoveryCodes) ReplaceForUser(ctx context.Context, userID string, codes []*mfadomain.RecoveryCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.m {
		if c.UserID == userID {
			delete(r.m, id)
		}
	}
	for _, c := range codes {
		cp := *c
		r.m[c.ID] = &cp
	}
	return nil
}

func (r *RecoveryCodes) FindUnused(ctx context.Context, userID, codeHash string) (*mfadomain.RecoveryCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, c := range r.m {
		if c.UserID == userID && c.CodeHash == codeHash && !c.Used {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *RecoveryCodes) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.m[id]
	if c == nil || c.Used {
		return false, nil
	}
	c.Used = true
	c.UsedAt = &at
	return true, nil
}

func (r *RecoveryCodes) DeleteForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.m {
		if c.UserID == userID {
			delete(r.m, id)
		}
	}
	return nil
}

func (r *RecoveryCodes) CountUnused(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.m {
		if c.UserID == userID && !c.Used {
			n++
		}
	}
	return n, nil
}

// Audit records audit entries in memory.
type Audit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *Audit) LogEvent(ctx context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

// Entries returns a copy of the recorded entries.
func (a *Audit) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

// Actions returns the recorded actions in order.
func (a *Audit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// Clock is a manually advanced clock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
