package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"twofactor-session/internal/identity/service"
	"twofactor-session/internal/server/httpx"
	"twofactor-session/internal/server/middleware"
	sessiondomain "twofactor-session/internal/session/domain"
	userdomain "twofactor-session/internal/user/domain"
)

func TestAuthHandler_NilAuthService(t *testing.T) {
	h := NewAuthHandler(nil, httpx.NewCookies(false), nil)
	endpoints := map[string]http.HandlerFunc{
		"register":  h.Register,
		"login":     h.Login,
		"2fa":       h.CompleteSecondFactor,
		"logout":    h.Logout,
		"me":        h.Me,
		"setup":     h.BeginEnrollment,
		"confirm":   h.ConfirmEnrollment,
		"disable2f": h.DisableTwoFactor,
	}
	for name, fn := range endpoints {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s = %d, want 501", name, rec.Code)
		}
	}
}

func TestSessionID_PrefersContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: httpx.SessionCookie, Value: "from-cookie"})
	if got := SessionID(r); got != "from-cookie" {
		t.Errorf("SessionID = %q, want cookie value", got)
	}
	r = r.WithContext(middleware.WithIdentity(r.Context(), "u1", "from-context"))
	if got := SessionID(r); got != "from-context" {
		t.Errorf("SessionID = %q, want context value", got)
	}
}

func TestRequestMetadata(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "curl/8.0")
	md := requestMetadata(r)
	if md.IPAddress != "192.0.2.1" || md.UserAgent != "curl/8.0" {
		t.Errorf("metadata without resolved ip = %+v, want remote address", md)
	}

	r = r.WithContext(middleware.WithClientIP(r.Context(), "203.0.113.7"))
	if md := requestMetadata(r); md.IPAddress != "203.0.113.7" {
		t.Errorf("metadata = %+v, want resolved ip", md)
	}
}

func TestLoginResultToJSON(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := loginResultToJSON(&service.LoginResult{
		Status:  service.StatusAuthenticated,
		Session: &sessiondomain.Session{ID: "secret", ExpiresAt: exp},
	})
	if got.Status != "authenticated" || !got.ExpiresAt.Equal(exp) {
		t.Errorf("authenticated = %+v", got)
	}
	got = loginResultToJSON(&service.LoginResult{
		Status:           service.StatusNeedsSecondFactor,
		PendingToken:     "jwt",
		PendingExpiresAt: exp,
	})
	if got.Status != "needs_second_factor" || !got.ExpiresAt.Equal(exp) {
		t.Errorf("needs_second_factor = %+v", got)
	}
}

func TestUserToJSON_OmitsSecrets(t *testing.T) {
	got := userToJSON(&userdomain.User{ID: "u1", Email: "a@x.com", PasswordHash: "$2a$", TOTPSecret: "JBSWY3DP", TwoFactorEnabled: true})
	if got.ID != "u1" || got.Email != "a@x.com" || !got.TwoFactorEnabled {
		t.Errorf("userToJSON = %+v", got)
	}
}
