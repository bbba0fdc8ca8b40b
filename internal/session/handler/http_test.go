package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"twofactor-session/internal/identity/service"
	"twofactor-session/internal/security"
	"twofactor-session/internal/server/httpx"
	sessiondomain "twofactor-session/internal/session/domain"
)

func TestSessionHandler_NilAuthService(t *testing.T) {
	h := NewSessionHandler(nil, httpx.NewCookies(false), nil)
	for name, fn := range map[string]http.HandlerFunc{"list": h.List, "revoke": h.Revoke} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s = %d, want 501", name, rec.Code)
		}
	}
}

func TestSessionViewToJSON_UsesFingerprint(t *testing.T) {
	now := time.Now().UTC()
	v := service.SessionView{
		Session: &sessiondomain.Session{
			ID:        "raw-bearer-token",
			UserID:    "u1",
			IPAddress: "198.51.100.4",
			UserAgent: "go-test",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		},
		Current: true,
	}
	got := sessionViewToJSON(v)
	if got.ID == "raw-bearer-token" || got.ID != security.Fingerprint("raw-bearer-token") {
		t.Errorf("id = %q, want fingerprint", got.ID)
	}
	if !got.Current || got.IPAddress != "198.51.100.4" || got.UserAgent != "go-test" {
		t.Errorf("sessionViewToJSON = %+v", got)
	}
}
