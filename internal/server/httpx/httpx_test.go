package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"twofactor-session/internal/identity/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{Fields: map[string][]string{"email": {"invalid"}}}, http.StatusUnprocessableEntity},
		{&service.StoreError{Op: "get user", Err: errors.New("conn refused")}, http.StatusServiceUnavailable},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrInvalidCode, http.StatusUnauthorized},
		{service.ErrPendingExpired, http.StatusUnauthorized},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrEmailAlreadyRegistered, http.StatusConflict},
		{service.ErrCannotRevokeCurrent, http.StatusConflict},
		{service.ErrTwoFactorAlreadyEnabled, http.StatusConflict},
		{service.ErrTwoFactorNotEnabled, http.StatusConflict},
		{service.ErrNoPendingEnrollment, http.StatusConflict},
		{service.ErrHumanVerificationFailed, http.StatusBadRequest},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrForbidden), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteError_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zap.NewNop(), &service.ValidationError{Fields: map[string][]string{"password": {"too short"}}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["password"][0] != "too short" {
		t.Errorf("fields = %v", body.Fields)
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zap.NewNop(), &service.StoreError{Op: "get user", Err: errors.New("dial tcp 10.0.0.5:5432")})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Errorf("body leaks store detail: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	WriteError(rec, zap.NewNop(), errors.New("nil pointer somewhere"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "nil pointer") {
		t.Errorf("500 response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Code string `json:"code"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"123456"}`))
	if err := Decode(httptest.NewRecorder(), r, &v); err != nil || v.Code != "123456" {
		t.Fatalf("Decode = %v, %q", err, v.Code)
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := Decode(httptest.NewRecorder(), r, &v); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Decode(empty) = %v, want ErrEmptyBody", err)
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	if err := Decode(httptest.NewRecorder(), r, &v); err == nil {
		t.Error("Decode(malformed) should fail")
	}
}

func TestCookies(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Cookies{Secure: true, now: func() time.Time { return now }}

	rec := httptest.NewRecorder()
	c.SetSession(rec, "sid", now.Add(time.Hour))
	c.SetPending(rec, "tok", now.Add(5*time.Minute))
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	for _, ck := range cookies {
		if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Path != "/" {
			t.Errorf("cookie %s flags = %+v", ck.Name, ck)
		}
	}
	if cookies[0].Name != SessionCookie || !cookies[0].Expires.Equal(now.Add(time.Hour)) {
		t.Errorf("session cookie = %+v", cookies[0])
	}
	if cookies[1].Name != PendingCookie || cookies[1].MaxAge != 300 {
		t.Errorf("pending cookie = %+v", cookies[1])
	}

	rec = httptest.NewRecorder()
	NewCookies(false).ClearSession(rec)
	ck := rec.Result().Cookies()[0]
	if ck.MaxAge >= 0 || ck.Value != "" || ck.Secure {
		t.Errorf("cleared cookie = %+v", ck)
	}
}

func TestRead(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := Read(r, SessionCookie); got != "" {
		t.Errorf("Read(absent) = %q", got)
	}
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "abc"})
	if got := Read(r, SessionCookie); got != "abc" {
		t.Errorf("Read = %q", got)
	}
}
