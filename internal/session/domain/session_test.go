package domain

import (
	"testing"
	"time"
)

func TestSession_ActiveAt(t *testing.T) {
	exp := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	s := &Session{ID: "s1", ExpiresAt: exp}
	if !s.ActiveAt(exp.Add(-time.Nanosecond)) {
		t.Error("session should be active just before expiry")
	}
	if s.ActiveAt(exp) {
		t.Error("session must not be active at expiry")
	}
	if s.ActiveAt(exp.Add(time.Second)) {
		t.Error("session must not be active after expiry")
	}
	var nilSession *Session
	if nilSession.ActiveAt(exp) {
		t.Error("nil session is never active")
	}
}
