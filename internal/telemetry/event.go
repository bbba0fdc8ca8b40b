package telemetry

import "time"

// AuthEvent is an authentication or session lifecycle event streamed to observability
// sinks. It never carries passwords, TOTP secrets, recovery codes, or raw session ids.
type AuthEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	// SessionFingerprint is a short hash of the session id.
	SessionFingerprint string            `json:"session_fingerprint,omitempty"`
	IP                 string            `json:"ip,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}
