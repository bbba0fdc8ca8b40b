package domain

import "time"

// AuditLog represents an audit event. UserID is empty for events with no resolved user
// (e.g. a login attempt for an unknown email).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
