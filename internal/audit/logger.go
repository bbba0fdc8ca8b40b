// Package audit records security-relevant auth events as audit_logs rows and telemetry events.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"twofactor-session/internal/audit/domain"
	auditrepo "twofactor-session/internal/audit/repository"
	"twofactor-session/internal/telemetry"
)

// Actions recorded by the auth flows.
const (
	ActionRegister            = "register"
	ActionLoginSuccess        = "login_success"
	ActionLoginFailure        = "login_failure"
	ActionSecondFactorPending = "second_factor_pending"
	ActionSecondFactorSuccess = "second_factor_success"
	ActionSecondFactorFailure = "second_factor_failure"
	ActionTwoFactorEnabled    = "two_factor_enabled"
	ActionTwoFactorDisabled   = "two_factor_disabled"
	ActionSessionRevoked      = "session_revoked"
	ActionLogout              = "logout"
)

// Resources named in audit rows.
const (
	ResourceUser      = "user"
	ResourceSession   = "session"
	ResourceTwoFactor = "two_factor"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Entry is one audit event. IP falls back to the logger's IPExtractor when empty.
// SessionFingerprint must be a hash prefix, never a raw session id.
type Entry struct {
	UserID             string
	Action             string
	Resource           string
	IP                 string
	SessionFingerprint string
	Metadata           map[string]string
}

// AuditLogger writes a single audit event. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Entry)
}

// Logger implements AuditLogger using the audit repository, an optional IP extractor,
// and an optional telemetry emitter.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
	logger      *zap.Logger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. ipExtractor and emitter may be nil;
// without an IP the entry is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter, logger: logger, now: time.Now}
}

// LogEvent writes one audit log entry and emits it asynchronously. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Entry) {
	ip := e.IP
	if ip == "" && l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	meta := map[string]string{}
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if e.SessionFingerprint != "" {
		meta["session"] = e.SessionFingerprint
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		IP:        ip,
		CreatedAt: l.now().UTC(),
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			entry.Metadata = string(b)
		}
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.logger.Error("audit: failed to log event",
				zap.String("action", e.Action), zap.String("resource", e.Resource), zap.Error(err))
		}
	}
	telemetry.EmitAsync(l.emitter, &telemetry.AuthEvent{
		ID:                 entry.ID,
		Type:               e.Action,
		UserID:             e.UserID,
		Resource:           e.Resource,
		SessionFingerprint: e.SessionFingerprint,
		IP:                 ip,
		Metadata:           e.Metadata,
		CreatedAt:          entry.CreatedAt,
	}, l.logger)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, Entry) {}
