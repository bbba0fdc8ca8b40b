package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"twofactor-session/internal/audit"
	"twofactor-session/internal/captcha"
	"twofactor-session/internal/mfa"
	mfaintentdomain "twofactor-session/internal/mfaintent/domain"
	mfaintentrepo "twofactor-session/internal/mfaintent/repository"
	"twofactor-session/internal/observability/metrics"
	policyengine "twofactor-session/internal/policy/engine"
	"twofactor-session/internal/security"
	sessiondomain "twofactor-session/internal/session/domain"
	sessionservice "twofactor-session/internal/session/service"
	userdomain "twofactor-session/internal/user/domain"
	userrepo "twofactor-session/internal/user/repository"
)

const tracerName = "twofactor-session/identity"

// LoginStatus is the state a login attempt ends in when it is not rejected.
type LoginStatus string

const (
	StatusAuthenticated     LoginStatus = "authenticated"
	StatusNeedsSecondFactor LoginStatus = "needs_second_factor"
)

// LoginResult is returned by Register, Login, and CompleteSecondFactor.
// Session is set when Status is StatusAuthenticated; PendingToken and PendingExpiresAt
// are set when Status is StatusNeedsSecondFactor.
type LoginResult struct {
	Status           LoginStatus
	Session          *sessiondomain.Session
	PendingToken     string
	PendingExpiresAt time.Time
}

// Enrollment is the output of BeginEnrollment. Secret is shown only to the enrolling user
// and only until activation.
type Enrollment struct {
	Secret        string
	URI           string
	QRCodeDataURL string
}

// Profile is the signed-in user's view of their account.
type Profile struct {
	User                   *userdomain.User
	RecoveryCodesRemaining int
}

// SessionView is one entry of ListSessions.
type SessionView struct {
	Session *sessiondomain.Session
	Current bool
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	CaptchaToken string
}

// Options holds the optional collaborators of AuthService.
type Options struct {
	PendingTTL time.Duration
	Captcha    captcha.Verifier
	Policy     policyengine.Evaluator
	Audit      audit.AuditLogger
	Logger     *zap.Logger
}

// AuthService is the two-factor login coordinator. It drives
// password -> optional second factor -> session and the enrollment flow.
type AuthService struct {
	users      userrepo.Repository
	sessions   *sessionservice.Store
	intents    mfaintentrepo.Repository
	hasher     *security.Hasher
	totp       *mfa.TOTPManager
	recovery   *mfa.RecoveryCodeManager
	pending    *security.PendingTokenSigner
	pendingTTL time.Duration
	captcha    captcha.Verifier
	policy     policyengine.Evaluator
	audit      audit.AuditLogger
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
// A nil Captcha accepts everyone; a nil Policy forbids revoking the current session.
func NewAuthService(
	users userrepo.Repository,
	sessions *sessionservice.Store,
	intents mfaintentrepo.Repository,
	hasher *security.Hasher,
	totp *mfa.TOTPManager,
	recovery *mfa.RecoveryCodeManager,
	pending *security.PendingTokenSigner,
	opts Options,
) *AuthService {
	s := &AuthService{
		users:      users,
		sessions:   sessions,
		intents:    intents,
		hasher:     hasher,
		totp:       totp,
		recovery:   recovery,
		pending:    pending,
		pendingTTL: opts.PendingTTL,
		captcha:    opts.Captcha,
		policy:     opts.Policy,
		audit:      opts.Audit,
		logger:     opts.Logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	if s.pendingTTL <= 0 {
		s.pendingTTL = mfaintentrepo.DefaultTTL
	}
	if s.captcha == nil {
		s.captcha = captcha.AllowAll{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// SetClock replaces the time source (tests). It does not affect the session store or signer.
func (s *AuthService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register validates the form, checks the human-verification gate, creates the user, and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, md sessiondomain.Metadata) (res *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	email := userdomain.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if err := validateRegistration(name, email, in.Password); err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	human, err := s.captcha.VerifyHuman(ctx, in.CaptchaToken, md.IPAddress)
	if err != nil {
		s.logger.Warn("human verification unavailable", zap.Error(err))
	}
	if err != nil || !human {
		metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrHumanVerificationFailed
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.registerFailed(storeErr("get user by email", err))
	}
	if existing != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, s.registerFailed(err)
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, s.registerFailed(err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, s.registerFailed(storeErr("create user", err))
	}
	sess, err := s.sessions.Create(ctx, user.ID, md)
	if err != nil {
		return nil, s.registerFailed(storeErr("create session", err))
	}
	metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:             user.ID,
		Action:             audit.ActionRegister,
		Resource:           audit.ResourceUser,
		IP:                 md.IPAddress,
		SessionFingerprint: security.Fingerprint(sess.ID),
	})
	return &LoginResult{Status: StatusAuthenticated, Session: sess}, nil
}

func (s *AuthService) registerFailed(err error) error {
	metrics.AuthRegistrationsTotal.WithLabelValues(metrics.ResultError).Inc()
	return err
}

// Login verifies email and password. Users without a second factor get a session; users with one
// get a pending token that only CompleteSecondFactor accepts. Unknown email and wrong password
// produce the same error after the same hashing work.
func (s *AuthService) Login(ctx context.Context, email, password string, md sessiondomain.Metadata) (res *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer func() { endSpan(span, err) }()

	email = userdomain.NormalizeEmail(email)
	if err := validateLogin(email, password); err != nil {
		metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, storeErr("get user by email", err)
	}
	if user == nil {
		s.hasher.VerifyDummy([]byte(password))
		s.loginRejected(ctx, "", md, "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash, []byte(password)) {
		s.loginRejected(ctx, user.ID, md, "bad_password")
		return nil, ErrInvalidCredentials
	}

	if !user.TwoFactorEnabled {
		sess, err := s.sessions.Create(ctx, user.ID, md)
		if err != nil {
			metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultError).Inc()
			return nil, storeErr("create session", err)
		}
		metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		s.audit.LogEvent(ctx, audit.Entry{
			UserID:             user.ID,
			Action:             audit.ActionLoginSuccess,
			Resource:           audit.ResourceSession,
			IP:                 md.IPAddress,
			SessionFingerprint: security.Fingerprint(sess.ID),
			Metadata:           map[string]string{"method": metrics.MethodNone},
		})
		return &LoginResult{Status: StatusAuthenticated, Session: sess}, nil
	}

	intentID, err := security.NewOpaqueToken(security.SessionTokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	intent := &mfaintentdomain.Intent{
		ID:        intentID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, storeErr("create pending second factor", err)
	}
	token, err := s.pending.Sign(intent.ID, intent.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign pending token: %w", err)
	}
	metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultSecondFactor).Inc()
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:   user.ID,
		Action:   audit.ActionSecondFactorPending,
		Resource: audit.ResourceTwoFactor,
		IP:       md.IPAddress,
	})
	return &LoginResult{
		Status:           StatusNeedsSecondFactor,
		PendingToken:     token,
		PendingExpiresAt: intent.ExpiresAt,
	}, nil
}

func (s *AuthService) loginRejected(ctx context.Context, userID string, md sessiondomain.Metadata, reason string) {
	metrics.AuthLoginsTotal.WithLabelValues(metrics.ResultFailure).Inc()
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:   userID,
		Action:   audit.ActionLoginFailure,
		Resource: audit.ResourceUser,
		IP:       md.IPAddress,
		Metadata: map[string]string{"reason": reason},
	})
}

// CompleteSecondFactor resolves the pending token and accepts either a current TOTP code or an
// unused recovery code through the same input. A wrong code leaves the pending token usable
// until it expires; success consumes it and creates a session.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, pendingToken, code string, md sessiondomain.Metadata) (res *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.CompleteSecondFactor")
	defer func() { endSpan(span, err) }()

	intentID, err := s.pending.Parse(pendingToken)
	if err != nil {
		metrics.AuthSecondFactorTotal.WithLabelValues(metrics.MethodNone, metrics.ResultExpired).Inc()
		return nil, ErrPendingExpired
	}
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, storeErr("get pending second factor", err)
	}
	if !intent.ActiveAt(s.now()) {
		metrics.AuthSecondFactorTotal.WithLabelValues(metrics.MethodNone, metrics.ResultExpired).Inc()
		return nil, ErrPendingExpired
	}
	user, err := s.users.GetByID(ctx, intent.UserID)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user == nil || !user.TwoFactorEnabled {
		if _, err := s.intents.Delete(ctx, intent.ID); err != nil {
			s.logger.Warn("delete stale pending second factor", zap.Error(err))
		}
		metrics.AuthSecondFactorTotal.WithLabelValues(metrics.MethodNone, metrics.ResultExpired).Inc()
		return nil, ErrPendingExpired
	}

	method, err := s.checkSecondFactor(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if method == "" {
		metrics.AuthSecondFactorTotal.WithLabelValues(metrics.MethodNone, metrics.ResultFailure).Inc()
		s.audit.LogEvent(ctx, audit.Entry{
			UserID:   user.ID,
			Action:   audit.ActionSecondFactorFailure,
			Resource: audit.ResourceTwoFactor,
			IP:       md.IPAddress,
		})
		return nil, ErrInvalidCode
	}

	// Only the request that removes the pending row may create a session.
	deleted, err := s.intents.Delete(ctx, intent.ID)
	if err != nil {
		return nil, storeErr("delete pending second factor", err)
	}
	if !deleted {
		metrics.AuthSecondFactorTotal.WithLabelValues(method, metrics.ResultExpired).Inc()
		return nil, ErrPendingExpired
	}
	sess, err := s.sessions.Create(ctx, user.ID, md)
	if err != nil {
		return nil, storeErr("create session", err)
	}
	metrics.AuthSecondFactorTotal.WithLabelValues(method, metrics.ResultSuccess).Inc()
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:             user.ID,
		Action:             audit.ActionSecondFactorSuccess,
		Resource:           audit.ResourceSession,
		IP:                 md.IPAddress,
		SessionFingerprint: security.Fingerprint(sess.ID),
		Metadata:           map[string]string{"method": method},
	})
	return &LoginResult{Status: StatusAuthenticated, Session: sess}, nil
}

// checkSecondFactor returns the method that accepted code, or "" when neither did.
// The recovery code is tried only after the TOTP check fails, so at most one is spent.
func (s *AuthService) checkSecondFactor(ctx context.Context, user *userdomain.User, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil
	}
	if s.totp.Check(code, user.TOTPSecret) {
		return metrics.MethodTOTP, nil
	}
	ok, err := s.recovery.Consume(ctx, user.ID, code)
	if err != nil {
		return "", storeErr("consume recovery code", err)
	}
	if ok {
		return metrics.MethodRecoveryCode, nil
	}
	return "", nil
}

// Authenticate resolves a session id to its user and session. Returns ErrUnauthenticated when
// the session is absent or expired.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (*userdomain.User, *sessiondomain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, storeErr("get session", err)
	}
	if sess == nil {
		return nil, nil, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, storeErr("get user", err)
	}
	if user == nil {
		return nil, nil, ErrUnauthenticated
	}
	return user, sess, nil
}

// Me returns the signed-in user's profile and the number of unused recovery codes.
func (s *AuthService) Me(ctx context.Context, sessionID string) (*Profile, error) {
	user, _, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: user}
	if user.TwoFactorEnabled {
		n, err := s.recovery.Remaining(ctx, user.ID)
		if err != nil {
			return nil, storeErr("count recovery codes", err)
		}
		p.RecoveryCodesRemaining = n
	}
	return p, nil
}

// BeginEnrollment generates a new TOTP secret for the signed-in user and stores it as pending.
// Calling it again before confirmation replaces the pending secret.
func (s *AuthService) BeginEnrollment(ctx context.Context, sessionID string) (enr *Enrollment, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.BeginEnrollment")
	defer func() { endSpan(span, err) }()

	user, _, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := s.totp.EnrollmentURI(user.Email, "", secret)
	if err != nil {
		return nil, err
	}
	qr, err := mfa.RenderQRDataURL(uri, mfa.DefaultQRSize)
	if err != nil {
		return nil, fmt.Errorf("render enrollment qr: %w", err)
	}
	ok, err := s.users.SetTOTPSecret(ctx, user.ID, secret)
	if err != nil {
		return nil, storeErr("set totp secret", err)
	}
	if !ok {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	return &Enrollment{Secret: secret, URI: uri, QRCodeDataURL: qr}, nil
}

// ConfirmEnrollment checks code against the pending secret, activates two-factor, and returns a
// fresh batch of recovery codes. The codes are never retrievable again.
func (s *AuthService) ConfirmEnrollment(ctx context.Context, sessionID, code string) (codes []string, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.ConfirmEnrollment")
	defer func() { endSpan(span, err) }()

	user, sess, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if !user.HasPendingTOTP() {
		return nil, ErrNoPendingEnrollment
	}
	if !s.totp.Check(strings.TrimSpace(code), user.TOTPSecret) {
		return nil, ErrInvalidCode
	}
	// Enable first so that of two concurrent confirmations only one issues codes. The secret
	// guard rejects activation if a concurrent setup replaced the secret the code was checked against.
	ok, err := s.users.EnableTwoFactor(ctx, user.ID, user.TOTPSecret)
	if err != nil {
		return nil, storeErr("enable two-factor", err)
	}
	if !ok {
		current, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return nil, storeErr("load user", err)
		}
		if current != nil && current.TwoFactorEnabled {
			return nil, ErrTwoFactorAlreadyEnabled
		}
		return nil, ErrInvalidCode
	}
	codes, err = s.recovery.IssueBatch(ctx, user.ID)
	if err != nil {
		return nil, storeErr("issue recovery codes", err)
	}
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:             user.ID,
		Action:             audit.ActionTwoFactorEnabled,
		Resource:           audit.ResourceTwoFactor,
		IP:                 sess.IPAddress,
		SessionFingerprint: security.Fingerprint(sess.ID),
	})
	return codes, nil
}

// DisableTwoFactor turns the second factor off after a valid TOTP or recovery code, clearing the
// secret and every recovery code.
func (s *AuthService) DisableTwoFactor(ctx context.Context, sessionID, code string) (err error) {
	ctx, span := s.startSpan(ctx, "AuthService.DisableTwoFactor")
	defer func() { endSpan(span, err) }()

	user, sess, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	method, err := s.checkSecondFactor(ctx, user, code)
	if err != nil {
		return err
	}
	if method == "" {
		return ErrInvalidCode
	}
	if err := s.users.DisableTwoFactor(ctx, user.ID); err != nil {
		return storeErr("disable two-factor", err)
	}
	if err := s.recovery.RevokeAll(ctx, user.ID); err != nil {
		return storeErr("revoke recovery codes", err)
	}
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:             user.ID,
		Action:             audit.ActionTwoFactorDisabled,
		Resource:           audit.ResourceTwoFactor,
		IP:                 sess.IPAddress,
		SessionFingerprint: security.Fingerprint(sess.ID),
		Metadata:           map[string]string{"method": method},
	})
	return nil
}

// ListSessions returns the signed-in user's active sessions, newest first, marking the current one.
func (s *AuthService) ListSessions(ctx context.Context, sessionID string) ([]SessionView, error) {
	user, _, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	list, err := s.sessions.List(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	out := make([]SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionView{Session: sess, Current: sess.ID == sessionID})
	}
	return out, nil
}

// RevokeSession deletes targetID when it belongs to the signed-in user. Revoking the current
// session is decided by the revocation policy. clearCookie reports that the caller's own
// session was revoked.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID, targetID string) (clearCookie bool, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeSession")
	defer func() { endSpan(span, err) }()

	user, _, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return false, err
	}
	decision := policyengine.RevokeDecision{Allowed: targetID != sessionID, Reason: policyengine.ReasonCurrentSession}
	if s.policy != nil {
		decision, err = s.policy.EvaluateRevoke(ctx, policyengine.RevokeInput{
			UserID:           user.ID,
			TargetSessionID:  targetID,
			CurrentSessionID: sessionID,
		})
		if err != nil {
			return false, fmt.Errorf("evaluate revoke policy: %w", err)
		}
	}
	if !decision.Allowed {
		return false, ErrCannotRevokeCurrent
	}
	switch err := s.sessions.Revoke(ctx, targetID, user.ID); {
	case errors.Is(err, sessionservice.ErrNotFound):
		return false, ErrSessionNotFound
	case errors.Is(err, sessionservice.ErrForbidden):
		return false, ErrForbidden
	case err != nil:
		return false, storeErr("revoke session", err)
	}
	metrics.AuthSessionsRevokedTotal.Inc()
	s.audit.LogEvent(ctx, audit.Entry{
		UserID:             user.ID,
		Action:             audit.ActionSessionRevoked,
		Resource:           audit.ResourceSession,
		SessionFingerprint: security.Fingerprint(targetID),
	})
	return targetID == sessionID, nil
}

// Logout destroys the session. Logging out with a missing or expired session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	if sessionID == "" {
		return nil
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return storeErr("delete session", err)
	}
	if sess != nil {
		s.audit.LogEvent(ctx, audit.Entry{
			UserID:             sess.UserID,
			Action:             audit.ActionLogout,
			Resource:           audit.ResourceSession,
			IP:                 sess.IPAddress,
			SessionFingerprint: security.Fingerprint(sessionID),
		})
	}
	return nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

// endSpan records store failures on the span. Expected rejections are not span errors.
func endSpan(span trace.Span, err error) {
	if errors.Is(err, ErrStoreUnavailable) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
	} else if err != nil {
		span.SetAttributes(attribute.String("auth.outcome", err.Error()))
	}
	span.End()
}
