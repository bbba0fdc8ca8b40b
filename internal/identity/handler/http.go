package handler

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"twofactor-session/internal/identity/service"
	"twofactor-session/internal/server/httpx"
	"twofactor-session/internal/server/middleware"
	sessiondomain "twofactor-session/internal/session/domain"
	userdomain "twofactor-session/internal/user/domain"
)

// AuthHandler serves the /auth endpoints: registration, the two-step login, logout,
// the current profile, and two-factor enrollment.
type AuthHandler struct {
	auth    *service.AuthService
	cookies httpx.Cookies
	logger  *zap.Logger
}

// NewAuthHandler returns a handler. If auth is nil every endpoint answers 501.
func NewAuthHandler(auth *service.AuthService, cookies httpx.Cookies, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, cookies: cookies, logger: logger}
}

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

type meResponse struct {
	User                   userResponse `json:"user"`
	RecoveryCodesRemaining int          `json:"recovery_codes_remaining"`
}

type enrollmentResponse struct {
	OTPAuthURI    string `json:"otpauth_uri"`
	QRCodeDataURL string `json:"qr_code_data_url"`
	Secret        string `json:"secret"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// Register creates an account and signs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
	}, requestMetadata(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.cookies.SetSession(w, res.Session.ID, res.Session.ExpiresAt)
	httpx.JSON(w, http.StatusCreated, loginResultToJSON(res))
}

// Login runs the password step. The response either carries a session cookie or a
// pending second-factor cookie; the body only states which.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, requestMetadata(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	switch res.Status {
	case service.StatusAuthenticated:
		h.cookies.ClearPending(w)
		h.cookies.SetSession(w, res.Session.ID, res.Session.ExpiresAt)
	case service.StatusNeedsSecondFactor:
		h.cookies.SetPending(w, res.PendingToken, res.PendingExpiresAt)
	}
	httpx.JSON(w, http.StatusOK, loginResultToJSON(res))
}

// CompleteSecondFactor accepts a TOTP or recovery code for the pending login.
func (h *AuthHandler) CompleteSecondFactor(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	token := httpx.Read(r, httpx.PendingCookie)
	if token == "" {
		httpx.WriteError(w, h.logger, service.ErrPendingExpired)
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.CompleteSecondFactor(r.Context(), token, req.Code, requestMetadata(r))
	if err != nil {
		if errors.Is(err, service.ErrPendingExpired) {
			h.cookies.ClearPending(w)
		}
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.cookies.ClearPending(w)
	h.cookies.SetSession(w, res.Session.ID, res.Session.ExpiresAt)
	httpx.JSON(w, http.StatusOK, loginResultToJSON(res))
}

// Logout destroys the caller's session if there is one and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.auth.Logout(r.Context(), httpx.Read(r, httpx.SessionCookie)); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.cookies.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.auth.Me(r.Context(), SessionID(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		User:                   userToJSON(p.User),
		RecoveryCodesRemaining: p.RecoveryCodesRemaining,
	})
}

// BeginEnrollment issues a pending TOTP secret and its otpauth URI.
func (h *AuthHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	enr, err := h.auth.BeginEnrollment(r.Context(), SessionID(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, enrollmentResponse{
		OTPAuthURI:    enr.URI,
		QRCodeDataURL: enr.QRCodeDataURL,
		Secret:        enr.Secret,
	})
}

// ConfirmEnrollment activates two-factor and returns the recovery codes, once.
func (h *AuthHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	codes, err := h.auth.ConfirmEnrollment(r.Context(), SessionID(r), req.Code)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

// DisableTwoFactor turns two-factor off after a valid TOTP or recovery code.
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.DisableTwoFactor(r.Context(), SessionID(r), req.Code); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ready(w http.ResponseWriter) bool {
	if h.auth == nil {
		httpx.Error(w, http.StatusNotImplemented, "auth service not configured")
		return false
	}
	return true
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.Decode(w, r, v); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// SessionID returns the session id placed in the context by RequireSession, falling back
// to the session cookie.
func SessionID(r *http.Request) string {
	if sid, ok := middleware.GetSessionID(r.Context()); ok && sid != "" {
		return sid
	}
	return httpx.Read(r, httpx.SessionCookie)
}

func requestMetadata(r *http.Request) sessiondomain.Metadata {
	return sessiondomain.Metadata{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func loginResultToJSON(res *service.LoginResult) loginResponse {
	out := loginResponse{Status: string(res.Status)}
	if res.Session != nil {
		out.ExpiresAt = res.Session.ExpiresAt
	} else {
		out.ExpiresAt = res.PendingExpiresAt
	}
	return out
}

func userToJSON(u *userdomain.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}
