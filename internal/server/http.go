// Package server assembles the HTTP API: routes, middleware, and the http.Server itself.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	healthhandler "twofactor-session/internal/health/handler"
	identityhandler "twofactor-session/internal/identity/handler"
	identityservice "twofactor-session/internal/identity/service"
	"twofactor-session/internal/observability/metrics"
	"twofactor-session/internal/ratelimit"
	"twofactor-session/internal/server/httpx"
	"twofactor-session/internal/server/middleware"
	sessionhandler "twofactor-session/internal/session/handler"
)

// Deps holds the dependencies of the HTTP handlers.
type Deps struct {
	// Auth is the auth service. If nil, auth and session endpoints return 501.
	Auth *identityservice.AuthService
	// Cookies writes the session and pending second-factor cookies.
	Cookies httpx.Cookies
	// TrustedProxies decides whose forwarding headers name the client. Nil trusts no one.
	TrustedProxies *middleware.TrustedProxies
	// LoginLimiter throttles the login endpoints. If nil, login is not rate limited.
	LoginLimiter *ratelimit.Limiter
	// Health runs readiness checks for /readyz. If nil, readiness always succeeds.
	Health *healthhandler.Checker
	// Metrics serves /metrics. Defaults to the Prometheus default gatherer.
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewHandler returns the HTTP API.
//
// Route → handler mapping:
//   - /auth/*        → internal/identity/handler
//   - /sessions/*    → internal/session/handler
//   - /healthz, /readyz → internal/health/handler
//   - /metrics       → internal/observability/metrics
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = metrics.Handler()
	}

	auth := identityhandler.NewAuthHandler(deps.Auth, deps.Cookies, logger)
	sessions := sessionhandler.NewSessionHandler(deps.Auth, deps.Cookies, logger)
	health := healthhandler.NewHTTP(deps.Health, logger)

	requireSession := func(next http.Handler) http.Handler { return next }
	if deps.Auth != nil {
		requireSession = middleware.RequireSession(deps.Auth, deps.Cookies, logger)
	}
	limitLogin := ratelimit.Middleware(deps.LoginLimiter, middleware.ClientIP, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIPMiddleware(deps.TrustedProxies))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", auth.Register)
		r.With(limitLogin).Post("/login", auth.Login)
		r.With(limitLogin).Post("/login/2fa", auth.CompleteSecondFactor)
		r.Post("/logout", auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/me", auth.Me)
			r.Post("/2fa/setup", auth.BeginEnrollment)
			r.Post("/2fa/confirm", auth.ConfirmEnrollment)
			r.Post("/2fa/disable", auth.DisableTwoFactor)
		})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/", sessions.List)
		r.Delete("/{id}", sessions.Revoke)
	})

	return otelhttp.NewHandler(r, "http.server")
}

// NewHTTPServer returns an http.Server with conservative timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
