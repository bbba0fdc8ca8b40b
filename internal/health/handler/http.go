package handler

import (
	"net/http"

	"go.uber.org/zap"

	"twofactor-session/internal/server/httpx"
)

// HTTP serves /healthz and /readyz.
type HTTP struct {
	checker *Checker
	logger  *zap.Logger
}

// NewHTTP returns the HTTP health endpoints.
func NewHTTP(checker *Checker, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{checker: checker, logger: logger}
}

// Healthz reports liveness. It never touches dependencies.
func (h *HTTP) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports readiness: 200 when the database and policy engine answer, 503 otherwise.
func (h *HTTP) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
