package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"twofactor-session/internal/identity/service"
)

// StatusFor maps an auth service error to its HTTP status.
func StatusFor(err error) int {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrPendingExpired),
		errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailAlreadyRegistered),
		errors.Is(err, service.ErrCannotRevokeCurrent),
		errors.Is(err, service.ErrTwoFactorAlreadyEnabled),
		errors.Is(err, service.ErrTwoFactorNotEnabled),
		errors.Is(err, service.ErrNoPendingEnrollment):
		return http.StatusConflict
	case errors.Is(err, service.ErrHumanVerificationFailed):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the client-facing form of err. Store failures and unexpected errors are
// logged here, once; expected rejections are not.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		JSON(w, status, errorBody{Error: "validation failed", Fields: ve.Fields})
	case status == http.StatusServiceUnavailable:
		logger.Error("store unavailable", zap.Error(err))
		Error(w, status, service.ErrStoreUnavailable.Error())
	case status == http.StatusInternalServerError:
		logger.Error("unhandled error", zap.Error(err))
		Error(w, status, "internal error")
	default:
		Error(w, status, err.Error())
	}
}
