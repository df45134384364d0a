package api

import (
	"errors"
	"net/http"

	"huozhong/cmd/identity"
	"huozhong/cmd/internal/admission"
	"huozhong/cmd/internal/auth/rbac"
	"huozhong/cmd/internal/verifycode"
	"huozhong/cmd/security/token"
)

// statusFor maps the perimeter error taxonomy onto an HTTP status and a
// stable error code. Internal detail never reaches the message.
func statusFor(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, token.ErrExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case token.IsAuthError(err):
		return http.StatusUnauthorized, "unauthorized", "invalid token"
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, "forbidden", "insufficient role"
	case errors.Is(err, admission.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limited", "too many requests"
	case verifycode.IsVerificationFailure(err):
		return http.StatusBadRequest, "invalid_code", "verification code invalid or expired"
	case errors.Is(err, verifycode.ErrDelivery):
		return http.StatusInternalServerError, "mail_failed", "verification email could not be sent"
	case errors.Is(err, verifycode.ErrInvalidInput), identity.IsInvalidInput(err):
		return http.StatusBadRequest, "invalid_request", "invalid request"
	case identity.IsNotFound(err):
		return http.StatusNotFound, "not_found", "not found"
	case identity.IsConflict(err):
		return http.StatusConflict, "conflict", "already exists"
	default:
		return http.StatusInternalServerError, "server_error", "internal error"
	}
}

// writeFailure writes err through statusFor and logs server-side failures.
func (h *Handler) writeFailure(w http.ResponseWriter, event string, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(event, "err", err)
	}
	var le *admission.LimitError
	if errors.As(err, &le) {
		w.Header().Set("Retry-After", formatSeconds(le.RetryAfterSeconds()))
	}
	writeError(w, status, code, msg)
}
