package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-membership-api/internal/domain"
)

// httpError maps a service error to its response. Internal failures are
// logged with the request id and answered with a fixed message.
func httpError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.Internal(err)
	}
	status := statusFor(de.Code)
	reqID := chimiddleware.GetReqID(r.Context())

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "request_id", reqID, "route", r.URL.Path, "err", err)
		writeError(w, status, domain.CodeInternal, "internal error")
		return
	}
	logger.DebugContext(r.Context(), "request rejected", "request_id", reqID, "route", r.URL.Path, "code", de.Code, "err", err)

	if de.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(de.RetryAfter))
	}
	msg := de.Message
	if msg == "" {
		msg = defaultMessage(de.Code)
	}
	writeJSON(w, status, ErrorEnvelope{Code: de.Code, Message: msg, ResumeToken: de.ResumeToken})
}

func statusFor(code domain.Code) int {
	switch code.Kind() {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindToken:
		return http.StatusUnauthorized
	case domain.KindOTP:
		if code == domain.CodeOTPLocked {
			return http.StatusLocked
		}
		return http.StatusBadRequest
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(code domain.Code) string {
	switch code {
	case domain.CodeTokenInvalid:
		return "token is invalid or expired"
	case domain.CodeResetSessionInvalid:
		return "reset session is invalid or expired"
	default:
		return string(code)
	}
}
