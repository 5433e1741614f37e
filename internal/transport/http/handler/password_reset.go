package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-membership-api/internal/application/reset"
	"github.com/go-membership-api/internal/domain"
)

// PasswordResetHandler handles the password reset flow endpoints.
type PasswordResetHandler struct {
	svc    reset.Service
	logger *slog.Logger
}

func NewPasswordResetHandler(svc reset.Service, logger *slog.Logger) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, logger: logger}
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request-reset":
		h.ack(w, r, h.svc.Request)
	case "resend-otp":
		h.ack(w, r, h.svc.Resend)
	case "cancel":
		h.ack(w, r, h.svc.Cancel)
	case "verify-otp":
		var req domain.PasswordVerifyRequest
		if !decode(w, r, &req) {
			return
		}
		sess, err := h.svc.Verify(r.Context(), req)
		if err != nil {
			httpError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "reset":
		var req domain.PasswordResetRequest
		if !decode(w, r, &req) {
			return
		}
		ack, err := h.svc.Reset(r.Context(), req)
		if err != nil {
			httpError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	default:
		writeError(w, http.StatusNotFound, domain.CodeValidation, "unknown action")
	}
}

// ack serves the enumeration-safe operations. Their body is identical for
// every well-formed request.
func (h *PasswordResetHandler) ack(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.PasswordEmailRequest) domain.Ack) {
	var req domain.PasswordEmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, op(r.Context(), req))
}
