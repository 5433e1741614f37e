package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-membership-api/internal/application/signup"
	"github.com/go-membership-api/internal/domain"
)

// SignupHandler serves registration and signup verification.
type SignupHandler struct {
	svc    signup.Service
	logger *slog.Logger
}

func NewSignupHandler(svc signup.Service, logger *slog.Logger) *SignupHandler {
	return &SignupHandler{svc: svc, logger: logger}
}

func (h *SignupHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *SignupHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyEnvelope{Success: true, ProfileID: p.ProfileID})
}

func (h *SignupHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ResendOTP(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
