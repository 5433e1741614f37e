package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-membership-api/internal/domain"
)

const maxBodyBytes = 1 << 20

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Code        domain.Code `json:"code"`
	Message     string      `json:"message"`
	ResumeToken string      `json:"resumeToken,omitempty"`
}

// VerifyEnvelope answers a successful signup verification.
type VerifyEnvelope struct {
	Success   bool   `json:"success"`
	ProfileID string `json:"profileId"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code domain.Code, msg string) {
	writeJSON(w, status, ErrorEnvelope{Code: code, Message: msg})
}

// decode reads a size-capped JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, domain.CodeValidation, "request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "request body is empty")
	default:
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid request body")
	}
	return false
}
