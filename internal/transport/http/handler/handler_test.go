package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-membership-api/internal/application/reset"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/go-membership-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSignup struct{ mock.Mock }

func (m *mockSignup) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.RegisterResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSignup) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*domain.Profile, error) {
	args := m.Called(ctx, req)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSignup) ResendOTP(ctx context.Context, req domain.ResendOTPRequest) (*domain.ResendResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.ResendResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSignup) CompleteVerification(ctx context.Context, signupID string) (*domain.Profile, error) {
	args := m.Called(ctx, signupID)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReset struct{ mock.Mock }

func (m *mockReset) Request(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return m.Called(ctx, req).Get(0).(domain.Ack)
}
func (m *mockReset) Resend(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return m.Called(ctx, req).Get(0).(domain.Ack)
}
func (m *mockReset) Cancel(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return m.Called(ctx, req).Get(0).(domain.Ack)
}
func (m *mockReset) Verify(ctx context.Context, req domain.PasswordVerifyRequest) (*domain.ResetSession, error) {
	args := m.Called(ctx, req)
	if s, _ := args.Get(0).(*domain.ResetSession); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockReset) Reset(ctx context.Context, req domain.PasswordResetRequest) (domain.Ack, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Ack), args.Error(1)
}

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, job string) (*sweep.Report, error) {
	args := m.Called(ctx, job)
	if r, _ := args.Get(0).(*sweep.Report); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// --- helpers ---

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func signupRouter(svc *mockSignup) http.Handler {
	h := NewSignupHandler(svc, slog.Default())
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/verify-otp", h.VerifyOTP)
	r.Post("/resend-otp", h.ResendOTP)
	return r
}

func resetRouter(svc *mockReset) http.Handler {
	r := chi.NewRouter()
	r.Post("/password/{action}", NewPasswordResetHandler(svc, slog.Default()).Action)
	return r
}

// --- signup ---

func TestRegister_Created(t *testing.T) {
	svc := &mockSignup{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(r domain.RegisterRequest) bool {
		return r.Email == "a@example.com"
	})).Return(&domain.RegisterResult{SignupID: "S1", ResumeToken: "tok"}, nil)

	rr := do(signupRouter(svc), http.MethodPost, "/register", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"signupId":"S1","resumeToken":"tok"}`, rr.Body.String())
	svc.AssertExpectations(t)
}

func TestRegister_PendingConflictCarriesResumeToken(t *testing.T) {
	svc := &mockSignup{}
	svc.On("Register", mock.Anything, mock.Anything).Return(nil, &domain.Error{
		Code:        domain.CodePendingExists,
		Message:     "pending",
		ResumeToken: "resume-me",
	})

	rr := do(signupRouter(svc), http.MethodPost, "/register", `{}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	env := decodeError(t, rr)
	assert.Equal(t, domain.CodePendingExists, env.Code)
	assert.Equal(t, "resume-me", env.ResumeToken)
}

func TestRegister_MalformedBody(t *testing.T) {
	svc := &mockSignup{}
	rr := do(signupRouter(svc), http.MethodPost, "/register", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.CodeValidation, decodeError(t, rr).Code)

	rr = do(signupRouter(svc), http.MethodPost, "/register", ``)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestVerifyOTP_Envelope(t *testing.T) {
	svc := &mockSignup{}
	svc.On("VerifyOTP", mock.Anything, domain.VerifyOTPRequest{ResumeToken: "t", OTP: "123456"}).
		Return(&domain.Profile{ProfileID: "P1"}, nil)

	rr := do(signupRouter(svc), http.MethodPost, "/verify-otp", `{"resumeToken":"t","otp":"123456"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"profileId":"P1"}`, rr.Body.String())
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validation("bad"), http.StatusBadRequest},
		{domain.NewError(domain.CodeEmailExists, ""), http.StatusConflict},
		{domain.NewError(domain.CodeZIDExists, ""), http.StatusConflict},
		{domain.NewError(domain.CodeTokenInvalid, ""), http.StatusUnauthorized},
		{domain.NewError(domain.CodeOTPInvalid, ""), http.StatusBadRequest},
		{domain.NewError(domain.CodeOTPExpired, ""), http.StatusBadRequest},
		{domain.NewError(domain.CodeOTPLocked, ""), http.StatusLocked},
		{domain.NewError(domain.CodeOTPResendLimit, ""), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &mockSignup{}
		svc.On("VerifyOTP", mock.Anything, mock.Anything).Return(nil, tc.err)
		rr := do(signupRouter(svc), http.MethodPost, "/verify-otp", `{}`)
		assert.Equal(t, tc.want, rr.Code, tc.err.Error())
	}
}

func TestInternalErrorIsOpaque(t *testing.T) {
	svc := &mockSignup{}
	svc.On("VerifyOTP", mock.Anything, mock.Anything).Return(nil, domain.Internal(errors.New("dynamo: table users missing")))

	rr := do(signupRouter(svc), http.MethodPost, "/verify-otp", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "dynamo")
	assert.Equal(t, domain.CodeInternal, decodeError(t, rr).Code)
}

func TestResendOTP_CooldownSetsRetryAfter(t *testing.T) {
	svc := &mockSignup{}
	svc.On("ResendOTP", mock.Anything, mock.Anything).Return(nil, &domain.Error{
		Code:       domain.CodeOTPCooldown,
		Message:    "wait",
		RetryAfter: 42,
	})

	rr := do(signupRouter(svc), http.MethodPost, "/resend-otp", `{"resumeToken":"t"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
}

// --- password reset ---

func TestPasswordAck_IdenticalBodies(t *testing.T) {
	svc := &mockReset{}
	svc.On("Request", mock.Anything, mock.Anything).Return(reset.GenericAck)
	svc.On("Resend", mock.Anything, mock.Anything).Return(reset.GenericAck)
	svc.On("Cancel", mock.Anything, mock.Anything).Return(reset.GenericAck)
	h := resetRouter(svc)

	var bodies []string
	for _, action := range []string{"request-reset", "resend-otp", "cancel"} {
		for _, email := range []string{"member@example.com", "nobody@example.com"} {
			rr := do(h, http.MethodPost, "/password/"+action, `{"email":"`+email+`"}`)
			assert.Equal(t, http.StatusOK, rr.Code)
			bodies = append(bodies, rr.Body.String())
		}
	}
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestPasswordVerify(t *testing.T) {
	svc := &mockReset{}
	svc.On("Verify", mock.Anything, domain.PasswordVerifyRequest{Email: "m@example.com", OTP: "123456"}).
		Return(&domain.ResetSession{ResetSessionToken: "rs", ExpiresIn: 600}, nil)

	rr := do(resetRouter(svc), http.MethodPost, "/password/verify-otp", `{"email":"m@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"resetSessionToken":"rs","expiresIn":600}`, rr.Body.String())
}

func TestPasswordReset_InvalidSession(t *testing.T) {
	svc := &mockReset{}
	svc.On("Reset", mock.Anything, mock.Anything).Return(domain.Ack{}, domain.NewError(domain.CodeResetSessionInvalid, ""))

	rr := do(resetRouter(svc), http.MethodPost, "/password/reset", `{"resetSessionToken":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	env := decodeError(t, rr)
	assert.Equal(t, domain.CodeResetSessionInvalid, env.Code)
	assert.Equal(t, "reset session is invalid or expired", env.Message)
}

func TestPasswordUnknownAction(t *testing.T) {
	rr := do(resetRouter(&mockReset{}), http.MethodPost, "/password/delete-everything", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- sweeps ---

func TestSweepRun(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "expire").Return(&sweep.Report{Job: sweep.JobExpire, Count: 2, IDs: []string{"a", "b"}}, nil)
	runner.On("Run", mock.Anything, "vacuum").Return(nil, domain.ErrBadRequest)

	r := chi.NewRouter()
	r.Post("/ops/sweeps/{job}", NewSweepHandler(runner, slog.Default()).Run)

	rr := do(r, http.MethodPost, "/ops/sweeps/expire", ``)
	assert.Equal(t, http.StatusOK, rr.Code)
	var rep sweep.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, 2, rep.Count)

	rr = do(r, http.MethodPost, "/ops/sweeps/vacuum", ``)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- health ---

func TestHealth(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("down") })

	route := func(deps ...Pinger) http.Handler {
		r := chi.NewRouter()
		r.Get("/health-check/{action}", NewHealthHandler(deps...).Ping)
		return r
	}

	assert.Equal(t, http.StatusOK, do(route(), http.MethodGet, "/health-check/ping", ``).Code)
	assert.Equal(t, http.StatusOK, do(route(healthy), http.MethodGet, "/health-check/ready", ``).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(route(healthy, down), http.MethodGet, "/health-check/ready", ``).Code)
	assert.Equal(t, http.StatusBadRequest, do(route(), http.MethodGet, "/health-check/other", ``).Code)
}
