package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/domain"
	"github.com/go-membership-api/internal/pkg/id"
	"github.com/go-membership-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error)
	VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*domain.Profile, error)
	ResendOTP(ctx context.Context, req domain.ResendOTPRequest) (*domain.ResendResult, error)
	CompleteVerification(ctx context.Context, signupID string) (*domain.Profile, error)
}

type signupStore interface {
	Get(ctx context.Context, signupID string) (*domain.SignupRecord, error)
	FindByEmail(ctx context.Context, email string) ([]domain.SignupRecord, error)
	FindByInstitutionalID(ctx context.Context, institutionalID string) ([]domain.SignupRecord, error)
	Create(ctx context.Context, rec *domain.SignupRecord) error
	Replace(ctx context.Context, rec *domain.SignupRecord) error
	Activate(ctx context.Context, signupID string) error
	LinkProfile(ctx context.Context, signupID, profileID string) error
}

type profileStore interface {
	GetByInstitutionalID(ctx context.Context, institutionalID string) (*domain.Profile, error)
	Put(ctx context.Context, p *domain.Profile) error
}

type tokenIssuer interface {
	IssueResume(signupID string) (string, error)
	ParseResume(token string) (string, error)
}

type otpEngine interface {
	Issue(ctx context.Context, ownerID, recipient string) error
	Verify(ctx context.Context, ownerID, code string) (otp.Outcome, error)
	Resend(ctx context.Context, ownerID, recipient string) (otp.ResendStatus, error)
	Config() otp.Config
}

type service struct {
	signups    signupStore
	profiles   profileStore
	tokens     tokenIssuer
	otp        otpEngine
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
}

type ServiceDeps struct {
	SignupRepo  signupStore
	ProfileRepo profileStore
	Tokens      tokenIssuer
	OTP         otpEngine
	Logger      *slog.Logger
	Now         func() time.Time
	BcryptCost  int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		signups:    deps.SignupRepo,
		profiles:   deps.ProfileRepo,
		tokens:     deps.Tokens,
		otp:        deps.OTP,
		logger:     deps.Logger,
		now:        deps.Now,
		bcryptCost: deps.BcryptCost,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	return s
}

// Register stages a signup. Conflicts resolve in a fixed order: verified email,
// verified institutional id, pending row (either key), expired row by email,
// expired row by institutional id, then a fresh insert. Expired rows are revived
// in place so their id, and any profile later linked to it, stays stable.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	req.Email = validate.Email(req.Email)
	req.InstitutionalID = validate.InstitutionalID(req.InstitutionalID)
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Validation(err.Error())
	}

	byEmail, err := s.signups.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("lookup signup by email: %w", err))
	}
	byZID, err := s.signups.FindByInstitutionalID(ctx, req.InstitutionalID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("lookup signup by institutional id: %w", err))
	}

	if findStatus(byEmail, domain.StatusActive) != nil {
		return nil, domain.NewError(domain.CodeEmailExists, "an account with this email already exists")
	}
	if findStatus(byZID, domain.StatusActive) != nil {
		return nil, domain.NewError(domain.CodeZIDExists, "an account with this institutional id already exists")
	}
	if p := firstNonNil(findStatus(byEmail, domain.StatusPending), findStatus(byZID, domain.StatusPending)); p != nil {
		tok, err := s.tokens.IssueResume(p.SignupID)
		if err != nil {
			return nil, domain.Internal(err)
		}
		return nil, &domain.Error{
			Code:        domain.CodePendingExists,
			Message:     "a signup awaiting verification already exists",
			ResumeToken: tok,
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now().UTC()
	revived := true
	rec := firstNonNil(findStatus(byEmail, domain.StatusExpired), findStatus(byZID, domain.StatusExpired))
	if rec == nil {
		revived = false
		rec = &domain.SignupRecord{SignupID: id.NewAt(now)}
	}
	fill(rec, req, string(hash), now)

	if revived {
		err = s.signups.Replace(ctx, rec)
	} else {
		err = s.signups.Create(ctx, rec)
	}
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("persist signup: %w", err))
	}
	if err := s.otp.Issue(ctx, rec.SignupID, rec.Email); err != nil {
		return nil, domain.Internal(err)
	}

	tok, err := s.tokens.IssueResume(rec.SignupID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	s.logger.InfoContext(ctx, "signup staged", "signup_id", rec.SignupID, "revived", revived)
	return &domain.RegisterResult{SignupID: rec.SignupID, ResumeToken: tok, Revived: revived}, nil
}

func (s *service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*domain.Profile, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Validation(err.Error())
	}
	signupID, err := s.tokens.ParseResume(req.ResumeToken)
	if err != nil {
		return nil, &domain.Error{Code: domain.CodeTokenInvalid, Err: err}
	}

	out, err := s.otp.Verify(ctx, signupID, req.OTP)
	if err != nil {
		return nil, domain.Internal(err)
	}
	switch out {
	case otp.OK:
		return s.CompleteVerification(ctx, signupID)
	case otp.Expired:
		return nil, domain.NewError(domain.CodeOTPExpired, "the code has expired")
	case otp.Locked:
		return nil, domain.NewError(domain.CodeOTPLocked, "too many incorrect attempts")
	default:
		return nil, domain.NewError(domain.CodeOTPInvalid, "the code is incorrect")
	}
}

// CompleteVerification moves a verified signup to ACTIVE and makes sure a
// profile is linked to it. Every step is idempotent so a retry after a partial
// failure converges on the same profile.
func (s *service) CompleteVerification(ctx context.Context, signupID string) (*domain.Profile, error) {
	rec, err := s.signups.Get(ctx, signupID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("load signup: %w", err))
	}
	if rec.Status != domain.StatusActive {
		if err := s.signups.Activate(ctx, signupID); err != nil {
			return nil, domain.Internal(fmt.Errorf("activate signup: %w", err))
		}
	}

	p, err := s.profiles.GetByInstitutionalID(ctx, rec.InstitutionalID)
	if errors.Is(err, domain.ErrNotFound) {
		now := s.now().UTC()
		p = &domain.Profile{
			ProfileID:       id.NewAt(now),
			SignupID:        rec.SignupID,
			InstitutionalID: rec.InstitutionalID,
			Email:           rec.Email,
			FullName:        rec.FullName,
			Level:           rec.Level,
			YearIntake:      rec.YearIntake,
			IsIndonesian:    rec.IsIndonesian,
			Program:         rec.Program,
			Major:           rec.Major,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = s.profiles.Put(ctx, p)
	}
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("ensure profile: %w", err))
	}

	if rec.LinkedProfileID == nil || *rec.LinkedProfileID != p.ProfileID {
		if err := s.signups.LinkProfile(ctx, signupID, p.ProfileID); err != nil {
			return nil, domain.Internal(fmt.Errorf("link profile: %w", err))
		}
	}
	s.logger.InfoContext(ctx, "signup verified", "signup_id", signupID, "profile_id", p.ProfileID)
	return p, nil
}

func (s *service) ResendOTP(ctx context.Context, req domain.ResendOTPRequest) (*domain.ResendResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Validation(err.Error())
	}
	signupID, err := s.tokens.ParseResume(req.ResumeToken)
	if err != nil {
		return nil, &domain.Error{Code: domain.CodeTokenInvalid, Err: err}
	}
	rec, err := s.signups.Get(ctx, signupID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Validation("signup is not awaiting verification")
	}
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("load signup: %w", err))
	}
	if rec.Status != domain.StatusPending {
		return nil, domain.Validation("signup is not awaiting verification")
	}

	st, err := s.otp.Resend(ctx, signupID, rec.Email)
	if errors.Is(err, domain.ErrNotFound) {
		// Pending row whose first code was never committed: start over.
		if err := s.otp.Issue(ctx, signupID, rec.Email); err != nil {
			return nil, domain.Internal(err)
		}
		cfg := s.otp.Config()
		st = otp.ResendStatus{
			Outcome:         otp.ResendOK,
			CooldownSeconds: int(cfg.ResendCooldown.Seconds()),
			RemainingToday:  cfg.DailyResendLimit,
		}
	} else if err != nil {
		return nil, domain.Internal(err)
	}

	switch st.Outcome {
	case otp.ResendOK:
		return &domain.ResendResult{CooldownSeconds: st.CooldownSeconds, RemainingToday: st.RemainingToday}, nil
	case otp.ResendCooldown:
		return nil, &domain.Error{
			Code:       domain.CodeOTPCooldown,
			Message:    fmt.Sprintf("wait %d seconds before requesting another code", st.CooldownSeconds),
			RetryAfter: st.CooldownSeconds,
		}
	case otp.ResendDailyLimit:
		return nil, domain.NewError(domain.CodeOTPResendLimit, "daily resend limit reached")
	case otp.ResendLocked:
		return nil, domain.NewError(domain.CodeOTPLocked, "too many incorrect attempts")
	default:
		return nil, domain.Internal(fmt.Errorf("unexpected resend outcome %v", st.Outcome))
	}
}

func fill(rec *domain.SignupRecord, req domain.RegisterRequest, passwordHash string, now time.Time) {
	rec.Email = req.Email
	rec.InstitutionalID = req.InstitutionalID
	rec.FullName = req.FullName
	rec.Level = req.Level
	rec.YearIntake = req.YearIntake
	rec.IsIndonesian = req.IsIndonesian != nil && *req.IsIndonesian
	rec.Program = req.Program
	rec.Major = req.Major
	rec.PasswordHash = passwordHash
	rec.Status = domain.StatusPending
	rec.OTPState = domain.OTPState{}
	rec.CreatedAt = now
	rec.UpdatedAt = now
}

func findStatus(rows []domain.SignupRecord, status domain.SignupStatus) *domain.SignupRecord {
	for i := range rows {
		if rows[i].Status == status {
			return &rows[i]
		}
	}
	return nil
}

func firstNonNil(recs ...*domain.SignupRecord) *domain.SignupRecord {
	for _, r := range recs {
		if r != nil {
			return r
		}
	}
	return nil
}
