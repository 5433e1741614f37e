// Package reset runs the password-reset flow. Request, resend and cancel are
// enumeration safe: their response never depends on whether the email
// belongs to an account.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/domain"
	jwtinfra "github.com/go-membership-api/internal/infrastructure/jwt"
	"github.com/go-membership-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Request(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack
	Resend(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack
	Cancel(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack
	Verify(ctx context.Context, req domain.PasswordVerifyRequest) (*domain.ResetSession, error)
	Reset(ctx context.Context, req domain.PasswordResetRequest) (domain.Ack, error)
}

type accountStore interface {
	FindByEmail(ctx context.Context, email string) ([]domain.SignupRecord, error)
	Get(ctx context.Context, signupID string) (*domain.SignupRecord, error)
	UpdatePassword(ctx context.Context, signupID, passwordHash string) error
}

type profileStore interface {
	Get(ctx context.Context, profileID string) (*domain.Profile, error)
}

type sessionStore interface {
	RevokeByOwner(ctx context.Context, ownerID string) (int, error)
}

type challengeStore interface {
	Get(ctx context.Context, ownerID, purpose string) (*domain.ResetChallenge, error)
	Delete(ctx context.Context, ownerID, purpose string) error
}

type tokenIssuer interface {
	IssueResetSession(profileID string) (string, time.Duration, error)
	ParseResetSession(token string) (*jwtinfra.Claims, error)
}

// ledger records consumed reset-session token ids. Consume returns false when
// the id was already spent.
type ledger interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

type otpEngine interface {
	Issue(ctx context.Context, ownerID, recipient string) error
	Verify(ctx context.Context, ownerID, code string) (otp.Outcome, error)
	Resend(ctx context.Context, ownerID, recipient string) (otp.ResendStatus, error)
}

type service struct {
	accounts   accountStore
	profiles   profileStore
	sessions   sessionStore
	challenges challengeStore
	tokens     tokenIssuer
	ledger     ledger
	otp        otpEngine
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
}

type ServiceDeps struct {
	AccountRepo   accountStore
	ProfileRepo   profileStore
	SessionRepo   sessionStore
	ChallengeRepo challengeStore
	Tokens        tokenIssuer
	Ledger        ledger
	OTP           otpEngine
	Logger        *slog.Logger
	Now           func() time.Time
	BcryptCost    int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		accounts:   deps.AccountRepo,
		profiles:   deps.ProfileRepo,
		sessions:   deps.SessionRepo,
		challenges: deps.ChallengeRepo,
		tokens:     deps.Tokens,
		ledger:     deps.Ledger,
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

// Request sends a reset code when the email belongs to an active account and
// the throttle allows it. The first request issues; later ones resend.
func (s *service) Request(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return enumerationSafe(ctx, s.logger, "request", func(ctx context.Context) error {
		acct, err := s.findAccount(ctx, req.Email)
		if err != nil {
			return err
		}
		_, err = s.otp.Resend(ctx, *acct.LinkedProfileID, acct.Email)
		if errors.Is(err, domain.ErrNotFound) {
			return s.otp.Issue(ctx, *acct.LinkedProfileID, acct.Email)
		}
		return err
	})
}

// Resend only ever replaces an outstanding code.
func (s *service) Resend(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return enumerationSafe(ctx, s.logger, "resend", func(ctx context.Context) error {
		acct, err := s.findAccount(ctx, req.Email)
		if err != nil {
			return err
		}
		_, err = s.otp.Resend(ctx, *acct.LinkedProfileID, acct.Email)
		return err
	})
}

// Cancel drops an outstanding code. A locked challenge is kept so that
// cancelling cannot be used to start a fresh set of attempts.
func (s *service) Cancel(ctx context.Context, req domain.PasswordEmailRequest) domain.Ack {
	return enumerationSafe(ctx, s.logger, "cancel", func(ctx context.Context) error {
		acct, err := s.findAccount(ctx, req.Email)
		if err != nil {
			return err
		}
		owner := *acct.LinkedProfileID
		ch, err := s.challenges.Get(ctx, owner, domain.PurposeResetPassword)
		if err != nil {
			return err
		}
		if ch.LockedAt != nil {
			s.logger.InfoContext(ctx, "locked reset challenge kept on cancel", "profile_id", owner)
			return nil
		}
		return s.challenges.Delete(ctx, owner, domain.PurposeResetPassword)
	})
}

// Verify checks a reset code. An unknown email fails exactly like a wrong code.
func (s *service) Verify(ctx context.Context, req domain.PasswordVerifyRequest) (*domain.ResetSession, error) {
	req.Email = validate.Email(req.Email)
	if err := validate.Struct(&req); err != nil {
		return nil, domain.Validation(err.Error())
	}
	acct, err := s.findAccount(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.CodeOTPInvalid, "the code is incorrect")
	}
	if err != nil {
		return nil, domain.Internal(err)
	}

	profileID := *acct.LinkedProfileID
	out, err := s.otp.Verify(ctx, profileID, req.OTP)
	if err != nil {
		return nil, domain.Internal(err)
	}
	switch out {
	case otp.OK:
		tok, ttl, err := s.tokens.IssueResetSession(profileID)
		if err != nil {
			return nil, domain.Internal(err)
		}
		return &domain.ResetSession{ResetSessionToken: tok, ExpiresIn: int(ttl.Seconds())}, nil
	case otp.Expired:
		return nil, domain.NewError(domain.CodeOTPExpired, "the code has expired")
	case otp.Locked:
		return nil, domain.NewError(domain.CodeOTPLocked, "too many incorrect attempts")
	default:
		return nil, domain.NewError(domain.CodeOTPInvalid, "the code is incorrect")
	}
}

// Reset changes the password of the token's owner and revokes every session.
// A reset-session token is spent on first presentation, even if a later step fails.
func (s *service) Reset(ctx context.Context, req domain.PasswordResetRequest) (domain.Ack, error) {
	if err := validate.Struct(&req); err != nil {
		return domain.Ack{}, domain.Validation(err.Error())
	}
	claims, err := s.tokens.ParseResetSession(req.ResetSessionToken)
	if err != nil {
		return domain.Ack{}, &domain.Error{Code: domain.CodeResetSessionInvalid, Err: err}
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := s.ledger.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return domain.Ack{}, domain.Internal(fmt.Errorf("consume reset session: %w", err))
	}
	if !fresh {
		return domain.Ack{}, domain.NewError(domain.CodeResetSessionInvalid, "reset session already used")
	}

	profileID := claims.Subject
	p, err := s.profiles.Get(ctx, profileID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Ack{}, &domain.Error{Code: domain.CodeResetSessionInvalid, Err: err}
	}
	if err != nil {
		return domain.Ack{}, domain.Internal(fmt.Errorf("load profile: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return domain.Ack{}, domain.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.accounts.UpdatePassword(ctx, p.SignupID, string(hash)); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return domain.Ack{}, &domain.Error{Code: domain.CodeResetSessionInvalid, Err: err}
		}
		return domain.Ack{}, domain.Internal(fmt.Errorf("update password: %w", err))
	}

	n, err := s.sessions.RevokeByOwner(ctx, profileID)
	if err != nil {
		return domain.Ack{}, domain.Internal(fmt.Errorf("revoke sessions: %w", err))
	}
	s.logger.InfoContext(ctx, "password reset", "profile_id", profileID, "sessions_revoked", n)
	return domain.Ack{Success: true, Message: "Your password has been updated."}, nil
}

// findAccount resolves an email to the active account that owns a profile.
func (s *service) findAccount(ctx context.Context, email string) (*domain.SignupRecord, error) {
	rows, err := s.accounts.FindByEmail(ctx, validate.Email(email))
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	for i := range rows {
		if rows[i].Status == domain.StatusActive && rows[i].LinkedProfileID != nil {
			return &rows[i], nil
		}
	}
	return nil, fmt.Errorf("account: %w", domain.ErrNotFound)
}
