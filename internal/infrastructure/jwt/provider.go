package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-membership-api/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A token is only accepted by the parser for its own purpose.
const (
	PurposeSignup       = "SIGNUP"
	PurposeResetSession = "RESET_SESSION"
)

// ErrInvalidToken covers bad signatures, expiry, wrong issuer/audience and wrong purpose.
var ErrInvalidToken = errors.New("invalid token")

// Claims holds the JWT payload fields.
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer mints and validates the short-lived HS256 tokens used during signup
// verification and password reset. It is stateless.
type Issuer struct {
	secret          []byte
	issuer          string
	audience        string
	resumeTTL       time.Duration
	resetSessionTTL time.Duration
	now             func() time.Time
}

func NewIssuer(cfg *config.Config) (*Issuer, error) {
	if len(cfg.TokenSecret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	return &Issuer{
		secret:          []byte(cfg.TokenSecret),
		issuer:          cfg.TokenIssuer,
		audience:        cfg.TokenAudience,
		resumeTTL:       cfg.ResumeTokenTTL,
		resetSessionTTL: cfg.ResetSessionTTL,
		now:             time.Now,
	}, nil
}

// WithClock returns a copy of i that reads time from now. Used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// IssueResume mints a resume token addressing one signup row.
func (i *Issuer) IssueResume(signupID string) (string, error) {
	return i.sign(signupID, PurposeSignup, i.resumeTTL)
}

// ParseResume returns the signup id carried by a resume token.
func (i *Issuer) ParseResume(token string) (string, error) {
	c, err := i.parse(token, PurposeSignup)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// IssueResetSession mints a reset-session token for a profile and returns its lifetime.
func (i *Issuer) IssueResetSession(profileID string) (string, time.Duration, error) {
	tok, err := i.sign(profileID, PurposeResetSession, i.resetSessionTTL)
	return tok, i.resetSessionTTL, err
}

// ParseResetSession validates a reset-session token and returns its claims.
func (i *Issuer) ParseResetSession(token string) (*Claims, error) {
	return i.parse(token, PurposeResetSession)
}

func (i *Issuer) sign(subject, purpose string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenStr, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q where %q expected", ErrInvalidToken, claims.Purpose, purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
