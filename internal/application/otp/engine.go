// Package otp issues, verifies and throttles six-digit one-time codes.
//
// The engine is purpose-agnostic: each caller supplies a Store that knows
// where its challenge lives (the signup row, or the reset challenge table).
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/go-membership-api/internal/domain"
	"github.com/go-membership-api/internal/obs"
	"golang.org/x/crypto/bcrypt"
)

// Outcome is the result of a verification attempt.
type Outcome int

const (
	OK Outcome = iota
	Invalid
	Expired
	Locked
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Invalid:
		return "invalid"
	case Expired:
		return "expired"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// ResendOutcome is the result of a resend request, or of an eligibility check.
type ResendOutcome int

const (
	ResendOK ResendOutcome = iota
	ResendCooldown
	ResendDailyLimit
	ResendLocked
)

func (o ResendOutcome) String() string {
	switch o {
	case ResendOK:
		return "ok"
	case ResendCooldown:
		return "cooldown"
	case ResendDailyLimit:
		return "daily_limit"
	case ResendLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// ResendStatus reports the throttle state that goes with a ResendOutcome.
type ResendStatus struct {
	Outcome         ResendOutcome
	CooldownSeconds int
	RemainingToday  int
}

// Store persists the challenge of one purpose. Load returns domain.ErrNotFound
// when the owner has no outstanding code.
type Store interface {
	Load(ctx context.Context, ownerID string) (*domain.OTPState, error)
	Save(ctx context.Context, ownerID string, st domain.OTPState) error
	Clear(ctx context.Context, ownerID string) error
}

// Dispatch is one outbound code delivery.
type Dispatch struct {
	OwnerID   string
	Purpose   string
	Recipient string
	Code      string
	ExpiresAt time.Time
}

// Notifier delivers codes out of band.
type Notifier interface {
	SendOTP(ctx context.Context, d Dispatch) error
}

type Config struct {
	Purpose          string
	TTL              time.Duration
	MaxAttempts      int
	ResendCooldown   time.Duration
	DailyResendLimit int
	// Location decides where a calendar day starts for the daily resend cap.
	Location *time.Location
	HashCost int
}

type EngineDeps struct {
	Store    Store
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine is safe for concurrent use; it holds no mutable state of its own.
type Engine struct {
	cfg      Config
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(cfg Config, deps EngineDeps) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = 60 * time.Second
	}
	if cfg.DailyResendLimit <= 0 {
		cfg.DailyResendLimit = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	e := &Engine{cfg: cfg, store: deps.Store, notifier: deps.Notifier, logger: deps.Logger, now: deps.Now}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Generate draws a uniformly distributed six-digit code.
func (e *Engine) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue starts a fresh challenge for ownerID and sends the code to recipient.
// The challenge is committed before dispatch; a dispatch failure is logged and
// leaves a valid, resendable challenge behind.
func (e *Engine) Issue(ctx context.Context, ownerID, recipient string) error {
	now := e.now().UTC()
	code, st, err := e.fresh(now)
	if err != nil {
		return err
	}
	if err := e.store.Save(ctx, ownerID, st); err != nil {
		return fmt.Errorf("save %s challenge: %w", e.cfg.Purpose, err)
	}
	e.dispatch(ctx, ownerID, recipient, code, st.ExpiresAt)
	return nil
}

// Verify checks code against the owner's challenge.
//
// Expiry is checked before the lock, and the lock before the code. The attempt
// that reaches MaxAttempts arms the lock but still reports Invalid; Locked is
// only observed from the next call on.
func (e *Engine) Verify(ctx context.Context, ownerID, code string) (Outcome, error) {
	out, err := e.verify(ctx, ownerID, code)
	if err == nil {
		obs.OTPVerification(e.cfg.Purpose, out.String())
	}
	return out, err
}

func (e *Engine) verify(ctx context.Context, ownerID, code string) (Outcome, error) {
	st, err := e.store.Load(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return Invalid, nil
	}
	if err != nil {
		return Invalid, fmt.Errorf("load %s challenge: %w", e.cfg.Purpose, err)
	}
	if !st.Active() {
		return Invalid, nil
	}
	now := e.now().UTC()
	if now.After(st.ExpiresAt) {
		return Expired, nil
	}
	if st.LockedAt != nil {
		return Locked, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(st.OTPHash), []byte(code)) != nil {
		st.Attempts++
		if st.Attempts >= e.cfg.MaxAttempts {
			st.LockedAt = &now
		}
		if err := e.store.Save(ctx, ownerID, *st); err != nil {
			return Invalid, fmt.Errorf("record failed %s attempt: %w", e.cfg.Purpose, err)
		}
		return Invalid, nil
	}
	if err := e.store.Clear(ctx, ownerID); err != nil {
		return Invalid, fmt.Errorf("clear %s challenge: %w", e.cfg.Purpose, err)
	}
	return OK, nil
}

// Eligibility evaluates whether a resend would be allowed at now.
func (e *Engine) Eligibility(st domain.OTPState, now time.Time) ResendStatus {
	if st.LockedAt != nil {
		return ResendStatus{Outcome: ResendLocked}
	}
	if wait := st.LastSentAt.Add(e.cfg.ResendCooldown).Sub(now); wait > 0 {
		return ResendStatus{Outcome: ResendCooldown, CooldownSeconds: int(math.Ceil(wait.Seconds()))}
	}
	sent := e.sentToday(st, now)
	if sent >= e.cfg.DailyResendLimit {
		return ResendStatus{Outcome: ResendDailyLimit}
	}
	return ResendStatus{Outcome: ResendOK, RemainingToday: e.cfg.DailyResendLimit - sent}
}

// Resend replaces the owner's code when Eligibility allows it. Any other
// outcome leaves the challenge untouched. Returns domain.ErrNotFound when
// there is no challenge to resend.
func (e *Engine) Resend(ctx context.Context, ownerID, recipient string) (ResendStatus, error) {
	st, err := e.store.Load(ctx, ownerID)
	if err != nil {
		return ResendStatus{}, fmt.Errorf("load %s challenge: %w", e.cfg.Purpose, err)
	}
	now := e.now().UTC()
	status := e.Eligibility(*st, now)
	if status.Outcome != ResendOK {
		obs.OTPResend(e.cfg.Purpose, status.Outcome.String())
		return status, nil
	}

	count := e.sentToday(*st, now) + 1
	code, next, err := e.fresh(now)
	if err != nil {
		return ResendStatus{}, err
	}
	next.ResendCount = count
	if err := e.store.Save(ctx, ownerID, next); err != nil {
		return ResendStatus{}, fmt.Errorf("save %s challenge: %w", e.cfg.Purpose, err)
	}
	obs.OTPResend(e.cfg.Purpose, ResendOK.String())
	e.dispatch(ctx, ownerID, recipient, code, next.ExpiresAt)
	return ResendStatus{
		Outcome:         ResendOK,
		CooldownSeconds: int(e.cfg.ResendCooldown.Seconds()),
		RemainingToday:  e.cfg.DailyResendLimit - count,
	}, nil
}

// TTL is the lifetime of an issued code.
func (e *Engine) TTL() time.Duration { return e.cfg.TTL }

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config { return e.cfg }

// sentToday is the resend count that applies on now's calendar day.
func (e *Engine) sentToday(st domain.OTPState, now time.Time) int {
	if !sameDay(st.LastSentAt, now, e.cfg.Location) {
		return 0
	}
	return st.ResendCount
}

func (e *Engine) fresh(now time.Time) (string, domain.OTPState, error) {
	code, err := e.Generate()
	if err != nil {
		return "", domain.OTPState{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), e.cfg.HashCost)
	if err != nil {
		return "", domain.OTPState{}, fmt.Errorf("hash otp: %w", err)
	}
	return code, domain.OTPState{
		OTPHash:    string(hash),
		ExpiresAt:  now.Add(e.cfg.TTL),
		LastSentAt: now,
	}, nil
}

func (e *Engine) dispatch(ctx context.Context, ownerID, recipient, code string, expiresAt time.Time) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.SendOTP(ctx, Dispatch{
		OwnerID:   ownerID,
		Purpose:   e.cfg.Purpose,
		Recipient: recipient,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		obs.OTPDispatchFailure(e.cfg.Purpose)
		e.logger.WarnContext(ctx, "otp dispatch failed", "owner_id", ownerID, "purpose", e.cfg.Purpose, "err", err)
	}
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
