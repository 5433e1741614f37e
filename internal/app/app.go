// Package app wires configuration into the application services shared by
// the API server and the sweep CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-membership-api/internal/application/otp"
	"github.com/go-membership-api/internal/application/reset"
	"github.com/go-membership-api/internal/application/signup"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/domain"
	"github.com/go-membership-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-membership-api/internal/infrastructure/jwt"
	"github.com/go-membership-api/internal/infrastructure/memory"
	redisinfra "github.com/go-membership-api/internal/infrastructure/redis"
	s3infra "github.com/go-membership-api/internal/infrastructure/s3"
	"github.com/go-membership-api/internal/infrastructure/smtp"
	"github.com/go-membership-api/internal/infrastructure/sns"
	"github.com/go-membership-api/internal/transport/http/handler"
)

// SignupRepo is everything the services and jobs need from the signups table.
type SignupRepo interface {
	signup.OTPRepo
	FindByEmail(ctx context.Context, email string) ([]domain.SignupRecord, error)
	FindByInstitutionalID(ctx context.Context, institutionalID string) ([]domain.SignupRecord, error)
	Create(ctx context.Context, rec *domain.SignupRecord) error
	Replace(ctx context.Context, rec *domain.SignupRecord) error
	Activate(ctx context.Context, signupID string) error
	LinkProfile(ctx context.Context, signupID, profileID string) error
	UpdatePassword(ctx context.Context, signupID, passwordHash string) error
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error)
	ListExpiredUpdatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error)
	Expire(ctx context.Context, signupID string, cutoff, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, signupID string, cutoff time.Time) (bool, error)
}

type ProfileRepo interface {
	Put(ctx context.Context, p *domain.Profile) error
	Get(ctx context.Context, profileID string) (*domain.Profile, error)
	GetByInstitutionalID(ctx context.Context, institutionalID string) (*domain.Profile, error)
}

type ChallengeRepo interface {
	reset.ChallengeRepo
	DeleteByOwner(ctx context.Context, ownerID string) error
}

type SessionRepo interface {
	RevokeByOwner(ctx context.Context, ownerID string) (int, error)
	DeleteByOwner(ctx context.Context, ownerID string) error
}

type Ledger interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Stores is one Credential Store backend.
type Stores struct {
	Signups    SignupRepo
	Profiles   ProfileRepo
	Challenges ChallengeRepo
	Sessions   SessionRepo
	Ledger     Ledger
	Ready      []handler.Pinger
}

// App is the wired application.
type App struct {
	Signup signup.Service
	Reset  reset.Service
	Jobs   *sweep.Jobs
	Ready  []handler.Pinger

	closers []func() error
}

// New builds the stores selected by cfg and the services on top of them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}
	stores, err := a.openStores(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	var archive sweep.Archive
	if cfg.S3ReportBucket != "" {
		s3Client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		archive = s3infra.NewReportArchive(s3Client, cfg.S3ReportBucket)
	}
	if err := a.wire(cfg, logger, stores, notifier, archive); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStores wires services over caller-supplied stores. Tests use it with
// the memory backend.
func NewWithStores(cfg *config.Config, logger *slog.Logger, stores *Stores, notifier otp.Notifier, now func() time.Time) (*App, error) {
	a := &App{}
	if err := a.wireAt(cfg, logger, stores, notifier, nil, now); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases connections opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func (a *App) wire(cfg *config.Config, logger *slog.Logger, stores *Stores, notifier otp.Notifier, archive sweep.Archive) error {
	return a.wireAt(cfg, logger, stores, notifier, archive, time.Now)
}

func (a *App) wireAt(cfg *config.Config, logger *slog.Logger, stores *Stores, notifier otp.Notifier, archive sweep.Archive, now func() time.Time) error {
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	issuer, err := jwtinfra.NewIssuer(cfg)
	if err != nil {
		return err
	}
	issuer = issuer.WithClock(now)

	engineCfg := func(purpose string) otp.Config {
		return otp.Config{
			Purpose:          purpose,
			TTL:              cfg.OTP.TTL,
			MaxAttempts:      cfg.OTP.MaxAttempts,
			ResendCooldown:   cfg.OTP.ResendCooldown,
			DailyResendLimit: cfg.OTP.DailyResendLimit,
			Location:         loc,
			HashCost:         cfg.BcryptCost,
		}
	}
	signupOTP := otp.NewEngine(engineCfg(jwtinfra.PurposeSignup), otp.EngineDeps{
		Store:    signup.NewChallengeStore(stores.Signups),
		Notifier: notifier,
		Logger:   logger,
		Now:      now,
	})
	resetOTP := otp.NewEngine(engineCfg(domain.PurposeResetPassword), otp.EngineDeps{
		Store:    reset.NewChallengeStore(stores.Challenges),
		Notifier: notifier,
		Logger:   logger,
		Now:      now,
	})

	a.Signup = signup.NewService(signup.ServiceDeps{
		SignupRepo:  stores.Signups,
		ProfileRepo: stores.Profiles,
		Tokens:      issuer,
		OTP:         signupOTP,
		Logger:      logger,
		Now:         now,
		BcryptCost:  cfg.BcryptCost,
	})
	a.Reset = reset.NewService(reset.ServiceDeps{
		AccountRepo:   stores.Signups,
		ProfileRepo:   stores.Profiles,
		SessionRepo:   stores.Sessions,
		ChallengeRepo: stores.Challenges,
		Tokens:        issuer,
		Ledger:        stores.Ledger,
		OTP:           resetOTP,
		Logger:        logger,
		Now:           now,
		BcryptCost:    cfg.BcryptCost,
	})
	a.Jobs = sweep.NewJobs(sweep.JobsDeps{
		SignupRepo:       stores.Signups,
		ChallengeRepo:    stores.Challenges,
		SessionRepo:      stores.Sessions,
		Archive:          archive,
		Logger:           logger,
		Now:              now,
		PendingMaxAge:    cfg.PendingMaxAge,
		ExpiredRetention: cfg.ExpiredRetention,
	})
	a.Ready = stores.Ready
	return nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	var stores *Stores
	switch cfg.StoreBackend {
	case "memory":
		m := memory.New()
		stores = MemoryStores(m)
		logger.Warn("using in-process store; data is lost on restart")
	case "dynamo":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		signups := dynamo.NewSignupRepo(client, cfg.DynamoTables.Signups)
		stores = &Stores{
			Signups:    signups,
			Profiles:   dynamo.NewProfileRepo(client, cfg.DynamoTables.Profiles),
			Challenges: dynamo.NewChallengeRepo(client, cfg.DynamoTables.Challenges),
			Sessions:   dynamo.NewSessionRepo(client, cfg.DynamoTables.Sessions),
			Ledger:     memory.New().Ledger,
			Ready:      []handler.Pinger{signups},
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		l := redisinfra.NewLedger(rdb)
		stores.Ledger = l
		stores.Ready = append(stores.Ready, l)
	} else if cfg.StoreBackend == "dynamo" {
		logger.Warn("REDIS_ADDR not set; reset-session reuse is only tracked per process")
	}
	return stores, nil
}

// MemoryStores exposes a memory.Store as Stores.
func MemoryStores(m *memory.Store) *Stores {
	return &Stores{
		Signups:    m.Signups,
		Profiles:   m.Profiles,
		Challenges: m.Challenges,
		Sessions:   m.Sessions,
		Ledger:     m.Ledger,
	}
}

func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (otp.Notifier, error) {
	switch cfg.NotifierBackend {
	case "smtp":
		return smtp.NewMailer(cfg), nil
	case "sns":
		return sns.NewTopicNotifier(ctx, cfg)
	case "log":
		return otp.LogNotifier{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown NOTIFIER_BACKEND %q", cfg.NotifierBackend)
	}
}
