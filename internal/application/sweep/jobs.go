// Package sweep holds the two housekeeping jobs over signup rows: expiring
// abandoned pending signups and purging long-expired ones. Both are
// idempotent; every state change re-checks its predicate in the store.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-membership-api/internal/domain"
	"github.com/go-membership-api/internal/obs"
)

const (
	JobExpire = "expire_stale_signups"
	JobPurge  = "purge_expired_accounts"
)

// Report summarises one job run.
type Report struct {
	Job    string    `json:"job"`
	Count  int       `json:"count"`
	IDs    []string  `json:"ids"`
	Cutoff time.Time `json:"cutoff"`
	RanAt  time.Time `json:"ranAt"`
}

type signupStore interface {
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error)
	ListExpiredUpdatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error)
	Expire(ctx context.Context, signupID string, cutoff, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, signupID string, cutoff time.Time) (bool, error)
}

type ownedStore interface {
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// Archive keeps a copy of each report. Optional.
type Archive interface {
	PutReport(ctx context.Context, r Report) error
}

type JobsDeps struct {
	SignupRepo       signupStore
	ChallengeRepo    ownedStore
	SessionRepo      ownedStore
	Archive          Archive
	Logger           *slog.Logger
	Now              func() time.Time
	PendingMaxAge    time.Duration
	ExpiredRetention time.Duration
}

type Jobs struct {
	signups          signupStore
	challenges       ownedStore
	sessions         ownedStore
	archive          Archive
	logger           *slog.Logger
	now              func() time.Time
	pendingMaxAge    time.Duration
	expiredRetention time.Duration
}

func NewJobs(deps JobsDeps) *Jobs {
	j := &Jobs{
		signups:          deps.SignupRepo,
		challenges:       deps.ChallengeRepo,
		sessions:         deps.SessionRepo,
		archive:          deps.Archive,
		logger:           deps.Logger,
		now:              deps.Now,
		pendingMaxAge:    deps.PendingMaxAge,
		expiredRetention: deps.ExpiredRetention,
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.pendingMaxAge <= 0 {
		j.pendingMaxAge = 7 * 24 * time.Hour
	}
	if j.expiredRetention <= 0 {
		j.expiredRetention = 15 * 24 * time.Hour
	}
	return j
}

// ExpireStaleSignups moves PENDING_VERIFICATION rows older than the pending
// max age to EXPIRED and drops their codes.
func (j *Jobs) ExpireStaleSignups(ctx context.Context) (*Report, error) {
	now := j.now().UTC()
	r := &Report{Job: JobExpire, Cutoff: now.Add(-j.pendingMaxAge), RanAt: now, IDs: []string{}}

	rows, err := j.signups.ListPendingCreatedBefore(ctx, r.Cutoff)
	if err != nil {
		return j.finish(ctx, r, fmt.Errorf("list stale signups: %w", err))
	}
	for _, rec := range rows {
		ok, err := j.signups.Expire(ctx, rec.SignupID, r.Cutoff, now)
		if err != nil {
			return j.finish(ctx, r, fmt.Errorf("expire signup %s: %w", rec.SignupID, err))
		}
		if ok {
			r.IDs = append(r.IDs, rec.SignupID)
		}
	}
	return j.finish(ctx, r, nil)
}

// PurgeExpiredAccounts hard-deletes EXPIRED rows untouched for the retention
// window, along with any challenges and sessions they own.
func (j *Jobs) PurgeExpiredAccounts(ctx context.Context) (*Report, error) {
	now := j.now().UTC()
	r := &Report{Job: JobPurge, Cutoff: now.Add(-j.expiredRetention), RanAt: now, IDs: []string{}}

	rows, err := j.signups.ListExpiredUpdatedBefore(ctx, r.Cutoff)
	if err != nil {
		return j.finish(ctx, r, fmt.Errorf("list expired signups: %w", err))
	}
	for _, rec := range rows {
		owners := []string{rec.SignupID}
		if rec.LinkedProfileID != nil {
			owners = append(owners, *rec.LinkedProfileID)
		}
		for _, owner := range owners {
			if err := j.challenges.DeleteByOwner(ctx, owner); err != nil {
				return j.finish(ctx, r, fmt.Errorf("delete challenges of %s: %w", owner, err))
			}
			if err := j.sessions.DeleteByOwner(ctx, owner); err != nil {
				return j.finish(ctx, r, fmt.Errorf("delete sessions of %s: %w", owner, err))
			}
		}
		ok, err := j.signups.DeleteExpired(ctx, rec.SignupID, r.Cutoff)
		if err != nil {
			return j.finish(ctx, r, fmt.Errorf("delete signup %s: %w", rec.SignupID, err))
		}
		if ok {
			r.IDs = append(r.IDs, rec.SignupID)
		}
	}
	return j.finish(ctx, r, nil)
}

// Run dispatches by job name.
func (j *Jobs) Run(ctx context.Context, job string) (*Report, error) {
	switch job {
	case JobExpire, "expire":
		return j.ExpireStaleSignups(ctx)
	case JobPurge, "purge":
		return j.PurgeExpiredAccounts(ctx)
	default:
		return nil, fmt.Errorf("unknown sweep job %q: %w", job, domain.ErrBadRequest)
	}
}

func (j *Jobs) finish(ctx context.Context, r *Report, err error) (*Report, error) {
	r.Count = len(r.IDs)
	obs.SweepRun(r.Job, r.Count, err)
	if err != nil {
		j.logger.ErrorContext(ctx, "sweep failed", "job", r.Job, "processed", r.Count, "err", err)
		return r, err
	}
	j.logger.InfoContext(ctx, "sweep finished", "job", r.Job, "count", r.Count, "cutoff", r.Cutoff)
	if j.archive != nil {
		if aerr := j.archive.PutReport(ctx, *r); aerr != nil {
			j.logger.WarnContext(ctx, "sweep report not archived", "job", r.Job, "err", aerr)
		}
	}
	return r, nil
}
