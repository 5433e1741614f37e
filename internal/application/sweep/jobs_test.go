package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-membership-api/internal/domain"
	"github.com/go-membership-api/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 20, 2, 0, 0, 0, time.UTC)

type mockArchive struct{ mock.Mock }

func (m *mockArchive) PutReport(ctx context.Context, r Report) error {
	return m.Called(ctx, r).Error(0)
}

func newJobs(store *memory.Store, archive Archive) *Jobs {
	return NewJobs(JobsDeps{
		SignupRepo:    store.Signups,
		ChallengeRepo: store.Challenges,
		SessionRepo:   store.Sessions,
		Archive:       archive,
		Now:           func() time.Time { return now },
	})
}

func row(id string, status domain.SignupStatus, created, updated time.Time) domain.SignupRecord {
	return domain.SignupRecord{
		SignupID:  id,
		Email:     id + "@example.com",
		Status:    status,
		OTPState:  domain.OTPState{OTPHash: "h", ExpiresAt: created.Add(10 * time.Minute)},
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func TestExpireStaleSignups(t *testing.T) {
	store := memory.New()
	day := 24 * time.Hour
	store.Signups.Put(row("old", domain.StatusPending, now.Add(-8*day), now.Add(-8*day)))
	store.Signups.Put(row("edge", domain.StatusPending, now.Add(-7*day), now.Add(-7*day)))
	store.Signups.Put(row("young", domain.StatusPending, now.Add(-6*day), now.Add(-6*day)))
	store.Signups.Put(row("active", domain.StatusActive, now.Add(-30*day), now.Add(-30*day)))

	jobs := newJobs(store, nil)
	r, err := jobs.ExpireStaleSignups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobExpire, r.Job)
	assert.Equal(t, []string{"old"}, r.IDs)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, now.Add(-7*day), r.Cutoff)

	rec, err := store.Signups.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, rec.Status)
	assert.False(t, rec.OTPState.Active())
	assert.Equal(t, now, rec.UpdatedAt)

	again, err := jobs.ExpireStaleSignups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Count)

	raw, err := json.Marshal(again)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ids":[]`)
}

func TestPurgeExpiredAccounts(t *testing.T) {
	store := memory.New()
	day := 24 * time.Hour
	store.Signups.Put(row("gone", domain.StatusExpired, now.Add(-40*day), now.Add(-16*day)))
	store.Signups.Put(row("recent", domain.StatusExpired, now.Add(-40*day), now.Add(-14*day)))
	store.Signups.Put(row("pending", domain.StatusPending, now.Add(-40*day), now.Add(-40*day)))

	linked := "profile-of-gone"
	gone, err := store.Signups.Get(context.Background(), "gone")
	require.NoError(t, err)
	gone.LinkedProfileID = &linked
	store.Signups.Put(*gone)

	ctx := context.Background()
	require.NoError(t, store.Challenges.Put(ctx, &domain.ResetChallenge{OwnerID: linked, Purpose: domain.PurposeResetPassword}))
	require.NoError(t, store.Sessions.Put(ctx, &domain.Session{SessionID: "s1", OwnerID: linked, Enable: true}))
	require.NoError(t, store.Sessions.Put(ctx, &domain.Session{SessionID: "s2", OwnerID: "someone-else", Enable: true}))

	jobs := newJobs(store, nil)
	r, err := jobs.PurgeExpiredAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, r.IDs)

	_, err = store.Signups.Get(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Signups.Get(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.Challenges.Get(ctx, linked, domain.PurposeResetPassword)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Sessions.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Sessions.Get(ctx, "s2")
	assert.NoError(t, err)

	again, err := jobs.PurgeExpiredAccounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Count)
	assert.NotNil(t, again.IDs)
}

func TestExpireThenPurgeTimeline(t *testing.T) {
	store := memory.New()
	clock := now
	jobs := NewJobs(JobsDeps{
		SignupRepo:    store.Signups,
		ChallengeRepo: store.Challenges,
		SessionRepo:   store.Sessions,
		Now:           func() time.Time { return clock },
	})
	store.Signups.Put(row("abandoned", domain.StatusPending, now, now))
	ctx := context.Background()

	clock = now.Add(8 * 24 * time.Hour)
	r, err := jobs.ExpireStaleSignups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count)

	clock = clock.Add(14 * 24 * time.Hour)
	r, err = jobs.PurgeExpiredAccounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Count, "retention counts from expiry, not creation")

	clock = clock.Add(2 * 24 * time.Hour)
	r, err = jobs.PurgeExpiredAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count)
}

func TestRun_DispatchesByName(t *testing.T) {
	jobs := newJobs(memory.New(), nil)
	for name, want := range map[string]string{
		"expire":  JobExpire,
		JobExpire: JobExpire,
		"purge":   JobPurge,
		JobPurge:  JobPurge,
	} {
		r, err := jobs.Run(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, want, r.Job)
	}

	_, err := jobs.Run(context.Background(), "vacuum")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestFinish_ArchivesReport(t *testing.T) {
	a := &mockArchive{}
	a.On("PutReport", mock.Anything, mock.MatchedBy(func(r Report) bool { return r.Job == JobExpire })).Return(nil)

	_, err := newJobs(memory.New(), a).ExpireStaleSignups(context.Background())
	require.NoError(t, err)
	a.AssertExpectations(t)
}

func TestFinish_ArchiveFailureDoesNotFailJob(t *testing.T) {
	a := &mockArchive{}
	a.On("PutReport", mock.Anything, mock.Anything).Return(errors.New("bucket gone"))

	_, err := newJobs(memory.New(), a).PurgeExpiredAccounts(context.Background())
	assert.NoError(t, err)
}
