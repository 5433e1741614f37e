package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-membership-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

type mapStore struct {
	mu   sync.Mutex
	rows map[string]domain.OTPState
	err  error
}

func newMapStore() *mapStore { return &mapStore{rows: map[string]domain.OTPState{}} }

func (s *mapStore) Load(_ context.Context, ownerID string) (*domain.OTPState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	st, ok := s.rows[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s *mapStore) Save(_ context.Context, ownerID string, st domain.OTPState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[ownerID] = st
	return nil
}

func (s *mapStore) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, ownerID)
	return nil
}

type captureNotifier struct {
	sent []Dispatch
	err  error
}

func (n *captureNotifier) SendOTP(_ context.Context, d Dispatch) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, d)
	return nil
}

func (n *captureNotifier) last() string { return n.sent[len(n.sent)-1].Code }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- builder ---

func newEngine(store Store, n Notifier, c *clock) *Engine {
	return NewEngine(Config{
		Purpose:          "TEST",
		TTL:              10 * time.Minute,
		MaxAttempts:      5,
		ResendCooldown:   60 * time.Second,
		DailyResendLimit: 5,
		Location:         time.UTC,
		HashCost:         bcrypt.MinCost,
	}, EngineDeps{Store: store, Notifier: n, Now: c.now})
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

// --- Generate ---

func TestGenerate_SixDigits(t *testing.T) {
	e := newEngine(newMapStore(), nil, &clock{t: time.Now()})
	for i := 0; i < 200; i++ {
		code, err := e.Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, code)
	}
}

// --- Issue ---

func TestIssue_StoresHashNotCode(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	e := newEngine(s, n, c)

	require.NoError(t, e.Issue(context.Background(), "o1", "a@b.com"))

	st := s.rows["o1"]
	require.Len(t, n.sent, 1)
	assert.NotEqual(t, n.last(), st.OTPHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(st.OTPHash), []byte(n.last())))
	assert.Equal(t, c.t.Add(10*time.Minute), st.ExpiresAt)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, 0, st.ResendCount)
	assert.Equal(t, c.t, st.LastSentAt)
	assert.Equal(t, "a@b.com", n.sent[0].Recipient)
}

func TestIssue_DispatchFailureKeepsChallenge(t *testing.T) {
	s, c := newMapStore(), &clock{t: time.Now()}
	e := newEngine(s, &captureNotifier{err: errors.New("smtp down")}, c)

	require.NoError(t, e.Issue(context.Background(), "o1", "a@b.com"))
	assert.True(t, s.rows["o1"].Active())
}

// --- Verify ---

func TestVerify_CorrectCodeClearsChallenge(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Now()}
	e := newEngine(s, n, c)
	ctx := context.Background()
	require.NoError(t, e.Issue(ctx, "o1", "a@b.com"))

	out, err := e.Verify(ctx, "o1", n.last())
	require.NoError(t, err)
	assert.Equal(t, OK, out)
	_, ok := s.rows["o1"]
	assert.False(t, ok)

	out, err = e.Verify(ctx, "o1", n.last())
	require.NoError(t, err)
	assert.Equal(t, Invalid, out, "a consumed code must not verify twice")
}

func TestVerify_NoChallengeIsInvalid(t *testing.T) {
	e := newEngine(newMapStore(), nil, &clock{t: time.Now()})
	out, err := e.Verify(context.Background(), "ghost", "123456")
	require.NoError(t, err)
	assert.Equal(t, Invalid, out)
}

func TestVerify_Expired(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Now()}
	e := newEngine(s, n, c)
	require.NoError(t, e.Issue(context.Background(), "o1", "a@b.com"))

	c.advance(10*time.Minute + time.Second)
	out, err := e.Verify(context.Background(), "o1", n.last())
	require.NoError(t, err)
	assert.Equal(t, Expired, out)
}

func TestVerify_LockArmsOnFifthButReportsInvalid(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Now()}
	e := newEngine(s, n, c)
	ctx := context.Background()
	require.NoError(t, e.Issue(ctx, "o1", "a@b.com"))
	bad := wrongCode(n.last())

	for i := 1; i <= 4; i++ {
		out, err := e.Verify(ctx, "o1", bad)
		require.NoError(t, err)
		assert.Equal(t, Invalid, out)
		assert.Equal(t, i, s.rows["o1"].Attempts)
		assert.Nil(t, s.rows["o1"].LockedAt)
	}

	out, err := e.Verify(ctx, "o1", bad)
	require.NoError(t, err)
	assert.Equal(t, Invalid, out)
	assert.Equal(t, 5, s.rows["o1"].Attempts)
	assert.NotNil(t, s.rows["o1"].LockedAt)

	out, err = e.Verify(ctx, "o1", n.last())
	require.NoError(t, err)
	assert.Equal(t, Locked, out, "lock takes precedence over a correct code")
}

func TestVerify_ExpiryCheckedBeforeLock(t *testing.T) {
	s, c := newMapStore(), &clock{t: time.Now()}
	locked := c.t
	s.rows["o1"] = domain.OTPState{OTPHash: "x", ExpiresAt: c.t.Add(-time.Second), LockedAt: &locked}
	e := newEngine(s, nil, c)

	out, err := e.Verify(context.Background(), "o1", "123456")
	require.NoError(t, err)
	assert.Equal(t, Expired, out)
}

func TestVerify_StoreErrorPropagates(t *testing.T) {
	s := newMapStore()
	s.err = errors.New("dynamo unavailable")
	e := newEngine(s, nil, &clock{t: time.Now()})
	_, err := e.Verify(context.Background(), "o1", "123456")
	assert.ErrorContains(t, err, "dynamo unavailable")
}

// --- Resend ---

func TestResend_CooldownSuppressesSecondSend(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	e := newEngine(s, n, c)
	ctx := context.Background()
	require.NoError(t, e.Issue(ctx, "o1", "a@b.com"))
	n.sent = nil

	c.advance(61 * time.Second)
	first, err := e.Resend(ctx, "o1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ResendOK, first.Outcome)
	assert.Equal(t, 4, first.RemainingToday)

	c.advance(10 * time.Second)
	second, err := e.Resend(ctx, "o1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ResendCooldown, second.Outcome)
	assert.Equal(t, 50, second.CooldownSeconds)

	assert.Len(t, n.sent, 1)
}

func TestResend_DailyCap(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	e := newEngine(s, n, c)
	ctx := context.Background()
	require.NoError(t, e.Issue(ctx, "o1", "a@b.com"))

	for i := 1; i <= 5; i++ {
		c.advance(2 * time.Minute)
		st, err := e.Resend(ctx, "o1", "a@b.com")
		require.NoError(t, err)
		require.Equal(t, ResendOK, st.Outcome, "resend %d", i)
		assert.Equal(t, i, s.rows["o1"].ResendCount)
	}

	c.advance(2 * time.Minute)
	st, err := e.Resend(ctx, "o1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ResendDailyLimit, st.Outcome)
	assert.Len(t, n.sent, 6)
}

func TestResend_NewDayResetsCountToOne(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)}
	s.rows["o1"] = domain.OTPState{OTPHash: "x", ExpiresAt: c.t, ResendCount: 5, LastSentAt: c.t}
	e := newEngine(s, n, c)

	c.advance(2 * time.Hour)
	st, err := e.Resend(context.Background(), "o1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ResendOK, st.Outcome)
	assert.Equal(t, 1, s.rows["o1"].ResendCount)
	assert.Equal(t, 0, s.rows["o1"].Attempts)
}

func TestResend_LockedIsRefused(t *testing.T) {
	s, n, c := newMapStore(), &captureNotifier{}, &clock{t: time.Now()}
	locked := c.t.Add(-time.Hour)
	s.rows["o1"] = domain.OTPState{OTPHash: "x", ExpiresAt: c.t, LastSentAt: c.t.Add(-time.Hour), LockedAt: &locked}
	e := newEngine(s, n, c)

	st, err := e.Resend(context.Background(), "o1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ResendLocked, st.Outcome)
	assert.Empty(t, n.sent)
	assert.Equal(t, "x", s.rows["o1"].OTPHash)
}

func TestResend_NoChallenge(t *testing.T) {
	e := newEngine(newMapStore(), nil, &clock{t: time.Now()})
	_, err := e.Resend(context.Background(), "ghost", "a@b.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSameDay_UsesLocation(t *testing.T) {
	syd, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	a := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC) // 23:00 Sydney
	b := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC) // 01:00 next day Sydney
	assert.True(t, sameDay(a, b, time.UTC))
	assert.False(t, sameDay(a, b, syd))
}
