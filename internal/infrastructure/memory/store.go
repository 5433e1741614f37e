// Package memory is a process-local Credential Store with the same
// conditional semantics as the DynamoDB repos. It backs STORE_BACKEND=memory
// and the end-to-end tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-membership-api/internal/domain"
)

// Store bundles one repo per table.
type Store struct {
	Signups    *SignupRepo
	Profiles   *ProfileRepo
	Challenges *ChallengeRepo
	Sessions   *SessionRepo
	Ledger     *Ledger
}

func New() *Store {
	return &Store{
		Signups:    &SignupRepo{rows: map[string]domain.SignupRecord{}},
		Profiles:   &ProfileRepo{rows: map[string]domain.Profile{}},
		Challenges: &ChallengeRepo{rows: map[challengeKey]domain.ResetChallenge{}},
		Sessions:   &SessionRepo{rows: map[string]domain.Session{}},
		Ledger:     &Ledger{spent: map[string]time.Time{}, now: time.Now},
	}
}

// --- signups ---

type SignupRepo struct {
	mu   sync.Mutex
	rows map[string]domain.SignupRecord
}

func (r *SignupRepo) Create(_ context.Context, rec *domain.SignupRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[rec.SignupID]; ok {
		return fmt.Errorf("signup %s exists: %w", rec.SignupID, domain.ErrConflict)
	}
	r.rows[rec.SignupID] = clone(*rec)
	return nil
}

func (r *SignupRepo) Replace(_ context.Context, rec *domain.SignupRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[rec.SignupID]
	if !ok || cur.Status != domain.StatusExpired {
		return fmt.Errorf("signup %s no longer expired: %w", rec.SignupID, domain.ErrConflict)
	}
	r.rows[rec.SignupID] = clone(*rec)
	return nil
}

func (r *SignupRepo) Get(_ context.Context, signupID string) (*domain.SignupRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[signupID]
	if !ok {
		return nil, fmt.Errorf("signup not found: %w", domain.ErrNotFound)
	}
	rec = clone(rec)
	return &rec, nil
}

func (r *SignupRepo) FindByEmail(_ context.Context, email string) ([]domain.SignupRecord, error) {
	return r.filter(func(rec domain.SignupRecord) bool { return rec.Email == email }), nil
}

func (r *SignupRepo) FindByInstitutionalID(_ context.Context, institutionalID string) ([]domain.SignupRecord, error) {
	return r.filter(func(rec domain.SignupRecord) bool { return rec.InstitutionalID == institutionalID }), nil
}

func (r *SignupRepo) SaveOTP(_ context.Context, signupID string, st domain.OTPState) error {
	return r.mutate(signupID, domain.StatusPending, func(rec *domain.SignupRecord) {
		rec.OTPState = cloneOTP(st)
		rec.UpdatedAt = time.Now().UTC()
	})
}

func (r *SignupRepo) ClearOTP(_ context.Context, signupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[signupID]
	if !ok {
		return fmt.Errorf("signup not found: %w", domain.ErrNotFound)
	}
	rec.OTPState = domain.OTPState{}
	rec.UpdatedAt = time.Now().UTC()
	r.rows[signupID] = rec
	return nil
}

func (r *SignupRepo) Activate(_ context.Context, signupID string) error {
	return r.mutate(signupID, domain.StatusPending, func(rec *domain.SignupRecord) {
		rec.Status = domain.StatusActive
		rec.OTPState = domain.OTPState{}
		rec.UpdatedAt = time.Now().UTC()
	})
}

func (r *SignupRepo) LinkProfile(_ context.Context, signupID, profileID string) error {
	return r.mutate(signupID, domain.StatusActive, func(rec *domain.SignupRecord) {
		rec.LinkedProfileID = &profileID
		rec.UpdatedAt = time.Now().UTC()
	})
}

func (r *SignupRepo) UpdatePassword(_ context.Context, signupID, passwordHash string) error {
	return r.mutate(signupID, domain.StatusActive, func(rec *domain.SignupRecord) {
		rec.PasswordHash = passwordHash
		rec.UpdatedAt = time.Now().UTC()
	})
}

func (r *SignupRepo) ListPendingCreatedBefore(_ context.Context, cutoff time.Time) ([]domain.SignupRecord, error) {
	return r.filter(func(rec domain.SignupRecord) bool {
		return rec.Status == domain.StatusPending && rec.CreatedAt.Before(cutoff)
	}), nil
}

func (r *SignupRepo) ListExpiredUpdatedBefore(_ context.Context, cutoff time.Time) ([]domain.SignupRecord, error) {
	return r.filter(func(rec domain.SignupRecord) bool {
		return rec.Status == domain.StatusExpired && rec.UpdatedAt.Before(cutoff)
	}), nil
}

func (r *SignupRepo) Expire(_ context.Context, signupID string, cutoff, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[signupID]
	if !ok || rec.Status != domain.StatusPending || !rec.CreatedAt.Before(cutoff) {
		return false, nil
	}
	rec.Status = domain.StatusExpired
	rec.OTPState = domain.OTPState{}
	rec.UpdatedAt = at.UTC()
	r.rows[signupID] = rec
	return true, nil
}

func (r *SignupRepo) DeleteExpired(_ context.Context, signupID string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[signupID]
	if !ok || rec.Status != domain.StatusExpired || !rec.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	delete(r.rows, signupID)
	return true, nil
}

// Put writes rec unconditionally. Test seeding only.
func (r *SignupRepo) Put(rec domain.SignupRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.SignupID] = clone(rec)
}

func (r *SignupRepo) mutate(signupID string, want domain.SignupStatus, fn func(*domain.SignupRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[signupID]
	if !ok || rec.Status != want {
		return fmt.Errorf("signup %s is not %s: %w", signupID, want, domain.ErrConflict)
	}
	fn(&rec)
	r.rows[signupID] = rec
	return nil
}

func (r *SignupRepo) filter(keep func(domain.SignupRecord) bool) []domain.SignupRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SignupRecord
	for _, rec := range r.rows {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignupID < out[j].SignupID })
	return out
}

// --- profiles ---

type ProfileRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Profile
}

func (r *ProfileRepo) Put(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ProfileID] = *p
	return nil
}

func (r *ProfileRepo) Get(_ context.Context, profileID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[profileID]
	if !ok {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (r *ProfileRepo) GetByInstitutionalID(_ context.Context, institutionalID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.InstitutionalID == institutionalID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
}

// --- challenges ---

type challengeKey struct{ owner, purpose string }

type ChallengeRepo struct {
	mu   sync.Mutex
	rows map[challengeKey]domain.ResetChallenge
}

func (r *ChallengeRepo) Put(_ context.Context, c *domain.ResetChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.OTPState = cloneOTP(c.OTPState)
	r.rows[challengeKey{c.OwnerID, c.Purpose}] = cp
	return nil
}

func (r *ChallengeRepo) Get(_ context.Context, ownerID, purpose string) (*domain.ResetChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[challengeKey{ownerID, purpose}]
	if !ok {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	c.OTPState = cloneOTP(c.OTPState)
	return &c, nil
}

func (r *ChallengeRepo) Delete(_ context.Context, ownerID, purpose string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, challengeKey{ownerID, purpose})
	return nil
}

func (r *ChallengeRepo) DeleteByOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.rows {
		if k.owner == ownerID {
			delete(r.rows, k)
		}
	}
	return nil
}

// --- sessions ---

type SessionRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func (r *SessionRepo) Put(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.SessionID] = *s
	return nil
}

func (r *SessionRepo) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return &s, nil
}

func (r *SessionRepo) RevokeByOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.rows {
		if s.OwnerID == ownerID && s.Enable {
			s.Enable = false
			s.UpdatedAt = time.Now().UTC()
			r.rows[id] = s
			n++
		}
	}
	return n, nil
}

func (r *SessionRepo) DeleteByOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.rows {
		if s.OwnerID == ownerID {
			delete(r.rows, id)
		}
	}
	return nil
}

// --- ledger ---

// Ledger records spent token ids until they expire.
type Ledger struct {
	mu    sync.Mutex
	spent map[string]time.Time
	now   func() time.Time
}

func (l *Ledger) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.spent {
		if !now.Before(exp) {
			delete(l.spent, k)
		}
	}
	if _, ok := l.spent[jti]; ok {
		return false, nil
	}
	l.spent[jti] = now.Add(ttl)
	return true, nil
}

func clone(rec domain.SignupRecord) domain.SignupRecord {
	if rec.LinkedProfileID != nil {
		id := *rec.LinkedProfileID
		rec.LinkedProfileID = &id
	}
	rec.OTPState = cloneOTP(rec.OTPState)
	return rec
}

func cloneOTP(st domain.OTPState) domain.OTPState {
	if st.LockedAt != nil {
		t := *st.LockedAt
		st.LockedAt = &t
	}
	return st
}
