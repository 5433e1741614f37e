package signup

import (
	"context"

	"github.com/go-membership-api/internal/domain"
)

// OTPRepo is the slice of the signup repository the challenge store needs.
type OTPRepo interface {
	Get(ctx context.Context, signupID string) (*domain.SignupRecord, error)
	SaveOTP(ctx context.Context, signupID string, st domain.OTPState) error
	ClearOTP(ctx context.Context, signupID string) error
}

// ChallengeStore keeps the signup code on the signup row itself. Only a
// pending row with an outstanding code has a challenge.
type ChallengeStore struct {
	repo OTPRepo
}

func NewChallengeStore(repo OTPRepo) *ChallengeStore {
	return &ChallengeStore{repo: repo}
}

func (c *ChallengeStore) Load(ctx context.Context, signupID string) (*domain.OTPState, error) {
	rec, err := c.repo.Get(ctx, signupID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusPending || !rec.OTPState.Active() {
		return nil, domain.ErrNotFound
	}
	st := rec.OTPState
	return &st, nil
}

func (c *ChallengeStore) Save(ctx context.Context, signupID string, st domain.OTPState) error {
	return c.repo.SaveOTP(ctx, signupID, st)
}

func (c *ChallengeStore) Clear(ctx context.Context, signupID string) error {
	return c.repo.ClearOTP(ctx, signupID)
}
