package reset

import (
	"context"

	"github.com/go-membership-api/internal/domain"
)

// ChallengeRepo is the persistence the reset challenge store sits on.
type ChallengeRepo interface {
	Put(ctx context.Context, c *domain.ResetChallenge) error
	Get(ctx context.Context, ownerID, purpose string) (*domain.ResetChallenge, error)
	Delete(ctx context.Context, ownerID, purpose string) error
}

// ChallengeStore adapts ChallengeRepo to otp.Store for the RESET_PASSWORD
// purpose. Rows carry a TTL a day past the code's expiry.
type ChallengeStore struct {
	repo ChallengeRepo
}

func NewChallengeStore(repo ChallengeRepo) *ChallengeStore {
	return &ChallengeStore{repo: repo}
}

func (c *ChallengeStore) Load(ctx context.Context, ownerID string) (*domain.OTPState, error) {
	ch, err := c.repo.Get(ctx, ownerID, domain.PurposeResetPassword)
	if err != nil {
		return nil, err
	}
	if !ch.OTPState.Active() {
		return nil, domain.ErrNotFound
	}
	st := ch.OTPState
	return &st, nil
}

func (c *ChallengeStore) Save(ctx context.Context, ownerID string, st domain.OTPState) error {
	return c.repo.Put(ctx, &domain.ResetChallenge{
		OwnerID:  ownerID,
		Purpose:  domain.PurposeResetPassword,
		OTPState: st,
		TTL:      st.ExpiresAt.Add(domain.ChallengeRetention).Unix(),
	})
}

func (c *ChallengeStore) Clear(ctx context.Context, ownerID string) error {
	return c.repo.Delete(ctx, ownerID, domain.PurposeResetPassword)
}
