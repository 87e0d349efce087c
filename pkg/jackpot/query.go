package jackpot

import (
	"context"

	"github.com/Altmerian/jackpot/errors"
)

// DefaultRewardLimit caps reward history listings.
const DefaultRewardLimit = 50

// QueryService serves read-only lookups that do not take jackpot locks.
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// GetRequired returns the jackpot or an ErrNotFound error.
func (q *QueryService) GetRequired(ctx context.Context, id string) (*Jackpot, error) {
	j, err := q.store.GetJackpot(ctx, id)
	if err != nil {
		return nil, unitError(err, "get jackpot")
	}
	if j == nil {
		return nil, errors.Newf(errors.ErrNotFound, "jackpot %s not found", id)
	}
	return j, nil
}

// List returns every jackpot.
func (q *QueryService) List(ctx context.Context) ([]*Jackpot, error) {
	jackpots, err := q.store.ListJackpots(ctx)
	if err != nil {
		return nil, unitError(err, "list jackpots")
	}
	return jackpots, nil
}

// Rewards returns the newest rewards of an existing jackpot.
func (q *QueryService) Rewards(ctx context.Context, jackpotID string, limit int) ([]*RewardRecord, error) {
	if _, err := q.GetRequired(ctx, jackpotID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultRewardLimit {
		limit = DefaultRewardLimit
	}
	rewards, err := q.store.ListRewards(ctx, jackpotID, limit)
	if err != nil {
		return nil, unitError(err, "list rewards")
	}
	return rewards, nil
}
