package jackpot

import (
	"github.com/samber/lo"

	"github.com/Altmerian/jackpot/errors"
)

// Registry resolves strategy tags to implementations.
type Registry struct {
	contributions map[ContributionStrategyType]ContributionStrategy
	rewards       map[RewardStrategyType]RewardStrategy
}

// NewRegistry indexes the given strategies by their tag. A later entry with
// the same tag replaces an earlier one.
func NewRegistry(contributions []ContributionStrategy, rewards []RewardStrategy) *Registry {
	return &Registry{
		contributions: lo.KeyBy(contributions, func(s ContributionStrategy) ContributionStrategyType { return s.Type() }),
		rewards:       lo.KeyBy(rewards, func(s RewardStrategy) RewardStrategyType { return s.Type() }),
	}
}

// DefaultRegistry knows every built-in strategy.
func DefaultRegistry() *Registry {
	return NewRegistry(
		[]ContributionStrategy{FixedRateContribution{}, VariableDecayContribution{}},
		[]RewardStrategy{FixedReward{}, VariableRampReward{}},
	)
}

// Contribution returns the contribution strategy for t.
func (r *Registry) Contribution(t ContributionStrategyType) (ContributionStrategy, error) {
	s, ok := r.contributions[t]
	if !ok {
		return nil, errors.Newf(errors.ErrConfigError, "no contribution strategy registered for %q", t)
	}
	return s, nil
}

// Reward returns the reward strategy for t.
func (r *Registry) Reward(t RewardStrategyType) (RewardStrategy, error) {
	s, ok := r.rewards[t]
	if !ok {
		return nil, errors.Newf(errors.ErrConfigError, "no reward strategy registered for %q", t)
	}
	return s, nil
}

// ContributionTypes lists the registered contribution tags.
func (r *Registry) ContributionTypes() []ContributionStrategyType {
	return lo.Keys(r.contributions)
}

// RewardTypes lists the registered reward tags.
func (r *Registry) RewardTypes() []RewardStrategyType {
	return lo.Keys(r.rewards)
}
