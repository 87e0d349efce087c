package jackpot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
)

// Profile is the seed configuration of one jackpot.
type Profile struct {
	ID                   string                   `mapstructure:"id" json:"id"`
	Name                 string                   `mapstructure:"name" json:"name"`
	InitialPool          decimal.Decimal          `mapstructure:"initial_pool" json:"initialPool"`
	ContributionStrategy ContributionStrategyType `mapstructure:"contribution_strategy" json:"contributionStrategy"`
	RewardStrategy       RewardStrategyType       `mapstructure:"reward_strategy" json:"rewardStrategy"`

	Contribution struct {
		Rate           decimal.NullDecimal `mapstructure:"rate" json:"rate"`
		MinRate        decimal.NullDecimal `mapstructure:"min_rate" json:"minRate"`
		DecayThreshold decimal.NullDecimal `mapstructure:"decay_threshold" json:"decayThreshold"`
		DecaySlope     decimal.NullDecimal `mapstructure:"decay_slope" json:"decaySlope"`
	} `mapstructure:"contribution" json:"contribution"`

	Reward struct {
		BaseProbability decimal.NullDecimal `mapstructure:"base_probability" json:"baseProbability"`
		MaxProbability  decimal.NullDecimal `mapstructure:"max_probability" json:"maxProbability"`
		RampRate        decimal.NullDecimal `mapstructure:"ramp_rate" json:"rampRate"`
		Cap             decimal.NullDecimal `mapstructure:"cap" json:"cap"`
	} `mapstructure:"reward" json:"reward"`
}

// Jackpot builds a fresh jackpot from the profile.
func (p Profile) Jackpot(now time.Time) *Jackpot {
	j := NewJackpot(p.ID, p.Name, p.InitialPool, p.ContributionStrategy, p.RewardStrategy, now)
	j.ContributionRate = p.Contribution.Rate
	j.MinContributionRate = p.Contribution.MinRate
	j.DecayThreshold = p.Contribution.DecayThreshold
	j.DecaySlope = p.Contribution.DecaySlope
	j.RewardBaseProbability = p.Reward.BaseProbability
	j.RewardMaxProbability = p.Reward.MaxProbability
	j.RewardRampRate = p.Reward.RampRate
	j.RewardCap = p.Reward.Cap
	return j
}

// Seeder creates configured jackpots that do not exist yet. Existing
// jackpots are never modified.
type Seeder struct {
	store    Store
	registry *Registry
	logger   zerolog.Logger
}

func NewSeeder(store Store, registry *Registry, logger zerolog.Logger) *Seeder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Seeder{
		store:    store,
		registry: registry,
		logger:   logger.With().Str("component", "seeder").Logger(),
	}
}

// Seed inserts the missing profiles and returns the number created.
func (s *Seeder) Seed(ctx context.Context, profiles []Profile) (int, error) {
	now := time.Now().UTC()
	created := 0
	for _, p := range profiles {
		if p.ID == "" {
			return created, errors.New(errors.ErrConfigError, "jackpot profile without id")
		}
		if p.InitialPool.IsNegative() {
			return created, errors.Newf(errors.ErrConfigError, "jackpot %s: initial pool must not be negative", p.ID)
		}
		if !lo.Contains(s.registry.ContributionTypes(), p.ContributionStrategy) {
			s.logger.Warn().Str("jackpot_id", p.ID).Str("strategy", string(p.ContributionStrategy)).Msg("unknown contribution strategy")
		}
		if !lo.Contains(s.registry.RewardTypes(), p.RewardStrategy) {
			s.logger.Warn().Str("jackpot_id", p.ID).Str("strategy", string(p.RewardStrategy)).Msg("unknown reward strategy")
		}

		inserted, err := s.store.CreateJackpotIfAbsent(ctx, p.Jackpot(now))
		if err != nil {
			return created, unitError(err, "seed jackpot "+p.ID)
		}
		if !inserted {
			s.logger.Debug().Str("jackpot_id", p.ID).Msg("jackpot exists, skipping")
			continue
		}
		created++
		s.logger.Info().
			Str("jackpot_id", p.ID).
			Str("initial_pool", p.InitialPool.StringFixed(MoneyScale)).
			Msg("jackpot seeded")
	}
	return created, nil
}
