package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// Jackpot is the jackpot row.
type Jackpot struct {
	JackpotID            string          `gorm:"column:jackpot_id;primaryKey;type:varchar(64)"`
	Name                 string          `gorm:"column:name;type:varchar(255);not null"`
	InitialPool          decimal.Decimal `gorm:"column:initial_pool;type:numeric(19,2);not null"`
	CurrentPool          decimal.Decimal `gorm:"column:current_pool;type:numeric(19,2);not null"`
	ContributionStrategy string          `gorm:"column:contribution_strategy;type:varchar(32);not null"`
	RewardStrategy       string          `gorm:"column:reward_strategy;type:varchar(32);not null"`

	ContributionRate    decimal.NullDecimal `gorm:"column:contribution_rate;type:numeric(10,6)"`
	MinContributionRate decimal.NullDecimal `gorm:"column:min_contribution_rate;type:numeric(10,6)"`
	DecayThreshold      decimal.NullDecimal `gorm:"column:decay_threshold;type:numeric(19,2)"`
	DecaySlope          decimal.NullDecimal `gorm:"column:decay_slope;type:numeric(10,6)"`

	RewardBaseProbability decimal.NullDecimal `gorm:"column:reward_base_probability;type:numeric(10,6)"`
	RewardMaxProbability  decimal.NullDecimal `gorm:"column:reward_max_probability;type:numeric(10,6)"`
	RewardRampRate        decimal.NullDecimal `gorm:"column:reward_ramp_rate;type:numeric(10,6)"`
	RewardCap             decimal.NullDecimal `gorm:"column:reward_cap;type:numeric(19,2)"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Jackpot) TableName() string { return "jackpot" }

// Contribution is the jackpot_contribution row.
type Contribution struct {
	ContributionID       string          `gorm:"column:contribution_id;primaryKey;type:uuid"`
	BetID                string          `gorm:"column:bet_id;type:varchar(64);not null;uniqueIndex:ux_contribution_bet_jackpot,priority:1"`
	JackpotID            string          `gorm:"column:jackpot_id;type:varchar(64);not null;uniqueIndex:ux_contribution_bet_jackpot,priority:2"`
	BetAmount            decimal.Decimal `gorm:"column:bet_amount;type:numeric(19,2);not null"`
	ContributionAmount   decimal.Decimal `gorm:"column:contribution_amount;type:numeric(19,2);not null"`
	PostContributionPool decimal.Decimal `gorm:"column:post_contribution_pool;type:numeric(19,2);not null"`
	// EffectiveRate is null on rows written before the column existed.
	EffectiveRate decimal.NullDecimal `gorm:"column:effective_rate;type:numeric"`
	Strategy      string              `gorm:"column:strategy;type:varchar(32);not null"`
	CreatedAt            time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (Contribution) TableName() string { return "jackpot_contribution" }

// Reward is the jackpot_reward row.
type Reward struct {
	RewardID     string          `gorm:"column:reward_id;primaryKey;type:uuid"`
	BetID        string          `gorm:"column:bet_id;type:varchar(64);not null;uniqueIndex:ux_reward_bet_jackpot,priority:1"`
	JackpotID    string          `gorm:"column:jackpot_id;type:varchar(64);not null;uniqueIndex:ux_reward_bet_jackpot,priority:2;index:ix_reward_jackpot_created,priority:1"`
	PayoutAmount decimal.Decimal `gorm:"column:payout_amount;type:numeric(19,2);not null"`
	Probability  decimal.Decimal `gorm:"column:probability;type:numeric(10,6);not null"`
	Strategy     string          `gorm:"column:strategy;type:varchar(32);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null;autoCreateTime:false;index:ix_reward_jackpot_created,priority:2"`
}

func (Reward) TableName() string { return "jackpot_reward" }

func jackpotFromDomain(j *jackpot.Jackpot) *Jackpot {
	return &Jackpot{
		JackpotID:             j.ID,
		Name:                  j.Name,
		InitialPool:           j.InitialPool,
		CurrentPool:           j.CurrentPool,
		ContributionStrategy:  string(j.ContributionStrategy),
		RewardStrategy:        string(j.RewardStrategy),
		ContributionRate:      j.ContributionRate,
		MinContributionRate:   j.MinContributionRate,
		DecayThreshold:        j.DecayThreshold,
		DecaySlope:            j.DecaySlope,
		RewardBaseProbability: j.RewardBaseProbability,
		RewardMaxProbability:  j.RewardMaxProbability,
		RewardRampRate:        j.RewardRampRate,
		RewardCap:             j.RewardCap,
		CreatedAt:             j.CreatedAt,
		UpdatedAt:             j.UpdatedAt,
	}
}

func (m *Jackpot) toDomain() *jackpot.Jackpot {
	return &jackpot.Jackpot{
		ID:                    m.JackpotID,
		Name:                  m.Name,
		InitialPool:           m.InitialPool,
		CurrentPool:           m.CurrentPool,
		ContributionStrategy:  jackpot.ContributionStrategyType(m.ContributionStrategy),
		RewardStrategy:        jackpot.RewardStrategyType(m.RewardStrategy),
		ContributionRate:      m.ContributionRate,
		MinContributionRate:   m.MinContributionRate,
		DecayThreshold:        m.DecayThreshold,
		DecaySlope:            m.DecaySlope,
		RewardBaseProbability: m.RewardBaseProbability,
		RewardMaxProbability:  m.RewardMaxProbability,
		RewardRampRate:        m.RewardRampRate,
		RewardCap:             m.RewardCap,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func contributionFromDomain(r *jackpot.ContributionRecord) *Contribution {
	return &Contribution{
		ContributionID:       r.ID,
		BetID:                r.BetID,
		JackpotID:            r.JackpotID,
		BetAmount:            r.BetAmount,
		ContributionAmount:   r.ContributionAmount,
		PostContributionPool: r.PostContributionPool,
		EffectiveRate:        decimal.NullDecimal{Decimal: r.EffectiveRate, Valid: true},
		Strategy:             string(r.Strategy),
		CreatedAt:            r.CreatedAt,
	}
}

func (m *Contribution) toDomain() *jackpot.ContributionRecord {
	return &jackpot.ContributionRecord{
		ID:                   m.ContributionID,
		BetID:                m.BetID,
		JackpotID:            m.JackpotID,
		BetAmount:            m.BetAmount,
		ContributionAmount:   m.ContributionAmount,
		PostContributionPool: m.PostContributionPool,
		EffectiveRate:        m.EffectiveRate.Decimal,
		Strategy:             jackpot.ContributionStrategyType(m.Strategy),
		CreatedAt:            m.CreatedAt,
	}
}

func rewardFromDomain(r *jackpot.RewardRecord) *Reward {
	return &Reward{
		RewardID:     r.ID,
		BetID:        r.BetID,
		JackpotID:    r.JackpotID,
		PayoutAmount: r.PayoutAmount,
		Probability:  r.Probability,
		Strategy:     string(r.Strategy),
		CreatedAt:    r.CreatedAt,
	}
}

func (m *Reward) toDomain() *jackpot.RewardRecord {
	return &jackpot.RewardRecord{
		ID:           m.RewardID,
		BetID:        m.BetID,
		JackpotID:    m.JackpotID,
		PayoutAmount: m.PayoutAmount,
		Probability:  m.Probability,
		Strategy:     jackpot.RewardStrategyType(m.Strategy),
		CreatedAt:    m.CreatedAt,
	}
}
