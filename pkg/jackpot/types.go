package jackpot

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStrategyType tags a contribution algorithm.
type ContributionStrategyType string

const (
	ContributionFixedRate     ContributionStrategyType = "FIXED_RATE"
	ContributionVariableDecay ContributionStrategyType = "VARIABLE_DECAY"
)

// RewardStrategyType tags a reward algorithm.
type RewardStrategyType string

const (
	RewardFixed        RewardStrategyType = "FIXED"
	RewardVariableRamp RewardStrategyType = "VARIABLE_RAMP"
)

// Jackpot is a named pool plus its accrual and payout configuration.
//
// Strategy parameters are optional at creation time; each strategy checks
// the ones it needs when it runs.
type Jackpot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	InitialPool decimal.Decimal `json:"initialPool"`
	CurrentPool decimal.Decimal `json:"currentPool"`

	ContributionStrategy ContributionStrategyType `json:"contributionStrategy"`
	RewardStrategy       RewardStrategyType       `json:"rewardStrategy"`

	ContributionRate    decimal.NullDecimal `json:"contributionRate"`
	MinContributionRate decimal.NullDecimal `json:"minContributionRate"`
	DecayThreshold      decimal.NullDecimal `json:"decayThreshold"`
	DecaySlope          decimal.NullDecimal `json:"decaySlope"`

	RewardBaseProbability decimal.NullDecimal `json:"rewardBaseProbability"`
	RewardMaxProbability  decimal.NullDecimal `json:"rewardMaxProbability"`
	RewardRampRate        decimal.NullDecimal `json:"rewardRampRate"`
	RewardCap             decimal.NullDecimal `json:"rewardCap"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewJackpot returns a jackpot whose current pool starts at the initial pool.
// Strategy parameters are set by the caller on the returned value.
func NewJackpot(id, name string, initialPool decimal.Decimal, contribution ContributionStrategyType, reward RewardStrategyType, now time.Time) *Jackpot {
	initial := RoundMoney(initialPool)
	return &Jackpot{
		ID:                   id,
		Name:                 name,
		InitialPool:          initial,
		CurrentPool:          initial,
		ContributionStrategy: contribution,
		RewardStrategy:       reward,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// IncreasePool adds delta to the current pool and returns the new value.
func (j *Jackpot) IncreasePool(delta decimal.Decimal) decimal.Decimal {
	j.CurrentPool = j.CurrentPool.Add(delta)
	return j.CurrentPool
}

// ResetPool starts a new cycle from the initial pool.
func (j *Jackpot) ResetPool() {
	j.CurrentPool = j.InitialPool
}

// Touch records a modification time.
func (j *Jackpot) Touch(now time.Time) {
	j.UpdatedAt = now
}

// Clone returns a copy that shares no mutable state with j.
func (j *Jackpot) Clone() *Jackpot {
	c := *j
	return &c
}

// ContributionRecord is the audit entry of one processed wager. The pair
// (BetID, JackpotID) is unique and anchors later evaluation.
type ContributionRecord struct {
	ID                   string                   `json:"id"`
	BetID                string                   `json:"betId"`
	JackpotID            string                   `json:"jackpotId"`
	BetAmount            decimal.Decimal          `json:"betAmount"`
	ContributionAmount   decimal.Decimal          `json:"contributionAmount"`
	PostContributionPool decimal.Decimal          `json:"postContributionPool"`
	EffectiveRate        decimal.Decimal          `json:"effectiveRate"`
	Strategy             ContributionStrategyType `json:"strategy"`
	CreatedAt            time.Time                `json:"createdAt"`
}

// NewContributionRecord builds the audit entry for a contribution result.
func NewContributionRecord(id, betID, jackpotID string, betAmount decimal.Decimal, result ContributionResult, now time.Time) *ContributionRecord {
	return &ContributionRecord{
		ID:                   id,
		BetID:                betID,
		JackpotID:            jackpotID,
		BetAmount:            betAmount,
		ContributionAmount:   result.ContributionAmount,
		PostContributionPool: result.UpdatedPool,
		EffectiveRate:        result.EffectiveRate,
		Strategy:             result.Strategy,
		CreatedAt:            now,
	}
}

// Result rebuilds the result of an applied contribution. Records stored
// without a rate get contribution / bet.
func (r *ContributionRecord) Result() ContributionResult {
	rate := r.EffectiveRate
	if rate.IsZero() && r.ContributionAmount.IsPositive() && r.BetAmount.IsPositive() {
		rate = r.ContributionAmount.DivRound(r.BetAmount, 6)
	}
	return ContributionResult{
		Strategy:           r.Strategy,
		ContributionAmount: r.ContributionAmount,
		UpdatedPool:        r.PostContributionPool,
		EffectiveRate:      rate,
	}
}

// RewardRecord is written only for winning evaluations.
type RewardRecord struct {
	ID           string             `json:"id"`
	BetID        string             `json:"betId"`
	JackpotID    string             `json:"jackpotId"`
	PayoutAmount decimal.Decimal    `json:"payoutAmount"`
	Probability  decimal.Decimal    `json:"probability"`
	Strategy     RewardStrategyType `json:"strategy"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// NewRewardRecord builds the audit entry for a winning result.
func NewRewardRecord(id, betID, jackpotID string, result RewardResult, now time.Time) *RewardRecord {
	return &RewardRecord{
		ID:           id,
		BetID:        betID,
		JackpotID:    jackpotID,
		PayoutAmount: result.PayoutAmount,
		Probability:  result.Probability,
		Strategy:     result.Strategy,
		CreatedAt:    now,
	}
}

// ContributionResult is returned to callers of ApplyContribution.
type ContributionResult struct {
	Strategy           ContributionStrategyType `json:"strategy"`
	ContributionAmount decimal.Decimal          `json:"contributionAmount"`
	UpdatedPool        decimal.Decimal          `json:"updatedPool"`
	EffectiveRate      decimal.Decimal          `json:"effectiveRate"`
	// Duplicate is set when the wager had already been applied; the values
	// then come from the stored record and nothing was changed.
	Duplicate bool `json:"duplicate"`
}

// RewardResult is returned to callers of Evaluate.
type RewardResult struct {
	Strategy     RewardStrategyType `json:"strategy"`
	Probability  decimal.Decimal    `json:"probability"`
	PayoutAmount decimal.Decimal    `json:"payoutAmount"`
	UpdatedPool  decimal.Decimal    `json:"updatedPool"`
	Win          bool               `json:"win"`
	Draw         float64            `json:"draw"`
	// Replayed is set when the bet had already won; the stored reward is
	// returned and no second payout happens.
	Replayed bool `json:"replayed"`
}

// Update is a pool value change pushed to listeners.
type Update struct {
	JackpotID string          `json:"jackpotId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason,omitempty"` // contribution, reward, refresh
	// Origin names the instance that produced the update.
	Origin string `json:"origin,omitempty"`
}

const (
	UpdateReasonContribution = "contribution"
	UpdateReasonReward       = "reward"
	UpdateReasonRefresh      = "refresh"
)
