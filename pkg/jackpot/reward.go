package jackpot

import (
	"github.com/shopspring/decimal"
)

// RewardStrategy decides whether a draw wins and how much it pays.
// Evaluate resets j.CurrentPool to j.InitialPool when the draw wins.
type RewardStrategy interface {
	Type() RewardStrategyType
	Evaluate(j *Jackpot, draw float64) (RewardResult, error)
}

// FixedReward wins with a constant probability.
type FixedReward struct{}

func (FixedReward) Type() RewardStrategyType { return RewardFixed }

func (s FixedReward) Evaluate(j *Jackpot, draw float64) (RewardResult, error) {
	p, err := rateParam(j, "rewardBaseProbability", j.RewardBaseProbability)
	if err != nil {
		return RewardResult{}, err
	}
	limit, err := positiveParam(j, "rewardCap", j.RewardCap)
	if err != nil {
		return RewardResult{}, err
	}
	return settle(j, s.Type(), p, limit, draw), nil
}

// VariableRampReward raises the win probability as the pool approaches the cap.
type VariableRampReward struct{}

func (VariableRampReward) Type() RewardStrategyType { return RewardVariableRamp }

func (s VariableRampReward) Evaluate(j *Jackpot, draw float64) (RewardResult, error) {
	p, limit, err := s.Probability(j)
	if err != nil {
		return RewardResult{}, err
	}
	return settle(j, s.Type(), p, limit, draw), nil
}

// Probability returns min(base + ramp*min(pool/cap, 1), max) for the current
// pool, together with the validated cap.
func (VariableRampReward) Probability(j *Jackpot) (decimal.Decimal, decimal.Decimal, error) {
	base, err := rateParam(j, "rewardBaseProbability", j.RewardBaseProbability)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	maxP, err := rateParam(j, "rewardMaxProbability", j.RewardMaxProbability)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	ramp, err := nonNegativeParam(j, "rewardRampRate", j.RewardRampRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	limit, err := positiveParam(j, "rewardCap", j.RewardCap)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	ratio := cappedRatio(j.CurrentPool, limit, rampRatioScale)
	return decimal.Min(base.Add(ramp.Mul(ratio)), maxP), limit, nil
}

// settle compares the draw with probability p and applies a win to j.
func settle(j *Jackpot, strategy RewardStrategyType, p, limit decimal.Decimal, draw float64) RewardResult {
	result := RewardResult{
		Strategy:     strategy,
		Probability:  RoundProbability(p),
		PayoutAmount: RoundMoney(decimal.Zero),
		UpdatedPool:  j.CurrentPool,
		Draw:         draw,
	}
	if !decimal.NewFromFloat(draw).LessThan(p) {
		return result
	}

	result.Win = true
	result.PayoutAmount = RoundMoney(decimal.Min(j.CurrentPool, limit))
	j.ResetPool()
	result.UpdatedPool = j.CurrentPool
	return result
}
