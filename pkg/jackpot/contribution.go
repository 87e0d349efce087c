package jackpot

import (
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
)

// ContributionStrategy computes the share of a wager added to a pool.
// Contribute increases j.CurrentPool by the returned amount.
type ContributionStrategy interface {
	Type() ContributionStrategyType
	Contribute(j *Jackpot, betAmount decimal.Decimal) (ContributionResult, error)
}

// FixedRateContribution adds a constant share of every wager.
type FixedRateContribution struct{}

func (FixedRateContribution) Type() ContributionStrategyType { return ContributionFixedRate }

func (s FixedRateContribution) Contribute(j *Jackpot, betAmount decimal.Decimal) (ContributionResult, error) {
	rate, err := rateParam(j, "contributionRate", j.ContributionRate)
	if err != nil {
		return ContributionResult{}, err
	}
	return applyRate(j, s.Type(), betAmount, rate), nil
}

// VariableDecayContribution lowers the rate linearly as the pool approaches
// the decay threshold, never going below the minimum rate.
type VariableDecayContribution struct{}

func (VariableDecayContribution) Type() ContributionStrategyType { return ContributionVariableDecay }

func (s VariableDecayContribution) Contribute(j *Jackpot, betAmount decimal.Decimal) (ContributionResult, error) {
	rate, err := s.EffectiveRate(j)
	if err != nil {
		return ContributionResult{}, err
	}
	return applyRate(j, s.Type(), betAmount, rate), nil
}

// EffectiveRate returns max(rate - slope*min(pool/threshold, 1), minRate)
// for the jackpot's current pool.
func (VariableDecayContribution) EffectiveRate(j *Jackpot) (decimal.Decimal, error) {
	rate, err := rateParam(j, "contributionRate", j.ContributionRate)
	if err != nil {
		return decimal.Zero, err
	}
	minRate, err := rateParam(j, "minContributionRate", j.MinContributionRate)
	if err != nil {
		return decimal.Zero, err
	}
	slope, err := nonNegativeParam(j, "decaySlope", j.DecaySlope)
	if err != nil {
		return decimal.Zero, err
	}
	threshold, err := positiveParam(j, "decayThreshold", j.DecayThreshold)
	if err != nil {
		return decimal.Zero, err
	}

	ratio := cappedRatio(j.CurrentPool, threshold, decayRatioScale)
	return decimal.Max(rate.Sub(slope.Mul(ratio)), minRate), nil
}

func applyRate(j *Jackpot, strategy ContributionStrategyType, betAmount, rate decimal.Decimal) ContributionResult {
	amount := RoundMoney(betAmount.Mul(rate))
	return ContributionResult{
		Strategy:           strategy,
		ContributionAmount: amount,
		UpdatedPool:        j.IncreasePool(amount),
		EffectiveRate:      rate,
	}
}

func requireParam(j *Jackpot, name string, v decimal.NullDecimal) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, errors.Newf(errors.ErrConfigError, "jackpot %s: %s is not configured", j.ID, name)
	}
	return v.Decimal, nil
}

func positiveParam(j *Jackpot, name string, v decimal.NullDecimal) (decimal.Decimal, error) {
	d, err := requireParam(j, name, v)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrConfigError, "jackpot %s: %s must be positive, got %s", j.ID, name, d)
	}
	return d, nil
}

func nonNegativeParam(j *Jackpot, name string, v decimal.NullDecimal) (decimal.Decimal, error) {
	d, err := requireParam(j, name, v)
	if err != nil {
		return d, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Newf(errors.ErrConfigError, "jackpot %s: %s must not be negative, got %s", j.ID, name, d)
	}
	return d, nil
}

// rateParam accepts values in [0, 1]. Contribution rates and probabilities
// share the range.
func rateParam(j *Jackpot, name string, v decimal.NullDecimal) (decimal.Decimal, error) {
	d, err := nonNegativeParam(j, name, v)
	if err != nil {
		return d, err
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Newf(errors.ErrConfigError, "jackpot %s: %s must not exceed 1, got %s", j.ID, name, d)
	}
	return d, nil
}
