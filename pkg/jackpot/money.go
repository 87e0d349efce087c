package jackpot

import (
	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimals kept for currency amounts.
	MoneyScale int32 = 2
	// ProbabilityScale is the number of decimals reported for probabilities.
	ProbabilityScale int32 = 6

	decayRatioScale int32 = 8
	rampRatioScale  int32 = 6
)

// RoundMoney rounds half away from zero to two decimals, which is HALF_UP
// for the non-negative amounts handled here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundProbability rounds to the six decimals reported in results and records.
func RoundProbability(d decimal.Decimal) decimal.Decimal {
	return d.Round(ProbabilityScale)
}

// cappedRatio returns min(value/limit, 1) rounded to scale decimals.
// limit must be positive.
func cappedRatio(value, limit decimal.Decimal, scale int32) decimal.Decimal {
	ratio := value.DivRound(limit, scale)
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return ratio
}
