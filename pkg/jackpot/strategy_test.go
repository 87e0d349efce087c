package jackpot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newTestJackpot(initial, current string) *Jackpot {
	j := NewJackpot("jp-1", "Test", d(initial), ContributionFixedRate, RewardFixed, time.Unix(0, 0))
	j.CurrentPool = d(current)
	return j
}

func TestFixedRateContribution(t *testing.T) {
	tests := []struct {
		name     string
		pool     string
		bet      string
		rate     string
		wantAmt  string
		wantPool string
	}{
		{name: "ten percent", pool: "500.00", bet: "100.00", rate: "0.10", wantAmt: "10.00", wantPool: "510.00"},
		{name: "rounds half up", pool: "0.00", bet: "0.05", rate: "0.10", wantAmt: "0.01", wantPool: "0.01"},
		{name: "rounds down below half", pool: "10.00", bet: "33.33", rate: "0.01", wantAmt: "0.33", wantPool: "10.33"},
		{name: "fractional rate", pool: "1000.00", bet: "33.33", rate: "0.015", wantAmt: "0.50", wantPool: "1000.50"},
		{name: "zero rate", pool: "1.00", bet: "50.00", rate: "0", wantAmt: "0.00", wantPool: "1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJackpot("0.00", tt.pool)
			j.ContributionRate = nd(tt.rate)

			res, err := FixedRateContribution{}.Contribute(j, d(tt.bet))
			if err != nil {
				t.Fatalf("Contribute() error = %v", err)
			}
			if !res.ContributionAmount.Equal(d(tt.wantAmt)) {
				t.Errorf("contribution = %s, want %s", res.ContributionAmount, tt.wantAmt)
			}
			if !res.UpdatedPool.Equal(d(tt.wantPool)) || !j.CurrentPool.Equal(d(tt.wantPool)) {
				t.Errorf("pool = %s (jackpot %s), want %s", res.UpdatedPool, j.CurrentPool, tt.wantPool)
			}
			if !res.UpdatedPool.Equal(d(tt.pool).Add(res.ContributionAmount)) {
				t.Errorf("updated pool %s != previous %s + contribution %s", res.UpdatedPool, tt.pool, res.ContributionAmount)
			}
			if res.Strategy != ContributionFixedRate {
				t.Errorf("strategy = %s", res.Strategy)
			}
		})
	}
}

func TestFixedRateContributionConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		rate decimal.NullDecimal
	}{
		{name: "unset", rate: decimal.NullDecimal{}},
		{name: "negative", rate: nd("-0.1")},
		{name: "above one", rate: nd("1.5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJackpot("100.00", "100.00")
			j.ContributionRate = tt.rate
			_, err := FixedRateContribution{}.Contribute(j, d("10.00"))
			if !errors.Is(err, errors.ErrConfigError) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !j.CurrentPool.Equal(d("100.00")) {
				t.Errorf("pool changed on error: %s", j.CurrentPool)
			}
		})
	}
}

func decayJackpot(pool string) *Jackpot {
	j := newTestJackpot("0.00", pool)
	j.ContributionStrategy = ContributionVariableDecay
	j.ContributionRate = nd("0.10")
	j.MinContributionRate = nd("0.02")
	j.DecaySlope = nd("0.08")
	j.DecayThreshold = nd("10000")
	return j
}

func TestVariableDecayEffectiveRate(t *testing.T) {
	tests := []struct {
		pool string
		want string
	}{
		{pool: "0", want: "0.10"},
		{pool: "2500", want: "0.08"},
		{pool: "5000", want: "0.06"},
		{pool: "10000", want: "0.02"},
		{pool: "25000", want: "0.02"},
	}
	for _, tt := range tests {
		t.Run(tt.pool, func(t *testing.T) {
			got, err := VariableDecayContribution{}.EffectiveRate(decayJackpot(tt.pool))
			if err != nil {
				t.Fatalf("EffectiveRate() error = %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("EffectiveRate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVariableDecayRateNonIncreasing(t *testing.T) {
	prev := decimal.NewFromInt(1)
	for pool := int64(0); pool <= 12000; pool += 250 {
		rate, err := VariableDecayContribution{}.EffectiveRate(decayJackpot(decimal.NewFromInt(pool).String()))
		if err != nil {
			t.Fatalf("pool %d: %v", pool, err)
		}
		if rate.GreaterThan(prev) {
			t.Fatalf("rate rose from %s to %s at pool %d", prev, rate, pool)
		}
		if pool >= 10000 && !rate.Equal(d("0.02")) {
			t.Fatalf("rate at pool %d = %s, want floor 0.02", pool, rate)
		}
		prev = rate
	}
}

func TestVariableDecayFloorAboveSlope(t *testing.T) {
	j := decayJackpot("10000")
	j.DecaySlope = nd("0.5")
	got, err := VariableDecayContribution{}.EffectiveRate(j)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(d("0.02")) {
		t.Errorf("expected floor 0.02, got %s", got)
	}
}

func TestVariableDecayContribute(t *testing.T) {
	j := decayJackpot("5000.00")
	res, err := VariableDecayContribution{}.Contribute(j, d("100.00"))
	if err != nil {
		t.Fatalf("Contribute() error = %v", err)
	}
	if !res.ContributionAmount.Equal(d("6.00")) {
		t.Errorf("contribution = %s, want 6.00", res.ContributionAmount)
	}
	if !res.UpdatedPool.Equal(d("5006.00")) {
		t.Errorf("pool = %s, want 5006.00", res.UpdatedPool)
	}
	if res.Strategy != ContributionVariableDecay {
		t.Errorf("strategy = %s", res.Strategy)
	}
}

func TestVariableDecayConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		apply func(j *Jackpot)
	}{
		{name: "missing rate", apply: func(j *Jackpot) { j.ContributionRate = decimal.NullDecimal{} }},
		{name: "missing min rate", apply: func(j *Jackpot) { j.MinContributionRate = decimal.NullDecimal{} }},
		{name: "missing slope", apply: func(j *Jackpot) { j.DecaySlope = decimal.NullDecimal{} }},
		{name: "missing threshold", apply: func(j *Jackpot) { j.DecayThreshold = decimal.NullDecimal{} }},
		{name: "zero threshold", apply: func(j *Jackpot) { j.DecayThreshold = nd("0") }},
		{name: "negative threshold", apply: func(j *Jackpot) { j.DecayThreshold = nd("-5") }},
		{name: "negative slope", apply: func(j *Jackpot) { j.DecaySlope = nd("-0.01") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := decayJackpot("100.00")
			tt.apply(j)
			if _, err := (VariableDecayContribution{}).Contribute(j, d("10")); !errors.Is(err, errors.ErrConfigError) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !j.CurrentPool.Equal(d("100.00")) {
				t.Errorf("pool changed on error: %s", j.CurrentPool)
			}
		})
	}
}

func TestFixedRewardWin(t *testing.T) {
	j := newTestJackpot("500.00", "1200.00")
	j.RewardBaseProbability = nd("1.000000")
	j.RewardCap = nd("1000.00")

	res, err := FixedReward{}.Evaluate(j, 0.999)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Win {
		t.Fatal("expected win")
	}
	if res.PayoutAmount.StringFixed(2) != "1000.00" {
		t.Errorf("payout = %s, want 1000.00", res.PayoutAmount)
	}
	if !res.UpdatedPool.Equal(j.InitialPool) || !j.CurrentPool.Equal(d("500.00")) {
		t.Errorf("pool = %s, want initial 500.00", j.CurrentPool)
	}
	if res.Probability.StringFixed(6) != "1.000000" {
		t.Errorf("probability = %s", res.Probability)
	}
}

func TestFixedRewardPaysPoolBelowCap(t *testing.T) {
	j := newTestJackpot("100.00", "750.55")
	j.RewardBaseProbability = nd("0.5")
	j.RewardCap = nd("1000.00")

	res, err := FixedReward{}.Evaluate(j, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Win || !res.PayoutAmount.Equal(d("750.55")) {
		t.Errorf("got win=%v payout=%s, want win 750.55", res.Win, res.PayoutAmount)
	}
	if !j.CurrentPool.Equal(d("100.00")) {
		t.Errorf("pool = %s, want 100.00", j.CurrentPool)
	}
}

func TestFixedRewardLoss(t *testing.T) {
	j := newTestJackpot("500.00", "800.00")
	j.RewardBaseProbability = nd("0.05")
	j.RewardCap = nd("1000.00")

	res, err := FixedReward{}.Evaluate(j, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if res.Win {
		t.Fatal("draw equal to probability must lose")
	}
	if !res.PayoutAmount.IsZero() {
		t.Errorf("payout = %s, want 0", res.PayoutAmount)
	}
	if !j.CurrentPool.Equal(d("800.00")) || !res.UpdatedPool.Equal(d("800.00")) {
		t.Errorf("pool changed on loss: %s", j.CurrentPool)
	}
}

func TestFixedRewardProbabilityIgnoresPool(t *testing.T) {
	for _, pool := range []string{"0", "500", "999999.99"} {
		j := newTestJackpot("0", pool)
		j.RewardBaseProbability = nd("0.0123456789")
		j.RewardCap = nd("1000")
		res, err := FixedReward{}.Evaluate(j, 0.99)
		if err != nil {
			t.Fatal(err)
		}
		if res.Probability.String() != "0.012346" {
			t.Errorf("pool %s: probability = %s, want 0.012346", pool, res.Probability)
		}
	}
}

func rampJackpot(pool string) *Jackpot {
	j := newTestJackpot("1000.00", pool)
	j.RewardStrategy = RewardVariableRamp
	j.RewardBaseProbability = nd("0.01")
	j.RewardMaxProbability = nd("1.00")
	j.RewardRampRate = nd("0.99")
	j.RewardCap = nd("10000.00")
	return j
}

func TestVariableRampReward(t *testing.T) {
	j := rampJackpot("9500.00")

	res, err := VariableRampReward{}.Evaluate(j, 0.5)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Probability.StringFixed(6) != "0.950500" {
		t.Errorf("probability = %s, want 0.950500", res.Probability.StringFixed(6))
	}
	if !res.Win {
		t.Fatal("expected win for draw 0.5")
	}
	if res.PayoutAmount.StringFixed(2) != "9500.00" {
		t.Errorf("payout = %s, want 9500.00", res.PayoutAmount)
	}
	if !j.CurrentPool.Equal(j.InitialPool) {
		t.Errorf("pool = %s, want reset to %s", j.CurrentPool, j.InitialPool)
	}
}

func TestVariableRampLoss(t *testing.T) {
	j := rampJackpot("9500.00")
	res, err := VariableRampReward{}.Evaluate(j, 0.96)
	if err != nil {
		t.Fatal(err)
	}
	if res.Win || !j.CurrentPool.Equal(d("9500.00")) {
		t.Errorf("unexpected win=%v pool=%s", res.Win, j.CurrentPool)
	}
}

func TestVariableRampProbabilityMonotonic(t *testing.T) {
	prev := decimal.Zero
	for pool := int64(0); pool <= 15000; pool += 500 {
		j := rampJackpot(decimal.NewFromInt(pool).String())
		j.RewardMaxProbability = nd("0.5")
		p, _, err := VariableRampReward{}.Probability(j)
		if err != nil {
			t.Fatal(err)
		}
		if p.LessThan(prev) {
			t.Fatalf("probability fell from %s to %s at pool %d", prev, p, pool)
		}
		if p.GreaterThan(d("0.5")) {
			t.Fatalf("probability %s exceeds max at pool %d", p, pool)
		}
		prev = p
	}
	if !prev.Equal(d("0.5")) {
		t.Errorf("expected probability to reach max, got %s", prev)
	}
}

func TestVariableRampConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		apply func(j *Jackpot)
	}{
		{name: "missing base", apply: func(j *Jackpot) { j.RewardBaseProbability = decimal.NullDecimal{} }},
		{name: "missing max", apply: func(j *Jackpot) { j.RewardMaxProbability = decimal.NullDecimal{} }},
		{name: "missing ramp", apply: func(j *Jackpot) { j.RewardRampRate = decimal.NullDecimal{} }},
		{name: "missing cap", apply: func(j *Jackpot) { j.RewardCap = decimal.NullDecimal{} }},
		{name: "zero cap", apply: func(j *Jackpot) { j.RewardCap = nd("0") }},
		{name: "negative cap", apply: func(j *Jackpot) { j.RewardCap = nd("-1") }},
		{name: "probability above one", apply: func(j *Jackpot) { j.RewardMaxProbability = nd("1.2") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := rampJackpot("5000.00")
			tt.apply(j)
			if _, err := (VariableRampReward{}).Evaluate(j, 0); !errors.Is(err, errors.ErrConfigError) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !j.CurrentPool.Equal(d("5000.00")) {
				t.Errorf("pool changed on error: %s", j.CurrentPool)
			}
		})
	}
}

func TestFixedRewardConfigErrors(t *testing.T) {
	j := newTestJackpot("1", "1")
	j.RewardCap = nd("100")
	if _, err := (FixedReward{}).Evaluate(j, 0); !errors.Is(err, errors.ErrConfigError) {
		t.Errorf("missing probability: expected config error, got %v", err)
	}
	j.RewardBaseProbability = nd("0.5")
	j.RewardCap = nd("0")
	if _, err := (FixedReward{}).Evaluate(j, 0); !errors.Is(err, errors.ErrConfigError) {
		t.Errorf("zero cap: expected config error, got %v", err)
	}
}

func TestWinAlwaysResetsToInitialPool(t *testing.T) {
	strategies := []RewardStrategy{FixedReward{}, VariableRampReward{}}
	for _, s := range strategies {
		t.Run(string(s.Type()), func(t *testing.T) {
			j := rampJackpot("123456.78")
			j.RewardBaseProbability = nd("1")
			res, err := s.Evaluate(j, 0.3)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Win {
				t.Fatal("expected win")
			}
			if !res.UpdatedPool.Equal(j.InitialPool) || !j.CurrentPool.Equal(j.InitialPool) {
				t.Errorf("pool = %s, want %s", j.CurrentPool, j.InitialPool)
			}
			if !res.PayoutAmount.Equal(d("10000.00")) {
				t.Errorf("payout = %s, want cap 10000.00", res.PayoutAmount)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, tag := range []ContributionStrategyType{ContributionFixedRate, ContributionVariableDecay} {
		s, err := r.Contribution(tag)
		if err != nil || s.Type() != tag {
			t.Errorf("Contribution(%s) = %v, %v", tag, s, err)
		}
	}
	for _, tag := range []RewardStrategyType{RewardFixed, RewardVariableRamp} {
		s, err := r.Reward(tag)
		if err != nil || s.Type() != tag {
			t.Errorf("Reward(%s) = %v, %v", tag, s, err)
		}
	}

	if _, err := r.Contribution("PROGRESSIVE"); !errors.Is(err, errors.ErrConfigError) {
		t.Errorf("expected config error for unknown contribution tag, got %v", err)
	}
	if _, err := r.Reward(""); !errors.Is(err, errors.ErrConfigError) {
		t.Errorf("expected config error for empty reward tag, got %v", err)
	}

	empty := NewRegistry(nil, nil)
	if _, err := empty.Reward(RewardFixed); !errors.Is(err, errors.ErrConfigError) {
		t.Errorf("expected config error from empty registry, got %v", err)
	}
}
