package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, code: errors.ErrLockTimeout},
		{name: "wrapped lock not available", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "55P03"}), code: errors.ErrLockTimeout},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, code: errors.ErrConflict},
		{name: "statement canceled", err: &pgconn.PgError{Code: "57014"}, code: errors.ErrServiceUnavailable},
		{name: "other pg error", err: &pgconn.PgError{Code: "42P01"}, code: errors.ErrStorageError},
		{name: "plain error", err: stderrors.New("connection reset"), code: errors.ErrStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			if !errors.Is(got, tt.code) {
				t.Errorf("mapError() = %v, want code %d", got, tt.code)
			}
		})
	}

	if mapError(nil, "op") != nil {
		t.Error("nil error should stay nil")
	}
	if got := mapError(context.Canceled, "op"); !stderrors.Is(got, context.Canceled) || errors.IsAppError(got) {
		t.Errorf("context errors should pass through, got %v", got)
	}
	if !errors.IsRetryable(mapError(&pgconn.PgError{Code: "55P03"}, "op")) {
		t.Error("lock timeout should be retryable")
	}
}

func TestJackpotModelConversion(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	j := jackpot.NewJackpot("jp", "Main", decimal.RequireFromString("500.00"), jackpot.ContributionVariableDecay, jackpot.RewardVariableRamp, now)
	j.ContributionRate = decimal.NewNullDecimal(decimal.RequireFromString("0.1"))
	j.RewardCap = decimal.NewNullDecimal(decimal.RequireFromString("10000"))

	m := jackpotFromDomain(j)
	if m.TableName() != "jackpot" || m.ContributionStrategy != "VARIABLE_DECAY" || m.MinContributionRate.Valid {
		t.Errorf("unexpected model %+v", m)
	}

	back := m.toDomain()
	if back.ID != j.ID || !back.CurrentPool.Equal(j.CurrentPool) || back.RewardStrategy != j.RewardStrategy ||
		!back.ContributionRate.Decimal.Equal(j.ContributionRate.Decimal) || back.DecaySlope.Valid || !back.CreatedAt.Equal(now) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestTableNames(t *testing.T) {
	if (Contribution{}).TableName() != "jackpot_contribution" || (Reward{}).TableName() != "jackpot_reward" {
		t.Error("unexpected table names")
	}
}

func TestContributionModelConversion(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &jackpot.ContributionRecord{
		ID:                   "c-1",
		BetID:                "bet-1",
		JackpotID:            "jp",
		BetAmount:            decimal.RequireFromString("100.00"),
		ContributionAmount:   decimal.RequireFromString("7.50"),
		PostContributionPool: decimal.RequireFromString("507.50"),
		EffectiveRate:        decimal.RequireFromString("0.075"),
		Strategy:             jackpot.ContributionVariableDecay,
		CreatedAt:            now,
	}

	m := contributionFromDomain(rec)
	if !m.EffectiveRate.Valid || !m.EffectiveRate.Decimal.Equal(rec.EffectiveRate) {
		t.Errorf("effective rate column = %+v", m.EffectiveRate)
	}
	if back := m.toDomain(); !back.EffectiveRate.Equal(rec.EffectiveRate) || back.Strategy != rec.Strategy {
		t.Errorf("round trip mismatch: %+v", back)
	}

	// rows written before the column existed
	m.EffectiveRate = decimal.NullDecimal{}
	if got := m.toDomain().Result().EffectiveRate; !got.Equal(decimal.RequireFromString("0.075")) {
		t.Errorf("derived effective rate = %s, want 0.075", got)
	}
}
