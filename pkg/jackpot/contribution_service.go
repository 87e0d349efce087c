package jackpot

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
)

// EngineConfig carries the collaborators shared by the contribution and
// evaluation engines.
type EngineConfig struct {
	Store     Store
	Registry  *Registry
	Publisher Publisher
	Logger    zerolog.Logger
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Registry == nil {
		c.Registry = DefaultRegistry()
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// ContributionService applies wagers to jackpot pools.
type ContributionService struct {
	store     Store
	registry  *Registry
	publisher Publisher
	logger    zerolog.Logger
	clock     func() time.Time
}

// NewContributionService creates a contribution engine.
func NewContributionService(cfg EngineConfig) *ContributionService {
	cfg = cfg.withDefaults()
	return &ContributionService{
		store:     cfg.Store,
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("component", "contribution").Logger(),
		clock:     cfg.Clock,
	}
}

// ApplyContribution adds the contribution of one wager to the jackpot pool
// and records it. Locking the jackpot, the duplicate check, the pool update
// and the audit record form one unit of work.
//
// A wager that was already applied returns its recorded result with
// Duplicate set and leaves the pool untouched.
func (s *ContributionService) ApplyContribution(ctx context.Context, betID, jackpotID string, betAmount decimal.Decimal) (*ContributionResult, error) {
	log := traced(ctx, s.logger)
	if err := ValidateStruct(Wager{BetID: betID, JackpotID: jackpotID, BetAmount: betAmount}); err != nil {
		return nil, err
	}
	amount := RoundMoney(betAmount)
	if !amount.IsPositive() {
		return nil, NewValidationError("betAmount", "must be at least 0.01")
	}

	var (
		result ContributionResult
		now    time.Time
	)
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		j, err := tx.GetJackpotForUpdate(ctx, jackpotID)
		if err != nil {
			return err
		}
		if j == nil {
			return errors.Newf(errors.ErrNotFound, "jackpot %s not found", jackpotID)
		}

		existing, err := tx.FindContribution(ctx, betID, jackpotID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing.Result()
			result.Duplicate = true
			return nil
		}

		strategy, err := s.registry.Contribution(j.ContributionStrategy)
		if err != nil {
			log.Error().Err(err).Str("jackpot_id", jackpotID).Msg("contribution strategy not registered")
			return err
		}
		result, err = strategy.Contribute(j, amount)
		if err != nil {
			return err
		}

		now = s.clock()
		j.Touch(now)
		if err := tx.InsertContribution(ctx, NewContributionRecord(uuid.NewString(), betID, jackpotID, amount, result, now)); err != nil {
			return err
		}
		return tx.SaveJackpot(ctx, j)
	})
	if err != nil {
		return nil, unitError(err, "apply contribution")
	}

	if result.Duplicate {
		log.Info().
			Str("bet_id", betID).
			Str("jackpot_id", jackpotID).
			Msg("duplicate wager ignored")
		return &result, nil
	}

	log.Info().
		Str("bet_id", betID).
		Str("jackpot_id", jackpotID).
		Str("strategy", string(result.Strategy)).
		Str("bet_amount", amount.StringFixed(MoneyScale)).
		Str("effective_rate", result.EffectiveRate.String()).
		Str("contribution", result.ContributionAmount.StringFixed(MoneyScale)).
		Str("pool", result.UpdatedPool.StringFixed(MoneyScale)).
		Msg("contribution applied")

	s.publisher.Publish(Update{
		JackpotID: jackpotID,
		Amount:    result.UpdatedPool,
		Timestamp: now,
		Reason:    UpdateReasonContribution,
	})
	return &result, nil
}

// unitError keeps AppErrors as they are and classifies anything else as a
// storage failure.
func unitError(err error, op string) error {
	if errors.IsAppError(err) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Wrap(err, errors.ErrStorageError, op+" failed")
}

// traced adds the trace id carried by ctx to logger.
func traced(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		return logging.WithTraceID(logger, traceID)
	}
	return logger
}
