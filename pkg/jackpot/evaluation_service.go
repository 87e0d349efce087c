package jackpot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/errors"
)

// EvaluationService decides whether a contributed bet wins its jackpot.
type EvaluationService struct {
	store     Store
	registry  *Registry
	publisher Publisher
	logger    zerolog.Logger
	clock     func() time.Time
}

// NewEvaluationService creates an evaluation engine.
func NewEvaluationService(cfg EngineConfig) *EvaluationService {
	cfg = cfg.withDefaults()
	return &EvaluationService{
		store:     cfg.Store,
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("component", "evaluation").Logger(),
		clock:     cfg.Clock,
	}
}

// Evaluate draws for a bet that has contributed to the jackpot. The draw is
// a pure function of the identifiers, so repeated losing evaluations against
// an unchanged pool give the same answer.
//
// A bet wins at most once: when a reward already exists the recorded payout
// is returned with Replayed set and the pool is left as it is.
func (s *EvaluationService) Evaluate(ctx context.Context, betID, jackpotID string) (*RewardResult, error) {
	log := traced(ctx, s.logger)
	if err := ValidateStruct(EvaluationRequest{BetID: betID, JackpotID: jackpotID}); err != nil {
		return nil, err
	}

	contribution, err := s.store.FindContribution(ctx, betID, jackpotID)
	if err != nil {
		return nil, unitError(err, "find contribution")
	}
	if contribution == nil {
		return nil, errors.Newf(errors.ErrNotFound, "no contribution for bet %s on jackpot %s", betID, jackpotID)
	}

	var (
		result RewardResult
		now    time.Time
	)
	draw := Draw(betID, jackpotID)
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		j, err := tx.GetJackpotForUpdate(ctx, jackpotID)
		if err != nil {
			return err
		}
		if j == nil {
			return errors.Newf(errors.ErrNotFound, "jackpot %s not found", jackpotID)
		}

		prior, err := tx.FindReward(ctx, betID, jackpotID)
		if err != nil {
			return err
		}
		if prior != nil {
			result = RewardResult{
				Strategy:     prior.Strategy,
				Probability:  prior.Probability,
				PayoutAmount: prior.PayoutAmount,
				UpdatedPool:  j.CurrentPool,
				Win:          true,
				Draw:         draw,
				Replayed:     true,
			}
			return nil
		}

		strategy, err := s.registry.Reward(j.RewardStrategy)
		if err != nil {
			log.Error().Err(err).Str("jackpot_id", jackpotID).Msg("reward strategy not registered")
			return err
		}
		result, err = strategy.Evaluate(j, draw)
		if err != nil {
			return err
		}
		if !result.Win {
			return nil
		}

		now = s.clock()
		j.Touch(now)
		if err := tx.InsertReward(ctx, NewRewardRecord(uuid.NewString(), betID, jackpotID, result, now)); err != nil {
			return err
		}
		return tx.SaveJackpot(ctx, j)
	})
	if err != nil {
		return nil, unitError(err, "evaluate")
	}

	event := log.Debug()
	if result.Win {
		event = log.Info()
	}
	event.
		Str("bet_id", betID).
		Str("jackpot_id", jackpotID).
		Str("strategy", string(result.Strategy)).
		Float64("draw", draw).
		Str("probability", result.Probability.StringFixed(ProbabilityScale)).
		Bool("win", result.Win).
		Bool("replayed", result.Replayed).
		Str("payout", result.PayoutAmount.StringFixed(MoneyScale)).
		Msg("bet evaluated")

	if result.Win && !result.Replayed {
		s.publisher.Publish(Update{
			JackpotID: jackpotID,
			Amount:    result.UpdatedPool,
			Timestamp: now,
			Reason:    UpdateReasonReward,
		})
	}
	return &result, nil
}
