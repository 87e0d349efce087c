package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// ContributionApplier is the contribution engine as seen by the bet handler.
type ContributionApplier interface {
	ApplyContribution(ctx context.Context, betID, jackpotID string, betAmount decimal.Decimal) (*jackpot.ContributionResult, error)
}

// RemoteUpdateHandler receives pool updates produced by other instances.
type RemoteUpdateHandler interface {
	HandleRemote(u jackpot.Update)
}

// BetHandler applies consumed wagers to jackpot pools.
type BetHandler struct {
	applier    ContributionApplier
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewBetHandler creates a handler that retries retryable failures up to
// maxRetries times, waiting backoff between attempts.
func NewBetHandler(applier ContributionApplier, maxRetries int, backoff time.Duration, logger zerolog.Logger) *BetHandler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &BetHandler{
		applier:    applier,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logging.WithComponent(logger, "bet-handler"),
	}
}

// Handle decodes a bet event and applies its contribution. Malformed events
// and permanent failures are logged and skipped.
func (h *BetHandler) Handle(ctx context.Context, msg kafka.Message) error {
	log := logging.FromContext(ctx, h.logger)

	var bet BetEvent
	if err := json.Unmarshal(msg.Value, &bet); err != nil {
		log.Error().Err(err).Msg("Skipping undecodable bet event")
		return nil
	}
	if err := jackpot.ValidateStruct(bet); err != nil {
		log.Error().Err(err).Str("bet_id", bet.BetID).Msg("Skipping invalid bet event")
		return nil
	}

	log = logging.WithJackpotID(logging.WithBetID(log, bet.BetID), bet.JackpotID)

	var err error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := sleep(ctx, h.backoff); waitErr != nil {
				return waitErr
			}
			log.Warn().Int("attempt", attempt).Msg("Retrying contribution")
		}

		var result *jackpot.ContributionResult
		result, err = h.applier.ApplyContribution(ctx, bet.BetID, bet.JackpotID, bet.BetAmount)
		if err == nil {
			if result.Duplicate {
				log.Debug().Msg("Bet already contributed")
			}
			return nil
		}
		if !errors.IsRetryable(err) {
			break
		}
	}

	log.Error().Err(err).Int("code", errors.GetCode(err)).Msg("Contribution failed, skipping bet")
	return err
}

// NewPoolUpdateHandler returns a consumer handler feeding remote pool
// updates into target.
func NewPoolUpdateHandler(target RemoteUpdateHandler, logger zerolog.Logger) Handler {
	log := logging.WithComponent(logger, "pool-update-handler")
	return func(_ context.Context, msg kafka.Message) error {
		var event PoolUpdateEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable pool update")
			return nil
		}
		if event.JackpotID == "" {
			return nil
		}
		target.HandleRemote(event.Update())
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
