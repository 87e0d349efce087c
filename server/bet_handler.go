package server

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/auth"
	"github.com/Altmerian/jackpot/events/kafka"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// BetRequest is the body of POST /api/bets.
type BetRequest struct {
	BetID     string          `json:"betId" validate:"required"`
	UserID    string          `json:"userId" validate:"required"`
	JackpotID string          `json:"jackpotId" validate:"required"`
	BetAmount decimal.Decimal `json:"betAmount" validate:"gt=0"`
}

// BetResponse acknowledges an accepted bet.
type BetResponse struct {
	BetID string `json:"betId"`
}

// ContributionRequest is the body of POST /api/contributions.
type ContributionRequest struct {
	BetID     string          `json:"betId" validate:"required"`
	JackpotID string          `json:"jackpotId" validate:"required"`
	BetAmount decimal.Decimal `json:"betAmount" validate:"gt=0"`
}

// ContributionResponse reports an applied contribution.
type ContributionResponse struct {
	BetID              string                           `json:"betId"`
	JackpotID          string                           `json:"jackpotId"`
	Strategy           jackpot.ContributionStrategyType `json:"strategy"`
	ContributionAmount json.Number                      `json:"contributionAmount"`
	CurrentJackpotPool json.Number                      `json:"currentJackpotPool"`
	EffectiveRate      json.Number                      `json:"effectiveRate"`
	Duplicate          bool                             `json:"duplicate"`
}

// BetPublisher hands an accepted bet over for contribution.
type BetPublisher interface {
	PublishBet(ctx context.Context, bet kafka.BetEvent) error
}

// KafkaBetPublisher publishes bets to the bets topic.
type KafkaBetPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaBetPublisher creates a publisher writing to topic.
func NewKafkaBetPublisher(producer *kafka.Producer, topic string) *KafkaBetPublisher {
	return &KafkaBetPublisher{producer: producer, topic: topic}
}

// PublishBet implements BetPublisher.
func (p *KafkaBetPublisher) PublishBet(ctx context.Context, bet kafka.BetEvent) error {
	return p.producer.PublishBet(ctx, p.topic, bet)
}

// DirectBetPublisher applies bets in the request when no broker is configured.
type DirectBetPublisher struct {
	contributions kafka.ContributionApplier
}

// NewDirectBetPublisher creates a publisher that contributes synchronously.
func NewDirectBetPublisher(contributions kafka.ContributionApplier) *DirectBetPublisher {
	return &DirectBetPublisher{contributions: contributions}
}

// PublishBet implements BetPublisher.
func (p *DirectBetPublisher) PublishBet(ctx context.Context, bet kafka.BetEvent) error {
	_, err := p.contributions.ApplyContribution(ctx, bet.BetID, bet.JackpotID, bet.BetAmount)
	return err
}

// BetHandler serves bet intake and direct contributions.
type BetHandler struct {
	publisher     BetPublisher
	contributions *jackpot.ContributionService
	query         *jackpot.QueryService
	logger        zerolog.Logger
}

// NewBetHandler creates a bet handler.
func NewBetHandler(publisher BetPublisher, contributions *jackpot.ContributionService, query *jackpot.QueryService, logger zerolog.Logger) *BetHandler {
	return &BetHandler{
		publisher:     publisher,
		contributions: contributions,
		query:         query,
		logger:        logger.With().Str("handler", "bet").Logger(),
	}
}

// PublishBet accepts a wager for asynchronous contribution.
// Route: POST /api/bets
func (h *BetHandler) PublishBet(c *gin.Context) {
	var req BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, bindingError(err))
		return
	}
	if err := auth.CheckBetOwner(c, req.UserID); err != nil {
		HandleAppError(c, err)
		return
	}
	if userID, ok := auth.GetUserID(c); ok && req.UserID == "" {
		req.UserID = userID
	}
	if err := jackpot.ValidateStruct(req); err != nil {
		HandleAppError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.query.GetRequired(ctx, req.JackpotID); err != nil {
		HandleAppError(c, err)
		return
	}

	bet := kafka.BetEvent{
		BetID:     req.BetID,
		UserID:    req.UserID,
		JackpotID: req.JackpotID,
		BetAmount: req.BetAmount,
	}
	if err := h.publisher.PublishBet(ctx, bet); err != nil {
		h.logger.Error().Err(err).Str("bet_id", req.BetID).Msg("Failed to publish bet")
		HandleAppError(c, err)
		return
	}

	h.logger.Debug().Str("bet_id", req.BetID).Str("jackpot_id", req.JackpotID).Msg("Bet published")
	Accepted(c, BetResponse{BetID: req.BetID})
}

// Contribute applies a wager synchronously and returns the result.
// Route: POST /api/contributions
func (h *BetHandler) Contribute(c *gin.Context) {
	var req ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, bindingError(err))
		return
	}

	result, err := h.contributions.ApplyContribution(c.Request.Context(), req.BetID, req.JackpotID, req.BetAmount)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, ContributionResponse{
		BetID:              req.BetID,
		JackpotID:          req.JackpotID,
		Strategy:           result.Strategy,
		ContributionAmount: money(result.ContributionAmount),
		CurrentJackpotPool: money(result.UpdatedPool),
		EffectiveRate:      json.Number(result.EffectiveRate.String()),
		Duplicate:          result.Duplicate,
	})
}
