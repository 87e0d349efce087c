package server

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// EvaluationResponse is the outcome of evaluating one contributed bet.
type EvaluationResponse struct {
	Win                bool                       `json:"win"`
	PayoutAmount       json.Number                `json:"payoutAmount"`
	CurrentJackpotPool json.Number                `json:"currentJackpotPool"`
	Probability        json.Number                `json:"probability"`
	Strategy           jackpot.RewardStrategyType `json:"strategy"`
	BetID              string                     `json:"betId"`
	JackpotID          string                     `json:"jackpotId"`
	Replayed           bool                       `json:"replayed,omitempty"`
}

// EvaluationHandler serves reward evaluation.
type EvaluationHandler struct {
	evaluations *jackpot.EvaluationService
	logger      zerolog.Logger
}

// NewEvaluationHandler creates an evaluation handler.
func NewEvaluationHandler(evaluations *jackpot.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		logger:      logger.With().Str("handler", "evaluation").Logger(),
	}
}

// Evaluate decides whether a contributed bet wins the jackpot.
// Route: GET /api/evaluations?betId=...&jackpotId=...
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	var req jackpot.EvaluationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleAppError(c, bindingError(err))
		return
	}

	result, err := h.evaluations.Evaluate(c.Request.Context(), req.BetID, req.JackpotID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, EvaluationResponse{
		Win:                result.Win,
		PayoutAmount:       money(result.PayoutAmount),
		CurrentJackpotPool: money(result.UpdatedPool),
		Probability:        probability(result.Probability),
		Strategy:           result.Strategy,
		BetID:              req.BetID,
		JackpotID:          req.JackpotID,
		Replayed:           result.Replayed,
	})
}
