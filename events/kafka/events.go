package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// BetEvent is a wager published to the bets topic, keyed by jackpot id so
// wagers on one jackpot keep their order within a partition.
type BetEvent struct {
	BetID     string          `json:"betId" validate:"required"`
	UserID    string          `json:"userId" validate:"required"`
	JackpotID string          `json:"jackpotId" validate:"required"`
	BetAmount decimal.Decimal `json:"betAmount" validate:"gt=0"`
	Timestamp time.Time       `json:"timestamp"`
}

// PoolUpdateEvent carries a committed pool change between instances.
type PoolUpdateEvent struct {
	JackpotID string          `json:"jackpotId"`
	NewAmount decimal.Decimal `json:"newAmount"`
	Reason    string          `json:"reason"`
	Origin    string          `json:"origin"`
	UpdatedAt time.Time       `json:"timestamp"`
}

// NewPoolUpdateEvent converts a feed update into its wire form.
func NewPoolUpdateEvent(u jackpot.Update) PoolUpdateEvent {
	return PoolUpdateEvent{
		JackpotID: u.JackpotID,
		NewAmount: u.Amount,
		Reason:    u.Reason,
		Origin:    u.Origin,
		UpdatedAt: u.Timestamp,
	}
}

// Update converts the event back into a feed update.
func (e PoolUpdateEvent) Update() jackpot.Update {
	return jackpot.Update{
		JackpotID: e.JackpotID,
		Amount:    e.NewAmount,
		Timestamp: e.UpdatedAt,
		Reason:    e.Reason,
		Origin:    e.Origin,
	}
}
