package jackpot

import (
	"context"
	"time"
)

// DefaultLockTimeout bounds the wait for a jackpot's exclusive lock.
const DefaultLockTimeout = 5 * time.Second

// Store holds jackpot state and the contribution and reward audit trails.
//
// Lookups return nil and no error when the row does not exist.
type Store interface {
	GetJackpot(ctx context.Context, id string) (*Jackpot, error)
	ListJackpots(ctx context.Context) ([]*Jackpot, error)
	FindContribution(ctx context.Context, betID, jackpotID string) (*ContributionRecord, error)
	ListRewards(ctx context.Context, jackpotID string, limit int) ([]*RewardRecord, error)

	// CreateJackpotIfAbsent inserts j unless a jackpot with the same id
	// exists. It reports whether a row was inserted.
	CreateJackpotIfAbsent(ctx context.Context, j *Jackpot) (bool, error)

	// RunInTx runs fn as one unit of work. Writes made through tx are
	// committed only if fn returns nil, and locks taken through tx are held
	// until RunInTx returns.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work opened by Store.RunInTx.
type Tx interface {
	// GetJackpotForUpdate takes the jackpot's exclusive lock and returns
	// the locked state. It fails with ErrLockTimeout when the lock cannot
	// be acquired in time.
	GetJackpotForUpdate(ctx context.Context, id string) (*Jackpot, error)
	FindContribution(ctx context.Context, betID, jackpotID string) (*ContributionRecord, error)
	FindReward(ctx context.Context, betID, jackpotID string) (*RewardRecord, error)
	SaveJackpot(ctx context.Context, j *Jackpot) error
	InsertContribution(ctx context.Context, rec *ContributionRecord) error
	InsertReward(ctx context.Context, rec *RewardRecord) error
}

// Publisher receives pool changes after they are committed.
type Publisher interface {
	Publish(u Update)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Update) {}
