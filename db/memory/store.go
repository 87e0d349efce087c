// Package memory is an in-process jackpot store. Jackpot locks are per-id
// mutexes with a bounded wait, and a unit of work stages its writes until it
// commits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

type pairKey struct {
	betID     string
	jackpotID string
}

// Store keeps all state in maps guarded by a read-write mutex.
type Store struct {
	mu            sync.RWMutex
	jackpots      map[string]*jackpot.Jackpot
	contributions map[pairKey]*jackpot.ContributionRecord
	rewards       map[pairKey]*jackpot.RewardRecord
	rewardLog     []*jackpot.RewardRecord

	locks       *keyedLock
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides jackpot.DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "memory_store").Logger()
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		jackpots:      make(map[string]*jackpot.Jackpot),
		contributions: make(map[pairKey]*jackpot.ContributionRecord),
		rewards:       make(map[pairKey]*jackpot.RewardRecord),
		locks:         newKeyedLock(),
		lockTimeout:   jackpot.DefaultLockTimeout,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetJackpot(_ context.Context, id string) (*jackpot.Jackpot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.jackpots[id]; ok {
		return j.Clone(), nil
	}
	return nil, nil
}

func (s *Store) ListJackpots(_ context.Context) ([]*jackpot.Jackpot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.MapToSlice(s.jackpots, func(_ string, j *jackpot.Jackpot) *jackpot.Jackpot {
		return j.Clone()
	})
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) FindContribution(_ context.Context, betID, jackpotID string) (*jackpot.ContributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyContribution(s.contributions[pairKey{betID, jackpotID}]), nil
}

// ListRewards returns the newest rewards of a jackpot first.
func (s *Store) ListRewards(_ context.Context, jackpotID string, limit int) ([]*jackpot.RewardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*jackpot.RewardRecord, 0)
	for i := len(s.rewardLog) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if r := s.rewardLog[i]; r.JackpotID == jackpotID {
			out = append(out, copyReward(r))
		}
	}
	return out, nil
}

func (s *Store) CreateJackpotIfAbsent(_ context.Context, j *jackpot.Jackpot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jackpots[j.ID]; ok {
		return false, nil
	}
	s.jackpots[j.ID] = j.Clone()
	return true, nil
}

// RunInTx runs fn with a fresh unit of work. Staged writes are applied
// atomically when fn succeeds and the context is still live; locks are
// released afterwards in every case.
func (s *Store) RunInTx(ctx context.Context, fn func(tx jackpot.Tx) error) error {
	t := &tx{
		store:         s,
		held:          make(map[string]func()),
		jackpots:      make(map[string]*jackpot.Jackpot),
		contributions: make(map[pairKey]*jackpot.ContributionRecord),
		rewards:       make(map[pairKey]*jackpot.RewardRecord),
	}
	defer t.releaseAll()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range t.contributions {
		if _, ok := s.contributions[k]; ok {
			return errors.Newf(errors.ErrConflict, "contribution for bet %s on jackpot %s already exists", k.betID, k.jackpotID)
		}
	}
	for k := range t.rewards {
		if _, ok := s.rewards[k]; ok {
			return errors.Newf(errors.ErrConflict, "reward for bet %s on jackpot %s already exists", k.betID, k.jackpotID)
		}
	}

	for id, j := range t.jackpots {
		s.jackpots[id] = j
	}
	for k, c := range t.contributions {
		s.contributions[k] = c
	}
	for _, r := range t.rewardOrder {
		s.rewards[pairKey{r.BetID, r.JackpotID}] = r
		s.rewardLog = append(s.rewardLog, r)
	}
	return nil
}

// tx stages writes for one unit of work. It is used by a single goroutine.
type tx struct {
	store *Store
	held  map[string]func()

	jackpots      map[string]*jackpot.Jackpot
	contributions map[pairKey]*jackpot.ContributionRecord
	rewards       map[pairKey]*jackpot.RewardRecord
	rewardOrder   []*jackpot.RewardRecord
}

func (t *tx) GetJackpotForUpdate(ctx context.Context, id string) (*jackpot.Jackpot, error) {
	if _, ok := t.held[id]; !ok {
		unlock, err := t.store.locks.Lock(ctx, id, t.store.lockTimeout)
		if err != nil {
			if errors.Is(err, errors.ErrLockTimeout) {
				t.store.logger.Warn().Str("jackpot_id", id).Dur("timeout", t.store.lockTimeout).Msg("jackpot lock timeout")
			}
			return nil, err
		}
		t.held[id] = unlock
	}
	if j, ok := t.jackpots[id]; ok {
		return j.Clone(), nil
	}
	return t.store.GetJackpot(ctx, id)
}

func (t *tx) FindContribution(ctx context.Context, betID, jackpotID string) (*jackpot.ContributionRecord, error) {
	if c, ok := t.contributions[pairKey{betID, jackpotID}]; ok {
		return copyContribution(c), nil
	}
	return t.store.FindContribution(ctx, betID, jackpotID)
}

func (t *tx) FindReward(_ context.Context, betID, jackpotID string) (*jackpot.RewardRecord, error) {
	k := pairKey{betID, jackpotID}
	if r, ok := t.rewards[k]; ok {
		return copyReward(r), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return copyReward(t.store.rewards[k]), nil
}

func (t *tx) SaveJackpot(_ context.Context, j *jackpot.Jackpot) error {
	if _, ok := t.held[j.ID]; !ok {
		return errors.Newf(errors.ErrInternalServerError, "jackpot %s saved without holding its lock", j.ID)
	}
	if j.CurrentPool.IsNegative() {
		return errors.Newf(errors.ErrInternalServerError, "jackpot %s pool would become negative", j.ID)
	}
	t.jackpots[j.ID] = j.Clone()
	return nil
}

func (t *tx) InsertContribution(ctx context.Context, rec *jackpot.ContributionRecord) error {
	existing, err := t.FindContribution(ctx, rec.BetID, rec.JackpotID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Newf(errors.ErrConflict, "contribution for bet %s on jackpot %s already exists", rec.BetID, rec.JackpotID)
	}
	t.contributions[pairKey{rec.BetID, rec.JackpotID}] = copyContribution(rec)
	return nil
}

func (t *tx) InsertReward(ctx context.Context, rec *jackpot.RewardRecord) error {
	existing, err := t.FindReward(ctx, rec.BetID, rec.JackpotID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Newf(errors.ErrConflict, "reward for bet %s on jackpot %s already exists", rec.BetID, rec.JackpotID)
	}
	r := copyReward(rec)
	t.rewards[pairKey{rec.BetID, rec.JackpotID}] = r
	t.rewardOrder = append(t.rewardOrder, r)
	return nil
}

func (t *tx) releaseAll() {
	for _, unlock := range t.held {
		unlock()
	}
}

func copyContribution(c *jackpot.ContributionRecord) *jackpot.ContributionRecord {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func copyReward(r *jackpot.RewardRecord) *jackpot.RewardRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
