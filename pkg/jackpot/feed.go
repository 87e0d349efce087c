package jackpot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Altmerian/jackpot/errors"
)

const (
	// DefaultBroadcastInterval is the default interval for broadcasting buffered updates
	DefaultBroadcastInterval = 2 * time.Second

	// DefaultRefreshSchedule reloads pool values from the store once a minute.
	DefaultRefreshSchedule = "@every 60s"

	sinkTimeout = 5 * time.Second
)

// Sink receives locally produced updates after each flush, e.g. to share
// them with other instances or cache them.
type Sink interface {
	Forward(ctx context.Context, u Update) error
}

// FeedConfig configures a Feed.
type FeedConfig struct {
	Store             Store
	Logger            zerolog.Logger
	BroadcastInterval time.Duration
	RefreshSchedule   string
	// Origin identifies this instance on forwarded updates. A random id is
	// used when empty.
	Origin string
	Sinks  []Sink
}

// Feed buffers pool updates and broadcasts the newest value per jackpot on
// every tick. It implements Publisher for the engines and is
// transport-agnostic: callers subscribe through Listen.
type Feed struct {
	mu       sync.Mutex
	buffer   map[string]Update
	broad    *Broadcaster
	store    Store
	sinks    []Sink
	origin   string
	logger   zerolog.Logger
	interval time.Duration
	cron     *cron.Cron
	stopChan chan struct{}
	stopOnce sync.Once

	refreshMu  sync.Mutex
	refreshing bool
}

// NewFeed creates a feed. Start must be called to begin broadcasting.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	interval := cfg.BroadcastInterval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	schedule := cfg.RefreshSchedule
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	origin := cfg.Origin
	if origin == "" {
		origin = uuid.NewString()
	}

	f := &Feed{
		buffer:   make(map[string]Update),
		broad:    NewBroadcaster(128),
		store:    cfg.Store,
		sinks:    cfg.Sinks,
		origin:   origin,
		logger:   cfg.Logger.With().Str("component", "feed").Logger(),
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
		stopChan: make(chan struct{}),
	}
	if f.store != nil {
		if _, err := f.cron.AddFunc(schedule, func() { f.Refresh(context.Background()) }); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigError, "invalid feed refresh schedule "+schedule)
		}
	}
	return f, nil
}

// Publish buffers a local update. Older updates for the same jackpot are
// replaced by newer ones.
func (f *Feed) Publish(u Update) {
	if u.Origin == "" {
		u.Origin = f.origin
	}
	f.enqueue(u)
}

// HandleRemote buffers an update received from another instance. Updates
// carrying this instance's origin are ignored since they were already
// buffered locally.
func (f *Feed) HandleRemote(u Update) {
	if u.Origin == f.origin {
		return
	}
	f.enqueue(u)
}

func (f *Feed) enqueue(u Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.buffer[u.JackpotID]; ok && u.Timestamp.Before(existing.Timestamp) {
		f.logger.Debug().
			Str("jackpot_id", u.JackpotID).
			Time("existing_timestamp", existing.Timestamp).
			Time("new_timestamp", u.Timestamp).
			Msg("ignoring stale update")
		return
	}
	f.buffer[u.JackpotID] = u
}

// Snapshot returns the current value of every jackpot, read from the store.
func (f *Feed) Snapshot(ctx context.Context) ([]Update, error) {
	if f.store == nil {
		return nil, nil
	}
	jackpots, err := f.store.ListJackpots(ctx)
	if err != nil {
		return nil, unitError(err, "snapshot")
	}
	return lo.Map(jackpots, func(j *Jackpot, _ int) Update {
		return Update{
			JackpotID: j.ID,
			Amount:    j.CurrentPool,
			Timestamp: j.UpdatedAt,
			Reason:    UpdateReasonRefresh,
			Origin:    f.origin,
		}
	}), nil
}

// Origin returns the id this instance stamps on its updates.
func (f *Feed) Origin() string {
	return f.origin
}

// Listeners returns the number of subscribed streams.
func (f *Feed) Listeners() int {
	return f.broad.Listeners()
}

// Listen returns a channel to receive flushed updates plus a cancel function.
func (f *Feed) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	return f.broad.Listen(ctx)
}

// Start begins the flush loop and the refresh schedule.
func (f *Feed) Start() {
	go f.loop()
	f.cron.Start()
}

// Stop stops the flush loop and the refresh schedule. Buffered updates are
// flushed one last time.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopChan)
		<-f.cron.Stop().Done()
	})
}

func (f *Feed) loop() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopChan:
			f.Flush()
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush broadcasts buffered updates, forwards local ones to the sinks and
// clears the buffer.
func (f *Feed) Flush() {
	f.mu.Lock()
	if len(f.buffer) == 0 {
		f.mu.Unlock()
		return
	}
	updates := lo.Values(f.buffer)
	f.buffer = make(map[string]Update)
	sinks := f.sinks
	f.mu.Unlock()

	for _, u := range updates {
		f.broad.Send(u)
	}

	local := lo.Filter(updates, func(u Update, _ int) bool {
		return u.Origin == f.origin && u.Reason != UpdateReasonRefresh
	})
	if len(local) > 0 && len(sinks) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		for _, u := range local {
			for _, s := range sinks {
				if err := s.Forward(ctx, u); err != nil {
					f.logger.Warn().Err(err).Str("jackpot_id", u.JackpotID).Msg("failed to forward update")
				}
			}
		}
	}

	if f.logger.GetLevel() <= zerolog.DebugLevel {
		f.logger.Debug().Int("count", len(updates)).Msg("flushed jackpot updates")
	}
}

// Refresh reloads pool values from the store so listeners converge even
// when updates from other instances are missed. Concurrent calls are skipped.
func (f *Feed) Refresh(ctx context.Context) {
	f.refreshMu.Lock()
	if f.refreshing {
		f.refreshMu.Unlock()
		return
	}
	f.refreshing = true
	f.refreshMu.Unlock()

	defer func() {
		f.refreshMu.Lock()
		f.refreshing = false
		f.refreshMu.Unlock()
	}()

	snapshot, err := f.Snapshot(ctx)
	if err != nil {
		f.logger.Debug().Err(err).Msg("failed to refresh pools from store")
		return
	}

	refreshed := 0
	f.mu.Lock()
	for _, u := range snapshot {
		if existing, ok := f.buffer[u.JackpotID]; ok && !u.Timestamp.After(existing.Timestamp) {
			continue
		}
		f.buffer[u.JackpotID] = u
		refreshed++
	}
	f.mu.Unlock()

	if refreshed > 0 {
		f.logger.Debug().Int("count", refreshed).Msg("refreshed pools from store")
	}
}
