package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Altmerian/jackpot/pkg/jackpot"
)

const (
	EventTypeConnected = "connected"
	EventTypeUpdated   = "updated"
	EventTypeHeartbeat = "heartbeat"
)

// JackpotView is the public representation of a jackpot.
type JackpotView struct {
	ID                   string                           `json:"id"`
	Name                 string                           `json:"name"`
	InitialPool          json.Number                      `json:"initialPool"`
	CurrentPool          json.Number                      `json:"currentPool"`
	ContributionStrategy jackpot.ContributionStrategyType `json:"contributionStrategy"`
	RewardStrategy       jackpot.RewardStrategyType       `json:"rewardStrategy"`
	Contribution         ContributionParams               `json:"contribution"`
	Reward               RewardParams                     `json:"reward"`
	CreatedAt            time.Time                        `json:"createdAt"`
	UpdatedAt            time.Time                        `json:"updatedAt"`
}

// ContributionParams lists the configured contribution parameters.
type ContributionParams struct {
	Rate           *json.Number `json:"rate"`
	MinRate        *json.Number `json:"minRate"`
	DecayThreshold *json.Number `json:"decayThreshold"`
	DecaySlope     *json.Number `json:"decaySlope"`
}

// RewardParams lists the configured reward parameters.
type RewardParams struct {
	BaseProbability *json.Number `json:"baseProbability"`
	MaxProbability  *json.Number `json:"maxProbability"`
	RampRate        *json.Number `json:"rampRate"`
	Cap             *json.Number `json:"cap"`
}

// RewardView is one entry of a jackpot's reward history.
type RewardView struct {
	ID           string                     `json:"id"`
	BetID        string                     `json:"betId"`
	JackpotID    string                     `json:"jackpotId"`
	PayoutAmount json.Number                `json:"payoutAmount"`
	Probability  json.Number                `json:"probability"`
	Strategy     jackpot.RewardStrategyType `json:"strategy"`
	CreatedAt    time.Time                  `json:"createdAt"`
}

func newJackpotView(j *jackpot.Jackpot) JackpotView {
	return JackpotView{
		ID:                   j.ID,
		Name:                 j.Name,
		InitialPool:          money(j.InitialPool),
		CurrentPool:          money(j.CurrentPool),
		ContributionStrategy: j.ContributionStrategy,
		RewardStrategy:       j.RewardStrategy,
		Contribution: ContributionParams{
			Rate:           optionalNumber(j.ContributionRate),
			MinRate:        optionalNumber(j.MinContributionRate),
			DecayThreshold: optionalNumber(j.DecayThreshold),
			DecaySlope:     optionalNumber(j.DecaySlope),
		},
		Reward: RewardParams{
			BaseProbability: optionalNumber(j.RewardBaseProbability),
			MaxProbability:  optionalNumber(j.RewardMaxProbability),
			RampRate:        optionalNumber(j.RewardRampRate),
			Cap:             optionalNumber(j.RewardCap),
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func newRewardView(r *jackpot.RewardRecord) RewardView {
	return RewardView{
		ID:           r.ID,
		BetID:        r.BetID,
		JackpotID:    r.JackpotID,
		PayoutAmount: money(r.PayoutAmount),
		Probability:  probability(r.Probability),
		Strategy:     r.Strategy,
		CreatedAt:    r.CreatedAt,
	}
}

// JackpotHandler serves jackpot lookups and the pool update streams.
type JackpotHandler struct {
	query           *jackpot.QueryService
	feed            *jackpot.Feed
	logger          zerolog.Logger
	heartbeatPeriod time.Duration
	batchWindow     time.Duration
	upgrader        websocket.Upgrader
	closing         chan struct{}
	closeOnce       sync.Once
}

// NewJackpotHandler creates a jackpot handler.
func NewJackpotHandler(query *jackpot.QueryService, feed *jackpot.Feed, logger zerolog.Logger) *JackpotHandler {
	return &JackpotHandler{
		query:           query,
		feed:            feed,
		logger:          logger.With().Str("handler", "jackpot").Logger(),
		heartbeatPeriod: 30 * time.Second,
		batchWindow:     5 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		closing: make(chan struct{}),
	}
}

// Close ends every open stream.
func (h *JackpotHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// List returns every jackpot.
// Route: GET /api/jackpots
func (h *JackpotHandler) List(c *gin.Context) {
	jackpots, err := h.query.List(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, lo.Map(jackpots, func(j *jackpot.Jackpot, _ int) JackpotView { return newJackpotView(j) }))
}

// Get returns one jackpot.
// Route: GET /api/jackpots/:id
func (h *JackpotHandler) Get(c *gin.Context) {
	j, err := h.query.GetRequired(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, newJackpotView(j))
}

// Rewards returns the newest rewards paid by a jackpot.
// Route: GET /api/jackpots/:id/rewards?limit=20
func (h *JackpotHandler) Rewards(c *gin.Context) {
	limit := jackpot.DefaultRewardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			HandleAppError(c, jackpot.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	rewards, err := h.query.Rewards(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, lo.Map(rewards, func(r *jackpot.RewardRecord, _ int) RewardView { return newRewardView(r) }))
}

// Response is one stream message.
type Response struct {
	Type      string                `json:"type"`
	Timestamp int64                 `json:"timestamp"`
	Pools     map[string]PoolUpdate `json:"pools,omitempty"`
}

// PoolUpdate is the latest amount of one pool.
type PoolUpdate struct {
	Amount    json.Number `json:"amount"`
	Timestamp int64       `json:"timestamp"`
}

type streamConfig struct {
	isTargetPool func(string) bool
	ctx          context.Context
}

// StreamUpdates opens an SSE connection and streams pool updates.
// Route: GET /api/jackpots/updates?jackpotId=a&jackpotId=b
func (h *JackpotHandler) StreamUpdates(c *gin.Context) {
	config := h.prepareStreamConfig(c)

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	h.streamUpdates(config, &sseSender{writer: c.Writer}, nil)
}

// StreamUpdatesWebSocket opens a WebSocket connection and streams pool updates.
// Route: GET /api/jackpots/updates/ws?jackpotId=a
func (h *JackpotHandler) StreamUpdatesWebSocket(c *gin.Context) {
	config := h.prepareStreamConfig(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close() //nolint:errcheck

	writeDeadline := 10 * time.Second
	done := make(chan struct{})

	// The read loop only detects the close frame; clients send nothing else.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug().Err(err).Msg("WebSocket connection closed unexpectedly")
				}
				return
			}
		}
	}()

	go func() {
		pingTicker := time.NewTicker(h.heartbeatPeriod)
		defer pingTicker.Stop()
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					h.logger.Debug().Err(err).Msg("Failed to send ping")
					return
				}
			}
		}
	}()

	sender := &wsSender{
		conn:          conn,
		done:          done,
		writeDeadline: writeDeadline,
	}
	h.streamUpdates(config, sender, done)
}

func (h *JackpotHandler) prepareStreamConfig(c *gin.Context) *streamConfig {
	targets := lo.Compact(c.QueryArray("jackpotId"))
	return &streamConfig{
		isTargetPool: func(id string) bool {
			return len(targets) == 0 || lo.Contains(targets, id)
		},
		ctx: c.Request.Context(),
	}
}

// streamUpdates handles the common streaming logic for both SSE and WebSocket.
func (h *JackpotHandler) streamUpdates(config *streamConfig, sender messageSender, done <-chan struct{}) {
	updates, cancel := h.feed.Listen(config.ctx)
	defer cancel()

	if err := sender.Send(&Response{Type: EventTypeConnected, Timestamp: time.Now().Unix()}); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to send connected event, stopping stream")
		return
	}

	h.sendInitialPools(config, sender)

	heartbeat := time.NewTicker(h.heartbeatPeriod)
	defer heartbeat.Stop()

	// Updates of one flush arrive back to back and are sent as one message.
	batchTimer := time.NewTimer(h.batchWindow)
	batchTimer.Stop()
	pending := make(map[string]PoolUpdate)

	add := func(u jackpot.Update) {
		if config.isTargetPool(u.JackpotID) {
			pending[u.JackpotID] = PoolUpdate{Amount: money(u.Amount), Timestamp: u.Timestamp.Unix()}
		}
	}
	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		err := sender.Send(&Response{Type: EventTypeUpdated, Timestamp: time.Now().Unix(), Pools: pending})
		if err != nil {
			h.logger.Debug().Err(err).Int("pool_count", len(pending)).Msg("Failed to send update, stopping stream")
			return false
		}
		pending = make(map[string]PoolUpdate)
		return true
	}

	for {
		select {
		case <-config.ctx.Done():
			return
		case <-done:
			return
		case <-h.closing:
			flush()
			return
		case <-heartbeat.C:
			if !flush() {
				return
			}
			if err := sender.Send(&Response{Type: EventTypeHeartbeat, Timestamp: time.Now().Unix()}); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to send heartbeat, stopping stream")
				return
			}
		case <-batchTimer.C:
			if !flush() {
				return
			}
		case u, ok := <-updates:
			if !ok {
				flush()
				return
			}
			add(u)
		drain:
			for {
				select {
				case next, ok := <-updates:
					if !ok {
						flush()
						return
					}
					add(next)
				default:
					break drain
				}
			}
			if !batchTimer.Stop() {
				select {
				case <-batchTimer.C:
				default:
				}
			}
			batchTimer.Reset(h.batchWindow)
		}
	}
}

// sendInitialPools sends current pool values to the client.
func (h *JackpotHandler) sendInitialPools(config *streamConfig, sender messageSender) {
	current, err := h.feed.Snapshot(config.ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get current pools")
		return
	}

	pools := make(map[string]PoolUpdate)
	for _, u := range current {
		if config.isTargetPool(u.JackpotID) {
			pools[u.JackpotID] = PoolUpdate{Amount: money(u.Amount), Timestamp: u.Timestamp.Unix()}
		}
	}
	if len(pools) == 0 {
		return
	}
	if err := sender.Send(&Response{Type: EventTypeUpdated, Timestamp: time.Now().Unix(), Pools: pools}); err != nil {
		h.logger.Debug().Err(err).Int("pool_count", len(pools)).Msg("Failed to send initial pools")
	}
}

// messageSender sends stream messages over SSE or WebSocket.
type messageSender interface {
	Send(*Response) error
}

type sseSender struct {
	writer gin.ResponseWriter
}

func (s *sseSender) Send(resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := s.writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	s.writer.Flush()
	return nil
}

type wsSender struct {
	conn          *websocket.Conn
	done          <-chan struct{}
	writeDeadline time.Duration
}

func (s *wsSender) Send(resp *Response) error {
	select {
	case <-s.done:
		return io.EOF
	default:
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeDeadline)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	return nil
}
