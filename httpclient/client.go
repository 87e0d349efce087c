package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/types"
)

// Client talks to a running jackpot service over its HTTP API.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	baseURL    string
	headers    map[string]string
}

// Config holds HTTP client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
	// Token is sent as a bearer token when set.
	Token   string
	Headers map[string]string
}

// New creates a new HTTP client
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  cfg.Logger.With().Str("component", "http-client").Logger(),
		baseURL: cfg.BaseURL,
		headers: make(map[string]string, len(cfg.Headers)+1),
	}
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}
	if cfg.Token != "" {
		c.headers["Authorization"] = "Bearer " + cfg.Token
	}
	return c
}

// Bet is a wager submitted to POST /api/bets.
type Bet struct {
	BetID     string          `json:"betId"`
	UserID    string          `json:"userId"`
	JackpotID string          `json:"jackpotId"`
	BetAmount decimal.Decimal `json:"betAmount"`
}

// Contribution is the outcome of POST /api/contributions.
type Contribution struct {
	BetID              string          `json:"betId"`
	JackpotID          string          `json:"jackpotId"`
	Strategy           string          `json:"strategy"`
	ContributionAmount decimal.Decimal `json:"contributionAmount"`
	CurrentJackpotPool decimal.Decimal `json:"currentJackpotPool"`
	EffectiveRate      decimal.Decimal `json:"effectiveRate"`
	Duplicate          bool            `json:"duplicate"`
}

// Evaluation is the outcome of GET /api/evaluations.
type Evaluation struct {
	Win                bool            `json:"win"`
	PayoutAmount       decimal.Decimal `json:"payoutAmount"`
	CurrentJackpotPool decimal.Decimal `json:"currentJackpotPool"`
	Probability        decimal.Decimal `json:"probability"`
	Strategy           string          `json:"strategy"`
	BetID              string          `json:"betId"`
	JackpotID          string          `json:"jackpotId"`
	Replayed           bool            `json:"replayed"`
}

// PlaceBet submits a bet for asynchronous contribution.
func (c *Client) PlaceBet(ctx context.Context, bet Bet) error {
	return c.call(ctx, http.MethodPost, "/api/bets", bet, nil)
}

// Contribute applies a bet synchronously.
func (c *Client) Contribute(ctx context.Context, bet Bet) (*Contribution, error) {
	var out Contribution
	body := struct {
		BetID     string          `json:"betId"`
		JackpotID string          `json:"jackpotId"`
		BetAmount decimal.Decimal `json:"betAmount"`
	}{bet.BetID, bet.JackpotID, bet.BetAmount}
	if err := c.call(ctx, http.MethodPost, "/api/contributions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate asks whether a contributed bet wins its jackpot.
func (c *Client) Evaluate(ctx context.Context, betID, jackpotID string) (*Evaluation, error) {
	q := url.Values{"betId": {betID}, "jackpotId": {jackpotID}}
	var out Evaluation
	if err := c.call(ctx, http.MethodGet, "/api/evaluations?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs a request and decodes the response envelope. Error
// envelopes are returned as *errors.AppError carrying the server's code.
func (c *Client) call(ctx context.Context, method, path string, body, dest interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		var env types.ErrorResponse
		if err := json.Unmarshal(resp.Body, &env); err != nil || env.Error.ErrorMessage == "" {
			return errors.Newf(errors.ErrServiceUnavailable, "HTTP error %d: %s", resp.StatusCode, string(resp.Body))
		}
		appErr := errors.New(env.Error.ErrorCode, env.Error.ErrorMessage)
		if len(env.Error.Violations) > 0 {
			debug, _ := json.Marshal(env.Error.Violations)
			appErr = errors.NewWithDebug(env.Error.ErrorCode, env.Error.ErrorMessage, string(debug))
		}
		return appErr
	}

	if dest == nil {
		return nil
	}
	var env types.SuccessResponse[json.RawMessage]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	startTime := time.Now()
	c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Msg("HTTP request started")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("url", url).
			Dur("duration", time.Since(startTime)).
			Msg("HTTP request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("HTTP request completed")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
	}, nil
}

// IsSuccess checks if the response indicates success
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
