package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/auth"
	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/db/memory"
	"github.com/Altmerian/jackpot/pkg/jackpot"
	"github.com/Altmerian/jackpot/types"
)

type envelope struct {
	StatusCode int               `json:"status_code"`
	IsSuccess  bool              `json:"is_success"`
	Data       json.RawMessage   `json:"data"`
	Error      types.ErrorDetail `json:"error"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedJackpot(id, probability string) *jackpot.Jackpot {
	j := jackpot.NewJackpot(id, "Fixed "+id, dec("500.00"), jackpot.ContributionFixedRate, jackpot.RewardFixed, time.Now().UTC())
	j.ContributionRate = decimal.NewNullDecimal(dec("0.10"))
	j.RewardBaseProbability = decimal.NewNullDecimal(dec(probability))
	j.RewardCap = decimal.NewNullDecimal(dec("100000.00"))
	return j
}

func newTestApp(t *testing.T, jwtSecret string) *App {
	t.Helper()
	store := memory.New()
	for _, j := range []*jackpot.Jackpot{fixedJackpot("jp-1", "0.000001"), fixedJackpot("jp-win", "1")} {
		if _, err := store.CreateJackpotIfAbsent(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}

	feed, err := jackpot.NewFeed(jackpot.FeedConfig{Store: store, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	engine := jackpot.EngineConfig{Store: store, Publisher: feed, Logger: zerolog.Nop()}

	cfg := &config.Config{Environment: "test"}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.JWT.Secret = jwtSecret

	app := New(Options{
		Config:        cfg,
		Logger:        zerolog.Nop(),
		Contributions: jackpot.NewContributionService(engine),
		Evaluations:   jackpot.NewEvaluationService(engine),
		Query:         jackpot.NewQueryService(store),
		Feed:          feed,
	})
	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterJackpotRoutes()
	return app
}

func do(t *testing.T, app *App, method, path, body string, header http.Header) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return w.Code, env
}

func TestContributeAndEvaluate(t *testing.T) {
	app := newTestApp(t, "")

	code, env := do(t, app, http.MethodPost, "/api/contributions", `{"betId":"bet-1","jackpotId":"jp-1","betAmount":100}`, nil)
	if code != http.StatusOK {
		t.Fatalf("contribute status = %d, body %+v", code, env)
	}
	var contribution struct {
		ContributionAmount json.Number `json:"contributionAmount"`
		CurrentJackpotPool json.Number `json:"currentJackpotPool"`
		EffectiveRate      json.Number `json:"effectiveRate"`
		Duplicate          bool        `json:"duplicate"`
	}
	if err := json.Unmarshal(env.Data, &contribution); err != nil {
		t.Fatal(err)
	}
	if contribution.ContributionAmount != "10.00" || contribution.CurrentJackpotPool != "510.00" || contribution.Duplicate {
		t.Errorf("unexpected contribution %+v", contribution)
	}

	first := contribution
	code, env = do(t, app, http.MethodPost, "/api/contributions", `{"betId":"bet-1","jackpotId":"jp-1","betAmount":100}`, nil)
	if code != http.StatusOK {
		t.Fatalf("redelivery status = %d, body %+v", code, env)
	}
	if err := json.Unmarshal(env.Data, &contribution); err != nil {
		t.Fatal(err)
	}
	if !contribution.Duplicate || contribution.CurrentJackpotPool != "510.00" ||
		!dec(string(contribution.EffectiveRate)).Equal(dec(string(first.EffectiveRate))) || dec(string(first.EffectiveRate)).IsZero() {
		t.Errorf("redelivery %+v, want duplicate with rate %s", contribution, first.EffectiveRate)
	}

	code, env = do(t, app, http.MethodGet, "/api/evaluations?betId=bet-1&jackpotId=jp-1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body %+v", code, env)
	}
	var eval struct {
		Win                bool        `json:"win"`
		PayoutAmount       json.Number `json:"payoutAmount"`
		CurrentJackpotPool json.Number `json:"currentJackpotPool"`
		Probability        json.Number `json:"probability"`
		Strategy           string      `json:"strategy"`
		BetID              string      `json:"betId"`
	}
	if err := json.Unmarshal(env.Data, &eval); err != nil {
		t.Fatal(err)
	}
	if eval.Win || eval.PayoutAmount != "0.00" || eval.CurrentJackpotPool != "510.00" {
		t.Errorf("unexpected evaluation %+v", eval)
	}
	if eval.Probability != "0.000001" || eval.Strategy != "FIXED" || eval.BetID != "bet-1" {
		t.Errorf("unexpected evaluation %+v", eval)
	}
}

func TestEvaluateWinShowsInRewards(t *testing.T) {
	app := newTestApp(t, "")

	code, _ := do(t, app, http.MethodPost, "/api/bets", `{"betId":"bet-9","userId":"u-1","jackpotId":"jp-win","betAmount":"250"}`, nil)
	if code != http.StatusAccepted {
		t.Fatalf("bet status = %d", code)
	}

	code, env := do(t, app, http.MethodGet, "/api/evaluations?betId=bet-9&jackpotId=jp-win", "", nil)
	if code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body %+v", code, env)
	}
	var eval struct {
		Win                bool        `json:"win"`
		PayoutAmount       json.Number `json:"payoutAmount"`
		CurrentJackpotPool json.Number `json:"currentJackpotPool"`
	}
	if err := json.Unmarshal(env.Data, &eval); err != nil {
		t.Fatal(err)
	}
	if !eval.Win || eval.PayoutAmount != "525.00" || eval.CurrentJackpotPool != "500.00" {
		t.Errorf("unexpected evaluation %+v", eval)
	}

	code, env = do(t, app, http.MethodGet, "/api/jackpots/jp-win/rewards", "", nil)
	if code != http.StatusOK {
		t.Fatalf("rewards status = %d", code)
	}
	var rewards []RewardView
	if err := json.Unmarshal(env.Data, &rewards); err != nil {
		t.Fatal(err)
	}
	if len(rewards) != 1 || rewards[0].BetID != "bet-9" || rewards[0].PayoutAmount != "525.00" {
		t.Errorf("unexpected rewards %+v", rewards)
	}
}

func TestErrorResponses(t *testing.T) {
	app := newTestApp(t, "")

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		wantStatus     int
		wantViolations []string
	}{
		{
			name:           "bet missing fields",
			method:         http.MethodPost,
			path:           "/api/bets",
			body:           `{"betAmount":0}`,
			wantStatus:     http.StatusBadRequest,
			wantViolations: []string{"betId", "userId", "jackpotId", "betAmount"},
		},
		{
			name:       "bet malformed body",
			method:     http.MethodPost,
			path:       "/api/bets",
			body:       `{"betId":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bet unknown jackpot",
			method:     http.MethodPost,
			path:       "/api/bets",
			body:       `{"betId":"b","userId":"u","jackpotId":"nope","betAmount":10}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:           "contribution negative amount",
			method:         http.MethodPost,
			path:           "/api/contributions",
			body:           `{"betId":"b","jackpotId":"jp-1","betAmount":-5}`,
			wantStatus:     http.StatusBadRequest,
			wantViolations: []string{"betAmount"},
		},
		{
			name:           "evaluation missing bet id",
			method:         http.MethodGet,
			path:           "/api/evaluations?jackpotId=jp-1",
			wantStatus:     http.StatusBadRequest,
			wantViolations: []string{"betId"},
		},
		{
			name:       "evaluation without contribution",
			method:     http.MethodGet,
			path:       "/api/evaluations?betId=ghost&jackpotId=jp-1",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown jackpot",
			method:     http.MethodGet,
			path:       "/api/jackpots/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:           "invalid reward limit",
			method:         http.MethodGet,
			path:           "/api/jackpots/jp-1/rewards?limit=abc",
			wantStatus:     http.StatusBadRequest,
			wantViolations: []string{"limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, app, tt.method, tt.path, tt.body, nil)
			if code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %+v", code, tt.wantStatus, env)
			}
			if env.IsSuccess || env.StatusCode != tt.wantStatus {
				t.Errorf("unexpected envelope %+v", env)
			}
			got := make(map[string]bool)
			for _, v := range env.Error.Violations {
				got[v.Field] = true
			}
			for _, field := range tt.wantViolations {
				if !got[field] {
					t.Errorf("missing violation for %s in %+v", field, env.Error.Violations)
				}
			}
		})
	}
}

func TestListJackpots(t *testing.T) {
	app := newTestApp(t, "")

	code, env := do(t, app, http.MethodGet, "/api/jackpots", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var list []JackpotView
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "jp-1" || list[0].CurrentPool != "500.00" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Contribution.Rate == nil || *list[0].Contribution.Rate != "0.1" {
		t.Errorf("rate = %v", list[0].Contribution.Rate)
	}
	if list[0].Contribution.MinRate != nil {
		t.Errorf("unset parameter rendered as %v", *list[0].Contribution.MinRate)
	}
}

func TestWriteRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, "secret")
	body := `{"betId":"bet-1","jackpotId":"jp-1","betAmount":100}`

	if code, _ := do(t, app, http.MethodPost, "/api/contributions", body, nil); code != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", code)
	}
	if code, _ := do(t, app, http.MethodGet, "/api/jackpots", "", nil); code != http.StatusOK {
		t.Errorf("read route status = %d, want 200", code)
	}

	token, err := auth.GenerateToken("secret", "user-1", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	if code, _ := do(t, app, http.MethodPost, "/api/contributions", body, header); code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", code)
	}
}

func TestStreamUpdatesSendsInitialPools(t *testing.T) {
	app := newTestApp(t, "")
	srv := httptest.NewServer(app.Router())
	defer srv.Close()
	defer app.jackpotHandler.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/jackpots/updates?jackpotId=jp-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var events []Response
	for len(events) < 2 {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		var r Response
		if err := json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &r); err != nil {
			t.Fatal(err)
		}
		events = append(events, r)
	}

	if events[0].Type != EventTypeConnected {
		t.Errorf("first event = %s", events[0].Type)
	}
	if events[1].Type != EventTypeUpdated || len(events[1].Pools) != 1 || events[1].Pools["jp-1"].Amount != "500.00" {
		t.Errorf("initial pools = %+v", events[1])
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, "")

	for _, path := range []string{"/health", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		app.Router().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}

		var body map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["status"] != "healthy" {
			t.Errorf("%s status = %v", path, body["status"])
		}
		if path == "/api/health" && body["jackpots"] != float64(2) {
			t.Errorf("jackpots = %v, want 2", body["jackpots"])
		}
	}
}

func TestBetForAnotherUserForbidden(t *testing.T) {
	app := newTestApp(t, "secret")
	token, err := auth.GenerateToken("secret", "user-1", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	body := `{"betId":"bet-9","userId":"user-2","jackpotId":"jp-1","betAmount":100}`
	code, env := do(t, app, http.MethodPost, "/api/bets", body, header)
	if code != http.StatusForbidden || env.Error.ErrorCode != 403 {
		t.Fatalf("status = %d code = %d, want 403", code, env.Error.ErrorCode)
	}
	if env.Error.TraceID == "" {
		t.Error("expected trace id in error body")
	}

	body = `{"betId":"bet-9","jackpotId":"jp-1","betAmount":100}`
	if code, _ := do(t, app, http.MethodPost, "/api/bets", body, header); code != http.StatusAccepted {
		t.Errorf("own bet status = %d, want 202", code)
	}
}
