package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

type fakeApplier struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeApplier) ApplyContribution(_ context.Context, _, _ string, _ decimal.Decimal) (*jackpot.ContributionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &jackpot.ContributionResult{}, nil
}

func betMessage(t *testing.T, bet BetEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(bet)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(bet.JackpotID), Value: b}
}

func validBet() BetEvent {
	return BetEvent{
		BetID:     "bet-1",
		UserID:    "user-1",
		JackpotID: "jp-1",
		BetAmount: decimal.NewFromInt(100),
	}
}

func TestBetHandler(t *testing.T) {
	lockTimeout := errors.New(errors.ErrLockTimeout, "lock timeout")
	notFound := errors.New(errors.ErrNotFound, "jackpot not found")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "success", wantCalls: 1},
		{name: "retryable then success", errs: []error{lockTimeout, lockTimeout}, wantCalls: 3},
		{name: "retries exhausted", errs: []error{lockTimeout, lockTimeout, lockTimeout, lockTimeout}, wantCalls: 4, wantErr: true},
		{name: "permanent failure not retried", errs: []error{notFound}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{errs: tt.errs}
			h := NewBetHandler(applier, 3, 0, zerolog.Nop())

			err := h.Handle(context.Background(), betMessage(t, validBet()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if applier.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", applier.calls, tt.wantCalls)
			}
		})
	}
}

func TestBetHandlerSkipsBadEvents(t *testing.T) {
	applier := &fakeApplier{}
	h := NewBetHandler(applier, 3, 0, zerolog.Nop())

	if err := h.Handle(context.Background(), kafka.Message{Value: []byte("{not json")}); err != nil {
		t.Errorf("undecodable event: %v", err)
	}

	bet := validBet()
	bet.BetID = ""
	if err := h.Handle(context.Background(), betMessage(t, bet)); err != nil {
		t.Errorf("invalid event: %v", err)
	}

	if applier.calls != 0 {
		t.Errorf("applier called %d times for bad events", applier.calls)
	}
}

func TestBetHandlerStopsOnCancel(t *testing.T) {
	applier := &fakeApplier{errs: []error{errors.New(errors.ErrLockTimeout, "lock timeout")}}
	h := NewBetHandler(applier, 3, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Handle(ctx, betMessage(t, validBet()))
	if err != context.Canceled {
		t.Errorf("Handle() error = %v, want context.Canceled", err)
	}
	if applier.calls != 1 {
		t.Errorf("calls = %d, want 1", applier.calls)
	}
}

type fakeRemote struct {
	updates []jackpot.Update
}

func (f *fakeRemote) HandleRemote(u jackpot.Update) {
	f.updates = append(f.updates, u)
}

func TestPoolUpdateHandler(t *testing.T) {
	remote := &fakeRemote{}
	handle := NewPoolUpdateHandler(remote, zerolog.Nop())

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := PoolUpdateEvent{
		JackpotID: "jp-1",
		NewAmount: decimal.RequireFromString("510.00"),
		Reason:    jackpot.UpdateReasonContribution,
		Origin:    "node-b",
		UpdatedAt: ts,
	}
	b, _ := json.Marshal(event)

	if err := handle(context.Background(), kafka.Message{Value: b}); err != nil {
		t.Fatal(err)
	}
	if err := handle(context.Background(), kafka.Message{Value: []byte("garbage")}); err != nil {
		t.Fatal(err)
	}

	if len(remote.updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(remote.updates))
	}
	got := remote.updates[0]
	if got.JackpotID != "jp-1" || got.Origin != "node-b" || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected update %+v", got)
	}
	if got.Amount.StringFixed(2) != "510.00" {
		t.Errorf("amount = %s", got.Amount)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}

	handled := make(chan int64, 2)
	c := newConsumer(reader, func(_ context.Context, msg kafka.Message) error {
		handled <- msg.Offset
		if msg.Offset == 1 {
			return errors.New(errors.ErrInternalServerError, "boom")
		}
		return nil
	}, zerolog.Nop())

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 2 {
		t.Errorf("committed %d messages, want 2", len(reader.committed))
	}
}

func TestConsumerPropagatesTraceID(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Headers: []kafka.Header{{Key: logging.TraceIDHeader, Value: []byte("trace-9")}}},
		{Offset: 2},
	}}

	traces := make(chan string, 2)
	c := newConsumer(reader, func(ctx context.Context, _ kafka.Message) error {
		traces <- logging.TraceIDFromContext(ctx)
		return nil
	}, zerolog.Nop())

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	var got []string
	for i := 0; i < 2; i++ {
		select {
		case tr := <-traces:
			got = append(got, tr)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}

	if got[0] != "trace-9" || got[1] != "" {
		t.Errorf("trace ids = %q, want [trace-9 \"\"]", got)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerPublishBet(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 1, zerolog.Nop())
	defer p.Close()

	ctx := logging.ContextWithTraceID(context.Background(), "trace-1")
	if err := p.PublishBet(ctx, "jackpot-bets", validBet()); err != nil {
		t.Fatal(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "jackpot-bets" || string(msg.Key) != "jp-1" {
		t.Errorf("topic/key = %s/%s", msg.Topic, msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != logging.TraceIDHeader || string(msg.Headers[0].Value) != "trace-1" {
		t.Errorf("headers = %+v, want trace header", msg.Headers)
	}
	var got BetEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.BetID != "bet-1" || got.Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestPoolUpdateSinkDrainsOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 2, zerolog.Nop())
	sink := NewPoolUpdateSink(p, "jackpot-pool-updates")

	for _, id := range []string{"jp-1", "jp-2", "jp-3"} {
		u := jackpot.Update{JackpotID: id, Amount: decimal.NewFromInt(500), Origin: "node-a"}
		if err := sink.Forward(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != 3 || !w.closed {
		t.Errorf("wrote %d messages (closed=%v), want 3", len(w.msgs), w.closed)
	}

	if err := sink.Forward(context.Background(), jackpot.Update{JackpotID: "jp-1"}); !errors.Is(err, errors.ErrKafkaError) {
		t.Errorf("Forward after close = %v, want kafka error", err)
	}
}
