package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

const (
	defaultWorkerNum = 10
	jobQueueSize     = 100
	writeTimeout     = 10 * time.Second
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps Kafka producer functionality
type Producer struct {
	writer    messageWriter
	logger    zerolog.Logger
	jobs      chan kafka.Message
	workerNum int
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// ProducerConfig holds configuration for Kafka producer
type ProducerConfig struct {
	Brokers   []string
	Logger    zerolog.Logger
	WorkerNum int
}

// NewProducer creates a new Kafka producer. Messages are partitioned by key
// so all events of one jackpot land on the same partition.
func NewProducer(config ProducerConfig) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New(errors.ErrConfigError, "kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: writeTimeout,
		ReadTimeout:  writeTimeout,
		Async:        false,
	}

	return newProducer(writer, config.WorkerNum, config.Logger), nil
}

func newProducer(writer messageWriter, workerNum int, logger zerolog.Logger) *Producer {
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}

	p := &Producer{
		writer:    writer,
		logger:    logger.With().Str("component", "kafka-producer").Logger(),
		jobs:      make(chan kafka.Message, jobQueueSize),
		workerNum: workerNum,
	}

	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Producer) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		func() {
			defer p.recover()
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()

			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Failed to send message to Kafka")
			} else {
				p.logger.Debug().
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Message sent to Kafka")
			}
		}()
	}
}

// newMessage encodes value as JSON. The trace id of ctx, if any, travels in
// the X-Trace-ID header.
func newMessage(ctx context.Context, topic, key string, value interface{}) (kafka.Message, error) {
	eventBytes, err := json.Marshal(value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: logging.TraceIDHeader, Value: []byte(traceID)})
	}
	return msg, nil
}

// SendMessage queues a message for the worker pool. It blocks while the
// queue is full until ctx is done.
func (p *Producer) SendMessage(ctx context.Context, topic string, key string, value interface{}) error {
	msg, err := newMessage(ctx, topic, key, value)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal event")
		return errors.Wrap(err, errors.ErrKafkaError, "encode message")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New(errors.ErrKafkaError, "producer is closed")
	}

	select {
	case p.jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessageSync sends a message synchronously
func (p *Producer) SendMessageSync(ctx context.Context, topic string, key string, value interface{}) error {
	msg, err := newMessage(ctx, topic, key, value)
	if err != nil {
		return errors.Wrap(err, errors.ErrKafkaError, "encode message")
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to send message to Kafka")
		return errors.Wrap(err, errors.ErrKafkaError, "send message")
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("key", key).
		Msg("Message sent to Kafka")

	return nil
}

// PublishBet publishes a wager keyed by its jackpot id and waits for the
// broker to acknowledge it.
func (p *Producer) PublishBet(ctx context.Context, topic string, bet BetEvent) error {
	if bet.Timestamp.IsZero() {
		bet.Timestamp = time.Now().UTC()
	}
	return p.SendMessageSync(ctx, topic, bet.JackpotID, bet)
}

// Close drains queued messages and closes the Kafka writer
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka producer")
		return err
	}
	return nil
}

func (p *Producer) recover() {
	if r := recover(); r != nil {
		stack := debug.Stack()
		p.logger.Error().
			Str("operation", "send_message_kafka").
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack_trace", string(stack)).
			Msg("Panic recovered")
	}
}

// PoolUpdateSink forwards committed pool updates to other instances through
// the pool updates topic.
type PoolUpdateSink struct {
	producer *Producer
	topic    string
}

// NewPoolUpdateSink creates a feed sink publishing on topic.
func NewPoolUpdateSink(producer *Producer, topic string) *PoolUpdateSink {
	return &PoolUpdateSink{producer: producer, topic: topic}
}

// Forward implements jackpot.Sink.
func (s *PoolUpdateSink) Forward(ctx context.Context, u jackpot.Update) error {
	return s.producer.SendMessage(ctx, s.topic, u.JackpotID, NewPoolUpdateEvent(u))
}
