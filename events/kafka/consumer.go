package kafka

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Altmerian/jackpot/logging"
)

const fetchRetryDelay = time.Second

// Handler processes one message. Its context carries the producer's trace
// id and a logger for the message, see logging.FromContext.
type Handler func(ctx context.Context, msg kafka.Message) error

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds one topic to a Handler. Messages are committed after the
// handler returns, whatever it returns, so at-least-once delivery relies on
// the handler being idempotent.
type Consumer struct {
	reader   messageReader
	handler  Handler
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// FromBeginning starts a new group at the oldest offset instead of the newest.
	FromBeginning bool
	Logger        zerolog.Logger
}

// NewConsumer creates a consumer reading config.Topic in config.ConsumerGroup.
func NewConsumer(config ConsumerConfig, handler Handler) *Consumer {
	startOffset := kafka.LastOffset
	if config.FromBeginning {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    startOffset,
	})

	logger := logging.WithComponent(config.Logger, "kafka-consumer").With().
		Str("topic", config.Topic).
		Str("group", config.ConsumerGroup).
		Logger()
	return newConsumer(reader, handler, logger)
}

func newConsumer(reader messageReader, handler Handler, logger zerolog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming in the background.
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	c.logger.Info().Msg("Kafka consumer started")
	return nil
}

// Stop cancels the consume loop, waits for the message in flight and closes
// the reader. Later calls return the first result.
func (c *Consumer) Stop() error {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		if err := c.reader.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing Kafka reader")
			c.stopErr = err
			return
		}
		c.logger.Info().Msg("Kafka consumer stopped")
	})
	return c.stopErr
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("Error fetching message from Kafka")
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		ctx, log := c.messageContext(msg)
		if err := c.handler(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Error handling message")
		}

		if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Error committing message")
		}
	}
}

// messageContext derives the handler context of msg: the trace id from its
// header and a logger naming its position.
func (c *Consumer) messageContext(msg kafka.Message) (context.Context, zerolog.Logger) {
	var traceID string
	for _, h := range msg.Headers {
		if h.Key == logging.TraceIDHeader {
			traceID = string(h.Value)
			break
		}
	}

	log := c.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Logger()
	if traceID != "" {
		log = logging.WithTraceID(log, traceID)
	}

	ctx := logging.ContextWithTraceID(c.ctx, traceID)
	return log.WithContext(ctx), log
}
