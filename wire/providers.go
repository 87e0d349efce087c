package wire

import (
	"context"
	"time"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/db/memory"
	"github.com/Altmerian/jackpot/db/postgres"
	"github.com/Altmerian/jackpot/db/redis"
	"github.com/Altmerian/jackpot/events/kafka"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
	"github.com/Altmerian/jackpot/server"
)

const migrateTimeout = time.Minute

// Runtime is everything the serve command starts and stops.
type Runtime struct {
	Config    *config.Config
	Logger    zerolog.Logger
	App       *server.App
	Feed      *jackpot.Feed
	Seeder    *jackpot.Seeder
	Consumers []*kafka.Consumer
}

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideStore opens the configured jackpot store. The postgres schema is
// migrated on open.
func ProvideStore(cfg *config.Config, logger zerolog.Logger) (jackpot.Store, func(), error) {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.Warn().Msg("Using in-memory jackpot store, state is lost on restart")
		store := memory.New(memory.WithLockTimeout(cfg.Store.LockTimeout), memory.WithLogger(logger))
		return store, func() {}, nil
	}

	store, err := postgres.Open(cfg.Postgres, cfg.Store.LockTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing postgres store")
		}
	}, nil
}

// ProvideRegistry provides the built-in strategies.
func ProvideRegistry() *jackpot.Registry {
	return jackpot.DefaultRegistry()
}

// ProvideProducer provides a Kafka producer, or nil when no brokers are
// configured.
func ProvideProducer(cfg *config.Config, logger zerolog.Logger) (*kafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:   cfg.Kafka.Brokers,
		Logger:    logger,
		WorkerNum: cfg.Kafka.WorkerNum,
	})
	if err != nil {
		return nil, nil, err
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideRedisClient provides a Redis client, or nil when no address is
// configured.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSinks collects the feed sinks enabled by configuration.
func ProvideSinks(cfg *config.Config, producer *kafka.Producer, client *redis.Client) []jackpot.Sink {
	var sinks []jackpot.Sink
	if producer != nil {
		sinks = append(sinks, kafka.NewPoolUpdateSink(producer, cfg.Kafka.Topic(config.TopicPoolUpdates)))
	}
	if client != nil {
		sinks = append(sinks, redis.NewPoolCache(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL))
	}
	return sinks
}

// ProvideFeed provides the pool update feed.
func ProvideFeed(cfg *config.Config, store jackpot.Store, sinks []jackpot.Sink, logger zerolog.Logger) (*jackpot.Feed, error) {
	return jackpot.NewFeed(jackpot.FeedConfig{
		Store:             store,
		Logger:            logger,
		BroadcastInterval: cfg.Feed.BroadcastInterval,
		RefreshSchedule:   cfg.Feed.RefreshSchedule,
		Sinks:             sinks,
	})
}

// ProvideEngineConfig wires the engines to the store and the feed.
func ProvideEngineConfig(store jackpot.Store, registry *jackpot.Registry, feed *jackpot.Feed, logger zerolog.Logger) jackpot.EngineConfig {
	return jackpot.EngineConfig{
		Store:     store,
		Registry:  registry,
		Publisher: feed,
		Logger:    logger,
	}
}

// ProvideSeeder provides the jackpot seeder.
func ProvideSeeder(store jackpot.Store, registry *jackpot.Registry, logger zerolog.Logger) *jackpot.Seeder {
	return jackpot.NewSeeder(store, registry, logger)
}

// ProvideBetPublisher publishes bets to Kafka when brokers are configured
// and applies them in the request otherwise.
func ProvideBetPublisher(cfg *config.Config, producer *kafka.Producer, contributions *jackpot.ContributionService) server.BetPublisher {
	if producer == nil {
		return server.NewDirectBetPublisher(contributions)
	}
	return server.NewKafkaBetPublisher(producer, cfg.Kafka.Topic(config.TopicBets))
}

// ProvideConsumers provides the bet and pool update consumers. Each
// instance reads pool updates in its own group so every instance sees every
// update.
func ProvideConsumers(cfg *config.Config, contributions *jackpot.ContributionService, feed *jackpot.Feed, logger zerolog.Logger) []*kafka.Consumer {
	if !cfg.Kafka.Enabled() {
		return nil
	}

	bets := kafka.NewBetHandler(contributions, cfg.Kafka.MaxRetries, cfg.Kafka.RetryBackoff, logger)
	return []*kafka.Consumer{
		kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic(config.TopicBets),
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			FromBeginning: true,
			Logger:        logger,
		}, bets.Handle),
		kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic(config.TopicPoolUpdates),
			ConsumerGroup: cfg.Kafka.ConsumerGroup + "-feed-" + feed.Origin(),
			Logger:        logger,
		}, kafka.NewPoolUpdateHandler(feed, logger)),
	}
}

// ProvideServerOptions provides server options
func ProvideServerOptions(
	cfg *config.Config,
	logger zerolog.Logger,
	contributions *jackpot.ContributionService,
	evaluations *jackpot.EvaluationService,
	query *jackpot.QueryService,
	feed *jackpot.Feed,
	bets server.BetPublisher,
) server.Options {
	return server.Options{
		Config:        cfg,
		Logger:        logger,
		Contributions: contributions,
		Evaluations:   evaluations,
		Query:         query,
		Feed:          feed,
		Bets:          bets,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	app := server.New(opts)
	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterJackpotRoutes()
	return app
}

// ProvideRuntime assembles the serve runtime.
func ProvideRuntime(cfg *config.Config, logger zerolog.Logger, app *server.App, feed *jackpot.Feed, seeder *jackpot.Seeder, consumers []*kafka.Consumer) *Runtime {
	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		App:       app,
		Feed:      feed,
		Seeder:    seeder,
		Consumers: consumers,
	}
}

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// StoreSet is the wire provider set for the jackpot store
var StoreSet = wire.NewSet(
	ProvideStore,
)

// MessagingSet is the wire provider set for Kafka and Redis
var MessagingSet = wire.NewSet(
	ProvideProducer,
	ProvideRedisClient,
	ProvideSinks,
	ProvideConsumers,
)

// EngineSet is the wire provider set for the jackpot engines
var EngineSet = wire.NewSet(
	ProvideRegistry,
	ProvideFeed,
	ProvideEngineConfig,
	ProvideSeeder,
	jackpot.NewContributionService,
	jackpot.NewEvaluationService,
	jackpot.NewQueryService,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideBetPublisher,
	ProvideServerOptions,
	ProvideApp,
)

// FullSet includes every provider needed by the serve command
var FullSet = wire.NewSet(
	LoggingSet,
	StoreSet,
	MessagingSet,
	EngineSet,
	ServerSet,
	ProvideRuntime,
)
