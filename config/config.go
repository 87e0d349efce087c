package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Logging     logging.Config    `mapstructure:"logging"`
	Jackpots    []jackpot.Profile `mapstructure:"jackpots"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
	// CORSOrigins restricts browser origins; empty allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreConfig selects the jackpot store.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// PostgresConfig holds database connection configuration
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration. An empty Addr disables
// the pool cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// KafkaConfig holds Kafka configuration. Without brokers bets are applied
// synchronously and pool updates stay local.
type KafkaConfig struct {
	Brokers       []string          `mapstructure:"brokers"`
	ConsumerGroup string            `mapstructure:"consumer_group"`
	Topics        map[string]string `mapstructure:"topics"`
	WorkerNum     int               `mapstructure:"worker_num"`
	MaxRetries    int               `mapstructure:"max_retries"`
	RetryBackoff  time.Duration     `mapstructure:"retry_backoff"`
}

// JWTConfig holds JWT configuration. An empty secret disables authentication.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// FeedConfig tunes the pool update feed.
type FeedConfig struct {
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	RefreshSchedule   string        `mapstructure:"refresh_schedule"`
}

const (
	TopicBets        = "bets"
	TopicPoolUpdates = "pool_updates"
)

// Load loads configuration from YAML file using Viper
func Load(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	return read(v, filename)
}

// LoadByEnv loads config-<env>.yaml from configDir, falling back to the
// working directory.
func LoadByEnv(configDir string) (*Config, error) {
	v := viper.New()

	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	v.SetConfigName(fmt.Sprintf("config-%s", env))
	v.SetConfigType("yaml")
	return read(v, "config-"+env)
}

func read(v *viper.Viper, name string) (*Config, error) {
	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", name, err)
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DecodeHook extends viper's default hooks with decimal parsing for money
// and rate fields. Quoted YAML values are parsed exactly.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var (
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	nullDecimalType = reflect.TypeOf(decimal.NullDecimal{})
)

func decimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType && to != nullDecimalType {
		return data, nil
	}
	if data == nil {
		if to == nullDecimalType {
			return decimal.NullDecimal{}, nil
		}
		return decimal.Zero, nil
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch v := data.(type) {
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case float64:
		// YAML numbers arrive as float64; the shortest representation
		// restores the literal that was written.
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %v: %w", data, err)
	}
	if to == nullDecimalType {
		return decimal.NewNullDecimal(d), nil
	}
	return d, nil
}

// setDefaults sets default values for missing configuration
func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 15 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverMemory
	}
	if c.Store.LockTimeout == 0 {
		c.Store.LockTimeout = jackpot.DefaultLockTimeout
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 20
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 5
	}
	if c.Postgres.ConnMaxLifetime == 0 {
		c.Postgres.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 5
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "jackpot"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 10 * time.Minute
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "jackpot-service"
	}
	if c.Kafka.Topics == nil {
		c.Kafka.Topics = make(map[string]string)
	}
	if c.Kafka.Topics[TopicBets] == "" {
		c.Kafka.Topics[TopicBets] = "jackpot-bets"
	}
	if c.Kafka.Topics[TopicPoolUpdates] == "" {
		c.Kafka.Topics[TopicPoolUpdates] = "jackpot-pool-updates"
	}
	if c.Kafka.WorkerNum == 0 {
		c.Kafka.WorkerNum = 4
	}
	if c.Kafka.MaxRetries == 0 {
		c.Kafka.MaxRetries = 3
	}
	if c.Kafka.RetryBackoff == 0 {
		c.Kafka.RetryBackoff = time.Second
	}
	if c.JWT.Expiration == 0 {
		c.JWT.Expiration = 24 * time.Hour
	}
	if c.Feed.BroadcastInterval == 0 {
		c.Feed.BroadcastInterval = jackpot.DefaultBroadcastInterval
	}
	if c.Feed.RefreshSchedule == "" {
		c.Feed.RefreshSchedule = jackpot.DefaultRefreshSchedule
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "jackpotd"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("postgres store requires postgres.host and postgres.dbname")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	seen := make(map[string]bool, len(c.Jackpots))
	for _, p := range c.Jackpots {
		if p.ID == "" {
			return fmt.Errorf("jackpot profile without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate jackpot profile %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// DSN returns the libpq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr returns Redis address
func (c *RedisConfig) GetAddr() string {
	return c.Addr
}

// Enabled reports whether brokers are configured.
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Topic returns the topic configured for key.
func (c *KafkaConfig) Topic(key string) string {
	return c.Topics[key]
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
