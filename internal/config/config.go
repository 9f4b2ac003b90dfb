package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"

	// userLockSlack covers the ledger write and session cleanup that run
	// after the sale call while the user lock is still held.
	userLockSlack = 15 * time.Second
)

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Postgres  PostgresConfig  `envconfig:"POSTGRES"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Authority AuthorityConfig `envconfig:"AUTHORITY"`
	AMQP      AMQPConfig      `envconfig:"AMQP"`

	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	SessionStore  string        `envconfig:"SESSION_STORE" default:"memory"`
	UserLock      string        `envconfig:"USER_LOCK" default:"local"`
	UserLockWait  time.Duration `envconfig:"USER_LOCK_WAIT" default:"5s"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m"`

	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
}

// Nested fields carry no envconfig tag so that, for example, Postgres.User
// reads only POSTGRES_USER and never falls back to $USER.
type ServerConfig struct {
	Host string `default:"localhost"`
	Port int    `default:"8080"`
}

type RedisConfig struct {
	Addr         string `default:"localhost:6380"`
	Password     string
	DB           int           `default:"0"`
	PoolSize     int           `split_words:"true"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"3s"`
	WriteTimeout time.Duration `split_words:"true" default:"3s"`
}

type PostgresConfig struct {
	User     string `required:"true"`
	Password string `required:"true"`
	DB       string `required:"true"`
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	SSLMode  string `default:"disable"`
	MaxConns int32  `split_words:"true" default:"10"`
}

type AuthorityConfig struct {
	BaseURL        string `split_words:"true" required:"true"`
	Token          string
	ConnectTimeout time.Duration `split_words:"true" default:"10s"`
	ReadTimeout    time.Duration `split_words:"true" default:"30s"`
}

// AMQPConfig is optional; an empty URL disables the RabbitMQ listeners.
type AMQPConfig struct {
	URL          string
	CatalogQueue string `split_words:"true" default:"catalog.updates"`
	SalesQueue   string `split_words:"true" default:"sales.completed"`
}

// New loads .env if present, then reads the environment.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("missing JWT_SECRET")
	}

	c.SessionStore = strings.ToLower(c.SessionStore)
	if c.SessionStore != StoreMemory && c.SessionStore != StorePostgres {
		return fmt.Errorf("invalid SESSION_STORE %q", c.SessionStore)
	}

	c.UserLock = strings.ToLower(c.UserLock)
	if c.UserLock != LockLocal && c.UserLock != LockRedis {
		return fmt.Errorf("invalid USER_LOCK %q", c.UserLock)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SESSION_TTL %s", c.SessionTTL)
	}

	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %d", c.RateLimitPerMinute)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// UserLockTTL is the expiry for a distributed user lock. Confirming a sale
// holds the lock across a price lookup and the sale call, and each may take
// the authority client's full timeout, so the lock must outlive both.
func (c *Config) UserLockTTL() time.Duration {
	perCall := c.Authority.ConnectTimeout + c.Authority.ReadTimeout
	return 2*perCall + userLockSlack
}

// Level maps LOG_LEVEL to a slog level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}
