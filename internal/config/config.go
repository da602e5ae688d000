package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// MinPollInterval is the shortest refresh interval advertised to chat clients.
const MinPollInterval = time.Second

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `envPrefix:"SQLITE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Logger   LoggerConfig
	Auth     AuthConfig  `envPrefix:"AUTH_"`
	Chat     ChatConfig  `envPrefix:"CHAT_"`
	AMQP     AMQPConfig  `envPrefix:"AMQP_"`
	Stats    StatsConfig `envPrefix:"STATS_"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"NAME" envDefault:"librosfab-support"`
	Env                   string `env:"ENV" envDefault:"development"`
	Host                  string `env:"HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"PORT" envDefault:"8080"`
	Version               string `env:"VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver        string `env:"DRIVER" envDefault:"postgres"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"DSN"`
	MaxConns       int32  `env:"MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"MIN_CONNS" envDefault:"2"`
	ConnMaxIdleSec int32  `env:"CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"./data/support.db"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `env:"JWT_SECRET" envDefault:"dev-secret"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
	BcryptCost            int    `env:"BCRYPT_COST" envDefault:"12"`
	SessionCookie         string `env:"SESSION_COOKIE" envDefault:"session"`
}

// ChatConfig tunes the polling chat surface.
type ChatConfig struct {
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollRequestsPerMin   int           `env:"POLL_REQUESTS_PER_MINUTE" envDefault:"120"`
	ThreadCacheTTL       time.Duration `env:"THREAD_CACHE_TTL" envDefault:"30s"`
	ThreadCacheKeyPrefix string        `env:"THREAD_CACHE_PREFIX" envDefault:"thread:"`
}

// AMQPConfig points the event publisher at a broker. Empty URL disables it.
type AMQPConfig struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"support.tickets"`
}

// StatsConfig schedules the periodic ticket statistics report.
type StatsConfig struct {
	Schedule string `env:"SCHEDULE" envDefault:"@hourly"`
}

// Load reads configuration from the environment (and an optional .env file),
// applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == DriverPostgres && cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
	}

	if cfg.Chat.PollInterval < MinPollInterval {
		cfg.Chat.PollInterval = MinPollInterval
	}
	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the session lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}
