package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	NewRelic  NewRelicConfig
	Log       LogConfig
	Auth      AuthConfig
	Payments  PaymentsConfig
	Stripe    StripeConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MongoConfig holds MongoDB configuration. Only used when the audit backend is mongo.
type MongoConfig struct {
	URI      string
	Database string
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level      string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	Console    bool
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// PaymentsConfig toggles live payment processing. When disabled the service
// runs in mock mode and never contacts the processor.
type PaymentsConfig struct {
	Enabled  bool
	Currency string
}

// StripeConfig holds processor credentials and client limits.
type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	Timeout           time.Duration
	MaxNetworkRetries int64
	RequestsPerSecond float64
	Burst             int
}

// RateLimitConfig holds fixed-window limits in "<limit>-<period>" form, e.g. "60-M".
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	API     string
	Webhook string
	Admin   string
}

// AuditConfig selects where audit entries are written.
type AuditConfig struct {
	Backend string
	Timeout time.Duration
}

// Audit backends.
const (
	AuditBackendPostgres = "postgres"
	AuditBackendMongo    = "mongo"
)

// setting binds a config key to its environment variable and default.
type setting struct {
	key      string
	env      string
	fallback any
}

var settings = []setting{
	{"server.port", "SERVER_PORT", "8080"},
	{"server.mode", "GIN_MODE", "release"},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", 10 * time.Second},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", 30 * time.Second},
	{"server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT", 10 * time.Second},

	{"database.host", "DB_HOST", "localhost"},
	{"database.port", "DB_PORT", "5432"},
	{"database.user", "DB_USER", "postgres"},
	{"database.password", "DB_PASSWORD", "postgres"},
	{"database.name", "DB_NAME", "gympay"},
	{"database.sslmode", "DB_SSLMODE", "disable"},

	{"redis.addr", "REDIS_ADDR", "localhost:6379"},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},

	{"mongo.uri", "MONGO_URI", "mongodb://localhost:27017"},
	{"mongo.database", "MONGO_DATABASE", "gympay"},

	{"newrelic.app_name", "NEW_RELIC_APP_NAME", "gympay"},
	{"newrelic.license_key", "NEW_RELIC_LICENSE_KEY", ""},
	{"newrelic.enabled", "NEW_RELIC_ENABLED", false},

	{"log.level", "LOG_LEVEL", "info"},
	{"log.filename", "LOG_FILENAME", "storage/logs/gympay.log"},
	{"log.max_size", "LOG_MAX_SIZE", 64},
	{"log.max_backups", "LOG_MAX_BACKUPS", 5},
	{"log.max_age", "LOG_MAX_AGE", 30},
	{"log.compress", "LOG_COMPRESS", false},
	{"log.console", "LOG_CONSOLE", true},

	{"auth.jwt_secret", "AUTH_JWT_SECRET", ""},
	{"auth.issuer", "AUTH_ISSUER", "gympay"},
	{"auth.token_ttl", "AUTH_TOKEN_TTL", 12 * time.Hour},

	{"payments.enabled", "PAYMENTS_ENABLED", false},
	{"payments.currency", "PAYMENTS_CURRENCY", "usd"},

	{"stripe.secret_key", "STRIPE_SECRET_KEY", ""},
	{"stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET", ""},
	{"stripe.timeout", "STRIPE_TIMEOUT", 10 * time.Second},
	{"stripe.max_network_retries", "STRIPE_MAX_NETWORK_RETRIES", 2},
	{"stripe.requests_per_second", "STRIPE_REQUESTS_PER_SECOND", 20.0},
	{"stripe.burst", "STRIPE_BURST", 10},

	{"ratelimit.enabled", "RATE_LIMIT_ENABLED", true},
	{"ratelimit.prefix", "RATE_LIMIT_PREFIX", "gympay:limiter"},
	{"ratelimit.api", "RATE_LIMIT_API", "60-M"},
	{"ratelimit.webhook", "RATE_LIMIT_WEBHOOK", "600-M"},
	{"ratelimit.admin", "RATE_LIMIT_ADMIN", "120-M"},

	{"audit.backend", "AUDIT_BACKEND", AuditBackendPostgres},
	{"audit.timeout", "AUDIT_TIMEOUT", 5 * time.Second},
}

// Load reads configuration from an optional config file, a .env file and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for _, s := range settings {
		v.SetDefault(s.key, s.fallback)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Mode:            v.GetString("server.mode"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetString("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("newrelic.app_name"),
			LicenseKey: v.GetString("newrelic.license_key"),
			Enabled:    v.GetBool("newrelic.enabled"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Filename:   v.GetString("log.filename"),
			MaxSize:    v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAge:     v.GetInt("log.max_age"),
			Compress:   v.GetBool("log.compress"),
			Console:    v.GetBool("log.console"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Payments: PaymentsConfig{
			Enabled:  v.GetBool("payments.enabled"),
			Currency: strings.ToLower(v.GetString("payments.currency")),
		},
		Stripe: StripeConfig{
			SecretKey:         v.GetString("stripe.secret_key"),
			WebhookSecret:     v.GetString("stripe.webhook_secret"),
			Timeout:           v.GetDuration("stripe.timeout"),
			MaxNetworkRetries: v.GetInt64("stripe.max_network_retries"),
			RequestsPerSecond: v.GetFloat64("stripe.requests_per_second"),
			Burst:             v.GetInt("stripe.burst"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("ratelimit.enabled"),
			Prefix:  v.GetString("ratelimit.prefix"),
			API:     v.GetString("ratelimit.api"),
			Webhook: v.GetString("ratelimit.webhook"),
			Admin:   v.GetString("ratelimit.admin"),
		},
		Audit: AuditConfig{
			Backend: strings.ToLower(v.GetString("audit.backend")),
			Timeout: v.GetDuration("audit.timeout"),
		},
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.Payments.Enabled {
		if c.Stripe.SecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when payments are enabled")
		}
		if c.Stripe.WebhookSecret == "" {
			return errors.New("STRIPE_WEBHOOK_SECRET is required when payments are enabled")
		}
	}
	switch c.Audit.Backend {
	case AuditBackendPostgres, AuditBackendMongo:
	default:
		return fmt.Errorf("unknown audit backend %q", c.Audit.Backend)
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
