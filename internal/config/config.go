package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Invitation   InvitationConfig
	Audit        AuditConfig
	Catalog      CatalogConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ConnectAttempts int
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	MigrationsDir   string
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig controls delivery of outbound messages.
type NotificationConfig struct {
	RedisChannel        string
	MaxAttempts         int
	RetryBackoffMillis  int
	DeliveryTimeoutMs   int
	BreakerMaxFailures  int
	BreakerOpenSeconds  int
	BreakerHalfOpenReqs int
}

// InvitationConfig holds invitation defaults.
type InvitationConfig struct {
	DefaultTTLHours         int
	ProvisionTimeoutSeconds int
}

// AuditConfig bounds audit writes.
type AuditConfig struct {
	WriteTimeoutMillis int
}

// CatalogConfig points at the status/category/priority seed file.
type CatalogConfig struct {
	SeedPath string
}

// Load reads configuration from environment variables, applying defaults where possible.
// Variables from envFiles are loaded first when present; with no files the default .env is tried.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-workflow"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ConnectAttempts: getEnvAsInt("POSTGRES_CONNECT_ATTEMPTS", 5),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			MigrationsDir:   getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			RedisChannel:        getEnv("NOTIFY_REDIS_CHANNEL", "notifications"),
			MaxAttempts:         getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			RetryBackoffMillis:  getEnvAsInt("NOTIFY_RETRY_BACKOFF_MS", 200),
			DeliveryTimeoutMs:   getEnvAsInt("NOTIFY_DELIVERY_TIMEOUT_MS", 2000),
			BreakerMaxFailures:  getEnvAsInt("NOTIFY_BREAKER_MAX_FAILURES", 5),
			BreakerOpenSeconds:  getEnvAsInt("NOTIFY_BREAKER_OPEN_SECONDS", 30),
			BreakerHalfOpenReqs: getEnvAsInt("NOTIFY_BREAKER_HALF_OPEN_REQUESTS", 1),
		},
		Invitation: InvitationConfig{
			DefaultTTLHours:         getEnvAsInt("INVITATION_DEFAULT_TTL_HOURS", 168),
			ProvisionTimeoutSeconds: getEnvAsInt("INVITATION_PROVISION_TIMEOUT_SECONDS", 10),
		},
		Audit: AuditConfig{
			WriteTimeoutMillis: getEnvAsInt("AUDIT_WRITE_TIMEOUT_MS", 2000),
		},
		Catalog: CatalogConfig{
			SeedPath: getEnv("CATALOG_SEED_PATH", "catalog.yaml"),
		},
	}

	if cfg.Notification.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid NOTIFY_MAX_ATTEMPTS: must be at least 1")
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

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RetryBackoff returns the base delay between delivery attempts.
func (n NotificationConfig) RetryBackoff() time.Duration {
	return time.Duration(n.RetryBackoffMillis) * time.Millisecond
}

// DeliveryTimeout caps the time spent delivering one message, retries included.
func (n NotificationConfig) DeliveryTimeout() time.Duration {
	return time.Duration(n.DeliveryTimeoutMs) * time.Millisecond
}

// BreakerOpenTimeout returns how long the breaker stays open before probing.
func (n NotificationConfig) BreakerOpenTimeout() time.Duration {
	return time.Duration(n.BreakerOpenSeconds) * time.Second
}

// DefaultTTL returns the invitation lifetime used when a caller passes zero.
func (i InvitationConfig) DefaultTTL() time.Duration {
	return time.Duration(i.DefaultTTLHours) * time.Hour
}

// ProvisionTimeout bounds the post-signup provisioning transaction.
func (i InvitationConfig) ProvisionTimeout() time.Duration {
	return time.Duration(i.ProvisionTimeoutSeconds) * time.Second
}

// WriteTimeout returns the deadline applied to a single audit insert.
func (a AuditConfig) WriteTimeout() time.Duration {
	return time.Duration(a.WriteTimeoutMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
