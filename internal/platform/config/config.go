package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"proctrack/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Calendar CalendarConfig
	Tracking TrackingConfig
	Sequence SequenceConfig
}

// PostgresConfig is empty when the service runs on in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
}

// RedisConfig configures the workflow catalog cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CatalogTTL   time.Duration
}

// KafkaConfig configures the notification publisher. No brokers means
// notifications are only logged.
type KafkaConfig struct {
	Brokers     []string
	NotifyTopic string
	ClientID    string
}

type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// CalendarConfig holds business calendar exceptions.
type CalendarConfig struct {
	Timezone string
	Holidays []string
}

// TrackingConfig holds the delay and overdue policy knobs.
type TrackingConfig struct {
	IdleThresholdDays       int
	WarningMaxDelayDays     int
	OverdueRenotifyCooldown time.Duration
	OverdueSweepInterval    time.Duration
}

type SequenceConfig struct {
	LockTimeout time.Duration
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:      getString("PROCTRACK_ADDR", ":8080"),
		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "json"),
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 20, &errs),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5, &errs),
			TxTimeout:    getDuration("TX_TIMEOUT", 5*time.Second, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 2*time.Second, &errs),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond, &errs),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond, &errs),
			CatalogTTL:   getDuration("CATALOG_CACHE_TTL", 5*time.Minute, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.SplitList(os.Getenv("KAFKA_BROKERS")),
			NotifyTopic: getString("KAFKA_NOTIFY_TOPIC", "procurement.notifications"),
			ClientID:    getString("KAFKA_CLIENT_ID", "proctrack"),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     getString("JWT_ISSUER", "municipal-sso"),
			JWTAudience:   getString("JWT_AUDIENCE", "proctrack"),
		},
		Calendar: CalendarConfig{
			Timezone: getString("BUSINESS_TIMEZONE", "Asia/Manila"),
			Holidays: strings.SplitList(os.Getenv("BUSINESS_HOLIDAYS")),
		},
		Tracking: TrackingConfig{
			IdleThresholdDays:       getInt("IDLE_THRESHOLD_DAYS", 2, &errs),
			WarningMaxDelayDays:     getInt("SEVERITY_WARNING_MAX_DAYS", 3, &errs),
			OverdueRenotifyCooldown: getDuration("OVERDUE_RENOTIFY_COOLDOWN", 24*time.Hour, &errs),
			OverdueSweepInterval:    getDuration("OVERDUE_SWEEP_INTERVAL", 24*time.Hour, &errs),
		},
		Sequence: SequenceConfig{
			LockTimeout: getDuration("SEQUENCE_LOCK_TIMEOUT", 2*time.Second, &errs),
		},
	}
	if cfg.Tracking.IdleThresholdDays < 0 {
		errs = append(errs, fmt.Errorf("IDLE_THRESHOLD_DAYS must not be negative"))
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %v", errs)
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
