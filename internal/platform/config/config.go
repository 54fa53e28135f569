package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      string
	JWTSigningKey string
	AdminAPIToken string
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Sessions      SessionConfig
}

// DatabaseConfig selects the verification store. An empty URL keeps records
// in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig enables the read-through record cache when URL is set.
type RedisConfig struct {
	URL          string
	CacheTTL     time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables status events and the review decision consumer when
// Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	StatusTopic   string
	ReviewTopic   string
	ConsumerGroup string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// SessionConfig bounds how long an idle verification controller is kept.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// WatchInterval is how often a live session re-reads its record. Zero
	// disables background refresh.
	WatchInterval time.Duration
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          envOr("MOBIRIDES_ADDR", ":8080"),
		Environment:   envOr("ENVIRONMENT", "development"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		AdminAPIToken: os.Getenv("ADMIN_API_TOKEN"),
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			StatusTopic:   envOr("KAFKA_STATUS_TOPIC", "verification.status_changed"),
			ReviewTopic:   envOr("KAFKA_REVIEW_TOPIC", "verification.review_decisions"),
			ConsumerGroup: envOr("KAFKA_CONSUMER_GROUP", "mobirides-verification"),
		},
	}

	var err error
	if cfg.Database.MaxOpenConns, err = envInt("DATABASE_MAX_OPEN_CONNS", 25); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxIdleConns, err = envInt("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Redis.CacheTTL, err = envDuration("VERIFICATION_CACHE_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = envInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = envInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second
	if cfg.Sessions.IdleTTL, err = envDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Sessions.SweepInterval, err = envDuration("SESSION_SWEEP_INTERVAL", time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Sessions.WatchInterval, err = envDurationAllowZero("SESSION_WATCH_INTERVAL", 15*time.Second); err != nil {
		return Server{}, err
	}

	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		cfg.JWTSigningKey = devSigningKey
	}
	if cfg.IsProduction() && cfg.AdminAPIToken == "" {
		return Server{}, fmt.Errorf("ADMIN_API_TOKEN is required in production")
	}
	return cfg, nil
}

func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	d, err := envDurationAllowZero(key, fallback)
	if err == nil && d == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, err
}

// envDurationAllowZero is envDuration for settings where 0 turns a feature off.
func envDurationAllowZero(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
