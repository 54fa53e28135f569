package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"MOBIRIDES_ADDR", "ENVIRONMENT", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS",
		"JWT_SIGNING_KEY", "ADMIN_API_TOKEN", "SESSION_IDLE_TTL", "VERIFICATION_CACHE_TTL",
		"SESSION_WATCH_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, devSigningKey, cfg.JWTSigningKey)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, 15*time.Second, cfg.Sessions.WatchInterval)
	assert.Equal(t, "verification.status_changed", cfg.Kafka.StatusTopic)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MOBIRIDES_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SESSION_IDLE_TTL", "10m")
	t.Setenv("JWT_SIGNING_KEY", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, "secret", cfg.JWTSigningKey)
}

func TestFromEnvWatchIntervalZeroDisablesWatching(t *testing.T) {
	t.Setenv("SESSION_WATCH_INTERVAL", "0")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Zero(t, cfg.Sessions.WatchInterval)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv("SESSION_IDLE_TTL", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("zero idle ttl", func(t *testing.T) {
		t.Setenv("SESSION_IDLE_TTL", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("negative watch interval", func(t *testing.T) {
		t.Setenv("SESSION_WATCH_INTERVAL", "-5s")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("production requires secrets", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SIGNING_KEY", "")
		_, err := FromEnv()
		assert.Error(t, err)

		t.Setenv("JWT_SIGNING_KEY", "secret")
		t.Setenv("ADMIN_API_TOKEN", "")
		_, err = FromEnv()
		assert.Error(t, err)
	})
}
