package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/shortener")

	cfg, err := FromEnv("api-service")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SweepGrace)
	assert.Equal(t, 7, cfg.CodeLength)
	assert.Equal(t, 100, cfg.ClickBatchSize)
	assert.Equal(t, "buffered", cfg.ClickSink)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_URL", "file:links.db")
	t.Setenv("APP_DOMAIN", "https://sho.rt/")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CACHE_TTL", "90m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NODE_ID", "12")

	cfg, err := FromEnv("api-service")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "https://sho.rt", cfg.AppDomain)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, int64(12), cfg.NodeID)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/shortener")

	t.Run("duration", func(t *testing.T) {
		t.Setenv("SWEEP_INTERVAL", "daily")
		_, err := FromEnv("api-service")
		assert.ErrorContains(t, err, "SWEEP_INTERVAL")
	})
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := FromEnv("api-service")
		assert.ErrorContains(t, err, "DB_DRIVER")
	})
	t.Run("amqp without url", func(t *testing.T) {
		t.Setenv("CLICK_SINK", "amqp")
		_, err := FromEnv("api-service")
		assert.ErrorContains(t, err, "RABBITMQ_URL")
	})
}

func TestFromEnvRequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	_, err := FromEnv("api-service")
	assert.ErrorContains(t, err, "DB_URL")
}

func TestPortPerService(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/shortener")
	t.Setenv("API_SERVICE_PORT", ":3000")
	t.Setenv("ANALYTICS_WORKER_PORT", ":3001")

	api, err := FromEnv("api-service")
	require.NoError(t, err)
	assert.Equal(t, ":3000", api.Port)

	worker, err := FromEnv("analytics-worker")
	require.NoError(t, err)
	assert.Equal(t, ":3001", worker.Port)
}
