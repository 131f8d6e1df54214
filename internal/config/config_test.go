package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "servicedesk", cfg.App.Name)
	assert.Equal(t, "memory", cfg.App.Store)
	assert.Equal(t, "redis", cfg.Notification.Sink)
	assert.Equal(t, "servicedesk.notifications", cfg.Notification.StreamKey)
	assert.Equal(t, "@every 30s", cfg.Notification.RelaySchedule)
	assert.Equal(t, 100, cfg.Notification.RelayBatchSize)
	assert.Equal(t, 3*time.Second, cfg.Notification.DeliveryTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Notification.ClaimLease())
	assert.Equal(t, time.Minute, cfg.Cache.UserTTL())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_STORE", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/servicedesk")
	t.Setenv("NOTIFY_SINK", "log")
	t.Setenv("NOTIFY_RELAY_BATCH_SIZE", "25")
	t.Setenv("CACHE_USER_TTL_SECONDS", "5")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "log", cfg.Notification.Sink)
	assert.Equal(t, 25, cfg.Notification.RelayBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Cache.UserTTL())
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("APP_STORE", "postgres")
		t.Setenv("POSTGRES_DSN", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("APP_STORE", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("short bootstrap password", func(t *testing.T) {
		t.Setenv("APP_STORE", "memory")
		t.Setenv("AUTH_BOOTSTRAP_EMAIL", "root@example.com")
		t.Setenv("AUTH_BOOTSTRAP_PASSWORD", "short")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown sink", func(t *testing.T) {
		t.Setenv("APP_STORE", "memory")
		t.Setenv("NOTIFY_SINK", "carrier-pigeon")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("SD_TEST_INT", "not-a-number")
	t.Setenv("SD_TEST_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("SD_TEST_INT", 7))
	assert.True(t, getEnvAsBool("SD_TEST_BOOL", true))
	assert.Equal(t, "x", getEnv("SD_TEST_UNSET", "x"))
}
