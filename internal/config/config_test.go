package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "STORE_BACKEND", "MAX_BALLS", "IDLE_FORFEIT_SECONDS", "RESULTS_BACKEND", "MATCHMAKER_POLL_MS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "postgres", cfg.ResultsBackend)
	assert.Equal(t, 6, cfg.MaxBalls)
	assert.Equal(t, 3, cfg.CountdownSeconds)
	assert.Equal(t, 40, cfg.IdleForfeitSeconds)
	assert.Equal(t, 2000, cfg.MatchmakerPollMs)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MAX_BALLS", "12")
	t.Setenv("MIGRATE_ON_START", "true")
	t.Setenv("INSTANCE_ID", "api-2")

	cfg := Load()
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 12, cfg.MaxBalls)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, "api-2", cfg.InstanceID)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_BALLS", "six")
	assert.Equal(t, 6, getEnvInt("MAX_BALLS", 6))
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Millis(1500))
}
