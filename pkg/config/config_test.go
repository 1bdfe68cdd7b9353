package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 500, cfg.Bulk.MaxBatchSize)
	assert.Equal(t, 14*24*time.Hour, cfg.Stats.ReviewSLA)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("REVIEW_SLA", "72h")
	t.Setenv("ALLOWED_ORIGINS", "https://console.example.edu, ,https://ops.example.edu")
	t.Setenv("STATS_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Stats.ReviewSLA)
	assert.Equal(t, []string{"https://console.example.edu", "https://ops.example.edu"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Stats.CacheTTL)
}
