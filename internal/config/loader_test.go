package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite3", cfg.Store.Local.Driver)
	assert.Equal(t, 2, cfg.Pipeline.MaxQualityRounds)
	assert.Equal(t, 0.6, cfg.Pipeline.ConfidenceFloor)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 2, cfg.Pipeline.SectionThresholds["drivers"])
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
pipeline:
  max_quality_rounds: 4
  section_thresholds:
    drivers: 7
scheduler:
  poll_interval: 5m
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Pipeline.MaxQualityRounds)
	assert.Equal(t, 7, cfg.Pipeline.SectionThresholds["drivers"])
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PollInterval)
	// Untouched sections still get defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvAlwaysWins(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: warn
redis:
  addr: file-redis:6379
`)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "env-redis:6379")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
}

func TestLoad_ValidatesRanges(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad local driver", "store:\n  local:\n    driver: mysql\n"},
		{"confidence floor above one", "pipeline:\n  confidence_floor: 1.5\n"},
		{"zero threshold", "pipeline:\n  section_thresholds:\n    drivers: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", config.Path())

	t.Setenv("CONFIG_PATH", "/etc/analyst/config.yml")
	assert.Equal(t, "/etc/analyst/config.yml", config.Path())
}
