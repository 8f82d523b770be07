package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileValuesApplied(t *testing.T) {
	path := writeTempConfig(t, `
queue:
  url: redis://queue-host:6379/1
  name: firehose
filter:
  mode: strict
worker:
  max_retries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://queue-host:6379/1", cfg.Queue.URL)
	assert.Equal(t, "firehose", cfg.Queue.Name)
	assert.Equal(t, "strict", cfg.Filter.Mode)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	// Untouched sections fall back to defaults.
	assert.Equal(t, DefaultStoreHost, cfg.Store.Host)
	assert.Equal(t, DefaultStatsEvery, cfg.Worker.StatsEvery)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	path := writeTempConfig(t, `
filter:
  mode: nonsense
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter.mode")
}

func TestLoadFromEnv_PrefixedVars(t *testing.T) {
	t.Setenv("FEDISENT_QUEUE_URL", "redis://env-host:6379/0")
	t.Setenv("FEDISENT_FILTER_MODE", "permissive")
	t.Setenv("FEDISENT_WORKER_MAX_RETRIES", "4")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "redis://env-host:6379/0", cfg.Queue.URL)
	assert.Equal(t, "permissive", cfg.Filter.Mode)
	assert.Equal(t, 4, cfg.Worker.MaxRetries)
}

func TestLoadFromEnv_FlatLegacyVars(t *testing.T) {
	t.Setenv("QUEUE_URL", "redis://legacy:6379/0")
	t.Setenv("QUEUE_NAME", "legacy_queue")
	t.Setenv("STORE_HOST", "http://legacy-store:9200")
	t.Setenv("STORE_INDEX_PREFIX", "legacy-absa")
	t.Setenv("FILTER_MODE", "strict")
	t.Setenv("DEQUEUE_TIMEOUT_SECONDS", "2")
	t.Setenv("MAX_RETRIES", "6")
	t.Setenv("RETRY_BASE_DELAY_SECONDS", "0.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "redis://legacy:6379/0", cfg.Queue.URL)
	assert.Equal(t, "legacy_queue", cfg.Queue.Name)
	assert.Equal(t, "http://legacy-store:9200", cfg.Store.Host)
	assert.Equal(t, "legacy-absa", cfg.Store.IndexPrefix)
	assert.Equal(t, "strict", cfg.Filter.Mode)
	assert.Equal(t, 2, cfg.Queue.DequeueTimeoutSeconds)
	assert.Equal(t, 6, cfg.Worker.MaxRetries)
	assert.Equal(t, 0.5, cfg.Worker.RetryBaseDelaySeconds)
}

func TestLoadFromEnv_PrefixedWinsOverFlat(t *testing.T) {
	t.Setenv("FEDISENT_FILTER_MODE", "strict")
	t.Setenv("FILTER_MODE", "permissive")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Filter.Mode)
}

func TestLoadFromEnv_NoEnvYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueURL, cfg.Queue.URL)
	assert.Equal(t, DefaultFilterMode, cfg.Filter.Mode)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/does/not/exist.yaml") })
}
