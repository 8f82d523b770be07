// Package config provides configuration loading, defaults, and validation
// for the FediSent analytics worker.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all settings.
const envPrefix = "FEDISENT"

// envBindings maps every config key to its environment variable names. The
// first name follows the FEDISENT_<SECTION>_<FIELD> convention; where the
// deployment surface historically used a flat name (QUEUE_URL, FILTER_MODE,
// DEQUEUE_TIMEOUT_SECONDS and friends) that name is bound as a fallback so
// existing deployments keep working.
var envBindings = map[string][]string{
	"queue.url":                       {"FEDISENT_QUEUE_URL", "QUEUE_URL"},
	"queue.name":                      {"FEDISENT_QUEUE_NAME", "QUEUE_NAME"},
	"queue.password":                  {"FEDISENT_QUEUE_PASSWORD"},
	"queue.dequeue_timeout_seconds":   {"FEDISENT_QUEUE_DEQUEUE_TIMEOUT_SECONDS", "DEQUEUE_TIMEOUT_SECONDS"},
	"store.host":                      {"FEDISENT_STORE_HOST", "STORE_HOST"},
	"store.user":                      {"FEDISENT_STORE_USER"},
	"store.password":                  {"FEDISENT_STORE_PASSWORD"},
	"store.index_prefix":              {"FEDISENT_STORE_INDEX_PREFIX", "STORE_INDEX_PREFIX"},
	"filter.mode":                     {"FEDISENT_FILTER_MODE", "FILTER_MODE"},
	"inference.tagger_url":            {"FEDISENT_INFERENCE_TAGGER_URL"},
	"inference.sentiment_url":         {"FEDISENT_INFERENCE_SENTIMENT_URL"},
	"inference.emotion_url":           {"FEDISENT_INFERENCE_EMOTION_URL"},
	"inference.default_language":      {"FEDISENT_INFERENCE_DEFAULT_LANGUAGE"},
	"cache.capacity":                  {"FEDISENT_CACHE_CAPACITY"},
	"cache.remote_enabled":            {"FEDISENT_CACHE_REMOTE_ENABLED"},
	"worker.concurrency":              {"FEDISENT_WORKER_CONCURRENCY"},
	"worker.max_retries":              {"FEDISENT_WORKER_MAX_RETRIES", "MAX_RETRIES"},
	"worker.retry_base_delay_seconds": {"FEDISENT_WORKER_RETRY_BASE_DELAY_SECONDS", "RETRY_BASE_DELAY_SECONDS"},
	"worker.stats_every":              {"FEDISENT_WORKER_STATS_EVERY"},
	"admin.enabled":                   {"FEDISENT_ADMIN_ENABLED"},
	"admin.port":                      {"FEDISENT_ADMIN_PORT"},
	"metrics.enabled":                 {"FEDISENT_METRICS_ENABLED"},
	"mirror.enabled":                  {"FEDISENT_MIRROR_ENABLED"},
	"mirror.brokers":                  {"FEDISENT_MIRROR_BROKERS"},
	"mirror.topic":                    {"FEDISENT_MIRROR_TOPIC"},
	"log.level":                       {"FEDISENT_LOG_LEVEL", "LOG_LEVEL"},
	"log.format":                      {"FEDISENT_LOG_FORMAT"},
}

// newViper builds a pre-configured viper instance: YAML file type, FEDISENT_
// env prefix, automatic env binding with "." mapped to "_", and the explicit
// bindings above so env-only loading works without a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range envBindings {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// Load reads the YAML file at configPath, merges environment overrides,
// applies defaults for unset fields, and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from environment variables with no
// config file. This is the preferred strategy for containerised deployments.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file changes on disk. Intended for hot-reloading
// the safe subset of settings (log level); pipeline-affecting settings are
// fixed for the process lifetime, so callers must apply only what is safe.
//
// Watch is non-blocking; viper manages the background goroutine. A changed
// file that fails to parse or validate does not trigger the callback.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// MustLoadFromEnv is LoadFromEnv with panic-on-error semantics.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("config: MustLoadFromEnv failed: %v", err))
	}
	return cfg
}
