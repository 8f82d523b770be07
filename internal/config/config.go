// Package config defines all configuration structures for the FediSent
// analytics worker. No I/O or parsing logic lives here; only plain data
// types and validation.
package config

import (
	"fmt"
	"time"
)

// QueueConfig holds work-queue (Redis) connection and consumption settings.
type QueueConfig struct {
	// URL is a redis:// connection string, e.g. redis://localhost:6379/0.
	URL      string `mapstructure:"url"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`

	// DequeueTimeoutSeconds bounds each blocking pop so shutdown signals are
	// observed promptly on an empty queue.
	DequeueTimeoutSeconds int `mapstructure:"dequeue_timeout_seconds"`

	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DequeueTimeout returns the blocking-pop timeout as a duration.
func (q QueueConfig) DequeueTimeout() time.Duration {
	return time.Duration(q.DequeueTimeoutSeconds) * time.Second
}

// StoreConfig holds document-store (OpenSearch) settings.
type StoreConfig struct {
	Host               string `mapstructure:"host"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	IndexPrefix        string `mapstructure:"index_prefix"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`

	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// FilterConfig selects the aspect filter preset.
type FilterConfig struct {
	// Mode is one of strict, balanced, permissive.
	Mode string `mapstructure:"mode"`
}

// InferenceConfig holds the endpoints and limits for the external model
// serving services.
type InferenceConfig struct {
	TaggerURL    string `mapstructure:"tagger_url"`
	SentimentURL string `mapstructure:"sentiment_url"`
	EmotionURL   string `mapstructure:"emotion_url"`

	// DefaultLanguage is the tagger model used when a post declares no
	// language or the declared model is unavailable.
	DefaultLanguage string `mapstructure:"default_language"`

	// RequestTimeout bounds each synchronous inference call. A hung model
	// must not stall the consumer loop.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// SentimentWindow is the character budget for sentiment input.
	SentimentWindow int `mapstructure:"sentiment_window"`

	// EmotionCutoff discards emotion scores at or below this value.
	EmotionCutoff float64 `mapstructure:"emotion_cutoff"`
}

// CacheConfig holds the in-process enrichment cache settings and the
// optional shared Redis tier for multi-worker deployments.
type CacheConfig struct {
	Capacity      int  `mapstructure:"capacity"`
	RemoteEnabled bool `mapstructure:"remote_enabled"`

	RemoteTTL time.Duration `mapstructure:"remote_ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// WorkerConfig holds consumer-loop execution settings.
type WorkerConfig struct {
	// Concurrency sizes the pool used for the per-item inference sub-steps.
	// 1 keeps the fully sequential baseline.
	Concurrency int `mapstructure:"concurrency"`

	MaxRetries            int     `mapstructure:"max_retries"`
	RetryBaseDelaySeconds float64 `mapstructure:"retry_base_delay_seconds"`

	// StatsEvery emits a statistics snapshot after this many processed items.
	StatsEvery int `mapstructure:"stats_every"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// StartupRetries bounds connection attempts to the queue and store
	// before the process exits with a failure status.
	StartupRetries int           `mapstructure:"startup_retries"`
	StartupBackoff time.Duration `mapstructure:"startup_backoff"`
}

// RetryBaseDelay returns the indexing retry base delay as a duration.
func (w WorkerConfig) RetryBaseDelay() time.Duration {
	return time.Duration(w.RetryBaseDelaySeconds * float64(time.Second))
}

// AdminConfig holds the worker's admin HTTP endpoint settings.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // gin mode: debug | release | test
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// MirrorConfig holds the optional Kafka fanout of enriched documents.
type MirrorConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LogConfig holds structured-logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | console
}

// Config is the root configuration for the worker and CLI processes.
type Config struct {
	Queue     QueueConfig     `mapstructure:"queue"`
	Store     StoreConfig     `mapstructure:"store"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Inference InferenceConfig `mapstructure:"inference"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Log       LogConfig       `mapstructure:"log"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers treat any error as fatal.
func (c *Config) Validate() error {
	if c.Queue.URL == "" {
		return fmt.Errorf("config: queue.url is required")
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("config: queue.name is required")
	}
	if c.Queue.DequeueTimeoutSeconds < 1 {
		return fmt.Errorf("config: queue.dequeue_timeout_seconds must be >= 1, got %d", c.Queue.DequeueTimeoutSeconds)
	}

	if c.Store.Host == "" {
		return fmt.Errorf("config: store.host is required")
	}
	if c.Store.IndexPrefix == "" {
		return fmt.Errorf("config: store.index_prefix is required")
	}

	switch c.Filter.Mode {
	case "strict", "balanced", "permissive":
	default:
		return fmt.Errorf("config: filter.mode %q is invalid; expected strict|balanced|permissive", c.Filter.Mode)
	}

	if c.Inference.RequestTimeout <= 0 {
		return fmt.Errorf("config: inference.request_timeout must be positive, got %s", c.Inference.RequestTimeout)
	}
	if c.Inference.SentimentWindow < 1 {
		return fmt.Errorf("config: inference.sentiment_window must be >= 1, got %d", c.Inference.SentimentWindow)
	}

	if c.Cache.Capacity < 1 {
		return fmt.Errorf("config: cache.capacity must be >= 1, got %d", c.Cache.Capacity)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("config: worker.max_retries must be >= 1, got %d", c.Worker.MaxRetries)
	}
	if c.Worker.RetryBaseDelaySeconds <= 0 {
		return fmt.Errorf("config: worker.retry_base_delay_seconds must be positive, got %g", c.Worker.RetryBaseDelaySeconds)
	}
	if c.Worker.StatsEvery < 1 {
		return fmt.Errorf("config: worker.stats_every must be >= 1, got %d", c.Worker.StatsEvery)
	}

	if c.Admin.Enabled {
		if c.Admin.Port < 1 || c.Admin.Port > 65535 {
			return fmt.Errorf("config: admin.port %d is out of range [1, 65535]", c.Admin.Port)
		}
		switch c.Admin.Mode {
		case "debug", "release", "test":
		default:
			return fmt.Errorf("config: admin.mode %q is invalid; expected debug|release|test", c.Admin.Mode)
		}
	}

	if c.Mirror.Enabled {
		if len(c.Mirror.Brokers) == 0 {
			return fmt.Errorf("config: mirror.brokers must contain at least one broker when the mirror is enabled")
		}
		if c.Mirror.Topic == "" {
			return fmt.Errorf("config: mirror.topic is required when the mirror is enabled")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
