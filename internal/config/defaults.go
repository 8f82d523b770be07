package config

import "time"

// Default value constants. All optional settings have a working local
// default so the worker starts against a stock docker-compose stack with no
// configuration at all.
const (
	DefaultQueueURL              = "redis://localhost:6379/0"
	DefaultQueueName             = "toot_queue"
	DefaultDequeueTimeoutSeconds = 1
	DefaultQueuePoolSize         = 10

	DefaultStoreHost           = "http://localhost:9200"
	DefaultStoreIndexPrefix    = "toots-absa"
	DefaultHealthCheckInterval = 30 * time.Second

	DefaultFilterMode = "balanced"

	DefaultTaggerURL        = "http://localhost:8081"
	DefaultSentimentURL     = "http://localhost:8082"
	DefaultEmotionURL       = "http://localhost:8083"
	DefaultLanguage         = "fr"
	DefaultInferenceTimeout = 15 * time.Second
	DefaultSentimentWindow  = 512
	DefaultEmotionCutoff    = 0.1

	DefaultCacheCapacity  = 1000
	DefaultCacheRemoteTTL = 6 * time.Hour
	DefaultCacheKeyPrefix = "fedisent"

	DefaultWorkerConcurrency     = 1
	DefaultMaxRetries            = 3
	DefaultRetryBaseDelaySeconds = 1.0
	DefaultStatsEvery            = 20
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultStartupRetries        = 5
	DefaultStartupBackoff        = 2 * time.Second

	DefaultAdminPort = 8080
	DefaultAdminMode = "release"

	DefaultMetricsNamespace = "fedisent"

	DefaultMirrorTopic        = "absa.documents"
	DefaultMirrorBatchTimeout = time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the project default.
// Fields already set by the caller are left unchanged so explicit
// configuration always wins. Call after unmarshalling and before Validate so
// optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Queue.URL == "" {
		cfg.Queue.URL = DefaultQueueURL
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = DefaultQueueName
	}
	if cfg.Queue.DequeueTimeoutSeconds == 0 {
		cfg.Queue.DequeueTimeoutSeconds = DefaultDequeueTimeoutSeconds
	}
	if cfg.Queue.PoolSize == 0 {
		cfg.Queue.PoolSize = DefaultQueuePoolSize
	}
	if cfg.Queue.DialTimeout == 0 {
		cfg.Queue.DialTimeout = 5 * time.Second
	}
	if cfg.Queue.ReadTimeout == 0 {
		cfg.Queue.ReadTimeout = 3 * time.Second
	}
	if cfg.Queue.WriteTimeout == 0 {
		cfg.Queue.WriteTimeout = 3 * time.Second
	}

	if cfg.Store.Host == "" {
		cfg.Store.Host = DefaultStoreHost
	}
	if cfg.Store.IndexPrefix == "" {
		cfg.Store.IndexPrefix = DefaultStoreIndexPrefix
	}
	if cfg.Store.HealthCheckInterval == 0 {
		cfg.Store.HealthCheckInterval = DefaultHealthCheckInterval
	}

	if cfg.Filter.Mode == "" {
		cfg.Filter.Mode = DefaultFilterMode
	}

	if cfg.Inference.TaggerURL == "" {
		cfg.Inference.TaggerURL = DefaultTaggerURL
	}
	if cfg.Inference.SentimentURL == "" {
		cfg.Inference.SentimentURL = DefaultSentimentURL
	}
	if cfg.Inference.EmotionURL == "" {
		cfg.Inference.EmotionURL = DefaultEmotionURL
	}
	if cfg.Inference.DefaultLanguage == "" {
		cfg.Inference.DefaultLanguage = DefaultLanguage
	}
	if cfg.Inference.RequestTimeout == 0 {
		cfg.Inference.RequestTimeout = DefaultInferenceTimeout
	}
	if cfg.Inference.SentimentWindow == 0 {
		cfg.Inference.SentimentWindow = DefaultSentimentWindow
	}
	if cfg.Inference.EmotionCutoff == 0 {
		cfg.Inference.EmotionCutoff = DefaultEmotionCutoff
	}

	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = DefaultCacheCapacity
	}
	if cfg.Cache.RemoteTTL == 0 {
		cfg.Cache.RemoteTTL = DefaultCacheRemoteTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultMaxRetries
	}
	if cfg.Worker.RetryBaseDelaySeconds == 0 {
		cfg.Worker.RetryBaseDelaySeconds = DefaultRetryBaseDelaySeconds
	}
	if cfg.Worker.StatsEvery == 0 {
		cfg.Worker.StatsEvery = DefaultStatsEvery
	}
	if cfg.Worker.ShutdownTimeout == 0 {
		cfg.Worker.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Worker.StartupRetries == 0 {
		cfg.Worker.StartupRetries = DefaultStartupRetries
	}
	if cfg.Worker.StartupBackoff == 0 {
		cfg.Worker.StartupBackoff = DefaultStartupBackoff
	}

	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = DefaultAdminPort
	}
	if cfg.Admin.Mode == "" {
		cfg.Admin.Mode = DefaultAdminMode
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Mirror.Topic == "" {
		cfg.Mirror.Topic = DefaultMirrorTopic
	}
	if cfg.Mirror.BatchTimeout == 0 {
		cfg.Mirror.BatchTimeout = DefaultMirrorBatchTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
