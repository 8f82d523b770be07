// Command worker runs the FediSent analytics consumer: it pops Mastodon
// posts off the Redis intake queue, enriches them with aspect-based
// sentiment, and indexes the results into monthly OpenSearch indices.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/turtacn/FediSent-Analytics/internal/absa"
	"github.com/turtacn/FediSent-Analytics/internal/config"
	"github.com/turtacn/FediSent-Analytics/internal/inference"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/prometheus"
	redisq "github.com/turtacn/FediSent-Analytics/internal/infrastructure/queue/redis"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FediSent-Analytics/internal/worker"
)

const startupTimeout = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "config file path (default: environment only)")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if *configPath != "" {
		config.Watch(*configPath, func(next *config.Config) {
			logging.SetDefaultLevel(next.Log.Level)
			logger.Info("configuration reloaded", logging.String("log_level", next.Log.Level))
		})
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func run(cfg *config.Config, logger logging.Logger) error {
	queueClient, err := connectQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("queue connection: %w", err)
	}
	defer queueClient.Close()

	storeClient, err := connectStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("store connection: %w", err)
	}
	defer storeClient.Close()

	var metrics *prometheus.AppMetrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return fmt.Errorf("metrics setup: %w", err)
		}
		metrics = prometheus.NewAppMetrics(collector, logger)
		metricsHandler = collector.Handler()
	}

	gatewayCfg := opensearch.GatewayConfig{
		IndexPrefix:    cfg.Store.IndexPrefix,
		MaxRetries:     cfg.Worker.MaxRetries,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay(),
	}
	if metrics != nil {
		gatewayCfg.OnRetry = metrics.RecordIndexRetry
	}
	gateway := opensearch.NewGateway(storeClient, gatewayCfg, logger)

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), startupTimeout)
	err = gateway.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		return fmt.Errorf("schema setup: %w", err)
	}
	logger.Info("document store ready",
		logging.String("index", gateway.CurrentIndex()),
		logging.String("emotions_mode", string(gateway.EmotionsMode())))

	adapters := inference.NewRegistry(cfg.Inference, logger)
	if metrics != nil {
		adapters.SetObserver(metrics)
	}

	cache, err := absa.NewAnalysisCache(cfg.Cache.Capacity)
	if err != nil {
		return fmt.Errorf("cache setup: %w", err)
	}
	var remote absa.RemoteCache
	if cfg.Cache.RemoteEnabled {
		remote = redisq.NewRedisCache(queueClient, logger,
			redisq.WithPrefix(cfg.Cache.KeyPrefix),
			redisq.WithDefaultTTL(cfg.Cache.RemoteTTL))
		logger.Info("shared cache tier enabled", logging.String("prefix", cfg.Cache.KeyPrefix))
	}

	stats := absa.NewStats()
	analyzerOpts := absa.AnalyzerOptions{
		Mode:         absa.FilterMode(cfg.Filter.Mode),
		EmotionsMode: gateway.EmotionsMode(),
		DefaultLang:  cfg.Inference.DefaultLanguage,
		Cache:        cache,
		Stats:        stats,
		Remote:       remote,
		RemoteTTL:    cfg.Cache.RemoteTTL,
		Concurrency:  cfg.Worker.Concurrency,
	}
	if metrics != nil {
		analyzerOpts.Metrics = metrics
	}
	analyzer, err := absa.NewAnalyzer(adapters, analyzerOpts, logger)
	if err != nil {
		return fmt.Errorf("analyzer setup: %w", err)
	}

	var mirror worker.Publisher
	if cfg.Mirror.Enabled {
		m, err := kafka.NewMirror(kafka.MirrorConfig{
			Brokers:      cfg.Mirror.Brokers,
			Topic:        cfg.Mirror.Topic,
			BatchTimeout: cfg.Mirror.BatchTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("mirror setup: %w", err)
		}
		defer m.Close()
		mirror = m
	}

	queue := redisq.NewQueue(queueClient, cfg.Queue.Name)
	consumer := worker.NewConsumer(queue, analyzer, gateway, mirror, metrics, stats, worker.Config{
		DequeueTimeout: cfg.Queue.DequeueTimeout(),
		StatsEvery:     int64(cfg.Worker.StatsEvery),
	}, logger)

	var admin *worker.AdminServer
	if cfg.Admin.Enabled {
		admin = worker.NewAdminServer(cfg.Admin.Port, cfg.Admin.Mode, consumer, adapters, metricsHandler, logger)
		go func() {
			if err := admin.Start(); err != nil {
				logger.Error("admin server failed", logging.Err(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer.Start(ctx)
	logger.Info("worker running",
		logging.String("queue", cfg.Queue.Name),
		logging.String("filter_mode", cfg.Filter.Mode))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	drained := make(chan struct{})
	go func() {
		consumer.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		logger.Info("consumer drained")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("drain timeout exceeded, forcing exit",
			logging.Duration("timeout", cfg.Worker.ShutdownTimeout))
	}

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", logging.Err(err))
		}
	}

	logger.Info("worker stopped")
	return nil
}

// connectQueue dials Redis with bounded retries so the worker survives a
// race with its queue coming up under orchestration.
func connectQueue(cfg *config.Config, logger logging.Logger) (*redisq.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.Worker.StartupRetries; attempt++ {
		client, err := redisq.NewClient(cfg.Queue, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warn("queue not reachable, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", cfg.Worker.StartupRetries),
			logging.Err(err))
		time.Sleep(cfg.Worker.StartupBackoff)
	}
	return nil, lastErr
}

func connectStore(cfg *config.Config, logger logging.Logger) (*opensearch.Client, error) {
	clientCfg := opensearch.ClientConfig{
		Addresses:           []string{cfg.Store.Host},
		Username:            cfg.Store.User,
		Password:            cfg.Store.Password,
		InsecureSkipVerify:  cfg.Store.InsecureSkipVerify,
		HealthCheckInterval: cfg.Store.HealthCheckInterval,
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Worker.StartupRetries; attempt++ {
		client, err := opensearch.NewClient(clientCfg, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warn("document store not reachable, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", cfg.Worker.StartupRetries),
			logging.Err(err))
		time.Sleep(cfg.Worker.StartupBackoff)
	}
	return nil, lastErr
}
