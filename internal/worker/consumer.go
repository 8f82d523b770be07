package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FediSent-Analytics/internal/absa"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/prometheus"
	redisq "github.com/turtacn/FediSent-Analytics/internal/infrastructure/queue/redis"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// State is the consumer lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Dequeuer is the queue surface the consumer needs.
type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
	Len(ctx context.Context) (int64, error)
	Name() string
}

// Indexer persists enriched documents.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *types.AnalysisDocument) error
}

// Enricher turns a raw post into a document. A (nil, nil) return means the
// post yielded nothing to index and is dropped.
type Enricher interface {
	Analyze(ctx context.Context, post *types.RawPost) (*types.AnalysisDocument, error)
}

// Publisher mirrors documents to a side channel.
type Publisher interface {
	Publish(ctx context.Context, doc *types.AnalysisDocument) error
}

// Config holds the consumer tunables.
type Config struct {
	DequeueTimeout time.Duration
	StatsEvery     int64
	ErrorPause     time.Duration
}

// Consumer runs the dequeue-analyze-index loop. One item is in flight at a
// time; shutdown drains that item before stopping.
type Consumer struct {
	id       string
	queue    Dequeuer
	enricher Enricher
	indexer  Indexer
	mirror   Publisher
	metrics  *prometheus.AppMetrics
	stats    *absa.Stats
	config   Config
	logger   logging.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer wires a consumer. mirror and metrics may be nil.
func NewConsumer(queue Dequeuer, enricher Enricher, indexer Indexer, mirror Publisher,
	metrics *prometheus.AppMetrics, stats *absa.Stats, cfg Config, logger logging.Logger) *Consumer {

	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = time.Second
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 20
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = time.Second
	}
	if stats == nil {
		stats = absa.NewStats()
	}

	id := uuid.NewString()[:8]
	return &Consumer{
		id:       id,
		queue:    queue,
		enricher: enricher,
		indexer:  indexer,
		mirror:   mirror,
		metrics:  metrics,
		stats:    stats,
		config:   cfg,
		logger:   logger.Named("consumer").With(logging.String("worker", id)),
	}
}

// ID is the worker's short identity, used in logs and metric labels.
func (c *Consumer) ID() string { return c.id }

// State reports the current lifecycle state.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Stats exposes the shared counters.
func (c *Consumer) Stats() *absa.Stats { return c.stats }

// Start launches the loop. It returns immediately; Stop blocks until the
// in-flight item finishes.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.setState(StateRunning)
	c.wg.Add(1)
	go c.run(ctx)

	c.logger.Info("consumer started",
		logging.String("id", c.id),
		logging.String("queue", c.queue.Name()))
}

// Stop drains and waits for the loop to exit.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.SetWorkerState(c.id, float64(s))
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			c.setState(StateDraining)
			c.logger.Info("drain complete, stopping", logging.String("id", c.id))
			return
		}

		payload, err := c.queue.Dequeue(ctx, c.config.DequeueTimeout)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeQueueTimeout) {
				c.observeQueueDepth(ctx)
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("dequeue failed", logging.Err(err))
			// Do not spin against a broken connection.
			time.Sleep(c.config.ErrorPause)
			continue
		}

		c.processOne(ctx, payload)

		if n := c.stats.RecordProcessed(); n%c.config.StatsEvery == 0 {
			c.logStats(n)
		}
	}
}

// processOne handles one payload end to end. A panic in analysis is
// contained here: the item is counted failed and the loop pauses briefly.
func (c *Consumer) processOne(ctx context.Context, payload string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.stats.RecordFailed()
			c.recordPost("panic", start)
			c.logger.Error("processing panic recovered", logging.Any("panic", r))
			time.Sleep(c.config.ErrorPause)
		}
	}()

	var post types.RawPost
	if err := json.Unmarshal([]byte(payload), &post); err != nil || post.TootID == "" {
		c.stats.RecordMalformed()
		c.recordPost("malformed", start)
		c.logger.Warn("malformed queue item skipped", logging.Err(err))
		return
	}

	doc, err := c.enricher.Analyze(ctx, &post)
	if err != nil {
		c.stats.RecordFailed()
		c.recordPost("failed", start)
		c.logger.Error("analysis failed", logging.String("id", post.TootID), logging.Err(err))
		return
	}
	if doc == nil {
		// Blank text or no surviving aspect. Dropped, not retried.
		c.stats.RecordSkipped()
		c.recordPost("skipped", start)
		return
	}

	if err := c.indexer.IndexDocument(ctx, doc); err != nil {
		c.stats.RecordFailed()
		c.recordPost("failed", start)
		if c.metrics != nil {
			c.metrics.RecordIndexOutcome(false)
		}
		return
	}
	if c.metrics != nil {
		c.metrics.RecordIndexOutcome(true)
	}

	// Best effort; the store is the source of truth.
	if c.mirror != nil {
		if err := c.mirror.Publish(ctx, doc); err != nil {
			c.logger.Warn("mirror publish failed", logging.String("id", doc.ID), logging.Err(err))
		}
	}

	c.stats.RecordIndexed()
	c.recordPost("indexed", start)
	if c.metrics != nil {
		c.metrics.RecordTone(string(doc.CriticalTone.Tone))
		for range doc.Aspects {
			c.metrics.RecordAspectKept()
		}
		if doc.Sentiment.Label == types.SentimentCriticalIronic {
			c.metrics.RecordIronyOverride()
		}
	}
}

func (c *Consumer) recordPost(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordPost(outcome, time.Since(start))
	}
}

func (c *Consumer) observeQueueDepth(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	depth, err := c.queue.Len(ctx)
	if err != nil {
		return
	}
	c.metrics.SetQueueDepth(c.queue.Name(), depth)
}

func (c *Consumer) logStats(n int64) {
	snap := c.stats.Snapshot()
	c.logger.Info("pipeline stats",
		logging.Int64("processed", n),
		logging.Int64("indexed", snap.Indexed),
		logging.Int64("skipped", snap.Skipped),
		logging.Int64("failed", snap.Failed),
		logging.Int64("malformed", snap.Malformed),
		logging.Int64("aspects_kept", snap.AspectsKept),
		logging.Float64("keep_rate_pct", snap.KeepRate()),
		logging.Int64("irony_overrides", snap.IronyOverrides),
		logging.Int64("cache_hits", snap.CacheHits),
		logging.Int64("cache_misses", snap.CacheMisses))
}

// compile-time interface checks against the concrete infrastructure.
var _ Dequeuer = (*redisq.Queue)(nil)
