package prometheus

import (
	"time"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
)

// AppMetrics bundles the pipeline's metric families.
type AppMetrics struct {
	PostsProcessed     CounterVec
	ProcessingDuration HistogramVec
	AspectsKept        CounterVec
	AspectsRejected    CounterVec
	Tones              CounterVec
	IronyOverrides     CounterVec
	CacheOperations    CounterVec
	QueueDepth         GaugeVec
	IndexOperations    CounterVec
	IndexRetries       CounterVec
	InferenceRequests  CounterVec
	InferenceDuration  HistogramVec
	WorkerState        GaugeVec

	collector MetricsCollector
}

// NewAppMetrics registers every family on the collector.
func NewAppMetrics(collector MetricsCollector, logger logging.Logger) *AppMetrics {
	m := &AppMetrics{collector: collector}

	m.PostsProcessed = collector.RegisterCounter(
		"posts_processed_total",
		"Posts taken off the queue, by outcome.",
		"outcome")

	m.ProcessingDuration = collector.RegisterHistogram(
		"processing_duration_seconds",
		"End-to-end processing time per post.",
		nil)

	m.AspectsKept = collector.RegisterCounter(
		"aspects_kept_total",
		"Aspect candidates that survived filtering.")

	m.AspectsRejected = collector.RegisterCounter(
		"aspects_rejected_total",
		"Aspect candidates dropped by the filter, by reason.",
		"reason")

	m.Tones = collector.RegisterCounter(
		"tone_total",
		"Critical-tone classifications, by tone.",
		"tone")

	m.IronyOverrides = collector.RegisterCounter(
		"irony_overrides_total",
		"Positive sentiments rewritten to critical_ironic.")

	m.CacheOperations = collector.RegisterCounter(
		"cache_operations_total",
		"Analysis cache lookups, by tier and result.",
		"tier", "result")

	m.QueueDepth = collector.RegisterGauge(
		"queue_depth",
		"Pending items on the intake queue.",
		"queue")

	m.IndexOperations = collector.RegisterCounter(
		"index_operations_total",
		"Document index attempts, by status.",
		"status")

	m.IndexRetries = collector.RegisterCounter(
		"index_retries_total",
		"Index attempts beyond the first.")

	m.InferenceRequests = collector.RegisterCounter(
		"inference_requests_total",
		"Model adapter calls, by adapter and status.",
		"adapter", "status")

	m.InferenceDuration = collector.RegisterHistogram(
		"inference_duration_seconds",
		"Model adapter call latency, by adapter.",
		nil,
		"adapter")

	m.WorkerState = collector.RegisterGauge(
		"worker_state",
		"Consumer lifecycle state (0 running, 1 draining, 2 stopped).",
		"worker")

	logger.Debug("metric families registered")
	return m
}

func (m *AppMetrics) RecordPost(outcome string, elapsed time.Duration) {
	m.PostsProcessed.WithLabelValues(outcome).Inc()
	m.ProcessingDuration.WithLabelValues().Observe(elapsed.Seconds())
}

func (m *AppMetrics) RecordAspectKept() {
	m.AspectsKept.WithLabelValues().Inc()
}

func (m *AppMetrics) RecordAspectRejected(reason string) {
	m.AspectsRejected.WithLabelValues(reason).Inc()
}

func (m *AppMetrics) RecordTone(tone string) {
	m.Tones.WithLabelValues(tone).Inc()
}

func (m *AppMetrics) RecordIronyOverride() {
	m.IronyOverrides.WithLabelValues().Inc()
}

func (m *AppMetrics) RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheOperations.WithLabelValues(tier, result).Inc()
}

func (m *AppMetrics) SetQueueDepth(queue string, depth int64) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *AppMetrics) RecordIndexOutcome(ok bool) {
	status := "failure"
	if ok {
		status = "success"
	}
	m.IndexOperations.WithLabelValues(status).Inc()
}

func (m *AppMetrics) RecordIndexRetry() {
	m.IndexRetries.WithLabelValues().Inc()
}

func (m *AppMetrics) RecordInference(adapter, status string, elapsed time.Duration) {
	m.InferenceRequests.WithLabelValues(adapter, status).Inc()
	m.InferenceDuration.WithLabelValues(adapter).Observe(elapsed.Seconds())
}

func (m *AppMetrics) SetWorkerState(worker string, state float64) {
	m.WorkerState.WithLabelValues(worker).Set(state)
}
