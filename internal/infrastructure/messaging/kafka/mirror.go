package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

var (
	ErrMirrorClosed  = errors.New(errors.ErrCodeMirrorPublish, "mirror closed")
	ErrPublishFailed = errors.New(errors.ErrCodeMirrorPublish, "publish failed")
)

// MirrorConfig holds configuration for the document mirror.
type MirrorConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror publishes enriched documents to a Kafka topic as a side channel
// for downstream consumers. Mirror failures never fail the pipeline; the
// store remains the source of truth.
type Mirror struct {
	writer WriterInterface
	config MirrorConfig
	logger logging.Logger
	closed atomic.Bool

	published atomic.Int64
	failed    atomic.Int64
}

// NewMirror creates a Mirror writing to cfg.Topic.
func NewMirror(cfg MirrorConfig, logger logging.Logger) (*Mirror, error) {
	if err := ValidateMirrorConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Mirror{
		writer: writer,
		config: cfg,
		logger: logger.Named("mirror"),
	}, nil
}

// NewMirrorWithWriter injects a writer; tests use it.
func NewMirrorWithWriter(writer WriterInterface, cfg MirrorConfig, logger logging.Logger) *Mirror {
	return &Mirror{
		writer: writer,
		config: cfg,
		logger: logger.Named("mirror"),
	}
}

// Publish sends one document, keyed by its id so all versions of a post
// land on the same partition.
func (m *Mirror) Publish(ctx context.Context, doc *types.AnalysisDocument) error {
	if m.closed.Load() {
		return ErrMirrorClosed
	}

	value, err := json.Marshal(doc)
	if err != nil {
		m.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
	}

	msg := kafka.Message{
		Key:   []byte(doc.ID),
		Value: value,
		Time:  time.Now(),
	}

	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		m.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMirrorPublish, "publish failed").WithDetail(doc.ID)
	}

	m.published.Add(1)
	m.logger.Debug("document mirrored", logging.String("id", doc.ID))
	return nil
}

// Counts reports cumulative published and failed messages.
func (m *Mirror) Counts() (published, failed int64) {
	return m.published.Load(), m.failed.Load()
}

// Close flushes and closes the writer. Safe to call twice.
func (m *Mirror) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := m.writer.Close()
	m.logger.Info("mirror closed", logging.Int64("published", m.published.Load()))
	return err
}

func ValidateMirrorConfig(cfg MirrorConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "Brokers required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "Topic required")
	}
	return nil
}
