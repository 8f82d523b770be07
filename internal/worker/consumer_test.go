package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	redisq "github.com/turtacn/FediSent-Analytics/internal/infrastructure/queue/redis"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *fakeQueue) Dequeue(_ context.Context, _ time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", redisq.ErrQueueTimeout
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *fakeQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *fakeQueue) Name() string { return "test_queue" }

type fakeEnricher struct {
	mu    sync.Mutex
	seen  []string
	err   error
	panic bool
	drop  bool
}

func (e *fakeEnricher) Analyze(_ context.Context, post *types.RawPost) (*types.AnalysisDocument, error) {
	if e.panic {
		panic("model blew up")
	}
	if e.err != nil {
		return nil, e.err
	}
	e.mu.Lock()
	e.seen = append(e.seen, post.TootID)
	e.mu.Unlock()
	if e.drop {
		return nil, nil
	}
	return &types.AnalysisDocument{ID: post.TootID, Text: post.Text}, nil
}

type fakeIndexer struct {
	mu   sync.Mutex
	docs []*types.AnalysisDocument
	err  error
}

func (i *fakeIndexer) IndexDocument(_ context.Context, doc *types.AnalysisDocument) error {
	if i.err != nil {
		return i.err
	}
	i.mu.Lock()
	i.docs = append(i.docs, doc)
	i.mu.Unlock()
	return nil
}

func (i *fakeIndexer) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.docs)
}

type fakeMirror struct {
	mu   sync.Mutex
	ids  []string
	err  error
}

func (m *fakeMirror) Publish(_ context.Context, doc *types.AnalysisDocument) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.ids = append(m.ids, doc.ID)
	m.mu.Unlock()
	return nil
}

func testConfig() Config {
	return Config{
		DequeueTimeout: time.Millisecond,
		StatsEvery:     20,
		ErrorPause:     time.Millisecond,
	}
}

func runUntil(t *testing.T, c *Consumer, cond func() bool) {
	t.Helper()
	c.Start(context.Background())
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	c.Stop()
	assert.Equal(t, StateStopped, c.State())
}

func TestConsumer_ProcessesQueuedPosts(t *testing.T) {
	queue := &fakeQueue{items: []string{
		`{"toot_id":"1","text":"le réseau est lent","author_username":"alice","instance":"m.example"}`,
		`{"toot_id":"2","text":"superbe écran"}`,
	}}
	enricher := &fakeEnricher{}
	indexer := &fakeIndexer{}
	mirror := &fakeMirror{}

	c := NewConsumer(queue, enricher, indexer, mirror, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool { return indexer.count() == 2 })

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(2), snap.Indexed)
	assert.Equal(t, []string{"1", "2"}, mirror.ids)
}

func TestConsumer_SkipsMalformedPayloads(t *testing.T) {
	queue := &fakeQueue{items: []string{
		`{not json`,
		`{"text":"missing id"}`,
		`{"toot_id":"3","text":"valide"}`,
	}}
	indexer := &fakeIndexer{}

	c := NewConsumer(queue, &fakeEnricher{}, indexer, nil, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool { return c.Stats().Snapshot().Processed == 3 })

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Malformed)
	assert.Equal(t, int64(1), snap.Indexed)
	assert.Equal(t, 1, indexer.count())
}

func TestConsumer_IndexFailureCounts(t *testing.T) {
	queue := &fakeQueue{items: []string{`{"toot_id":"1","text":"x"}`}}
	indexer := &fakeIndexer{err: assert.AnError}

	c := NewConsumer(queue, &fakeEnricher{}, indexer, nil, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool { return c.Stats().Snapshot().Failed == 1 })

	assert.Equal(t, int64(0), c.Stats().Snapshot().Indexed)
}

func TestConsumer_MirrorFailureDoesNotFailItem(t *testing.T) {
	queue := &fakeQueue{items: []string{`{"toot_id":"1","text":"x"}`}}
	indexer := &fakeIndexer{}
	mirror := &fakeMirror{err: assert.AnError}

	c := NewConsumer(queue, &fakeEnricher{}, indexer, mirror, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool { return c.Stats().Snapshot().Indexed == 1 })

	assert.Equal(t, int64(0), c.Stats().Snapshot().Failed)
}

func TestConsumer_RecoversFromPanic(t *testing.T) {
	queue := &fakeQueue{items: []string{
		`{"toot_id":"1","text":"boom"}`,
	}}
	enricher := &fakeEnricher{panic: true}

	c := NewConsumer(queue, enricher, &fakeIndexer{}, nil, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool { return c.Stats().Snapshot().Failed == 1 })
}

func TestConsumer_StopDrains(t *testing.T) {
	queue := &fakeQueue{}
	c := NewConsumer(queue, &fakeEnricher{}, &fakeIndexer{}, nil, nil, nil, testConfig(), logging.NewNopLogger())

	c.Start(context.Background())
	assert.Equal(t, StateRunning, c.State())

	c.Stop()
	assert.Equal(t, StateStopped, c.State())
}

func TestConsumer_DropsPostsYieldingNoDocument(t *testing.T) {
	queue := &fakeQueue{items: []string{
		`{"toot_id":"1","text":"le est un la"}`,
		`{"toot_id":"2","text":"   "}`,
	}}
	enricher := &fakeEnricher{drop: true}
	indexer := &fakeIndexer{}
	mirror := &fakeMirror{}

	c := NewConsumer(queue, enricher, indexer, mirror, nil, nil, testConfig(), logging.NewNopLogger())
	runUntil(t, c, func() bool {
		snap := c.Stats().Snapshot()
		return snap.Skipped == 2
	})

	// Dropped posts never reach the store or the mirror.
	assert.Zero(t, indexer.count())
	assert.Empty(t, mirror.ids)

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(0), snap.Indexed)
	assert.Equal(t, int64(0), snap.Failed)
}
