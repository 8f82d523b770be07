package absa

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// RemoteCache is the optional shared tier behind the in-process cache.
// Multi-worker deployments point it at Redis so boosts landing on different
// workers still reuse each other's enrichment. Any error reads as a miss.
type RemoteCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// sentimentHashWindow bounds how much text feeds the sentiment cache key.
// Sentiment is scored on a window anyway, so differing tails should not
// fragment the cache.
const sentimentHashWindow = 256

// AnalysisCache is the in-process memoization tier for tagging and
// sentiment results. Bounded LRU; one worker, many near-duplicate posts
// (boosts carry identical text).
type AnalysisCache struct {
	entries *lru.Cache[string, interface{}]
}

// NewAnalysisCache creates a cache holding at most capacity entries.
func NewAnalysisCache(capacity int) (*AnalysisCache, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	entries, err := lru.New[string, interface{}](capacity)
	if err != nil {
		return nil, err
	}
	return &AnalysisCache{entries: entries}, nil
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// AspectsKey derives the cache key for aspect extraction over text.
func AspectsKey(text string) string {
	return fmt.Sprintf("aspects:%x", hashText(text))
}

// SentimentKey derives the cache key for aspect-level sentiment.
func SentimentKey(aspect, text string) string {
	windowed := text
	if runes := []rune(text); len(runes) > sentimentHashWindow {
		windowed = string(runes[:sentimentHashWindow])
	}
	return fmt.Sprintf("sent:%s:%x", aspect, hashText(windowed))
}

// GetAspects returns the cached aspect list for text, if present.
func (c *AnalysisCache) GetAspects(text string) ([]string, bool) {
	v, ok := c.entries.Get(AspectsKey(text))
	if !ok {
		return nil, false
	}
	aspects, ok := v.([]string)
	return aspects, ok
}

// SetAspects stores the aspect list for text.
func (c *AnalysisCache) SetAspects(text string, aspects []string) {
	c.entries.Add(AspectsKey(text), aspects)
}

// GetSentiment returns the cached sentiment for aspect in text, if present.
func (c *AnalysisCache) GetSentiment(aspect, text string) (*types.SentimentResult, bool) {
	v, ok := c.entries.Get(SentimentKey(aspect, text))
	if !ok {
		return nil, false
	}
	result, ok := v.(*types.SentimentResult)
	return result, ok
}

// SetSentiment stores the sentiment for aspect in text.
func (c *AnalysisCache) SetSentiment(aspect, text string, result *types.SentimentResult) {
	c.entries.Add(SentimentKey(aspect, text), result)
}

// Len reports the number of cached entries.
func (c *AnalysisCache) Len() int {
	return c.entries.Len()
}

// Clear drops every entry.
func (c *AnalysisCache) Clear() {
	c.entries.Purge()
}
