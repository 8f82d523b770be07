package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

var (
	ErrDocumentIndexFailed = errors.New(errors.ErrCodeStoreIndexing, "document index failed")
	ErrSchemaFailed        = errors.New(errors.ErrCodeStoreSchema, "schema setup failed")
)

// templateName identifies the index template applied to all period indices.
const templateName = "absa-documents"

// GatewayConfig holds the indexing gateway settings.
type GatewayConfig struct {
	// IndexPrefix names the index family; concrete indices are
	// <prefix>-YYYY-MM.
	IndexPrefix string

	// MaxRetries bounds attempts per document on transient failure.
	MaxRetries int

	// RetryBaseDelay feeds the jittered backoff between attempts.
	RetryBaseDelay time.Duration

	RefreshPolicy string
	BulkBatchSize int

	// OnRetry is invoked before each retry sleep; the worker counts these.
	OnRetry func()
}

// Gateway persists analysis documents into month-partitioned indices with an
// idempotent schema and bounded, jittered retries. Writes are upserts keyed
// by post id, so duplicate processing converges on one logical document.
type Gateway struct {
	client *Client
	config GatewayConfig
	logger logging.Logger

	// mode is the emotions storage representation, resolved exactly once
	// by EnsureSchema and immutable afterwards.
	mode types.EmotionsMode

	succeeded int64
	failed    int64

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
	randf func() float64
}

// NewGateway creates a Gateway. EnsureSchema must run before the first
// IndexDocument call.
func NewGateway(client *Client, cfg GatewayConfig, logger logging.Logger) *Gateway {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RefreshPolicy == "" {
		cfg.RefreshPolicy = "false"
	}
	if cfg.BulkBatchSize == 0 {
		cfg.BulkBatchSize = 500
	}

	return &Gateway{
		client: client,
		config: cfg,
		logger: logger,
		mode:   types.EmotionsNested,
		now:    time.Now,
		sleep:  time.Sleep,
		randf:  rand.Float64,
	}
}

// MonthIndex derives the concrete index name for t at month granularity.
func (g *Gateway) MonthIndex(t time.Time) string {
	return fmt.Sprintf("%s-%04d-%02d", g.config.IndexPrefix, t.Year(), int(t.Month()))
}

// CurrentIndex is MonthIndex of the current processing time.
func (g *Gateway) CurrentIndex() string {
	return g.MonthIndex(g.now())
}

// EmotionsMode returns the representation resolved by EnsureSchema.
func (g *Gateway) EmotionsMode() types.EmotionsMode {
	return g.mode
}

// Counts reports cumulative successful and failed index operations.
func (g *Gateway) Counts() (succeeded, failed int64) {
	return g.succeeded, g.failed
}

// documentTemplate is the field mapping for all period indices. The
// emotions_flat keyword field is always present so dashboards can aggregate
// emotion names regardless of the active representation mode.
func (g *Gateway) documentTemplate() string {
	return fmt.Sprintf(`{
  "index_patterns": ["%s-*"],
  "template": {
    "mappings": {
      "properties": {
        "id": {"type": "keyword"},
        "created_at": {"type": "date"},
        "language": {"type": "keyword"},
        "text": {"type": "text"},
        "aspects": {"type": "keyword"},
        "sentiment": {
          "properties": {
            "label": {"type": "keyword"},
            "score": {"type": "float"}
          }
        },
        "aspect_sentiments": {
          "type": "nested",
          "properties": {
            "aspect": {"type": "keyword"},
            "sentiment": {
              "properties": {
                "label": {"type": "keyword"},
                "score": {"type": "float"}
              }
            }
          }
        },
        "emotions": {
          "type": "nested",
          "properties": {
            "emotion": {"type": "keyword"},
            "score": {"type": "float"}
          }
        },
        "emotions_flat": {"type": "keyword"},
        "critical_tone": {
          "properties": {
            "tone": {"type": "keyword"},
            "critical_score": {"type": "float"},
            "signals": {"type": "keyword"}
          }
        },
        "metadata": {
          "properties": {
            "hashtags": {"type": "keyword"},
            "author": {"type": "keyword"},
            "instance": {"type": "keyword"}
          }
        },
        "indexed_at": {"type": "date"}
      }
    }
  }
}`, g.config.IndexPrefix)
}

// EnsureSchema is idempotent startup setup: apply the index template for the
// whole index family, create the current month's index when absent, patch an
// existing index that predates the emotions_flat field, and resolve the
// emotions representation mode from the live mapping.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if err := g.putTemplate(ctx); err != nil {
		return err
	}

	index := g.CurrentIndex()
	exists, err := g.IndexExists(ctx, index)
	if err != nil {
		return err
	}

	if !exists {
		if err := g.createIndex(ctx, index); err != nil {
			return err
		}
		g.mode = types.EmotionsNested
		g.logger.Info("created period index", logging.String("index", index))
		return nil
	}

	props, err := g.indexProperties(ctx, index)
	if err != nil {
		return err
	}

	if _, ok := props["emotions_flat"]; !ok {
		if err := g.patchEmotionsFlat(ctx, index); err != nil {
			return err
		}
		g.logger.Info("patched mapping with emotions_flat", logging.String("index", index))
	}

	g.mode = detectEmotionsMode(props)
	g.logger.Info("schema ensured",
		logging.String("index", index),
		logging.String("emotions_mode", string(g.mode)))
	return nil
}

// detectEmotionsMode resolves the storage representation from the mapping of
// an existing index: a nested or object emotions field keeps the nested
// representation; anything else (keyword, absent) means flat.
func detectEmotionsMode(props map[string]json.RawMessage) types.EmotionsMode {
	raw, ok := props["emotions"]
	if !ok {
		return types.EmotionsFlat
	}
	var field struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &field); err != nil {
		return types.EmotionsFlat
	}
	// An object field has properties and no explicit type.
	if field.Type == "nested" || field.Type == "object" || (field.Type == "" && len(field.Properties) > 0) {
		return types.EmotionsNested
	}
	return types.EmotionsFlat
}

func (g *Gateway) putTemplate(ctx context.Context) error {
	req := opensearchapi.IndicesPutIndexTemplateRequest{
		Name: templateName,
		Body: strings.NewReader(g.documentTemplate()),
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSchema, "failed to apply index template")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return g.handleErrorResponse(resp, ErrSchemaFailed)
	}
	return nil
}

// IndexExists reports whether the named index exists.
func (g *Gateway) IndexExists(ctx context.Context, index string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{index},
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeStoreRequest, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, g.handleErrorResponse(resp, errors.New(errors.ErrCodeStoreRequest, "index existence check failed"))
}

func (g *Gateway) createIndex(ctx context.Context, index string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: index,
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSchema, "failed to create index").WithDetail(index)
	}
	defer resp.Body.Close()

	// A concurrent worker may have created the index between the existence
	// check and this call.
	if resp.IsError() && resp.StatusCode != 400 {
		return g.handleErrorResponse(resp, ErrSchemaFailed)
	}
	return nil
}

// indexProperties returns the top-level field mapping of index.
func (g *Gateway) indexProperties(ctx context.Context, index string) (map[string]json.RawMessage, error) {
	req := opensearchapi.IndicesGetMappingRequest{
		Index: []string{index},
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStoreRequest, "failed to get mapping").WithDetail(index)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, g.handleErrorResponse(resp, errors.New(errors.ErrCodeStoreRequest, "get mapping failed"))
	}

	var mapping map[string]struct {
		Mappings struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mapping); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode mapping response")
	}

	entry, ok := mapping[index]
	if !ok {
		// Aliased index; take the first entry.
		for _, v := range mapping {
			entry = v
			break
		}
	}
	return entry.Mappings.Properties, nil
}

// patchEmotionsFlat adds the emotions_flat keyword field to an index created
// before the schema change, without recreating the index.
func (g *Gateway) patchEmotionsFlat(ctx context.Context, index string) error {
	body := `{"properties":{"emotions_flat":{"type":"keyword"}}}`
	req := opensearchapi.IndicesPutMappingRequest{
		Index: []string{index},
		Body:  strings.NewReader(body),
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSchema, "failed to patch mapping").WithDetail(index)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return g.handleErrorResponse(resp, ErrSchemaFailed)
	}
	return nil
}

// renderDocument shapes doc for the active emotions mode. In flat mode the
// nested objects are stripped; emotions_flat is always written.
func (g *Gateway) renderDocument(doc *types.AnalysisDocument) ([]byte, error) {
	out := *doc
	if g.mode == types.EmotionsFlat {
		out.Emotions = nil
	}
	if out.EmotionsFlat == nil {
		out.EmotionsFlat = []string{}
	}
	if out.IndexedAt.IsZero() {
		out.IndexedAt = g.now().UTC()
	}
	return json.Marshal(&out)
}

// IndexDocument upserts one document by its post id into the current month
// index, retrying transient failures with jittered backoff. Exhausting the
// retry budget logs and returns an error; the caller counts it and moves on.
func (g *Gateway) IndexDocument(ctx context.Context, doc *types.AnalysisDocument) error {
	body, err := g.renderDocument(doc)
	if err != nil {
		g.failed++
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}

	index := g.CurrentIndex()
	var lastErr error

	for attempt := 1; attempt <= g.config.MaxRetries; attempt++ {
		req := opensearchapi.IndexRequest{
			Index:      index,
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
			Refresh:    g.config.RefreshPolicy,
		}

		resp, err := req.Do(ctx, g.client.GetClient())
		if err != nil {
			lastErr = errors.Wrap(err, errors.ErrCodeStoreRequest, "index request failed")
		} else {
			if !resp.IsError() {
				resp.Body.Close()
				g.succeeded++
				return nil
			}
			lastErr = g.handleErrorResponse(resp, ErrDocumentIndexFailed)
			resp.Body.Close()
			// 4xx other than 429 will not heal with another attempt.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}

		if attempt < g.config.MaxRetries {
			if g.config.OnRetry != nil {
				g.config.OnRetry()
			}
			g.sleep(g.backoff(attempt))
		}
	}

	g.failed++
	g.logger.Error("document dropped after retries",
		logging.String("id", doc.ID),
		logging.String("index", index),
		logging.Int("attempts", g.config.MaxRetries),
		logging.Err(lastErr))
	return lastErr
}

// backoff returns base delay scaled by the attempt number with a random
// factor in [1.0, 1.3).
func (g *Gateway) backoff(attempt int) time.Duration {
	factor := 1.0 + 0.3*g.randf()
	return time.Duration(float64(g.config.RetryBaseDelay) * float64(attempt) * factor)
}

// BulkResult summarizes a bulk indexing call.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// BulkItemError is one failed item from a bulk response.
type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// BulkIndex upserts documents in NDJSON batches into the current month
// index. Used by backfill tooling; the consumer loop indexes one document
// at a time.
func (g *Gateway) BulkIndex(ctx context.Context, docs []*types.AnalysisDocument) (*BulkResult, error) {
	result := &BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	index := g.CurrentIndex()
	batchSize := g.config.BulkBatchSize

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		var buf bytes.Buffer
		batch := docs[start:end]
		for _, doc := range batch {
			body, err := g.renderDocument(doc)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     doc.ID,
					ErrorType: "serialization_error",
					Reason:    err.Error(),
				})
				continue
			}
			fmt.Fprintf(&buf, `{"index":{"_index":%q,"_id":%q}}`+"\n", index, doc.ID)
			buf.Write(body)
			buf.WriteByte('\n')
		}

		if buf.Len() == 0 {
			continue
		}

		req := opensearchapi.BulkRequest{
			Body:    bytes.NewReader(buf.Bytes()),
			Refresh: g.config.RefreshPolicy,
		}

		resp, err := req.Do(ctx, g.client.GetClient())
		if err != nil {
			return result, errors.Wrap(err, errors.ErrCodeStoreRequest, "bulk request failed")
		}

		if resp.IsError() {
			result.Failed += len(batch)
			batchErr := g.handleErrorResponse(resp, errors.New(errors.ErrCodeStoreBulkPartial, "bulk batch failed"))
			resp.Body.Close()
			result.Errors = append(result.Errors, BulkItemError{
				DocID:     "batch",
				ErrorType: "http_error",
				Reason:    batchErr.Error(),
			})
			continue
		}

		var bulkResp struct {
			Errors bool `json:"errors"`
			Items  []map[string]struct {
				ID     string `json:"_id"`
				Status int    `json:"status"`
				Error  struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"error"`
			} `json:"items"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&bulkResp)
		resp.Body.Close()
		if decodeErr != nil {
			return result, errors.Wrap(decodeErr, errors.ErrCodeSerialization, "failed to decode bulk response")
		}

		for _, item := range bulkResp.Items {
			for _, v := range item {
				if v.Status >= 200 && v.Status < 300 {
					result.Succeeded++
				} else {
					result.Failed++
					result.Errors = append(result.Errors, BulkItemError{
						DocID:     v.ID,
						ErrorType: v.Error.Type,
						Reason:    v.Error.Reason,
					})
				}
				break
			}
		}
	}

	g.succeeded += int64(result.Succeeded)
	g.failed += int64(result.Failed)
	g.logger.Info("bulk index completed",
		logging.Int("total", len(docs)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

// BackfillEmotionsFlat populates emotions_flat on historical documents that
// predate the field, copying nested emotion names in place via
// update-by-query. Returns the number of updated documents.
func (g *Gateway) BackfillEmotionsFlat(ctx context.Context) (int64, error) {
	body := `{
  "script": {
    "lang": "painless",
    "source": "if (ctx._source.emotions != null) { def names = []; for (e in ctx._source.emotions) { if (e.emotion != null) { names.add(e.emotion) } } ctx._source.emotions_flat = names } else { ctx._source.emotions_flat = [] }"
  },
  "query": {
    "bool": {
      "must_not": [{"exists": {"field": "emotions_flat"}}]
    }
  }
}`

	conflicts := "proceed"
	req := opensearchapi.UpdateByQueryRequest{
		Index:     []string{g.config.IndexPrefix + "-*"},
		Body:      strings.NewReader(body),
		Conflicts: conflicts,
	}

	resp, err := req.Do(ctx, g.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStoreRequest, "update-by-query failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, g.handleErrorResponse(resp, errors.New(errors.ErrCodeStoreRequest, "backfill failed"))
	}

	var out struct {
		Updated int64 `json:"updated"`
		Total   int64 `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode backfill response")
	}

	g.logger.Info("emotions_flat backfill completed",
		logging.Int64("updated", out.Updated),
		logging.Int64("total", out.Total))
	return out.Updated, nil
}

func (g *Gateway) handleErrorResponse(resp *opensearchapi.Response, defaultErr error) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)

	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Wrapf(defaultErr, errors.ErrCodeStoreRequest, "store error: %s - %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Wrapf(defaultErr, errors.ErrCodeStoreRequest, "store error status: %d", resp.StatusCode)
}
