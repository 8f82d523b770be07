package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// newTestGateway spins up an httptest backend and wires a Gateway with
// deterministic time, sleep and jitter seams.
func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *[]time.Duration) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Startup and health-check pings.
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		Addresses:           []string{server.URL},
		HealthCheckInterval: time.Hour,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	gw := NewGateway(client, GatewayConfig{
		IndexPrefix:    "toots-absa",
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
	}, logging.NewNopLogger())

	gw.now = func() time.Time { return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC) }
	gw.randf = func() float64 { return 0.5 }

	sleeps := &[]time.Duration{}
	gw.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }

	return gw, sleeps
}

func TestMonthIndex(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	assert.Equal(t, "toots-absa-2024-03", gw.CurrentIndex())
	assert.Equal(t, "toots-absa-2023-11", gw.MonthIndex(time.Date(2023, time.November, 30, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "toots-absa-2025-01", gw.MonthIndex(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEnsureSchema_CreatesMissingIndex(t *testing.T) {
	var calls []string
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/_index_template/absa-documents":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"acknowledged":true}`)
		case r.Method == http.MethodHead && r.URL.Path == "/toots-absa-2024-03":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/toots-absa-2024-03":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"acknowledged":true}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	require.NoError(t, gw.EnsureSchema(context.Background()))
	assert.Equal(t, types.EmotionsNested, gw.EmotionsMode())
	assert.Contains(t, calls, "PUT /_index_template/absa-documents")
	assert.Contains(t, calls, "PUT /toots-absa-2024-03")
}

func TestEnsureSchema_PatchesLegacyIndex(t *testing.T) {
	patched := false
	mapping := `{"toots-absa-2024-03":{"mappings":{"properties":{
		"emotions":{"type":"nested","properties":{"emotion":{"type":"keyword"},"score":{"type":"float"}}},
		"text":{"type":"text"}}}}}`

	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/_index_template/absa-documents":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"acknowledged":true}`)
		case r.Method == http.MethodHead && r.URL.Path == "/toots-absa-2024-03":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/_mapping"):
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, mapping)
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/_mapping"):
			patched = true
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"acknowledged":true}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	require.NoError(t, gw.EnsureSchema(context.Background()))
	assert.True(t, patched, "expected emotions_flat mapping patch")
	assert.Equal(t, types.EmotionsNested, gw.EmotionsMode())
}

func TestEnsureSchema_DetectsFlatMode(t *testing.T) {
	mapping := `{"toots-absa-2024-03":{"mappings":{"properties":{
		"emotions":{"type":"keyword"},
		"emotions_flat":{"type":"keyword"}}}}}`

	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/_index_template/absa-documents":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"acknowledged":true}`)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/_mapping"):
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, mapping)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	require.NoError(t, gw.EnsureSchema(context.Background()))
	assert.Equal(t, types.EmotionsFlat, gw.EmotionsMode())
}

func TestDetectEmotionsMode(t *testing.T) {
	tests := []struct {
		name  string
		props string
		want  types.EmotionsMode
	}{
		{"nested type", `{"emotions":{"type":"nested","properties":{"emotion":{"type":"keyword"}}}}`, types.EmotionsNested},
		{"implicit object", `{"emotions":{"properties":{"emotion":{"type":"keyword"}}}}`, types.EmotionsNested},
		{"keyword field", `{"emotions":{"type":"keyword"}}`, types.EmotionsFlat},
		{"absent", `{"text":{"type":"text"}}`, types.EmotionsFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var props map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tt.props), &props))
			assert.Equal(t, tt.want, detectEmotionsMode(props))
		})
	}
}

func TestIndexDocument_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	gw, sleeps := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/toots-absa-2024-03/_doc/toot-1", r.URL.Path)
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"type":"exception","reason":"overloaded"}}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)
	})

	retries := 0
	gw.config.OnRetry = func() { retries++ }

	doc := &types.AnalysisDocument{ID: "toot-1", Text: "hello"}
	require.NoError(t, gw.IndexDocument(context.Background(), doc))

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, retries)
	// base 1s, attempt 1, jitter fixed at 1.15
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 1150*time.Millisecond, (*sleeps)[0])

	ok, failed := gw.Counts()
	assert.Equal(t, int64(1), ok)
	assert.Equal(t, int64(0), failed)
}

func TestIndexDocument_ExhaustsRetries(t *testing.T) {
	attempts := 0
	gw, sleeps := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"exception","reason":"boom"}}`)
	})

	doc := &types.AnalysisDocument{ID: "toot-2"}
	err := gw.IndexDocument(context.Background(), doc)
	require.Error(t, err)

	assert.Equal(t, 3, attempts)
	// Attempts 1 and 2 back off; the last failure returns immediately.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 1150*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 2300*time.Millisecond, (*sleeps)[1])

	_, failed := gw.Counts()
	assert.Equal(t, int64(1), failed)
}

func TestIndexDocument_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	gw, sleeps := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"mapper_parsing_exception","reason":"bad field"}}`)
	})

	err := gw.IndexDocument(context.Background(), &types.AnalysisDocument{ID: "toot-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *sleeps)
}

func TestIndexDocument_FlatModeStripsNestedEmotions(t *testing.T) {
	var body map[string]interface{}
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)
	})
	gw.mode = types.EmotionsFlat

	doc := &types.AnalysisDocument{
		ID: "toot-4",
		Emotions: []types.EmotionScore{
			{Emotion: "anger", Score: 0.8},
		},
		EmotionsFlat: []string{"anger"},
	}
	require.NoError(t, gw.IndexDocument(context.Background(), doc))

	_, hasNested := body["emotions"]
	assert.False(t, hasNested, "flat mode must not write nested emotion objects")
	assert.Equal(t, []interface{}{"anger"}, body["emotions_flat"])
	assert.NotEmpty(t, body["indexed_at"])
}

func TestBulkIndex_ReportsPerItemOutcome(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"errors":true,"items":[
			{"index":{"_id":"a","status":201}},
			{"index":{"_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}
		]}`)
	})

	result, err := gw.BulkIndex(context.Background(), []*types.AnalysisDocument{
		{ID: "a"}, {ID: "b"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "b", result.Errors[0].DocID)
	assert.Equal(t, "mapper_parsing_exception", result.Errors[0].ErrorType)
}

func TestBulkIndex_EmptyInput(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})

	result, err := gw.BulkIndex(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
	assert.Zero(t, result.Failed)
}

func TestBackfillEmotionsFlat(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/_update_by_query"))
		require.True(t, strings.HasPrefix(r.URL.Path, "/toots-absa-"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"updated":7,"total":7}`)
	})

	updated, err := gw.BackfillEmotionsFlat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated)
}
