package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FediSent-Analytics/internal/config"
	"github.com/turtacn/FediSent-Analytics/internal/inference"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
)

func newTestAdmin(t *testing.T) (*AdminServer, *Consumer) {
	t.Helper()

	consumer := NewConsumer(&fakeQueue{}, &fakeEnricher{}, &fakeIndexer{}, nil, nil, nil,
		testConfig(), logging.NewNopLogger())

	adapters := inference.NewRegistry(config.InferenceConfig{}, logging.NewNopLogger())

	admin := NewAdminServer(0, gin.TestMode, consumer, adapters,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}), logging.NewNopLogger())

	return admin, consumer
}

func get(t *testing.T, admin *AdminServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	admin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdmin_Healthz(t *testing.T) {
	admin, consumer := newTestAdmin(t)

	consumer.Start(context.Background())
	defer consumer.Stop()

	rec := get(t, admin, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "running", body["state"])

	adapters, ok := body["adapters"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, adapters["tagger"], "disabled")
}

func TestAdmin_HealthzStopped(t *testing.T) {
	admin, consumer := newTestAdmin(t)

	consumer.Start(context.Background())
	consumer.Stop()

	rec := get(t, admin, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"stopped"`)
}

func TestAdmin_Stats(t *testing.T) {
	admin, consumer := newTestAdmin(t)
	consumer.Stats().RecordMalformed()

	rec := get(t, admin, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"malformed":1`)
}

func TestAdmin_Metrics(t *testing.T) {
	admin, _ := newTestAdmin(t)

	rec := get(t, admin, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}
