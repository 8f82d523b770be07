package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
)

// State is the lifecycle state of an inference adapter. Adapters start
// uninitialized, probe their backend on first use, and settle into Ready or
// Disabled. A disabled adapter stays disabled; the pipeline degrades around
// it instead of failing.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	}
	return "uninitialized"
}

var (
	ErrAdapterDisabled = errors.New(errors.ErrCodeInferenceDisabled, "inference adapter disabled")
	ErrRequestFailed   = errors.New(errors.ErrCodeInferenceRequest, "inference request failed")
)

// Adapter is the common surface of the model adapters.
type Adapter interface {
	Name() string
	State() State
	DisabledReason() string
}

// Observer receives the outcome of every adapter call. The worker wires its
// Prometheus metrics here; a nil observer records nothing.
type Observer interface {
	RecordInference(adapter, status string, elapsed time.Duration)
}

// httpAdapter carries the shared HTTP plumbing: base URL, probe-once
// initialization and JSON round trips.
type httpAdapter struct {
	name     string
	baseURL  string
	client   *http.Client
	logger   logging.Logger
	observer Observer

	probeOnce sync.Once
	state     atomic.Int32
	reason    atomic.Value // string
}

func newHTTPAdapter(name, baseURL string, timeout time.Duration, logger logging.Logger) *httpAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	a := &httpAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named(name),
	}
	a.reason.Store("")

	if baseURL == "" {
		a.disable("not configured")
	}
	return a
}

func (a *httpAdapter) Name() string { return a.name }

func (a *httpAdapter) State() State { return State(a.state.Load()) }

func (a *httpAdapter) DisabledReason() string {
	return a.reason.Load().(string)
}

func (a *httpAdapter) setObserver(o Observer) { a.observer = o }

func (a *httpAdapter) disable(reason string) {
	a.state.Store(int32(StateDisabled))
	a.reason.Store(reason)
}

// ensureReady probes the backend exactly once. Later calls observe the
// settled state without touching the network.
func (a *httpAdapter) ensureReady(ctx context.Context) error {
	a.probeOnce.Do(func() {
		if a.State() == StateDisabled {
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
		if err != nil {
			a.disable(fmt.Sprintf("probe setup failed: %v", err))
			return
		}
		resp, err := a.client.Do(req)
		if err != nil {
			a.disable(fmt.Sprintf("backend unreachable: %v", err))
			a.logger.Warn("adapter disabled", logging.String("reason", a.DisabledReason()))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			a.disable(fmt.Sprintf("health probe returned %d", resp.StatusCode))
			a.logger.Warn("adapter disabled", logging.String("reason", a.DisabledReason()))
			return
		}
		a.state.Store(int32(StateReady))
		a.logger.Info("adapter ready", logging.String("base_url", a.baseURL))
	})

	if a.State() == StateDisabled {
		return ErrAdapterDisabled.WithDetail(a.DisabledReason())
	}
	return nil
}

func (a *httpAdapter) observe(status string, start time.Time) {
	if a.observer != nil {
		a.observer.RecordInference(a.name, status, time.Since(start))
	}
}

// postJSON sends payload to path and decodes the response into out.
func (a *httpAdapter) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	start := time.Now()

	if err := a.ensureReady(ctx); err != nil {
		a.observe("disabled", start)
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInferenceRequest, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.observe("error", start)
		return errors.Wrap(err, errors.ErrCodeInferenceUnavailable, "inference call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		a.observe("error", start)
		return errors.Wrapf(ErrRequestFailed, errors.ErrCodeInferenceRequest,
			"%s returned %d: %s", path, resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		a.observe("error", start)
		return errors.Wrap(err, errors.ErrCodeInferenceDecode, "failed to decode response")
	}

	a.observe("ok", start)
	return nil
}
