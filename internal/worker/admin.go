package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/FediSent-Analytics/internal/inference"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
)

// AdminServer exposes the worker's operational surface: liveness, pipeline
// counters, and the metrics scrape endpoint.
type AdminServer struct {
	srv      *http.Server
	engine   *gin.Engine
	consumer *Consumer
	adapters *inference.Registry
	logger   logging.Logger
}

// NewAdminServer builds the admin HTTP server on port. metricsHandler may be
// nil when metrics are disabled.
func NewAdminServer(port int, mode string, consumer *Consumer, adapters *inference.Registry,
	metricsHandler http.Handler, logger logging.Logger) *AdminServer {

	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	a := &AdminServer{
		engine:   engine,
		consumer: consumer,
		adapters: adapters,
		logger:   logger.Named("admin"),
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	engine.GET("/healthz", a.handleHealthz)
	engine.GET("/stats", a.handleStats)
	if metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return a
}

// Handler exposes the router; tests drive it directly.
func (a *AdminServer) Handler() http.Handler {
	return a.engine
}

// Start blocks serving until Shutdown or a listener error.
func (a *AdminServer) Start() error {
	a.logger.Info("admin server listening", logging.String("addr", a.srv.Addr))
	err := a.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.srv.Shutdown(shutdownCtx)
}

func (a *AdminServer) handleHealthz(c *gin.Context) {
	state := a.consumer.State()

	status := http.StatusOK
	if state == StateStopped {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status": "ok",
		"worker": a.consumer.ID(),
		"state":  state.String(),
	}
	if status != http.StatusOK {
		body["status"] = "stopped"
	}
	if a.adapters != nil {
		body["adapters"] = a.adapters.States()
	}

	c.JSON(status, body)
}

func (a *AdminServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.consumer.Stats().Snapshot())
}
