package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/orchestrator"
	"github.com/agentic-hq/agentic/pkg/version"
)

const shutdownGrace = 10 * time.Second

// Server serves the run intake API over a single shared orchestrator.
// Submitted runs queue up and execute one batch at a time; parallelism
// within a batch stays bounded by the orchestrator's configuration.
type Server struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store *Store
	queue chan string
	log   *slog.Logger
}

// NewServer wires the intake server to an orchestrator.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator) *Server {
	return &Server{
		cfg:   cfg,
		orch:  orch,
		store: NewStore(),
		queue: make(chan string, 64),
		log:   slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.orch.Metrics().Registry(), promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.POST("/runs", s.createRun)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.DELETE("/runs/:id", s.cancelRun)

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully. The run
// executor stops with the listener; an in-flight batch is cancelled and its
// partial session recorded.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.Router(),
	}

	execCtx, stopExec := context.WithCancel(ctx)
	defer stopExec()
	go s.runLoop(execCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", "addr", srv.Addr, "version", version.Full())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

// runLoop executes queued runs in submission order.
func (s *Server) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.execute(ctx, id)
		}
	}
}

func (s *Server) execute(ctx context.Context, id string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scenarios, ok := s.store.begin(id, cancel)
	if !ok {
		// Cancelled while queued.
		return
	}

	s.log.Info("Run started", "run_id", id, "scenarios", len(scenarios))
	session, err := s.orch.RunBatch(runCtx, scenarios)
	s.store.finish(id, session, err)

	if err != nil {
		s.log.Error("Run failed", "run_id", id, "error", err)
		return
	}
	s.log.Info("Run finished",
		"run_id", id,
		"session_id", session.SessionID,
		"passed", session.Summary.Passed,
		"failed", session.Summary.Failed,
		"errors", session.Summary.Error)
}

// enqueue hands a pending run to the executor. The queue is large enough
// that a full channel means the operator has a bigger problem; the run
// fails fast instead of blocking the handler.
func (s *Server) enqueue(id string) error {
	select {
	case s.queue <- id:
		return nil
	default:
		return errors.New("run queue is full")
	}
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
