// Package server exposes the detection engine over a local REST API.
//
//	POST /analyze        — analyze one text
//	POST /analyze/batch  — analyze up to max_batch_size texts
//	GET  /stats          — aggregated history + runtime statistics
//	GET  /healthz        — liveness
//	GET  /metrics        — Prometheus metrics
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/threatlens/threatlens/internal/audit"
	"github.com/threatlens/threatlens/internal/cache"
	"github.com/threatlens/threatlens/internal/engine"
	"github.com/threatlens/threatlens/internal/metrics"
	"github.com/threatlens/threatlens/internal/store"
	"github.com/threatlens/threatlens/pkg/threat"
)

// Options configures the REST server. Engine is required; everything
// else degrades gracefully when nil.
type Options struct {
	Engine       *engine.Engine
	Store        *store.Store   // nil disables history and /stats aggregation
	Cache        cache.Cache    // nil disables the verdict cache
	Audit        *audit.Logger  // nil disables audit logging
	MaxBatchSize int
	RecentLimit  int
}

// Server is the REST API server.
type Server struct {
	engine       *engine.Engine
	store        *store.Store
	cache        cache.Cache
	audit        *audit.Logger
	maxBatchSize int
	recentLimit  int
	startedAt    time.Time
	httpServer   *http.Server
}

// New creates a Server with its routes registered.
func New(opts Options) *Server {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 20
	}
	return &Server{
		engine:       opts.Engine,
		store:        opts.Store,
		cache:        opts.Cache,
		audit:        opts.Audit,
		maxBatchSize: opts.MaxBatchSize,
		recentLimit:  opts.RecentLimit,
		startedAt:    time.Now(),
	}
}

// Router builds the gin handler. Exposed separately so tests can drive
// it with httptest.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/analyze", s.handleAnalyze)
	r.POST("/analyze/batch", s.handleAnalyzeBatch)
	r.GET("/stats", s.handleStats)
	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// analyze runs one text through cache + engine and records the result.
func (s *Server) analyze(ctx context.Context, text, transport string) (*threat.AnalysisResult, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(s.engine.Rules().Revision(), store.HashText(text))
		if cached, ok := s.cache.Get(ctx, key); ok {
			metrics.CacheHits.Inc()
			return cached, nil
		}
		metrics.CacheMisses.Inc()
	}

	result, err := s.engine.Analyze(text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	if s.store != nil {
		// History failures must not fail the analysis.
		_ = s.store.Record(transport, text, result)
	}
	if s.audit != nil {
		_ = s.audit.LogResult(transport, text, result)
	}
	metrics.ObserveResult(transport, string(result.Action),
		float64(result.DurationMs)/1000.0, result.IsThreat, result.ThreatTypes)

	return result, nil
}

// runtimeStats reports process uptime, RSS, and CPU usage.
func (s *Server) runtimeStats() *threat.RuntimeStatistics {
	rt := &threat.RuntimeStatistics{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return rt
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rt.MemoryRSS = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		rt.CPUPercent = cpu
	}
	return rt
}
