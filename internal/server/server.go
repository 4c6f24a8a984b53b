// Package server exposes generation and refinement over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/refine"
	"github.com/digitalex/codeless/internal/store"
)

// Refiner runs a full refinement session for an interface specification.
type Refiner interface {
	Run(ctx context.Context, interfaceSpec string) (*refine.Result, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8089",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server wires the generators, the refinement loop, and the audit store
// into a gin router.
type Server struct {
	config  Config
	tests   refine.TestGenerator
	impl    refine.ImplGenerator
	refiner Refiner
	audit   *store.AuditStore
	engine  *gin.Engine
}

// New creates a Server. refiner and audit may be nil; the corresponding
// endpoints then report that the capability is not configured.
func New(config Config, tests refine.TestGenerator, impl refine.ImplGenerator, refiner Refiner, audit *store.AuditStore) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:  config,
		tests:   tests,
		impl:    impl,
		refiner: refiner,
		audit:   audit,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", healthz)

	api := s.engine.Group("/api")
	api.POST("/generate/tests", s.generateTests)
	api.POST("/generate/impl", s.generateImpl)
	api.POST("/refine", s.runRefinement)
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.getSession)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryServer)

	httpServer := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.engine,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening on %s", s.config.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
