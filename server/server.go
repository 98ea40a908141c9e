package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/dealscope/pkg/domain"
	"github.com/umputun/dealscope/pkg/pipeline"
	"github.com/umputun/dealscope/pkg/scheduler"
)

// Server represents HTTP server instance
type Server struct {
	config    ConfigProvider
	store     Store
	scheduler Scheduler
	version   string
	debug     bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Store interface for server operations
type Store interface {
	ListDeals(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error)
	GetDeal(ctx context.Context, id int64) (*domain.Deal, error)
	GetSources(ctx context.Context) ([]domain.Source, error)
	GetQueueStats(ctx context.Context) (*domain.QueueStats, error)
	GetQueueItems(ctx context.Context, limit int) ([]domain.QueueItem, error)
	GetArticles(ctx context.Context, limit, offset int) ([]domain.Article, error)
	CountDeals(ctx context.Context) (int64, error)
}

// Scheduler interface for on-demand pipeline operations
type Scheduler interface {
	TriggerFetch(ctx context.Context) *pipeline.FetchResult
	TriggerEvaluate(ctx context.Context) *pipeline.EvalResult
	TriggerPublish(ctx context.Context) (*pipeline.PublishResult, error)
	Runs() scheduler.LastRuns
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, store Store, sched Scheduler, version string, debug bool) *Server {
	s := &Server{
		config:    cfg,
		store:     store,
		scheduler: sched,
		version:   version,
		debug:     debug,
		router:    routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("dealscope", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /deals", s.listDealsHandler)
		r.HandleFunc("GET /deals/{id}", s.getDealHandler)
		r.HandleFunc("GET /sources", s.listSourcesHandler)
		r.HandleFunc("GET /queue", s.queueHandler)
		r.HandleFunc("GET /articles", s.listArticlesHandler)
		r.HandleFunc("GET /runs/last", s.lastRunsHandler)
		r.HandleFunc("POST /fetch", s.triggerFetchHandler)
		r.HandleFunc("POST /evaluate", s.triggerEvaluateHandler)
		r.HandleFunc("POST /publish", s.triggerPublishHandler)
	})
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
