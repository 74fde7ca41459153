package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/api/handlers"
	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/scheduler"
	"github.com/casapps/opphub/src/internal/search"
	"github.com/casapps/opphub/src/internal/services"
)

// Server wires the search subsystem behind an HTTP listener and owns
// the background services that run alongside it.
type Server struct {
	echo      *echo.Echo
	config    *viper.Viper
	db        *gorm.DB
	engine    *search.Engine
	cache     *cache.Manager
	rdb       *redis.Client
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	indexer   *services.IndexerService
	behavior  *services.BehaviorService
	startTime time.Time
}

// New creates a new server instance
func New(cfg *viper.Viper, db *gorm.DB, engine *search.Engine, cacheManager *cache.Manager, rdb *redis.Client, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	searchService := services.NewSearchService(db, engine, cacheManager, cfg, logger)
	suggestService := services.NewSuggestService(db, engine, cacheManager, cfg, logger)
	indexerService := services.NewIndexerService(db, engine, cacheManager, rdb, cfg, logger)
	behaviorService := services.NewBehaviorService(db, rdb, cfg, logger)

	s := &Server{
		echo:      e,
		config:    cfg,
		db:        db,
		engine:    engine,
		cache:     cacheManager,
		rdb:       rdb,
		logger:    logger,
		scheduler: scheduler.New(db, indexerService, cfg, logger),
		indexer:   indexerService,
		behavior:  behaviorService,
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes(searchService, suggestService)

	return s
}

// Start starts the HTTP listener and background services
func (s *Server) Start(ctx context.Context, address string) error {
	if s.rdb != nil {
		go s.indexer.Run(ctx)
	}

	if err := s.scheduler.Start(ctx); err != nil {
		s.logger.Warn("scheduler failed to start", "error", err)
	}

	s.logger.Info("server starting", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server and drains workers
func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()
	s.behavior.Close()

	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	return s.engine.Close()
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "  ${time_rfc3339} | ${status} | ${latency_human} | ${method} ${uri}\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.CORS())
}

func (s *Server) setupRoutes(searchService *services.SearchService, suggestService *services.SuggestService) {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api/v1")
	h := handlers.NewSearchHandler(searchService, suggestService, s.indexer, s.behavior, s.logger)
	h.RegisterRoutes(api)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}

	if stats, err := s.engine.Stats(); err == nil {
		status["index"] = stats
	} else {
		status["status"] = "degraded"
	}

	return c.JSON(http.StatusOK, status)
}
