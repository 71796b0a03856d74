package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/api/middleware"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline is everything the ingest and sync endpoints drive.
type Pipeline interface {
	handlers.Ingester
	handlers.Syncer
}

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Pipeline Pipeline
	Stock    handlers.StockReader
	Displays handlers.DisplayResolver
	Locales  handlers.LocaleResolver
	Issues   handlers.IssueStore
	Gatherer prometheus.Gatherer
	// Ping reports database health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

type Server struct {
	config *config.Config
	logger *logger.Logger
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, deps Dependencies) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	ingestHandler := handlers.NewIngestHandler(deps.Pipeline, cfg.StoreIDHeader, logger)
	syncHandler := handlers.NewSyncHandler(deps.Pipeline, logger)
	productHandler := handlers.NewProductHandler(deps.Stock, deps.Displays, deps.Locales, cfg.StoreIDHeader, logger)
	issueHandler := handlers.NewIssueHandler(deps.Issues, logger)

	router.GET("/healthz", health(deps.Ping))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		// Push ingestion
		ingest := v1.Group("/ingest")
		{
			ingest.POST("/products", ingestHandler.Products)
			ingest.POST("/stock", ingestHandler.Stock)
			ingest.POST("/categories", ingestHandler.Categories)
		}

		// Pull syncs
		sync := v1.Group("/sync")
		{
			sync.POST("/products", syncHandler.Products)
			sync.POST("/promotions", syncHandler.Promotions)
			sync.POST("/categories", syncHandler.Categories)
		}

		products := v1.Group("/products")
		{
			products.GET("/:sku/stock", productHandler.Stock)
			products.GET("/:sku/display", productHandler.Display)
			products.POST("/:sku/cart", productHandler.Cart)
		}

		issues := v1.Group("/issues")
		{
			issues.GET("", issueHandler.List)
			issues.POST("/:id/resolve", issueHandler.Resolve)
		}
	}

	return &Server{
		config: cfg,
		logger: logger,
		router: router,
	}
}

func health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	// sync endpoints run a whole pull before answering
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the engine for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}
