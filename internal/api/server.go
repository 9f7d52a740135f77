// Package api exposes the advisor over HTTP: the instance registry,
// recommendations, cost trends, analytics, right-sizing actions and
// model metadata.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/model"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// Recommender lists downsize recommendations.
type Recommender interface {
	List(ctx context.Context, opts engine.ListOptions) ([]engine.Recommendation, error)
}

// TrendSource produces the daily cost trend series.
type TrendSource interface {
	TotalCostTrend(ctx context.Context, lookbackDays int) (engine.TrendSeries, error)
}

// Aggregator computes per-instance features; the analytics summary uses
// the metadata column to apply the decision rule itself.
type Aggregator interface {
	ComputeFeatures(ctx context.Context, lookbackDays int, f engine.Filters) (engine.FeatureMatrix, []int, []engine.InstanceMeta, error)
}

// InstanceRegistry is the registry surface the handlers need.
type InstanceRegistry interface {
	List(ctx context.Context, f engine.Filters) ([]store.Instance, error)
	GetByID(ctx context.Context, id int64) (*store.Instance, error)
	UpdateInstanceType(ctx context.Context, id int64, instanceType string) error
}

// MetricReader reads stored utilization observations.
type MetricReader interface {
	ListForInstance(ctx context.Context, instanceID int64, since time.Time) ([]store.Metric, error)
}

// ActionRecorder persists right-sizing action records.
type ActionRecorder interface {
	Create(ctx context.Context, action *store.RightSizingAction) error
	GetByID(ctx context.Context, id int64) (*store.RightSizingAction, error)
	List(ctx context.Context, instanceID int64) ([]store.RightSizingAction, error)
	SetOutcome(ctx context.Context, id int64, status string, errorMessage *string, verifiedAt *time.Time) error
}

// ModelSource reports the loaded classifier artifact. Nil when no
// artifact is loaded.
type ModelSource interface {
	Meta() model.Metadata
}

// Explainer produces a narrative explanation for one recommendation.
type Explainer interface {
	ExplainRecommendation(ctx context.Context, rec engine.Recommendation) (string, error)
}

// TypeVerifier reads the instance type currently live at the cloud
// provider.
type TypeVerifier interface {
	CurrentInstanceType(ctx context.Context, cloudInstanceID, region string) (string, error)
}

// Pinger reports backend liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	EnableCORS      bool
	AllowedOrigins  []string
	MaxBodySize     string
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8000,
		ShutdownTimeout: 10 * time.Second,
		EnableCORS:      true,
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxBodySize:     "1M",
	}
}

// Dependencies wires the handlers to their backing services. Model,
// LLM and Verifier may be nil; the affected endpoints then report
// unavailability instead of failing at startup.
type Dependencies struct {
	Registry    InstanceRegistry
	Metrics     MetricReader
	Actions     ActionRecorder
	Recommender Recommender
	Trends      TrendSource
	Aggregator  Aggregator
	Model       ModelSource
	LLM         Explainer
	Verifier    TypeVerifier
	Counters    *engine.Counters
	DB          Pinger
	Logger      *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	deps   Dependencies
	logger *slog.Logger
}

// NewServer creates the API server with middleware and routes set up.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.Validator = NewValidator()

	s := &Server{
		echo:   e,
		config: config,
		deps:   deps,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(requestMetrics())

	if s.config.EnableCORS {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if s.config.MaxBodySize != "" {
		s.echo.Use(middleware.BodyLimit(s.config.MaxBodySize))
	}
}

// requestMetrics records per-route Prometheus counters and latency.
// The route template keeps path cardinality bounded; the /metrics
// endpoint itself is skipped to avoid self-scrape amplification.
func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			metrics.RecordHTTPRequest(c.Request().Method, c.Path(), status, time.Since(start).Seconds())
			return err
		}
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readyCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	instanceHandler := NewInstanceHandler(s.deps.Registry, s.deps.Metrics)
	s.echo.GET("/instances", instanceHandler.List)
	s.echo.GET("/instances/:id", instanceHandler.Get)
	s.echo.GET("/instances/:id/metrics", instanceHandler.GetMetrics)

	recHandler := NewRecommendationHandler(s.deps.Recommender, s.deps.LLM, s.logger)
	s.echo.GET("/recommendations", recHandler.List)
	s.echo.GET("/recommendations/:id/llm_explanation", recHandler.GetLLMExplanation)

	trendHandler := NewTrendHandler(s.deps.Trends)
	s.echo.GET("/cost_trends/total", trendHandler.GetTotal)
	s.echo.GET("/cost_trends/total/chart", trendHandler.GetTotalChart)

	analyticsHandler := NewAnalyticsHandler(s.deps.Registry, s.deps.Aggregator, s.deps.Model, s.deps.Counters)
	s.echo.GET("/analytics/summary", analyticsHandler.GetSummary)

	actionHandler := NewActionHandler(s.deps.Registry, s.deps.Actions, s.deps.Verifier, s.logger)
	s.echo.GET("/actions", actionHandler.List)
	s.echo.POST("/actions", actionHandler.Create)
	s.echo.POST("/actions/:id/verify", actionHandler.Verify)

	mlHandler := NewMLHandler(s.deps.Model)
	s.echo.GET("/ml/metadata", mlHandler.GetMetadata)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "database unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting API server", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance for testing.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
