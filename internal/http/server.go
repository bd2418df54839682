// Package http serves the question-answering API and the web page.
package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/logging"
	"github.com/fyrsmithlabs/bellaqa/internal/rag"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed static/index.html
var defaultIndexHTML []byte

// DefaultRequestTimeout bounds one /ask pipeline run.
const DefaultRequestTimeout = 60 * time.Second

// maxBodySize bounds POST bodies.
const maxBodySize = "64K"

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, q rag.Query) (*rag.Answer, error)
}

// IndexSource exposes the index currently being served, or nil.
type IndexSource interface {
	Load() *vectorstore.Index
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	// StaticDir, when set, holds the index.html served at /.
	StaticDir string
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	asker   Asker
	index   IndexSource
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(asker Asker, index IndexSource, logger *logging.Logger, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("index source cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "", Port: 8080}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		asker:   asker,
		index:   index,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger.Underlying()),
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/ask", s.handleAsk)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Render now so the logged status is the one sent.
			c.Error(err)
		}

		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		}
		ctx := c.Request().Context()
		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Warn(ctx, "http request", fields...)
		} else {
			s.logger.Info(ctx, "http request", fields...)
		}
		return nil
	}
}

func (s *Server) handleIndex(c echo.Context) error {
	if s.config.StaticDir != "" {
		path := filepath.Join(s.config.StaticDir, "index.html")
		if _, err := os.Stat(path); err == nil {
			return c.File(path)
		}
		s.logger.Warn(c.Request().Context(), "static index.html not found, serving built-in page", zap.String("path", path))
	}
	return c.HTMLBlob(http.StatusOK, defaultIndexHTML)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports the served index, or 503 before one is loaded.
func (s *Server) handleReady(c echo.Context) error {
	ix := s.index.Load()
	if ix == nil {
		return c.JSON(http.StatusServiceUnavailable, ReadyResponse{Status: "no_index"})
	}
	m := ix.Manifest()
	return c.JSON(http.StatusOK, ReadyResponse{
		Status:         "ready",
		BuildID:        m.BuildID,
		Chunks:         ix.Count(),
		EmbeddingModel: m.EmbeddingModel,
		BuiltAt:        m.BuiltAt,
	})
}

// handleAsk runs the question-answering pipeline once.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.RecordAsk(outcomeValidation)
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidBody)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	answer, err := s.asker.Ask(ctx, rag.Query{Question: req.Question, Mode: req.Mode})
	if err != nil {
		status, message, outcome := classify(err)
		s.metrics.RecordAsk(outcome)

		fields := []zap.Field{zap.Int("status", status), zap.Error(err)}
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "ask failed", fields...)
		} else {
			s.logger.Info(ctx, "ask rejected", fields...)
		}
		return echo.NewHTTPError(status, message).SetInternal(err)
	}

	s.metrics.RecordAsk(outcomeOK)
	return c.JSON(http.StatusOK, AskResponse{Answer: answer.Text})
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
