package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/globaltime"
	"github.com/skybrief/skybrief/internal/rank"
)

const maxFeedLimit = 200

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes the read-only feed API plus a health surface.
type Server struct {
	pool   *db.Pool
	engine *rank.Engine
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, engine *rank.Engine, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		engine: engine,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}
			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/feeds/top", s.handleTopFeed)
	api.GET("/feeds/network", s.handleNetworkFeed)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("skybrief api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("skybrief api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = text
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	counts, err := s.pool.CountRows(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("health check query failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "skybrief",
		"time":    globaltime.UTC(),
		"counts":  counts,
	})
}

func (s *Server) handleTopFeed(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	feed, err := s.engine.TopFeed(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("top feed query failed")
		return internalError(c, "Failed to load feed")
	}
	return success(c, map[string]any{
		"items": feed,
		"limit": limit,
	})
}

func (s *Server) handleNetworkFeed(c echo.Context) error {
	sourceIDs, err := parseSourceIDs(c.QueryParam("sources"))
	if err != nil {
		return failValidation(c, map[string]string{"sources": err.Error()})
	}
	if len(sourceIDs) == 0 {
		return failValidation(c, map[string]string{"sources": "is required"})
	}

	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	feed, err := s.engine.NetworkFeed(c.Request().Context(), sourceIDs, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("network feed query failed")
		return internalError(c, "Failed to load feed")
	}
	return success(c, map[string]any{
		"items":   feed,
		"sources": sourceIDs,
		"limit":   limit,
	})
}

func parseLimit(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return rank.DefaultLimit, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < 1 || value > maxFeedLimit {
		return 0, fmt.Errorf("must be between 1 and %d", maxFeedLimit)
	}
	return value, nil
}

func parseSourceIDs(raw string) ([]int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("must be a comma-separated list of positive integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
