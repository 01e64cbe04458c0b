package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"modelrelay/internal/apierr"
	"modelrelay/internal/catalog"
	"modelrelay/internal/config"
	"modelrelay/internal/models"
	"modelrelay/internal/protocol"
	"modelrelay/internal/upstream"
	"modelrelay/internal/validate"
)

const (
	maxBodyBytes        = 10 << 20
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 120 * time.Second
	idleTimeout         = 120 * time.Second
)

// anthropicRoutePrefix selects the Anthropic error envelope at the boundary.
const anthropicRoutePrefix = "/v1/messages"

type Server struct {
	cfg       config.Config
	validator *validate.Validator
	catalog   *catalog.Client
	upstream  *upstream.Client
	app       *echo.Echo
	address   string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, validator *validate.Validator, cat *catalog.Client, up *upstream.Client) (*Server, error) {
	if validator == nil || cat == nil || up == nil {
		return nil, errors.New("validator, catalog and upstream must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	srv := &Server{
		cfg:       cfg,
		validator: validator,
		catalog:   cat,
		upstream:  up,
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleListModels)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	s.app.POST("/v1/messages", s.handleAnthropicMessages)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c echo.Context) error {
	snap, err := s.catalog.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}

	type modelEntry struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	ids := catalog.ChatModelIDs(snap)
	data := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, modelEntry{ID: id, Object: "model"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	ctx := c.Request().Context()
	// Warm the catalog cache before touching the body; the request path
	// never waits on this.
	s.catalog.RefreshDetached(context.WithoutCancel(ctx))

	var req protocol.ChatCompletionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	relayReq := req.ToRelay()
	validated, err := s.validator.ValidateModelAndMessages(ctx, relayReq.Model, relayReq.Messages)
	if err != nil {
		return err
	}

	resp, err := s.upstream.Chat(ctx, buildUpstreamRequest(validated, relayReq))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, protocol.FromUpstreamOpenAI(validated.CleanModel, resp))
}

func (s *Server) handleAnthropicMessages(c echo.Context) error {
	ctx := c.Request().Context()
	s.catalog.RefreshDetached(context.WithoutCancel(ctx))

	var req protocol.AnthropicMessageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	relayReq := req.ToRelay()
	validated, err := s.validator.ValidateModelAndMessages(ctx, relayReq.Model, relayReq.Messages)
	if err != nil {
		return err
	}

	resp, err := s.upstream.Chat(ctx, buildUpstreamRequest(validated, relayReq))
	if err != nil {
		return err
	}

	anthropicResp := protocol.FromUpstreamAnthropic(validated.CleanModel, resp)
	if relayReq.Stream {
		return writeAnthropicStream(c, anthropicResp)
	}
	return c.JSON(http.StatusOK, anthropicResp)
}

func buildUpstreamRequest(validated models.ValidatedModel, relayReq protocol.RelayRequest) upstream.ChatRequest {
	req := upstream.ChatRequest{
		Model:       validated.CleanModel,
		Messages:    validated.ProcessedMessages,
		MaxTokens:   relayReq.MaxTokens,
		Temperature: relayReq.Temperature,
		TopP:        relayReq.TopP,
	}
	if validated.WebSearch != nil && validated.WebSearch.Enabled {
		req.WebSearchOptions = &upstream.WebSearchOptions{
			SearchContextSize: validated.WebSearch.ContextSize,
		}
	}
	return req
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.Validation("request body is required")
		}
		return apierr.Validation(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return apierr.Validation("request body must contain a single JSON object")
	}
	return nil
}

// errorHandler is the single error boundary. The wire shape is selected by
// route prefix; anything outside the taxonomy is logged in full and surfaced
// with a generic message only.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := fmt.Sprintf("%v", he.Message)
		if he.Code >= http.StatusInternalServerError {
			err = apierr.API(he.Code, message)
		} else {
			err = &apierr.Failure{
				Kind:    apierr.KindValidation,
				Message: message,
				Status:  he.Code,
			}
		}
	}

	if _, ok := apierr.AsFailure(err); !ok {
		slog.Error("unhandled error",
			"path", c.Request().URL.Path,
			"err", err,
		)
	}

	if strings.HasPrefix(c.Request().URL.Path, anthropicRoutePrefix) {
		status, body := apierr.ToAnthropic(err)
		_ = c.JSON(status, body)
		return
	}

	status, body := apierr.ToOpenAI(err)
	_ = c.JSON(status, body)
}
