// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the assistant over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/assistant"
	"github.com/your-org/parts-assistant/internal/config"
	"github.com/your-org/parts-assistant/internal/health"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/resilience"
	"github.com/your-org/parts-assistant/internal/session"
	"github.com/your-org/parts-assistant/internal/transcript"
)

const shutdownTimeout = 10 * time.Second

// NoQueryResponse is returned for a chat request without a message
const NoQueryResponse = "No query provided"

// ChatHandler answers chat messages
type ChatHandler interface {
	HandleQuery(ctx context.Context, req assistant.Request) (*assistant.Result, error)
}

// FeedbackStore records feedback, reads back exchanges and reports
// exchange statistics
type FeedbackStore interface {
	RecordFeedback(ctx context.Context, fb *transcript.Feedback) error
	GetExchange(ctx context.Context, id string) (*transcript.Exchange, error)
	Stats(ctx context.Context) (*transcript.Stats, error)
}

// Dependencies are the collaborators behind the routes. Chat is required;
// Feedback, Sessions, Health and Metrics enable their routes.
type Dependencies struct {
	Chat     ChatHandler
	Feedback FeedbackStore
	Sessions *session.Manager
	Health   *health.Manager
	Metrics  *metrics.Metrics
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// FeedbackRequest is the body of POST /feedback
type FeedbackRequest struct {
	ExchangeID string `json:"exchange_id" binding:"required"`
	Rating     string `json:"rating" binding:"required"`
	Comment    string `json:"comment,omitempty"`
}

// Server is the HTTP front end
type Server struct {
	router  *gin.Engine
	deps    Dependencies
	config  config.ServerConfig
	errors  *resilience.ErrorHandler
	limiter *ClientLimiter
	logger  *zap.Logger
}

// New builds the router with middleware and routes
func New(cfg config.ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:  gin.New(),
		deps:    deps,
		config:  cfg,
		errors:  resilience.NewErrorHandler(logger),
		limiter: NewClientLimiter(cfg.RequestsPerSecond, cfg.Burst, 0),
		logger:  logger,
	}

	s.router.Use(gin.Recovery(), requestID(), requestLogger(logger), cors(cfg.AllowedOrigins))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.router.Group("/", requestTimeout(s.config.RequestTimeout))
	api.POST("/chat", rateLimit(s.limiter), s.handleChat)
	api.POST("/feedback", s.handleFeedback)
	api.GET("/stats", s.handleStats)
	api.GET("/exchanges/:id", s.handleGetExchange)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)

	if s.deps.Health != nil {
		s.router.GET("/health", s.deps.Health.Handler())
	}
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Failed to parse chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"response": NoQueryResponse})
		return
	}

	result, err := s.deps.Chat.HandleQuery(c.Request.Context(), assistant.Request{
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if errors.Is(err, assistant.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"response": NoQueryResponse})
		return
	}
	if err != nil {
		writeError(c, s.errors.WrapError(err, "processing your question"))
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		writeError(c, resilience.NewServiceError("Feedback is not enabled.",
			resilience.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, nil))
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, resilience.NewBadRequestError("exchange_id and rating are required", err))
		return
	}

	fb := &transcript.Feedback{ExchangeID: req.ExchangeID, Rating: req.Rating, Comment: req.Comment}
	err := s.deps.Feedback.RecordFeedback(c.Request.Context(), fb)
	switch {
	case errors.Is(err, transcript.ErrInvalidRating):
		writeError(c, resilience.NewBadRequestError(err.Error(), err))
		return
	case errors.Is(err, transcript.ErrExchangeNotFound):
		writeError(c, resilience.NewNotFoundError("Unknown exchange_id.", err))
		return
	case err != nil:
		writeError(c, s.errors.WrapError(err, "recording feedback"))
		return
	}

	s.deps.Metrics.RecordFeedback(fb.Rating)
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "feedback_id": fb.ID})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.deps.Feedback == nil {
		writeError(c, resilience.NewServiceError("Transcripts are not enabled.",
			resilience.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, nil))
		return
	}

	stats, err := s.deps.Feedback.Stats(c.Request.Context())
	if err != nil {
		writeError(c, s.errors.WrapError(err, "loading statistics"))
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetExchange(c *gin.Context) {
	if s.deps.Feedback == nil {
		writeError(c, resilience.NewServiceError("Transcripts are not enabled.",
			resilience.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, nil))
		return
	}

	ex, err := s.deps.Feedback.GetExchange(c.Request.Context(), c.Param("id"))
	if errors.Is(err, transcript.ErrExchangeNotFound) {
		writeError(c, resilience.NewNotFoundError("Unknown exchange_id.", err))
		return
	}
	if err != nil {
		writeError(c, s.errors.WrapError(err, "loading the exchange"))
		return
	}
	c.JSON(http.StatusOK, ex)
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		writeError(c, resilience.NewNotFoundError("Session not found.", nil))
		return
	}

	sess, err := s.deps.Sessions.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(c, resilience.NewNotFoundError("Session not found.", err))
		return
	}
	if err != nil {
		writeError(c, s.errors.WrapError(err, "loading the conversation"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"title":      sess.Title,
		"status":     sess.Status,
		"created_at": sess.CreatedAt,
		"updated_at": sess.UpdatedAt,
		"messages":   sess.Messages,
	})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		writeError(c, resilience.NewNotFoundError("Session not found.", nil))
		return
	}

	err := s.deps.Sessions.DeleteSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(c, resilience.NewNotFoundError("Session not found.", err))
		return
	}
	if err != nil {
		writeError(c, s.errors.WrapError(err, "deleting the conversation"))
		return
	}

	c.Status(http.StatusNoContent)
}
