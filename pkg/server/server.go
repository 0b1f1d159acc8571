// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the agent over HTTP: a buffered ask endpoint, a
// server-sent events stream and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/agent"
	"github.com/quarrydata/quarry/pkg/types"
)

// Defaults applied by New.
const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultRequestTimeout = 5 * time.Minute
	MaxQuestionLength     = 4000
)

// SSE event names besides the chunk types.
const (
	EventResult = "result"
)

// Asker answers questions. *agent.Agent implements it.
type Asker interface {
	Run(ctx context.Context, question string, history []agent.HistoryMessage) (*agent.Response, error)
	Stream(ctx context.Context, question string, history []agent.HistoryMessage) iter.Seq[agent.Chunk]
	Provider() types.LLMProvider
}

// Config configures the server.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	CORS           CORSConfig
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	MaxAge         int
}

// Server serves the HTTP API.
type Server struct {
	asker      Asker
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

// AskRequest is the body of /v1/ask and /v1/stream.
type AskRequest struct {
	Question string                 `json:"question" binding:"required"`
	History  []agent.HistoryMessage `json:"history"`
}

// ErrorResponse is returned for rejected or failed requests.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Response *agent.Response `json:"response,omitempty"`
}

// New creates a server. Call Start to listen.
func New(asker Asker, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{asker: asker, cfg: cfg, started: time.Now()}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger())
	if cfg.CORS.Enabled {
		cc := corsConfig(cfg.CORS)
		if err := cc.Validate(); err != nil {
			zap.L().Warn("CORS disabled: invalid configuration", zap.Error(err))
		} else {
			s.engine.Use(cors.New(cc))
		}
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/ask", s.ask)
		v1.POST("/stream", s.stream)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until ctx is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting HTTP server", zap.String("addr", s.cfg.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// Stop gracefully stops the server, letting running requests finish.
func (s *Server) Stop(ctx context.Context) error {
	zap.L().Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	provider := s.asker.Provider()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"provider": provider.Name(),
		"model":    provider.Model(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) ask(c *gin.Context) {
	req, ok := bindQuestion(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.asker.Run(ctx, req.Question, req.History)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error(), Response: resp})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// stream sends every chunk as an SSE event named after its type. The done
// event carries the finish reason and usage; a result event with the full
// response follows it.
func (s *Server) stream(c *gin.Context) {
	req, ok := bindQuestion(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	setSSEHeaders(c)
	c.Status(http.StatusOK)
	for chunk := range s.asker.Stream(ctx, req.Question, req.History) {
		if ctx.Err() != nil {
			zap.L().Info("client went away, stopping stream", zap.Error(ctx.Err()))
			return
		}
		send(c, string(chunk.Type), chunk)
		if chunk.Type == agent.ChunkDone && chunk.Response != nil {
			send(c, EventResult, chunk.Response)
		}
	}
}

func bindQuestion(c *gin.Context) (*AskRequest, bool) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return nil, false
	}
	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Question == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "question must not be empty"})
		return nil, false
	case len([]rune(req.Question)) > MaxQuestionLength:
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is longer than " + strconv.Itoa(MaxQuestionLength) + " characters",
		})
		return nil, false
	}
	return &req, true
}

func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func setSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

func send(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsConfig translates cfg for gin-contrib/cors. An empty origin list or
// "*" allows every origin.
func corsConfig(cfg CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       time.Duration(cfg.MaxAge) * time.Second,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.AllowedOrigins
	return c
}
