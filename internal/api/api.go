// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api serves bridge health, status and metrics over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

const (
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second

	// A link is stale when no line arrived for this many poll intervals
	staleIntervals = 3
)

// StatusSource provides the controller state to report
type StatusSource interface {
	Snapshot() bridge.Snapshot
}

// Handler wires the HTTP layer to the bridge
type Handler struct {
	source  StatusSource
	metrics http.Handler
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewHandler creates a handler. metrics may be nil to omit /metrics.
func NewHandler(source StatusSource, metrics http.Handler, log *zap.SugaredLogger) *Handler {
	return &Handler{source: source, metrics: metrics, log: log, now: time.Now}
}

// InitRoutes builds the gin router
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.health)
	router.GET("/status", h.status)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
	return router
}

type healthResponse struct {
	Status      string `json:"status"`
	PollPending bool   `json:"poll_pending"`
	LastLineAge string `json:"last_line_age,omitempty"`
}

func (h *Handler) health(c *gin.Context) {
	snap := h.source.Snapshot()
	resp := healthResponse{Status: "ok", PollPending: snap.PollPending}

	if snap.LastLineAt.IsZero() {
		resp.Status = "waiting"
		c.JSON(http.StatusOK, resp)
		return
	}

	age := h.now().Sub(snap.LastLineAt)
	resp.LastLineAge = age.Round(time.Second).String()
	if age > time.Duration(staleIntervals*snap.PollRate)*time.Second {
		resp.Status = "stale"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type statusResponse struct {
	bridge.Snapshot
	Fields map[string]string `json:"fields"`
}

func (h *Handler) status(c *gin.Context) {
	snap := h.source.Snapshot()
	resp := statusResponse{Snapshot: snap, Fields: map[string]string{}}

	fields, err := rcs.ParseStatus(snap.LastStatus)
	if err != nil {
		h.log.Debugw("last status has malformed tokens", "error", err)
	}
	for _, f := range rcs.WithoutAddress(fields) {
		resp.Fields[f.Key] = f.Value
	}
	c.JSON(http.StatusOK, resp)
}

// Server wraps an *http.Server with start and shutdown
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server for handler on addr
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			MaxHeaderBytes:    maxHeaderBytes,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, letting in-flight requests finish
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
