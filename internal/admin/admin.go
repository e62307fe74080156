// Package admin serves the HTTP side channel of a running pong server:
// health, live sessions and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pingpong/internal/metrics"
	"pingpong/internal/shared"
)

// SessionRegistry is the view of the server's live sessions the admin API
// needs.
type SessionRegistry interface {
	Sessions() []shared.SessionInfo
	Session(id string) (shared.SessionInfo, bool)
	CloseSession(id, reason string) error
}

type Handler struct {
	sessions SessionRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	started  time.Time
}

func NewHandler(sessions SessionRegistry, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, metrics: m, logger: logger, started: time.Now()}
}

// Router builds the gin engine with every admin route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.observe())

	r.GET("/healthz", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	h.RegisterRoutes(r.Group("/sessions"))
	return r
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Close)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": len(h.sessions.Sessions()),
	})
}

func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Sessions())
}

func (h *Handler) Get(c *gin.Context) {
	s, ok := h.sessions.Session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": shared.ErrSessionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// Close handles DELETE /sessions/:id, closing that client's connection.
func (h *Handler) Close(c *gin.Context) {
	reason := c.DefaultQuery("reason", "closed by admin")
	err := h.sessions.CloseSession(c.Param("id"), reason)
	switch {
	case errors.Is(err, shared.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

// observe logs every request and counts it by route template.
func (h *Handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		h.metrics.AdminRequest(c.Request.Method, path, status)
		h.logger.Debug("admin_request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"elapsed", time.Since(start),
		)
	}
}

// Server runs the admin router on its own HTTP listener.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: h.logger,
	}
}

// Start serves in the background. Errors other than a clean shutdown are
// logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin_listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin_server_failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
