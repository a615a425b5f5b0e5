// Package api serves the read-only status endpoints of a running engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evdnx/papertrader/engine"
	"github.com/evdnx/papertrader/logger"
)

// StatusSource is satisfied by *engine.Engine.
type StatusSource interface {
	Status() engine.Status
}

type Server struct {
	router *gin.Engine
	server *http.Server
	src    StatusSource
	log    logger.Logger
}

func NewServer(addr string, src StatusSource, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(log))

	s := &Server{
		router: router,
		src:    src,
		log:    log,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) getStatus(c *gin.Context) {
	st := s.src.Status()
	if st.UpdatedAt.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine has not completed a tick yet"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getPositions(c *gin.Context) {
	st := s.src.Status()
	positions := st.Snapshot.Positions
	if sym := c.Query("symbol"); sym != "" {
		filtered := positions[:0:0]
		for _, p := range positions {
			if p.Symbol == sym {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(positions),
		"data":  positions,
	})
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("api_listening", logger.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func accessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Info("api_request",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Since(start),
		)
	}
}
