// Package server exposes a read-only status surface for a running job.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/core"
	"github.com/OmkarTuptewar/template-generator/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

type ProgressSource interface {
	Progress() core.Progress
}

type RegistryStats interface {
	Stats() map[string]int
}

type Server struct {
	Progress ProgressSource
	Registry RegistryStats
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func NewServer(progress ProgressSource, registry RegistryStats, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Progress: progress,
		Registry: registry,
		Metrics:  m,
		Logger:   logger,
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.GET("/stats", s.Stats)
	r.GET("/registry", s.RegistryCounts)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Progress.Progress())
}

func (s *Server) RegistryCounts(c *gin.Context) {
	stats := s.Registry.Stats()
	total := 0
	for _, n := range stats {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"labels": stats, "total": total})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	s.Logger.Info("status server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
