// Package api wires the archival pipeline behind a loopback-only HTTP
// server (spec.md §4.7/§4.8/§6). Router construction follows the
// teacher's routes.SetupRoutes idiom: an explicit route table built in
// one place rather than decorator-declared handlers (spec.md §9).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Solarigin/Like-Gallery/internal/config"
	"github.com/Solarigin/Like-Gallery/internal/download"
	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/naming"
	"github.com/Solarigin/Like-Gallery/internal/store"
)

// Server hosts the daemon's loopback HTTP surface.
type Server struct {
	cfg     *config.Store
	store   *store.Store
	naming  *naming.Engine
	dl      *download.Downloader
	indexer *gallery.Indexer
	log     *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// New builds a Server bound to cfg's base_dir/port. gin runs in release
// mode; request tracing uses a per-request UUID (spec.md §2 ambient
// logging).
func New(cfg *config.Store, st *store.Store, namingEngine *naming.Engine, dl *download.Downloader, indexer *gallery.Indexer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestIDMiddleware(), gin.Recovery())

	s := &Server{cfg: cfg, store: st, naming: namingEngine, dl: dl, indexer: indexer, log: log, engine: engine}
	s.routes()
	return s
}

// routes builds the route table explicitly (spec.md §6 "HTTP surface").
func (s *Server) routes() {
	cur := s.cfg.Get()

	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/images.json", s.handleImagesJSON)
	s.engine.GET("/api/items", s.handleListItems)
	s.engine.GET("/*filepath", s.handleStaticFile)

	save := s.engine.Group("/")
	save.Use(bodySizeLimit(int64(cur.Download.MaxBodyKB)*1024), signatureMiddleware([]byte(cur.HMACKey)))
	save.POST("/save", s.handleSave)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run binds to 127.0.0.1:<port> and serves until ctx is canceled
// (spec.md §6 "loopback only").
func (s *Server) Run(ctx context.Context) error {
	cur := s.cfg.Get()
	s.http = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cur.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}
