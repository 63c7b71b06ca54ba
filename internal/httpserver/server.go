// Package httpserver exposes the content engine over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/service"
)

// Options tunes the HTTP layer.
type Options struct {
	Addr           string
	Mode           string
	ImportMaxBytes int64
}

// Server wraps the HTTP server configuration and dependencies.
type Server struct {
	addr    string
	handler http.Handler
}

// NewServer creates an HTTP server with routes and middleware.
func NewServer(svc *service.Service, opts Options) *Server {
	return &Server{addr: opts.Addr, handler: NewRouter(svc, opts)}
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http_listen", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Infow("http_stopped", "addr", s.addr)
	return nil
}

type handler struct {
	svc            *service.Service
	importMaxBytes int64
}

// NewRouter builds the gin engine with every route.
func NewRouter(svc *service.Service, opts Options) *gin.Engine {
	if opts.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &handler{svc: svc, importMaxBytes: opts.ImportMaxBytes}
	if h.importMaxBytes <= 0 {
		h.importMaxBytes = 32 << 20
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	pub := r.Group("/public", ActorMiddleware())
	pub.GET("/:id/:slug/*file", h.servePublic)
	r.GET("/download/:id/:slug/:format", ActorMiddleware(), h.downloadPublic)

	api := r.Group("/api/v1", ActorMiddleware())
	{
		api.POST("/contents", h.createContent)
		api.POST("/contents/import", h.importContent)
		api.GET("/contents/:id", h.getContent)
		api.PUT("/contents/:id", h.updateTop)
		api.DELETE("/contents/:id", h.deleteContent)
		api.GET("/contents/:id/tree", h.getTree)
		api.GET("/contents/:id/node", h.getNode)
		api.POST("/contents/:id/containers", h.addContainer)
		api.PUT("/contents/:id/containers", h.updateContainer)
		api.POST("/contents/:id/extracts", h.addExtract)
		api.PUT("/contents/:id/extracts", h.updateExtract)
		api.DELETE("/contents/:id/nodes", h.deleteNode)
		api.POST("/contents/:id/move", h.moveNode)
		api.POST("/contents/:id/beta", h.setBeta)
		api.DELETE("/contents/:id/beta", h.unsetBeta)
		api.GET("/contents/:id/history", h.history)
		api.GET("/contents/:id/diff", h.diff)
		api.GET("/contents/:id/refs", h.refs)
		api.GET("/contents/:id/export", h.exportContent)
		api.POST("/contents/:id/authors", h.addAuthor)
		api.DELETE("/contents/:id/authors/:user", h.removeAuthor)
		api.GET("/contents/:id/retention", h.getRetention)
		api.PUT("/contents/:id/retention", h.setRetention)

		api.POST("/contents/:id/validations", h.askValidation)
		api.GET("/contents/:id/validations", h.listValidations)
		api.POST("/contents/:id/revoke", h.revoke)
		api.GET("/contents/:id/messages", h.messages)
		api.GET("/contents/:id/publications", h.publications)

		api.GET("/validations", h.moderationQueue)
		api.POST("/validations/:vid/reserve", h.reserve)
		api.POST("/validations/:vid/accept", h.accept)
		api.POST("/validations/:vid/reject", h.reject)
		api.POST("/validations/:vid/cancel", h.cancel)
	}
	return r
}
