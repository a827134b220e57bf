package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"seqthink/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the HTTP router shared by the sse and http
// transports.
type RouterOptions struct {
	MetricsPath string // Empty disables the metrics endpoint
	Debug       bool   // gin debug mode with request logging
}

// Mountable is a transport that registers its routes on a gin router.
type Mountable interface {
	Register(router gin.IRoutes)
}

// NewRouter builds the gin engine with health and metrics endpoints and
// mounts transport on it.
func NewRouter(server *Server, transport Mountable, opts RouterOptions) *gin.Engine {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		info := server.Info()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"name":        info.Name,
			"version":     info.Version,
			"initialized": server.Initialized(),
		})
	})

	if opts.MetricsPath != "" {
		router.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
		logging.Get(logging.CategoryMetrics).Info("Metrics exposed at %s", opts.MetricsPath)
	}

	transport.Register(router)
	return router
}

// requestLogger logs each request to the transport category at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.TransportDebug("%s %s -> %d (%v)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully within timeout. onShutdown hooks run when shutdown
// begins, before waiting on active connections.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, timeout time.Duration, onShutdown ...func()) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, handler, timeout, onShutdown...)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, timeout time.Duration, onShutdown ...func()) error {
	log := logging.Get(logging.CategoryTransport)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
