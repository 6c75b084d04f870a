// Package server exposes a media cache over HTTP for local previews.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/aweris/mediacache"
	"github.com/aweris/mediacache/internal/classify"
)

const (
	DefaultAddr    = "127.0.0.1:8089"
	DefaultProfile = "photo"

	// maxMultipartMemory bounds what a multipart upload keeps in memory
	// before spilling to temporary files.
	maxMultipartMemory = 32 << 20
	// multipartOverhead is allowed on top of the profile ceiling for the
	// multipart framing and headers.
	multipartOverhead = 64 << 10
	shutdownTimeout   = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	Addr string
	// Origin is the origin handles were minted with; /blob/:id maps back to
	// "blob:<Origin>/<id>".
	Origin   string
	CORS     bool
	Gatherer prometheus.Gatherer
	Log      logrus.FieldLogger
}

type Server struct {
	cache  mediacache.Cache
	origin string
	engine *gin.Engine
	http   *http.Server
	log    logrus.FieldLogger
}

type errorResponse struct {
	Error string `json:"error"`
}

type resolveResponse struct {
	URL   string `json:"url"`
	Video bool   `json:"video"`
}

type thumbnailResponse struct {
	Handle string `json:"handle"`
}

// New builds the HTTP surface for cache.
func New(cache mediacache.Cache, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Origin == "" {
		cfg.Origin = mediacache.DefaultOrigin
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "server")

	engine := gin.New()
	engine.MaxMultipartMemory = maxMultipartMemory
	engine.Use(gin.Recovery(), requestLogger(log))
	if cfg.CORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		cache:  cache,
		origin: cfg.Origin,
		engine: engine,
		log:    log,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	engine.GET("/blob/:id", s.handleBlob)

	v1 := engine.Group("/v1")
	{
		v1.POST("/media", s.handleStore)
		v1.DELETE("/media", s.handleClear)
		v1.GET("/media/:id/thumbnail", s.handleThumbnail)
		v1.GET("/resolve", s.handleResolve)
		v1.GET("/stats", s.handleStats)
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("serving media cache")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// handle rebuilds the handle an id in a URL path stands for.
func (s *Server) handle(id string) string {
	return classify.HandleScheme + s.origin + "/" + id
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStore(c *gin.Context) {
	profile := c.DefaultQuery("profile", DefaultProfile)
	p, ok := s.cache.Profile(profile)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown profile %q", profile)})
		return
	}
	limit := uploadLimit(p)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", limit)})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing multipart field \"file\""})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}

	bundle, err := s.cache.Store(c.Request.Context(), mediacache.RawFile{
		Name:     header.Filename,
		MIMEType: mimeType,
		Data:     data,
	}, profile)
	if err != nil {
		c.JSON(storeStatus(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, bundle)
}

// uploadLimit is the largest request body a profile can accept.
func uploadLimit(p mediacache.Profile) int64 {
	return max(p.MaxUploadBytes, p.MaxVideoBytes) + multipartOverhead
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, mediacache.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, mediacache.ErrUnsupportedInput):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, mediacache.ErrUnknownProfile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleBlob(c *gin.Context) {
	file, err := s.cache.Retrieve(c.Request.Context(), s.handle(c.Param("id")))
	switch {
	case errors.Is(err, mediacache.ErrHandleNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "stale or unknown handle"})
		return
	case errors.Is(err, mediacache.ErrEvicted):
		c.JSON(http.StatusGone, errorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Name))
	c.Data(http.StatusOK, file.MIMEType, file.Data)
}

func (s *Server) handleThumbnail(c *gin.Context) {
	thumb, ok := s.cache.ThumbnailOf(s.handle(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no thumbnail for handle"})
		return
	}
	c.JSON(http.StatusOK, thumbnailResponse{Handle: thumb})
}

func (s *Server) handleResolve(c *gin.Context) {
	ref := c.Query("ref")
	c.JSON(http.StatusOK, resolveResponse{
		URL:   s.cache.Resolve(ref),
		Video: s.cache.IsVideo(ref),
	})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.cache.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.cache.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
