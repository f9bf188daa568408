// Package api exposes the website's HTTP surface: the static marketing
// pages, the public contact endpoint and the authenticated admin API.
package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/apiresponses"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/metrics"
	"github.com/diaspora-enterprise/website/pkg/version"
)

// APIController is implemented by route groups that register themselves
// under /api.
type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// Server wraps the gin engine and the listener lifecycle.
type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.SugaredLogger
}

// NewServer builds the engine with logging, recovery and the static site.
// Controllers are attached separately via RegisterAll.
func NewServer(log *zap.Logger, cfg config.Config, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Sugar().Fatalw("Invalid trustedProxies configuration", "error", err)
		}
	}

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "127.0.0.1:8080"},
				AllowMethods: []string{"GET", "PUT", "PATCH", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	// Marketing pages are prebuilt static files; anything that is not an
	// API route falls back to them.
	engine.Use(static.Serve("/", static.LocalFile(cfg.Site.AssetsDir, true)))
	engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			apiresponses.RespondNotFound(c, "route", c.Request.URL.Path)
			return
		}
		c.File(filepath.Join(cfg.Site.AssetsDir, "index.html"))
	})

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("api"),
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("/api/version", s.getVersion)
	engine.GET("/api/site", s.getSite)

	return s
}

// RegisterAll attaches the controllers under the /api group.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Handler exposes the engine as an http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("HTTP server listening", "address", srv.Addr)
		var err error
		if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}

// SiteInfo is the branding payload the frontend renders in headers and
// footers.
type SiteInfo struct {
	Name    string `json:"name"`
	Tagline string `json:"tagline,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

func (s *Server) getSite(c *gin.Context) {
	c.JSON(http.StatusOK, SiteInfo{
		Name:    s.config.Site.Name,
		Tagline: s.config.Site.Tagline,
		BaseURL: s.config.Site.BaseURL,
	})
}
