package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datatoken/internal/config"
	"datatoken/internal/domain"
	"datatoken/internal/pkg/logger"
	"datatoken/internal/usecase"
)

// Deps are the use cases served over HTTP. Nil members make their routes
// answer NOT_FOUND.
type Deps struct {
	Assets   *usecase.AssetService
	Jobs     *usecase.JobService
	System   *usecase.SystemService
	Tracer   *usecase.Tracer
	Audit    *usecase.IntegrityAudit
	Resolver *usecase.Resolver
	Verifier *usecase.Verifier
	Ledger   usecase.LedgerReader

	// RateLimiter guards write, authorization and audit routes.
	RateLimiter domain.RateLimiter
	// Probes run on /healthz; any error turns the status degraded.
	Probes      map[string]func(context.Context) error
	Logger      *zap.Logger
}

type Server struct {
	cfg  config.Config
	deps Deps
	r    *gin.Engine
	log  *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, deps: deps, r: r, log: logger.OrNop(deps.Logger).Named("http")}
	r.Use(s.accessLog())
	r.Use(s.limitBody())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	write := s.limit(routeWrite)
	authorize := s.limit(routeAuthorize)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/checksum", s.handleChecksum)
		v1.POST("/documents/import", write, s.handleImportDocument)
		v1.POST("/templates/import", write, s.handleImportTemplate)
		v1.POST("/enterprises", write, s.handleRegisterEnterprise)

		v1.GET("/assets/:dt", s.handleAssetDetails)
		v1.POST("/assets/:dt/verify", s.handleVerifyAsset)
		v1.GET("/assets/:dt/union", s.handleUnion)
		v1.GET("/assets/:dt/lifecycle", s.handleLifecycle)

		v1.POST("/authorizations/service-terms", authorize, s.handleServiceTerms)
		v1.POST("/authorizations/remote-compute", authorize, s.handleRemoteCompute)
		v1.GET("/jobs/:job_id/exec", s.handleExecCode)

		v1.GET("/marketplace", s.handleMarketplace)
		v1.GET("/stats", s.handleStats)
		v1.POST("/audit", s.limit(routeAudit), s.handleAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// limitBody caps every request body at MaxBodyBytes. Reads past the cap fail
// with *http.MaxBytesError.
func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.MaxBodyBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		}
		c.Next()
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.HTTPAddr))
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

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
