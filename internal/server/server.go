// Package server wires the verifier's components behind one HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xordi/modguard/internal/analyzer"
	apihttp "github.com/xordi/modguard/internal/api/http"
	"github.com/xordi/modguard/internal/api/middleware"
	"github.com/xordi/modguard/internal/audit"
	"github.com/xordi/modguard/internal/fetcher"
	"github.com/xordi/modguard/internal/gate"
	"github.com/xordi/modguard/internal/infrastructure/config"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/infrastructure/monitoring"
	"github.com/xordi/modguard/internal/policy"
	"github.com/xordi/modguard/internal/sandbox"
	"github.com/xordi/modguard/internal/verify"
	"github.com/xordi/modguard/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	gate    *gate.Gate
	trail   *audit.Trail
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing module verifier",
		zap.String("port", cfg.Server.Port),
		zap.Int("configured_modules", len(cfg.Modules.Kinds())),
	)

	metrics := monitoring.NewMetrics()

	pol := policy.Default()
	if cfg.Policy.Path != "" {
		loaded, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		pol = loaded
		logger.Info("Policy overlay loaded",
			zap.String("path", cfg.Policy.Path),
			zap.Int("safelist", len(pol.SafelistModules())),
			zap.Int("forbidden", len(pol.ForbiddenGlobals())),
		)
	}

	a := analyzer.New(pol)
	cache := verify.NewCache(a, logger)
	trail := audit.NewTrail(cfg.Audit.Capacity, logger)
	f := fetcher.New(cfg.Fetch, logger)
	g := gate.New(f, cache, trail, sandbox.DefaultConfig(), logger)

	handlers := apihttp.NewHandlers(g, a, trail, metrics, cfg.Modules.Kinds(), logger)
	streamHandler := ws.NewHandler(trail, metrics, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	router.Use(monitoring.Middleware(metrics))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/generate-headers", handlers.GenerateHeaders)
	router.POST("/register-device", handlers.RegisterDevice)
	router.POST("/analyze", handlers.Analyze)
	router.GET("/verify", handlers.VerifyAll)
	router.GET("/records", handlers.Records)
	router.GET("/records/stream", streamHandler.Stream)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/metrics/snapshot", handlers.Snapshot)

	return &Server{
		router:  router,
		gate:    g,
		trail:   trail,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Preload loads every configured module kind at startup. Failures are
// recorded and logged but do not stop the server: /health reports the
// per-kind state and a later /generate-headers retries the load.
func (s *Server) Preload(ctx context.Context) {
	for kind, pin := range s.config.Modules.Kinds() {
		mod, err := s.gate.Load(ctx, pin.URL, gate.Options{
			Kind:         kind,
			ExpectedHash: pin.ExpectedHash,
		})
		if err != nil {
			s.logger.Warn("module preload failed",
				zap.String("kind", kind),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("module preloaded",
			zap.String("kind", kind),
			zap.String("hash", mod.SourceHash),
		)
	}
	s.metrics.SetModulesActive(len(s.gate.Modules()))
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Server listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down")
	defer s.logger.Sync()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
