package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/grpcbridge/internal/api/http"
	"github.com/GriffinCanCode/grpcbridge/internal/api/middleware"
	"github.com/GriffinCanCode/grpcbridge/internal/api/ws"
	"github.com/GriffinCanCode/grpcbridge/internal/bridge"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/grpcbridge/internal/logging"
)

// drainTimeout bounds how long Close waits for cancelled calls to report.
const drainTimeout = 5 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	module  *bridge.Module
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	logger *logging.Logger
	bridge []bridge.Option
}

// WithLogger overrides the logger built from configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBridgeOptions passes options through to the bridge module.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(o *options) { o.bridge = append(o.bridge, opts...) }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	logger.Info("Initializing gRPC bridge",
		zap.String("port", cfg.Server.Port),
		zap.String("grpc_host", cfg.Channel.Host),
		zap.Bool("insecure", cfg.Channel.Insecure),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("grpcbridge", logger.Component("tracing"))

	bridgeOpts := append([]bridge.Option{
		bridge.WithLogger(logger.Logger),
		bridge.WithMetrics(metrics),
		bridge.WithTracer(tracer),
	}, o.bridge...)
	module := bridge.New(cfg, bridgeOpts...)

	if cfg.Channel.InitOnStart {
		if err := module.InitChannel(); err != nil {
			module.Close(0)
			tracer.Close()
			return nil, fmt.Errorf("failed to init channel: %w", err)
		}
		logger.Info("Channel initialized", zap.String("host", cfg.Channel.Host))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))
	}

	handlers := apihttp.NewHandlers(module, metrics, logger.Component("http"))
	wsHandler := ws.NewHandler(module, metrics, logger.Component("ws"))

	handlers.Register(router)
	apihttp.RegisterLogLevel(router, logger)
	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		module:  module,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Module returns the bridge module.
func (s *Server) Module() *bridge.Module {
	return s.module
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server: it stops accepting requests,
// cancels every in-flight call and releases the channel.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}

	s.module.Close(drainTimeout)
	s.tracer.Close()

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
