package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairview/internal/core/services"
	httphandlers "pairview/internal/handlers/http"
	"pairview/internal/infrastructure/middleware"
	"pairview/internal/infrastructure/monitoring"
	repositories "pairview/internal/infrastructure/repositories"
	signalinfra "pairview/internal/infrastructure/signal"
	"pairview/pkg/config"
	"pairview/pkg/logger"
	"pairview/pkg/tracing"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/pairview/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	var fileCfg *logger.FileConfig
	if cfg.Logging.File.Enabled {
		fileCfg = &logger.FileConfig{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		}
	}
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format, fileCfg)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	// Initialize repositories
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	roomStore := repoFactory.CreateRoomStore()
	sessionRepo := repoFactory.CreateSessionRepository()

	// Initialize monitoring
	collector := monitoring.NewPrometheusCollector()

	// Initialize services
	lifecycleService := services.NewLifecycleService(sessionRepo, collector, cfg.Session.StatusCheckInterval, log)

	// Signaling relay
	verifier := middleware.NewTokenVerifier(cfg.Auth.JWTSecret)
	connLimiter := middleware.NewConnectionRateLimiter(cfg)

	wsOpts := signalinfra.DefaultOptions()
	wsOpts.PingInterval = cfg.Signal.PingInterval
	wsOpts.PongTimeout = cfg.Signal.PongTimeout
	wsOpts.WriteTimeout = cfg.Signal.WriteTimeout
	wsOpts.SendBuffer = cfg.Signal.SendBuffer
	if cfg.RateLimiting.Enabled {
		wsOpts.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
		wsOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsOpts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	}

	wsServer := signalinfra.NewWebSocketServer(roomStore, lifecycleService, verifier, connLimiter, collector, wsOpts, log)

	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)
	signalMux.HandleFunc("/health", wsServer.HealthCheck)

	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	// HTTP API for the session registry
	sessionHandler := httphandlers.NewSessionHandler(sessionRepo, lifecycleService)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	sessionHandler.SetupRoutes(router, middleware.NewAuthMiddleware(verifier))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting signaling relay on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting session API on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	wsServer.Shutdown()

	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signaling server shutdown", "error", err)
		signalSrv.Close()
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
		apiSrv.Close()
	}

	log.Info("Server stopped")
}
