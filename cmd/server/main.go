package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	fiberapp "github.com/ocpp-csms/csms/internal/adapter/http/fiber"
	"github.com/ocpp-csms/csms/internal/adapter/cache"
	"github.com/ocpp-csms/csms/internal/adapter/ocpp/dispatch"
	wsserver "github.com/ocpp-csms/csms/internal/adapter/ocpp/ws"
	"github.com/ocpp-csms/csms/internal/adapter/queue"
	"github.com/ocpp-csms/csms/internal/adapter/storage/postgres"
	"github.com/ocpp-csms/csms/internal/adapter/vault"
	"github.com/ocpp-csms/csms/internal/ocpp/handlers"
	"github.com/ocpp-csms/csms/internal/ocpp/liveness"
	"github.com/ocpp-csms/csms/internal/ocpp/registry"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
	"github.com/ocpp-csms/csms/internal/observability/telemetry"
	"github.com/ocpp-csms/csms/internal/ports"
	"github.com/ocpp-csms/csms/internal/service/auth"
	"github.com/ocpp-csms/csms/internal/service/health"
	"github.com/ocpp-csms/csms/internal/service/station"
	"github.com/ocpp-csms/csms/pkg/config"
)

const (
	serviceName    = "ocpp-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	applyVaultOverlay(cfg, logger)

	tracerProvider, err := telemetry.InitTracer(serviceName)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	var stationCache ports.Cache
	stationCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis not available, falling back to local cache", zap.Error(err))
		stationCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer stationCache.Close()

	var messageQueue ports.MessageQueue
	messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
	if err != nil {
		logger.Warn("NATS not available, running without a message queue", zap.Error(err))
		messageQueue = nil
	} else {
		defer messageQueue.Close()
	}

	stationRepo := postgres.NewStationRepository(db, logger)
	transactionRepo := postgres.NewTransactionRepository(db, logger)
	userRepo := postgres.NewUserRepository(db, logger)

	stationService := station.NewService(stationRepo, transactionRepo, userRepo, stationCache, messageQueue, logger)
	authService := auth.NewService(userRepo, stationCache, cfg.JWT.Secret, logger)

	handlerTable := handlers.New(stationService, messageQueue, logger)
	inboundDispatcher := dispatch.NewInbound(handlerTable, logger)

	reg := registry.New(cfg.OCPP.TakeoverGrace, logger)
	outboundDispatcher := dispatch.NewOutbound(reg, logger)

	sessionCfg := session.DefaultConfig()
	if cfg.OCPP.WriteQueueSize > 0 {
		sessionCfg.WriteQueueSize = cfg.OCPP.WriteQueueSize
	}
	if cfg.OCPP.DefaultOutboundTimeout > 0 {
		sessionCfg.DefaultOutboundTimeout = cfg.OCPP.DefaultOutboundTimeout
	}
	if cfg.OCPP.HeartbeatInterval > 0 {
		sessionCfg.HeartbeatInterval = cfg.OCPP.HeartbeatInterval
	}
	if cfg.OCPP.HeartbeatGraceFactor > 0 {
		sessionCfg.HeartbeatGraceFactor = cfg.OCPP.HeartbeatGraceFactor
	}
	if cfg.OCPP.LateResultGrace > 0 {
		sessionCfg.LateResultGrace = cfg.OCPP.LateResultGrace
	}

	livenessCfg := liveness.DefaultConfig()
	if cfg.OCPP.LivenessTickInterval > 0 {
		livenessCfg.TickInterval = cfg.OCPP.LivenessTickInterval
	}
	if cfg.OCPP.HeartbeatGraceFactor > 0 {
		livenessCfg.GraceFactor = cfg.OCPP.HeartbeatGraceFactor
	}
	livenessSupervisor := liveness.New(stationService, reg, livenessCfg, logger)

	ocppCtx, ocppCancel := context.WithCancel(context.Background())
	defer ocppCancel()
	go livenessSupervisor.Run(ocppCtx)

	ocppListener := wsserver.NewServer(reg, inboundDispatcher, stationService, sessionCfg, logger)
	ocppHTTPServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.OCPP.Port),
		Handler: ocppListener.Handler(),
	}
	go func() {
		logger.Info("Starting OCPP WebSocket listener", zap.Int("port", cfg.OCPP.Port))
		if err := ocppHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("OCPP listener failed", zap.Error(err))
		}
	}()

	sqlDB, _ := db.DB()
	healthService := health.NewService(&health.Config{
		Version: serviceVersion,
		DB:      sqlDB,
		NatsURL: cfg.NATS.URL,
	}, logger)
	healthService.RegisterChecker("ocpp_sessions", func(ctx context.Context) health.CheckResult {
		count := reg.Count()
		return health.CheckResult{
			Name:      "ocpp_sessions",
			Status:    health.StatusHealthy,
			Message:   fmt.Sprintf("%d stations connected", count),
			Timestamp: time.Now(),
		}
	})
	healthService.RegisterChecker("cache", func(ctx context.Context) health.CheckResult {
		status := health.StatusHealthy
		message := "connection ok"
		if err := stationCache.Ping(); err != nil {
			status = health.StatusDegraded
			message = err.Error()
		}
		return health.CheckResult{Name: "cache", Status: status, Message: message, Timestamp: time.Now()}
	})

	app := fiberapp.NewApp(fiberapp.Deps{
		Auth:     authService,
		Stations: stationService,
		Commands: outboundDispatcher,
		Log:      logger,
	})
	health.NewFiberHandler(healthService).RegisterRoutes(app)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := ocppHTTPServer.Shutdown(ctx); err != nil {
		logger.Error("OCPP listener forced to shutdown", zap.Error(err))
	}
	ocppCancel()

	logger.Info("Server exited gracefully")
}

// applyVaultOverlay pulls the database URL and JWT signing secret from
// Vault when VAULT_ADDR/VAULT_TOKEN are set, overriding whatever the
// config file or environment supplied. Absence of either is not an
// error: most deployments run on plain env vars.
func applyVaultOverlay(cfg *config.Config, logger *zap.Logger) {
	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return
	}

	sm, err := vault.NewSecretManager(addr, token)
	if err != nil {
		logger.Warn("Vault unavailable, using config/env secrets", zap.Error(err))
		return
	}
	if dbURL, err := sm.GetDatabaseCredentials(); err == nil && dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if secret, err := sm.GetJWTSecret(); err == nil && secret != "" {
		cfg.JWT.Secret = secret
	}
}
