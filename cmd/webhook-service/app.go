package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/dedup"
	"courier/internal/logger"
	"courier/internal/webhook"
	"courier/pkg/bootstrap"
	"courier/pkg/health"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/middleware"
	"courier/pkg/ratelimit"
	"courier/pkg/tracing"
)

const appShutdownTimeout = 15 * time.Second

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	dedupService   *dedup.Service
	webhookService *webhook.Service
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("webhook-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if a.Config.Deduplication.Store == constants.DedupStoreRedis {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.redis = rdb
	}

	if err := a.InitBroker(ctx, "webhook-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initServices()

	tp, err := tracing.Init(a.Config.Tracing, "webhook-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterWebhookMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initServices() {
	var repo dedup.Repository
	if a.Config.Deduplication.Store == constants.DedupStoreRedis {
		repo = dedup.NewRedisRepository(a.redis)
		if a.Config.CircuitBreaker.Enabled {
			repo = dedup.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
			initCtx := logging.WithServiceName(context.Background(), "webhook-service")
			a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for dedup repository")
		}
	} else {
		repo = dedup.NewLocalRepository()
	}

	a.dedupService = dedup.NewService(repo, a.Config.Deduplication, a.Logger)
	a.webhookService = webhook.NewService(a.dedupService, a.Producer, a.Logger)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("webhook-service"))
	}
	if a.Config.Webhook.RateLimit.Enabled {
		router.Use(ratelimit.Middleware(rateLimitConfig(a.Config.Webhook.RateLimit)))
	}

	handler := webhook.NewHandler(a.webhookService, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers[0]))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func rateLimitConfig(cfg config.RateLimitConfig) ratelimit.Config {
	rlCfg := ratelimit.DefaultConfig()
	if cfg.RPS > 0 {
		rlCfg.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		rlCfg.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		rlCfg.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		rlCfg.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return rlCfg
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "webhook-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down webhook service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.dedupService != nil {
			a.dedupService.StopCacheMetricsUpdater()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, nil, nil)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
