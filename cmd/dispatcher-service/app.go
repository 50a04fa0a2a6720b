package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/dispatcher"
	"courier/internal/logger"
	"courier/pkg/bootstrap"
	"courier/pkg/circuitbreaker"
	"courier/pkg/health"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/tracing"
)

const appShutdownTimeout = 15 * time.Second

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	postgres       *sql.DB
	service        *dispatcher.Service
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("dispatcher-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if db == nil {
		return fmt.Errorf("postgres configuration is required for the dispatcher")
	}
	a.postgres = db

	if err := a.InitBroker(ctx, "dispatcher-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initService()

	tp, err := tracing.Init(a.Config.Tracing, "dispatcher-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterDispatcherMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initService() {
	var sender dispatcher.SendClient = dispatcher.NewHTTPSendClient(a.Config.Dispatcher.Provider)
	if a.Config.CircuitBreaker.Enabled {
		breaker := circuitbreaker.FromConfig(
			"provider-send",
			a.Config.CircuitBreaker.MaxRequests,
			a.Config.CircuitBreaker.Interval,
			a.Config.CircuitBreaker.Timeout,
			a.Config.CircuitBreaker.FailureRatio,
			a.Config.CircuitBreaker.MinRequests,
		)
		sender = dispatcher.NewBreakerSendClient(sender, breaker)
		initCtx := logging.WithServiceName(context.Background(), "dispatcher-service")
		a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for provider sends")
	}

	markerTTL := time.Duration(a.Config.Dispatcher.SentMarkerTTLHours) * time.Hour
	markers := dispatcher.NewRedisMarkerStore(a.redis, markerTTL)
	deliveries := dispatcher.NewPostgresDeliveryRepository(a.postgres)

	a.service = dispatcher.NewService(sender, markers, deliveries, a.Config.Dispatcher.Retry, a.Logger)
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRedisChecker(a.redis))
	healthRegistry.Register(health.NewPostgreSQLChecker(a.postgres))
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers[0]))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
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

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Consuming outbound replies", "topic", constants.TopicOutbound)
		return a.Consumer.Consume(gCtx, constants.TopicOutbound, a.service.Dispatch)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "dispatcher-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down dispatcher service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgres, nil)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
