package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/responder"
	"courier/pkg/bootstrap"
	"courier/pkg/health"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/tracing"
)

const appShutdownTimeout = 15 * time.Second

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	mongo          *mongo.Client
	engine         *responder.Engine
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("responder-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongo = mongoClient

	if err := a.InitBroker(ctx, "responder-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initEngine()

	tp, err := tracing.Init(a.Config.Tracing, "responder-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterResponderMetrics()
	metrics.RegisterBrokerMetrics()

	a.initHTTPServer()

	return nil
}

func (a *App) initEngine() {
	resolver := responder.NewHTTPResolver(a.Config.Responder.Resolver)
	completer := responder.NewHTTPCompleter(a.Config.Responder.Completion)

	var decisions responder.DecisionStore = responder.NopDecisionStore{}
	if a.mongo != nil {
		db := a.mongo.Database(a.Config.Database.MongoDB.Database)
		decisions = responder.NewMongoDecisionStore(db)
	} else {
		initCtx := logging.WithServiceName(context.Background(), "responder-service")
		a.Logger.WarnwCtx(initCtx, "MongoDB not configured, decision audit trail disabled")
	}

	a.engine = responder.NewEngine(resolver, completer, a.Producer, decisions, a.Config.Responder.Retry, a.Logger)
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.mongo != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongo))
	}
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
		a.Logger.InfowCtx(ctx, "Consuming inbound events", "topic", constants.TopicInbound)
		return a.Consumer.Consume(gCtx, constants.TopicInbound, a.engine.Process)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "responder-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down responder service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, nil, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
