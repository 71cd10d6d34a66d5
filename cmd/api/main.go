package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cimillas/storefront/services/api/internal/app"
	"github.com/cimillas/storefront/services/api/internal/cache"
	"github.com/cimillas/storefront/services/api/internal/clock"
	"github.com/cimillas/storefront/services/api/internal/config"
	"github.com/cimillas/storefront/services/api/internal/events"
	"github.com/cimillas/storefront/services/api/internal/orderlog"
	"github.com/cimillas/storefront/services/api/internal/storage/postgres"
	"github.com/cimillas/storefront/services/api/internal/telemetry"
	transporthttp "github.com/cimillas/storefront/services/api/internal/transport/http"
	"github.com/cimillas/storefront/services/api/migrations"
)

const shutdownTimeout = 10 * time.Second

// catalogStore serves catalog registration from the two postgres repositories.
type catalogStore struct {
	*postgres.CustomerRepository
	*postgres.ProductRepository
}

func main() {
	logger := telemetry.NewLogger(config.ServiceName)
	os.Exit(exitCode(logger, run(logger)))
}

// exitCode logs err and flushes the logger before main exits; os.Exit skips
// deferred calls.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("api stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, telemetry.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	customerRepo := postgres.NewCustomerRepository(pool)
	productRepo := postgres.NewProductRepository(pool, logger)
	orderRepo := postgres.NewOrderRepository(pool)

	var customers app.CustomerLookup = customerRepo
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(startupCtx).Err(); err != nil {
			logger.Warn("redis unreachable, customer lookups will fall back to postgres",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		customers = cache.NewCustomerLookup(customerRepo, cache.NewRedisCache(rdb, "storefront"), cfg.CustomerCacheTTL, logger)
		logger.Info("customer cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CustomerCacheTTL))
	}

	orderOpts := []app.OrderServiceOption{app.WithLogger(logger)}
	services := transporthttp.Services{Health: []transporthttp.Pinger{pool}}
	if cfg.OrderLogPath != "" {
		orderLog, err := orderlog.Open(cfg.OrderLogPath, clock.NewSystem())
		if err != nil {
			return fmt.Errorf("open order log: %w", err)
		}
		defer func() { _ = orderLog.Close() }()
		orderOpts = append(orderOpts, app.WithCreationRecorder(orderLog))
		services.History = orderLog
		logger.Info("order creation log enabled", zap.String("path", cfg.OrderLogPath))
	}
	catalogSvc := app.NewCatalogService(catalogStore{customerRepo, productRepo}, clock.NewSystem())
	services.Customers = catalogSvc
	services.Products = catalogSvc
	services.Orders = app.NewOrderService(customers, productRepo, orderRepo, orderOpts...)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := newPublisher(stopCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("events publisher: %w", err)
	}
	relayDone := make(chan struct{})
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
		relay := events.NewRelay(postgres.NewOutboxRepository(pool), publisher,
			events.WithRelayInterval(cfg.OutboxPollInterval),
			events.WithRelayBatchSize(cfg.OutboxBatchSize),
			events.WithRelayMaxAttempts(cfg.OutboxMaxAttempts),
			events.WithRelayLogger(logger),
		)
		go func() {
			defer close(relayDone)
			relay.Run(stopCtx)
		}()
	} else {
		close(relayDone)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           transporthttp.NewRouter(services, cfg.CORSOrigins, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("api listening", zap.String("addr", server.Addr))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
		stop()
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-relayDone
	logger.Info("server stopped")
	return nil
}

// newPublisher returns nil when no broker is configured; outbox rows then
// stay pending until a relay with a broker runs.
func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.EventsBroker {
	case config.BrokerKafka:
		logger.Info("publishing order events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.BrokerRabbitMQ:
		logger.Info("publishing order events to rabbitmq", zap.String("exchange", cfg.RabbitMQExchange))
		publisher, err := events.DialRabbitMQ(ctx, cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		logger.Warn("no events broker configured, order events stay in the outbox")
		return nil, nil
	}
}
