package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"landregistry/internal/events/kafka"
	"landregistry/internal/events/logsink"
	"landregistry/internal/events/outbox"
	"landregistry/internal/events/stream"
	"landregistry/internal/identity"
	"landregistry/internal/platform/config"
	"landregistry/internal/platform/httpserver"
	"landregistry/internal/platform/logger"
	platformmetrics "landregistry/internal/platform/metrics"
	"landregistry/internal/platform/redis"
	"landregistry/internal/registry/cache"
	"landregistry/internal/registry/handler"
	"landregistry/internal/registry/metrics"
	"landregistry/internal/registry/service"
	httptransport "landregistry/internal/transport/http"
	id "landregistry/pkg/domain"
)

// main wires dependencies and runs the HTTP server next to the outbox
// relay until a signal arrives. Business logic lives in internal/registry.
func main() {
	if err := run(); err != nil {
		slog.Error("land registry stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	admin, err := id.ParseAddress(cfg.Admin)
	if err != nil {
		return fmt.Errorf("LAND_REGISTRY_ADMIN: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registryMetrics := metrics.New(reg)

	ledger, ledgerHealth, err := openLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer ledger.Close()
	health := map[string]httptransport.HealthCheck{"ledger": ledgerHealth}

	hub := stream.NewHub(log)
	sinks := []outbox.Sink{logsink.New(log), hub}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := producer.Close(context.Background()); err != nil {
				log.Warn("kafka producer close failed", "error", err)
			}
		}()
		sinks = append(sinks, producer)
	}
	relay := outbox.NewRelay(ledger, sinks,
		outbox.WithLogger(log),
		outbox.WithMetrics(registryMetrics),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registryMetrics),
		service.WithCommitNotifier(relay),
		service.WithLockShards(cfg.Ledger.LockShards),
		service.WithTxTimeout(cfg.Ledger.TxTimeout),
	}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithCache(cache.NewRedisPropertyCache(redisClient.Client, cache.WithTTL(cfg.Redis.PropertyTTL))))
		health["redis"] = redisClient.Health
		log.Info("property cache enabled", "ttl", cfg.Redis.PropertyTTL.String())
	}
	registry := service.New(ledger, opts...)

	if err := registry.Bootstrap(ctx, admin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	tokens := identity.NewTokenService(cfg.JWT.SigningKey, cfg.JWT.Issuer)
	if cfg.UsingDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY not set; using the development key")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Registry: handler.New(registry, log),
		Stream:   hub,
		Verifier: tokens,
		Metrics:  platformmetrics.New(reg),
		Gatherer: reg,
		Health:   health,
		Logger:   log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting land registry", "addr", cfg.Addr, "ledger", cfg.Ledger.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		// Deliver whatever the last requests committed.
		if _, err := relay.Flush(shutdownCtx); err != nil {
			log.Warn("final outbox flush failed", "error", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("land registry stopped")
	return err
}
