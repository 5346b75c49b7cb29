package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lendus/internal/engine"
	"lendus/internal/events/publishers"
	"lendus/internal/events/relay"
	"lendus/internal/platform/config"
	"lendus/internal/platform/httpserver"
	"lendus/internal/platform/logger"
	"lendus/internal/platform/metrics"
	"lendus/internal/platform/postgres"
	"lendus/internal/platform/redis"
)

// main wires the engine against Postgres, runs the outbox relay and exposes
// the ops endpoints. Domain operations are driven through the engine
// packages; this binary only owns process lifecycle.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lendus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Strings("versions", applied))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	eng := engine.NewPostgres(db, cfg, log, m)

	report, err := eng.Reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile active documents: %w", err)
	}
	log.Info("active document constraint ready",
		zap.Bool("already_installed", report.AlreadyInstalled),
		zap.Int("duplicate_slots", len(report.Keys)),
		zap.Int("retired", len(report.Retired)),
	)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var cmdable goredis.Cmdable
	if redisClient != nil {
		cmdable = redisClient.Client
		defer redisClient.Close()
	}

	publisher, err := publishers.FromConfig(cfg, cmdable, log.Named("publisher"))
	if err != nil {
		return err
	}
	defer publisher.Close()

	if k, ok := publisher.(*publishers.Kafka); ok && cfg.Kafka.Partitions > 0 {
		if err := k.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return err
		}
	}

	probes := map[string]httpserver.Probe{"postgres": db.PingContext}
	if redisClient != nil {
		probes["redis"] = redisClient.Health
	}
	if p, ok := publisher.(publishers.Pinger); ok {
		probes["publisher"] = p.Ping
	}

	srv := httpserver.New(cfg.Server.Addr, httpserver.NewOpsRouter(reg, probes))
	outbox := relay.New(eng.Outbox, publisher, eng.Runner,
		relay.WithLogger(log.Named("relay")),
		relay.WithMetrics(m),
		relay.WithInterval(cfg.Events.RelayInterval),
		relay.WithBatchSize(cfg.Events.RelayBatch),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ops server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return outbox.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
