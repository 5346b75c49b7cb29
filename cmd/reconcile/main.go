package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lendus/internal/engine"
	"lendus/internal/platform/config"
	"lendus/internal/platform/logger"
	"lendus/internal/platform/metrics"
	"lendus/internal/platform/postgres"
)

// main retires duplicate active documents and installs the one-active
// constraint. It is safe to run repeatedly.
func main() {
	migrate := flag.Bool("migrate", false, "apply pending migrations before reconciling")
	flag.Parse()

	if err := run(*migrate); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate bool) error {
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

	if migrate || cfg.Database.AutoMigrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Strings("versions", applied))
	}

	eng := engine.NewPostgres(db, cfg, log, metrics.New(prometheus.NewRegistry()))
	report, err := eng.Reconciler.Run(ctx)
	if err != nil {
		return err
	}

	if report.AlreadyInstalled {
		fmt.Println("active document constraint already installed")
		return nil
	}
	for _, key := range report.Keys {
		fmt.Printf("deduplicated %s\n", key)
	}
	fmt.Printf("retired %d documents across %d slots; constraint installed\n", len(report.Retired), len(report.Keys))
	return nil
}
