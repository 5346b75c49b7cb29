// Package engine assembles the core services over one set of stores and one
// transaction runner, so every component shares the same unit of work.
package engine

import (
	"database/sql"

	"go.uber.org/zap"

	appservice "lendus/internal/application/service"
	appstore "lendus/internal/application/store"
	docservice "lendus/internal/documents/service"
	docstore "lendus/internal/documents/store"
	"lendus/internal/events"
	eventstore "lendus/internal/events/store"
	"lendus/internal/platform/config"
	"lendus/internal/platform/metrics"
	verservice "lendus/internal/verification/service"
	verstore "lendus/internal/verification/store"
	vcservice "lendus/internal/versionchain/service"
	vcstore "lendus/internal/versionchain/store"
	"lendus/pkg/platform/retry"
	"lendus/pkg/platform/tx"
)

// Engine exposes the five core components plus the outbox they write to.
type Engine struct {
	Records      *vcservice.Service
	Documents    *docservice.Service
	Applications *appservice.Service
	Verification *verservice.Service
	Reconciler   *docservice.Reconciler
	Outbox       events.Store
	Runner       tx.Runner
}

type documentStore interface {
	docservice.Store
	docservice.ReconcileStore
}

type stores struct {
	records      vcservice.Store
	documents    documentStore
	applications appservice.Store
	verification verservice.Store
	outbox       events.Store
}

// NewPostgres wires every service to PostgreSQL through db.
func NewPostgres(db *sql.DB, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	runner := tx.NewPostgresRunner(db, tx.WithTimeout(cfg.Database.TxTimeout))
	return build(stores{
		records:      vcstore.NewPostgres(db),
		documents:    docstore.NewPostgres(db),
		applications: appstore.NewPostgres(db),
		verification: verstore.NewPostgres(db),
		outbox:       eventstore.NewPostgres(db),
	}, runner, cfg.Engine, logger, m)
}

// NewInMemory wires every service to in-memory stores sharing one sharded
// runner. Used by tests and local experiments.
func NewInMemory(cfg config.Engine, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return build(stores{
		records:      vcstore.NewInMemory(),
		documents:    docstore.NewInMemory(),
		applications: appstore.NewInMemory(),
		verification: verstore.NewInMemory(),
		outbox:       eventstore.NewInMemory(),
	}, tx.NewShardedRunner(), cfg, logger, m)
}

func build(s stores, runner tx.Runner, cfg config.Engine, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBackoff}

	records := vcservice.New(s.records, runner,
		vcservice.WithLogger(logger.Named("versionchain")),
		vcservice.WithMetrics(m),
		vcservice.WithRetryPolicy(policy))
	documents := docservice.New(s.documents, runner,
		docservice.WithLogger(logger.Named("documents")),
		docservice.WithMetrics(m),
		docservice.WithRetryPolicy(policy))

	applications := appservice.New(s.applications, records, documents, s.outbox, runner,
		appservice.WithLogger(logger.Named("application")),
		appservice.WithMetrics(m),
		appservice.WithMinReferences(cfg.MinReferences))
	verification := verservice.New(s.verification, runner,
		verservice.WithLogger(logger.Named("verification")),
		verservice.WithMetrics(m))

	return &Engine{
		Records:      records,
		Documents:    documents,
		Applications: applications,
		Verification: verification,
		Reconciler:   docservice.NewReconciler(s.documents, runner, logger.Named("reconcile")),
		Outbox:       s.outbox,
		Runner:       runner,
	}
}
