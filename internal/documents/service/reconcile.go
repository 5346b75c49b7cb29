package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"lendus/internal/documents/models"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/requestcontext"
)

// ReconcileStore is the subset of the store the deployment pass needs.
type ReconcileStore interface {
	ActiveConstraintInstalled(ctx context.Context) (bool, error)
	DuplicateActiveKeys(ctx context.Context) ([]models.Key, error)
	ListActiveByKey(ctx context.Context, key models.Key) ([]*models.Document, error)
	Retire(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time, successor id.DocumentID, reason models.ReplacementReason) error
	InstallActiveConstraint(ctx context.Context) error
}

// Reconciler cleans up duplicate active documents left by racing activations
// and then installs the one-active constraint. The constraint cannot be
// installed while duplicates remain, so the order is fixed.
type Reconciler struct {
	store  ReconcileStore
	tx     tx.Runner
	logger *zap.Logger
}

func NewReconciler(store ReconcileStore, runner tx.Runner, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, tx: runner, logger: logger}
}

// Report summarizes a reconciliation run.
type Report struct {
	AlreadyInstalled bool
	Keys             []models.Key
	Retired          []id.DocumentID
}

// Run retires every duplicate active document except the newest per slot,
// pointing each one at the survivor, then installs the constraint. Running it
// again after success is a no-op.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report
	installed, err := r.store.ActiveConstraintInstalled(ctx)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to inspect active constraint")
	}
	if installed {
		report.AlreadyInstalled = true
		r.logger.Info("active document constraint already installed")
		return report, nil
	}

	keys, err := r.store.DuplicateActiveKeys(ctx)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find duplicate active documents")
	}
	for _, key := range keys {
		retired, err := r.reconcileKey(ctx, key)
		if err != nil {
			return report, wrapInternal(err, "failed to reconcile "+key.String())
		}
		report.Keys = append(report.Keys, key)
		report.Retired = append(report.Retired, retired...)
	}

	if err := r.store.InstallActiveConstraint(ctx); err != nil {
		if errors.Is(err, sentinel.ErrUniqueViolation) {
			r.logger.Error("duplicate active documents appeared during reconciliation", zap.Error(err))
			return report, dErrors.Wrap(err, dErrors.CodeConstraintViolation, "duplicate active documents remain; rerun reconciliation")
		}
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to install active constraint")
	}

	r.logger.Info("active document constraint installed",
		zap.Int("slots_reconciled", len(report.Keys)),
		zap.Int("documents_retired", len(report.Retired)))
	return report, nil
}

func (r *Reconciler) reconcileKey(ctx context.Context, key models.Key) ([]id.DocumentID, error) {
	var retired []id.DocumentID
	err := r.tx.RunInTx(tx.WithLockKey(ctx, key.String()), func(ctx context.Context) error {
		retired = nil
		docs, err := r.store.ListActiveByKey(ctx, key)
		if err != nil {
			return err
		}
		if len(docs) < 2 {
			return nil
		}
		now := requestcontext.Now(ctx)
		survivor := docs[0]
		for _, doc := range docs[1:] {
			if err := r.store.Retire(ctx, key.Tenant, doc.ID, now, survivor.ID, models.ReasonReconciled); err != nil {
				return err
			}
			retired = append(retired, doc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, docID := range retired {
		r.logger.Info("document_reconciled",
			zap.String("event", "document_reconciled"),
			zap.String("log_type", "audit"),
			zap.String("slot", key.String()),
			zap.String("document_id", docID.String()))
	}
	return retired, nil
}
