package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lendus/internal/platform/metrics"
	"lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/retry"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/requestcontext"
)

const component = "versionchain"

// defaultMaxDepth bounds history walks. Chains grow by one per edit of a field,
// so a real chain never comes close.
const defaultMaxDepth = 1000

// Store is the persistence port for version chains. Implementations return
// sentinel.ErrNotFound, sentinel.ErrConflict (optimistic check failed) and
// sentinel.ErrUniqueViolation (second current version rejected).
type Store interface {
	FindCurrent(ctx context.Context, key models.ChainKey, forUpdate bool) (*models.VersionedRecord, error)
	FindLatest(ctx context.Context, key models.ChainKey) (*models.VersionedRecord, error)
	FindByID(ctx context.Context, tenant id.TenantID, recordID id.RecordID) (*models.VersionedRecord, error)
	ListCurrent(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.VersionedRecord, error)
	Insert(ctx context.Context, rec *models.VersionedRecord) error
	Retire(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, at time.Time, reason models.ReplacementReason) error
	UpdateStatus(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, status models.Status) error
	SoftDelete(ctx context.Context, tenant id.TenantID, recordID id.RecordID, at time.Time) error
}

// Service is the version chain store: one current version per
// (tenant, owner, type), replaced atomically and walked backwards for history.
type Service struct {
	store    Store
	tx       tx.Runner
	logger   *zap.Logger
	metrics  *metrics.Metrics
	retry    retry.Policy
	maxDepth int
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryPolicy bounds the internal retries of PutCurrentVersion.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.retry = p.Normalize()
	}
}

// WithMaxDepth caps history walks.
func WithMaxDepth(depth int) Option {
	return func(s *Service) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tx:       runner,
		logger:   zap.NewNop(),
		retry:    retry.DefaultPolicy,
		maxDepth: defaultMaxDepth,
		tracer:   otel.Tracer("lendus/versionchain"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutRequest describes a new current version.
type PutRequest struct {
	Tenant id.TenantID
	Owner  id.OwnerRef
	Type   models.RecordType
	// Slot picks the chain of a multi-valued type (one per reference).
	// Must be empty for single-valued types.
	Slot    string
	Payload models.Payload
	// Reason is recorded on the version being replaced. Defaults to CORRECTED.
	Reason models.ReplacementReason
}

func (r PutRequest) validate() (models.ChainKey, models.ReplacementReason, error) {
	key, err := validateKey(models.ChainKey{Tenant: r.Tenant, Owner: r.Owner, Type: r.Type, Slot: r.Slot})
	if err != nil {
		return models.ChainKey{}, "", err
	}
	if err := models.ValidatePayload(r.Type, r.Payload); err != nil {
		return models.ChainKey{}, "", err
	}
	reason, err := models.NormalizeReason(r.Reason)
	if err != nil {
		return models.ChainKey{}, "", err
	}
	return key, reason, nil
}

// PutCurrentVersion retires the current version of the chain (if any) and
// inserts a new PENDING current version linked to it, in one unit of work.
// Concurrent writers on the same chain serialize; the loser is retried up to
// the retry policy and then surfaces CodeConcurrentModification.
func (s *Service) PutCurrentVersion(ctx context.Context, req PutRequest) (id.RecordID, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "put_current_version", start)

	ctx, span := s.tracer.Start(ctx, "versionchain.PutCurrentVersion",
		trace.WithAttributes(
			attribute.String("tenant_id", req.Tenant.String()),
			attribute.String("owner", req.Owner.Key()),
			attribute.String("record_type", string(req.Type)),
		),
	)
	defer span.End()

	key, reason, err := req.validate()
	if err != nil {
		return id.RecordID{}, s.fail(span, err)
	}

	var created *models.VersionedRecord
	var replaced *id.RecordID
	err = retry.Do(ctx, s.retry, isContention, func(attempt int, err error) {
		s.onContention(ctx, key, attempt, err)
	}, func(ctx context.Context) error {
		created, replaced = nil, nil
		return s.tx.RunInTx(tx.WithLockKey(ctx, key.String()), func(ctx context.Context) error {
			now := requestcontext.Now(ctx)
			current, err := s.store.FindCurrent(ctx, key, true)
			switch {
			case err == nil:
				if err := s.store.Retire(ctx, key.Tenant, current.ID, current.LockVersion, now, reason); err != nil {
					return err
				}
				replaced = &current.ID
			case errors.Is(err, sentinel.ErrNotFound):
			default:
				return err
			}

			rec := models.NewCurrent(key, req.Payload, replaced, now)
			if err := s.store.Insert(ctx, rec); err != nil {
				if replaced == nil {
					return sentinel.LostRace(err)
				}
				return err
			}
			created = rec
			return nil
		})
	})
	if err != nil {
		return id.RecordID{}, s.fail(span, s.translate(ctx, key, err))
	}

	s.metrics.IncrementVersionsWritten(component)
	fields := []zap.Field{
		zap.String("record_id", created.ID.String()),
		zap.String("record_type", string(key.Type)),
	}
	if key.Slot != "" {
		fields = append(fields, zap.String("slot", key.Slot))
	}
	if replaced != nil {
		fields = append(fields,
			zap.String("previous_version_id", replaced.String()),
			zap.String("replacement_reason", string(reason)))
	}
	s.logAudit(ctx, "version_created", key.Tenant, key.Owner, fields...)
	return created.ID, nil
}

// GetCurrent returns the current version of a single-valued chain or
// CodeNotFound.
func (s *Service) GetCurrent(ctx context.Context, tenant id.TenantID, owner id.OwnerRef, t models.RecordType) (*models.VersionedRecord, error) {
	return s.GetCurrentOf(ctx, models.ChainKey{Tenant: tenant, Owner: owner, Type: t})
}

// GetCurrentOf returns the current version of the chain named by key, slot
// included, or CodeNotFound.
func (s *Service) GetCurrentOf(ctx context.Context, key models.ChainKey) (*models.VersionedRecord, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "get_current", start)

	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.FindCurrent(ctx, key, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no current "+string(key.Type)+" record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current record")
	}
	return rec, nil
}

// ListCurrent returns every current version held by owner, ordered by type
// and slot.
func (s *Service) ListCurrent(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.VersionedRecord, error) {
	if tenant.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	records, err := s.store.ListCurrent(ctx, tenant, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list current records")
	}
	return records, nil
}

// Review records a staff outcome (VERIFIED or REJECTED) on a current version.
func (s *Service) Review(ctx context.Context, tenant id.TenantID, recordID id.RecordID, status models.Status) error {
	if !status.IsReviewOutcome() {
		return dErrors.New(dErrors.CodeInvalidInput, "review outcome must be VERIFIED or REJECTED")
	}
	var rec *models.VersionedRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.FindByID(ctx, tenant, recordID)
		if err != nil {
			return err
		}
		if !rec.IsCurrent || rec.IsDeleted() {
			return sentinel.ErrInvalidState
		}
		return s.store.UpdateStatus(ctx, tenant, recordID, rec.LockVersion, status)
	})
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidInput, "only the current version can be reviewed")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "record was modified concurrently; please retry")
	default:
		return wrapInternal(err, "failed to review record")
	}
	s.logAudit(ctx, "version_reviewed", tenant, rec.Owner,
		zap.String("record_id", recordID.String()),
		zap.String("status", string(status)))
	return nil
}

// SoftDelete hides a version for compliance retention. A deleted current
// version leaves its chain without a current version.
func (s *Service) SoftDelete(ctx context.Context, tenant id.TenantID, recordID id.RecordID) error {
	var rec *models.VersionedRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.FindByID(ctx, tenant, recordID)
		if err != nil {
			return err
		}
		return s.store.SoftDelete(ctx, tenant, recordID, requestcontext.Now(ctx))
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return wrapInternal(err, "failed to delete record")
	}
	s.logAudit(ctx, "version_deleted", tenant, rec.Owner, zap.String("record_id", recordID.String()))
	return nil
}

func validateKey(key models.ChainKey) (models.ChainKey, error) {
	if key.Tenant.IsNil() {
		return models.ChainKey{}, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := key.Owner.Validate(); err != nil {
		return models.ChainKey{}, err
	}
	if !key.Type.IsValid() {
		return models.ChainKey{}, dErrors.New(dErrors.CodeInvalidInput, "unknown record type: "+string(key.Type))
	}
	slot, err := models.NormalizeSlot(key.Type, key.Slot)
	if err != nil {
		return models.ChainKey{}, err
	}
	key.Slot = slot
	return key, nil
}

func isContention(err error) bool {
	return errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrUniqueViolation)
}

func (s *Service) onContention(ctx context.Context, key models.ChainKey, attempt int, err error) {
	s.metrics.IncrementConflictRetry(component)
	if errors.Is(err, sentinel.ErrUniqueViolation) {
		s.metrics.IncrementConstraintViolation(component)
		s.logger.Error("one-current constraint rejected a version; retrying",
			zap.String("chain", key.String()),
			zap.Int("attempt", attempt),
			zap.String("request_id", requestcontext.RequestID(ctx)),
			zap.Error(err))
		return
	}
	s.logger.Info("concurrent version write; retrying",
		zap.String("chain", key.String()),
		zap.Int("attempt", attempt))
}

// translate turns the last store error into a coded error once retries are spent.
func (s *Service) translate(ctx context.Context, key models.ChainKey, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrUniqueViolation):
		s.metrics.IncrementConstraintViolation(component)
		s.logger.Error("one-current constraint violation after retries",
			zap.String("chain", key.String()),
			zap.String("request_id", requestcontext.RequestID(ctx)),
			zap.Error(err))
		return dErrors.Wrap(err, dErrors.CodeConstraintViolation, "another current version exists; please retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "record was modified concurrently; please retry")
	default:
		return wrapInternal(err, "failed to write version")
	}
}

// wrapInternal keeps coded errors (timeouts from the runner) and hides the rest.
func wrapInternal(err error, msg string) error {
	if dErrors.CodeOf(err) != "" {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, tenant id.TenantID, owner id.OwnerRef, fields ...zap.Field) {
	fields = append(fields,
		zap.String("event", event),
		zap.String("log_type", "audit"),
		zap.String("tenant_id", tenant.String()),
		zap.String("owner", owner.Key()),
	)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	s.logger.Info(event, fields...)
}
