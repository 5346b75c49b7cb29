package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lendus/internal/documents/models"
	"lendus/internal/platform/metrics"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/retry"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/requestcontext"
)

const (
	component       = "documents"
	defaultMaxDepth = 1000
)

// Store is the persistence port of the registry. Insert and MakeActive return
// sentinel.ErrUniqueViolation when a second active document would exist;
// Retire and UpdateStatus return sentinel.ErrConflict when the row is no longer
// in the expected state.
type Store interface {
	FindActive(ctx context.Context, key models.Key, forUpdate bool) (*models.Document, error)
	FindByID(ctx context.Context, tenant id.TenantID, docID id.DocumentID, forUpdate bool) (*models.Document, error)
	ListActive(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.Document, error)
	Insert(ctx context.Context, doc *models.Document) error
	Retire(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time, successor id.DocumentID, reason models.ReplacementReason) error
	MakeActive(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time) error
	UpdateStatus(ctx context.Context, tenant id.TenantID, docID id.DocumentID, from, to models.Status, at time.Time) error
}

// Service is the active document registry: one active document per
// (tenant, owner, doc type) with forward supersession links.
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

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.retry = p.Normalize()
	}
}

// WithMaxDepth caps supersession chain walks.
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
		tracer:   otel.Tracer("lendus/documents"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivateRequest describes a freshly uploaded document.
type ActivateRequest struct {
	Tenant       id.TenantID
	Owner        id.OwnerRef
	DocType      models.DocType
	File         models.File
	ProviderData map[string]any
	// Reason is recorded on the document being replaced. Defaults to CORRECTED.
	Reason models.ReplacementReason
}

func (r ActivateRequest) validate() (models.ReplacementReason, error) {
	if r.Tenant.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := r.Owner.Validate(); err != nil {
		return "", err
	}
	if !r.DocType.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document type: "+string(r.DocType))
	}
	if err := r.File.Validate(); err != nil {
		return "", err
	}
	return models.NormalizeReason(r.Reason)
}

// Activate stores a new document as the active one for its slot, retiring the
// previous active document in the same unit of work. A racing activation that
// trips the one-active constraint aborts and is retried; the second writer
// never silently wins.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*models.Document, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "activate", start)

	ctx, span := s.tracer.Start(ctx, "documents.Activate",
		trace.WithAttributes(
			attribute.String("tenant_id", req.Tenant.String()),
			attribute.String("owner", req.Owner.Key()),
			attribute.String("doc_type", string(req.DocType)),
		),
	)
	defer span.End()

	reason, err := req.validate()
	if err != nil {
		return nil, fail(span, err)
	}

	key := models.Key{Tenant: req.Tenant, Owner: req.Owner, DocType: req.DocType}
	var created *models.Document
	var retired *id.DocumentID
	err = retry.Do(ctx, s.retry, isContention, func(attempt int, err error) {
		s.onContention(ctx, key, attempt, err)
	}, func(ctx context.Context) error {
		created, retired = nil, nil
		return s.tx.RunInTx(tx.WithLockKey(ctx, key.String()), func(ctx context.Context) error {
			now := requestcontext.Now(ctx)
			doc := &models.Document{
				ID:           id.NewDocumentID(),
				Tenant:       key.Tenant,
				Owner:        key.Owner,
				DocType:      key.DocType,
				File:         req.File,
				ProviderData: req.ProviderData,
				IsActive:     true,
				ValidFrom:    now,
				Status:       models.StatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			prior, err := s.store.FindActive(ctx, key, true)
			switch {
			case err == nil:
				if err := s.store.Retire(ctx, key.Tenant, prior.ID, now, doc.ID, reason); err != nil {
					return err
				}
				retired = &prior.ID
			case errors.Is(err, sentinel.ErrNotFound):
			default:
				return err
			}

			if err := s.store.Insert(ctx, doc); err != nil {
				if retired == nil {
					return sentinel.LostRace(err)
				}
				return err
			}
			created = doc
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, s.translate(ctx, key, err, "failed to activate document"))
	}

	s.metrics.IncrementVersionsWritten(component)
	fields := []zap.Field{
		zap.String("document_id", created.ID.String()),
		zap.String("doc_type", string(key.DocType)),
	}
	if retired != nil {
		fields = append(fields, zap.String("superseded_document_id", retired.String()))
	}
	s.logAudit(ctx, "document_activated", key.Tenant, key.Owner, fields...)
	return created.Clone(), nil
}

// Stage stores an uploaded document without activating it. It stays outside
// any chain until Supersede promotes it over the active document.
func (s *Service) Stage(ctx context.Context, req ActivateRequest) (*models.Document, error) {
	if _, err := req.validate(); err != nil {
		return nil, err
	}
	var doc *models.Document
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		doc = &models.Document{
			ID:           id.NewDocumentID(),
			Tenant:       req.Tenant,
			Owner:        req.Owner,
			DocType:      req.DocType,
			File:         req.File,
			ProviderData: req.ProviderData,
			ValidFrom:    now,
			Status:       models.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.store.Insert(ctx, doc)
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to stage document")
	}
	s.logAudit(ctx, "document_staged", req.Tenant, req.Owner,
		zap.String("document_id", doc.ID.String()),
		zap.String("doc_type", string(req.DocType)))
	return doc.Clone(), nil
}

// GetActive returns the active document of the slot or CodeNotFound.
func (s *Service) GetActive(ctx context.Context, tenant id.TenantID, owner id.OwnerRef, docType models.DocType) (*models.Document, error) {
	if tenant.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if !docType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown document type: "+string(docType))
	}
	doc, err := s.store.FindActive(ctx, models.Key{Tenant: tenant, Owner: owner, DocType: docType}, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no active "+string(docType)+" document")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active document")
	}
	return doc, nil
}

// ListActive returns every active document held by owner, ordered by type.
func (s *Service) ListActive(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.Document, error) {
	if tenant.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.store.ListActive(ctx, tenant, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active documents")
	}
	return docs, nil
}

// Supersede retires the active document oldID in favour of newID, which must
// fill the same slot and not already be part of a chain. newID becomes the
// active document.
func (s *Service) Supersede(ctx context.Context, tenant id.TenantID, oldID, newID id.DocumentID, reason models.ReplacementReason) error {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "supersede", start)

	if tenant.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if oldID == newID {
		return dErrors.New(dErrors.CodeInvalidInput, "a document cannot supersede itself")
	}
	reason, err := models.NormalizeReason(reason)
	if err != nil {
		return err
	}

	old, err := s.store.FindByID(ctx, tenant, oldID, false)
	if err != nil {
		return s.notFoundOr(err, "document "+oldID.String()+" not found")
	}
	key := old.Key()

	err = retry.Do(ctx, s.retry, isContention, func(attempt int, err error) {
		s.onContention(ctx, key, attempt, err)
	}, func(ctx context.Context) error {
		return s.tx.RunInTx(tx.WithLockKey(ctx, key.String()), func(ctx context.Context) error {
			now := requestcontext.Now(ctx)
			old, err := s.store.FindByID(ctx, tenant, oldID, true)
			if err != nil {
				return err
			}
			replacement, err := s.store.FindByID(ctx, tenant, newID, true)
			if err != nil {
				return err
			}
			if err := checkSupersede(old, replacement); err != nil {
				return err
			}
			if err := s.store.Retire(ctx, tenant, oldID, now, newID, reason); err != nil {
				return err
			}
			return s.store.MakeActive(ctx, tenant, newID, now)
		})
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return s.translate(ctx, key, err, "failed to supersede document")
	}

	s.logAudit(ctx, "document_superseded", tenant, key.Owner,
		zap.String("document_id", oldID.String()),
		zap.String("superseded_by_id", newID.String()),
		zap.String("replacement_reason", string(reason)))
	return nil
}

func checkSupersede(old, replacement *models.Document) error {
	if old.Key() != replacement.Key() {
		return dErrors.New(dErrors.CodeInvalidInput, "documents belong to different owners or types")
	}
	if !old.IsActive {
		return dErrors.New(dErrors.CodeInvalidInput, "only the active document can be superseded")
	}
	if replacement.SupersededByID != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "replacement document is already superseded")
	}
	if replacement.Status == models.StatusRejected {
		return dErrors.New(dErrors.CodeInvalidInput, "a rejected document cannot become active")
	}
	return nil
}

// Chain walks forward from docID over SupersededByID and returns every
// document up to and including the active one. A chain that loops or ends on
// an inactive document is CodeInvariantViolation.
func (s *Service) Chain(ctx context.Context, tenant id.TenantID, docID id.DocumentID) ([]*models.Document, error) {
	doc, err := s.store.FindByID(ctx, tenant, docID, false)
	if err != nil {
		return nil, s.notFoundOr(err, "document not found")
	}

	chain := []*models.Document{doc}
	visited := map[id.DocumentID]struct{}{doc.ID: {}}
	for doc.SupersededByID != nil {
		next := *doc.SupersededByID
		if _, seen := visited[next]; seen || len(visited) >= s.maxDepth {
			return nil, s.brokenChain(doc.Key(), next, "supersession chain loops or exceeds maximum depth")
		}
		nextDoc, err := s.store.FindByID(ctx, tenant, next, false)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, s.brokenChain(doc.Key(), next, "dangling supersession link")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load successor document")
		}
		visited[next] = struct{}{}
		chain = append(chain, nextDoc)
		doc = nextDoc
	}
	if !doc.IsActive {
		return nil, s.brokenChain(doc.Key(), doc.ID, "supersession chain does not end at an active document")
	}
	return chain, nil
}

// Review records a staff outcome (APPROVED or REJECTED) on a PENDING document.
func (s *Service) Review(ctx context.Context, tenant id.TenantID, docID id.DocumentID, status models.Status) error {
	if !status.IsReviewOutcome() {
		return dErrors.New(dErrors.CodeInvalidInput, "review outcome must be APPROVED or REJECTED")
	}
	var doc *models.Document
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.store.FindByID(ctx, tenant, docID, true)
		if err != nil {
			return err
		}
		if doc.Status != models.StatusPending {
			return sentinel.ErrInvalidState
		}
		return s.store.UpdateStatus(ctx, tenant, docID, models.StatusPending, status, requestcontext.Now(ctx))
	})
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidInput, "only pending documents can be reviewed")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "document was reviewed concurrently; please retry")
	default:
		return wrapInternal(err, "failed to review document")
	}
	s.logAudit(ctx, "document_reviewed", tenant, doc.Owner,
		zap.String("document_id", docID.String()),
		zap.String("status", string(status)))
	return nil
}

func isContention(err error) bool {
	return errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrUniqueViolation)
}

func (s *Service) onContention(ctx context.Context, key models.Key, attempt int, err error) {
	s.metrics.IncrementConflictRetry(component)
	if errors.Is(err, sentinel.ErrUniqueViolation) {
		s.metrics.IncrementConstraintViolation(component)
		s.logger.Error("one-active constraint rejected an activation; retrying",
			zap.String("slot", key.String()),
			zap.Int("attempt", attempt),
			zap.String("request_id", requestcontext.RequestID(ctx)),
			zap.Error(err))
		return
	}
	s.logger.Info("concurrent document write; retrying",
		zap.String("slot", key.String()),
		zap.Int("attempt", attempt))
}

func (s *Service) translate(ctx context.Context, key models.Key, err error, msg string) error {
	switch {
	case dErrors.CodeOf(err) != "":
		return err
	case errors.Is(err, sentinel.ErrUniqueViolation):
		s.logger.Error("one-active constraint violation after retries",
			zap.String("slot", key.String()),
			zap.String("request_id", requestcontext.RequestID(ctx)),
			zap.Error(err))
		return dErrors.Wrap(err, dErrors.CodeConstraintViolation, "another active document exists; please retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "document was modified concurrently; please retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) notFoundOr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
}

func (s *Service) brokenChain(key models.Key, at id.DocumentID, msg string) error {
	s.logger.Error("document chain invariant violated",
		zap.String("slot", key.String()),
		zap.String("document_id", at.String()),
		zap.String("reason", msg))
	return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("%s: %s at %s", msg, key, at))
}

func wrapInternal(err error, msg string) error {
	if dErrors.CodeOf(err) != "" {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func fail(span trace.Span, err error) error {
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
