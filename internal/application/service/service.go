package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lendus/internal/application/models"
	"lendus/internal/events"
	"lendus/internal/platform/metrics"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/requestcontext"
)

const (
	component            = "application"
	defaultMinReferences = 2
	maxNotesLength       = 2000
)

// Store is the persistence port of the state machine. UpdateStatus returns
// sentinel.ErrConflict when expectedLock no longer matches; SaveSnapshot
// returns sentinel.ErrInvalidState when a snapshot is already stored.
type Store interface {
	Insert(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, forUpdate bool) (*models.Application, error)
	UpdateStatus(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, expectedLock int, status models.Status, at time.Time, submittedAt *time.Time) error
	SaveSnapshot(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, snapshot *models.Snapshot) error
	AppendHistory(ctx context.Context, entry models.StatusHistoryEntry) error
	ListHistory(ctx context.Context, tenant id.TenantID, appID id.ApplicationID) ([]models.StatusHistoryEntry, error)
}

// Service drives applications through their lifecycle. Every transition
// writes the status, one history row and one outbox event in a single unit
// of work; submission also freezes the applicant's profile into a snapshot.
type Service struct {
	store         Store
	records       RecordReader
	documents     DocumentReader
	outbox        events.Appender
	tx            tx.Runner
	logger        *zap.Logger
	metrics       *metrics.Metrics
	minReferences int
	tracer        trace.Tracer
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

// WithMinReferences sets how many current reference records submission needs.
func WithMinReferences(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minReferences = n
		}
	}
}

func New(store Store, records RecordReader, documents DocumentReader, outbox events.Appender, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:         store,
		records:       records,
		documents:     documents,
		outbox:        outbox,
		tx:            runner,
		logger:        zap.NewNop(),
		minReferences: defaultMinReferences,
		tracer:        otel.Tracer("lendus/application"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraftRequest opens a new application.
type CreateDraftRequest struct {
	Tenant          id.TenantID
	Applicant       id.OwnerRef
	RequestedAmount int64
	TermMonths      int
	Actor           models.Actor
}

func (r CreateDraftRequest) validate() error {
	if r.Tenant.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := r.Applicant.Validate(); err != nil {
		return err
	}
	if r.Applicant.Kind == id.OwnerApplication {
		return dErrors.New(dErrors.CodeInvalidInput, "applicant must be a person or a company")
	}
	if r.RequestedAmount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "requested amount must be positive")
	}
	if r.TermMonths <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "term must be positive")
	}
	if err := r.Actor.Validate(); err != nil {
		return err
	}
	if r.Actor.Kind == models.ActorApplicant && r.Applicant.ID != uuid.UUID(r.Actor.ID) {
		return dErrors.New(dErrors.CodeForbidden, "applicants may only open their own applications")
	}
	return nil
}

// CreateDraft stores a DRAFT application and the history row that opens it.
func (s *Service) CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.Application, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "create_draft", start)

	ctx, span := s.tracer.Start(ctx, "application.CreateDraft",
		trace.WithAttributes(
			attribute.String("tenant_id", req.Tenant.String()),
			attribute.String("applicant", req.Applicant.Key()),
		))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, fail(span, err)
	}

	now := requestcontext.Now(ctx)
	app := &models.Application{
		ID:              id.NewApplicationID(),
		Tenant:          req.Tenant,
		Applicant:       req.Applicant,
		Status:          models.StatusDraft,
		RequestedAmount: req.RequestedAmount,
		TermMonths:      req.TermMonths,
		LockVersion:     1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, app); err != nil {
			return err
		}
		return s.store.AppendHistory(ctx, models.StatusHistoryEntry{
			ID:            id.NewHistoryEntryID(),
			ApplicationID: app.ID,
			Tenant:        app.Tenant,
			To:            models.StatusDraft,
			ChangedBy:     req.Actor.ID,
			ChangedByKind: req.Actor.Kind,
			At:            now,
		})
	})
	if err != nil {
		return nil, fail(span, wrapInternal(err, "failed to create application"))
	}

	s.logAudit(ctx, "application_created", app.Tenant, app.ID,
		zap.String("applicant", app.Applicant.Key()),
		zap.String("actor_id", req.Actor.ID.String()),
		zap.String("actor_kind", string(req.Actor.Kind)))
	return app.Clone(), nil
}

// Transition moves an application to the target status. The edge is checked
// against the transition table before the actor, and nothing is written when
// either check fails. Leaving DRAFT for SUBMITTED captures the snapshot in the
// same unit of work; an incomplete profile aborts the whole transition.
func (s *Service) Transition(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, to models.Status, actor models.Actor, notes string) (*models.Application, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "transition", start)

	ctx, span := s.tracer.Start(ctx, "application.Transition",
		trace.WithAttributes(
			attribute.String("tenant_id", tenant.String()),
			attribute.String("application_id", appID.String()),
			attribute.String("to", string(to)),
			attribute.String("actor_kind", string(actor.Kind)),
		))
	defer span.End()

	if tenant.IsNil() || appID.IsNil() {
		return nil, fail(span, dErrors.New(dErrors.CodeInvalidInput, "tenant id and application id are required"))
	}
	if !to.IsValid() {
		return nil, fail(span, dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+string(to)))
	}
	if err := actor.Validate(); err != nil {
		return nil, fail(span, err)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLength {
		return nil, fail(span, dErrors.New(dErrors.CodeInvalidInput, "notes are too long"))
	}

	var (
		updated *models.Application
		from    models.Status
	)
	lockCtx := tx.WithLockKey(ctx, "application:"+appID.String())
	err := s.tx.RunInTx(lockCtx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		app, err := s.store.FindByID(ctx, tenant, appID, true)
		if err != nil {
			return err
		}
		from = app.Status
		if !models.CanTransition(app.Status, to) {
			return models.NewInvalidTransition(app.Status, to)
		}
		if err := models.Authorize(actor, app, to); err != nil {
			return err
		}

		var submittedAt *time.Time
		if to == models.StatusSubmitted {
			snapshot, err := s.buildSnapshot(ctx, app, now)
			if err != nil {
				return err
			}
			if err := s.store.SaveSnapshot(ctx, tenant, appID, snapshot); err != nil {
				return err
			}
			app.Snapshot = snapshot
			submittedAt = &now
		}

		if err := s.store.UpdateStatus(ctx, tenant, appID, app.LockVersion, to, now, submittedAt); err != nil {
			return err
		}
		if err := s.store.AppendHistory(ctx, models.StatusHistoryEntry{
			ID:            id.NewHistoryEntryID(),
			ApplicationID: appID,
			Tenant:        tenant,
			From:          from,
			To:            to,
			ChangedBy:     actor.ID,
			ChangedByKind: actor.Kind,
			Notes:         notes,
			At:            now,
		}); err != nil {
			return err
		}

		event, err := events.New(events.AggregateApplication, appID.String(), events.TypeApplicationStatusChanged,
			events.StatusChanged{
				ApplicationID: appID.String(),
				TenantID:      tenant.String(),
				From:          string(from),
				To:            string(to),
				ChangedBy:     actor.ID.String(),
				ChangedByKind: string(actor.Kind),
				Notes:         notes,
				At:            now,
				RequestID:     requestcontext.RequestID(ctx),
			}, now)
		if err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, event); err != nil {
			return err
		}

		app.Status = to
		app.UpdatedAt = now
		app.LockVersion++
		if submittedAt != nil {
			app.SubmittedAt = submittedAt
		}
		updated = app
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeIncompleteProfile) {
			s.metrics.IncrementIncompleteProfile()
			s.logger.Info("submission rejected: incomplete profile",
				zap.String("application_id", appID.String()),
				zap.Error(err))
		}
		return nil, fail(span, s.translate(err))
	}

	s.metrics.IncrementTransition(string(to))
	if to == models.StatusSubmitted {
		s.metrics.IncrementSnapshotCaptured()
	}
	s.logAudit(ctx, "application_status_changed", tenant, appID,
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID.String()),
		zap.String("actor_kind", string(actor.Kind)))
	return updated.Clone(), nil
}

// Capture builds the snapshot a submission would freeze right now without
// storing it. Only DRAFT applications can be previewed.
func (s *Service) Capture(ctx context.Context, tenant id.TenantID, appID id.ApplicationID) (*models.Snapshot, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "capture", start)

	ctx, span := s.tracer.Start(ctx, "application.Capture",
		trace.WithAttributes(
			attribute.String("tenant_id", tenant.String()),
			attribute.String("application_id", appID.String()),
		))
	defer span.End()

	app, err := s.store.FindByID(ctx, tenant, appID, false)
	if err != nil {
		return nil, fail(span, s.translate(err))
	}
	if app.Status != models.StatusDraft {
		return nil, fail(span, dErrors.New(dErrors.CodeInvalidInput, "snapshot already frozen at submission"))
	}
	snapshot, err := s.buildSnapshot(ctx, app, requestcontext.Now(ctx))
	if err != nil {
		return nil, fail(span, s.translate(err))
	}
	return snapshot, nil
}

// Get returns the application together with its frozen snapshot, if any.
func (s *Service) Get(ctx context.Context, tenant id.TenantID, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.store.FindByID(ctx, tenant, appID, false)
	if err != nil {
		return nil, s.translate(err)
	}
	return app, nil
}

// History returns the audit trail of an application, oldest first.
func (s *Service) History(ctx context.Context, tenant id.TenantID, appID id.ApplicationID) ([]models.StatusHistoryEntry, error) {
	if _, err := s.store.FindByID(ctx, tenant, appID, false); err != nil {
		return nil, s.translate(err)
	}
	entries, err := s.store.ListHistory(ctx, tenant, appID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list status history")
	}
	return entries, nil
}

func (s *Service) translate(err error) error {
	switch {
	case dErrors.CodeOf(err) != "":
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "application was modified concurrently; please retry")
	case errors.Is(err, sentinel.ErrInvalidState):
		s.logger.Error("application snapshot invariant violated", zap.Error(err))
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "snapshot already captured")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "application operation failed")
	}
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

func (s *Service) logAudit(ctx context.Context, event string, tenant id.TenantID, appID id.ApplicationID, fields ...zap.Field) {
	fields = append(fields,
		zap.String("event", event),
		zap.String("log_type", "audit"),
		zap.String("tenant_id", tenant.String()),
		zap.String("application_id", appID.String()),
	)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	s.logger.Info(event, fields...)
}
