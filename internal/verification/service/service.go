package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lendus/internal/platform/metrics"
	"lendus/internal/verification/models"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/circuit"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/requestcontext"
)

const (
	component              = "verification"
	defaultVerifierTimeout = 10 * time.Second
)

// Store is the persistence port of the ledger. Resolve returns
// sentinel.ErrConflict when the record is no longer PENDING.
type Store interface {
	Latest(ctx context.Context, key models.FieldKey, forUpdate bool) (*models.Record, error)
	Append(ctx context.Context, rec *models.Record) error
	Resolve(ctx context.Context, rec *models.Record) error
	ListHistory(ctx context.Context, key models.FieldKey) ([]*models.Record, error)
}

// Check is what an external verifier is asked to confirm.
type Check struct {
	Tenant    id.TenantID
	Owner     id.OwnerRef
	FieldName string
	Value     string
	Method    models.Method
}

// Result is the verifier's answer. ProviderData is stored as-is.
type Result struct {
	Passed       bool
	Confidence   float64
	Reason       string
	ProviderData json.RawMessage
}

// Verifier is an OCR, bureau or KYC collaborator.
type Verifier interface {
	Verify(ctx context.Context, check Check) (Result, error)
}

// Service is the per-field verification ledger. It records outcomes and never
// touches versioned records or documents.
type Service struct {
	store           Store
	tx              tx.Runner
	logger          *zap.Logger
	metrics         *metrics.Metrics
	breaker         *circuit.Breaker
	verifierTimeout time.Duration
	tracer          trace.Tracer
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

// WithBreaker guards verifier calls.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithVerifierTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verifierTimeout = d
		}
	}
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:           store,
		tx:              runner,
		logger:          zap.NewNop(),
		breaker:         circuit.New("verifier", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		verifierTimeout: defaultVerifierTimeout,
		tracer:          otel.Tracer("lendus/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordRequest is one outcome for a field value. Reason is required for
// REJECTED and optional for CORRECTED; CorrectedValue is required for
// CORRECTED and replaces Value from that record on.
type RecordRequest struct {
	Tenant           id.TenantID
	Owner            id.OwnerRef
	FieldName        string
	Value            string
	Method           models.Method
	Outcome          models.Status
	Reason           string
	CorrectedValue   string
	VerificationData json.RawMessage
	Confidence       *float64
}

func (r *RecordRequest) normalize() error {
	if r.Tenant.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := r.Owner.Validate(); err != nil {
		return err
	}
	name, err := models.NormalizeFieldName(r.FieldName)
	if err != nil {
		return err
	}
	r.FieldName = name
	r.Reason = strings.TrimSpace(r.Reason)
	if strings.TrimSpace(r.Value) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "field value is required")
	}
	if !r.Method.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown verification method: "+string(r.Method))
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return dErrors.New(dErrors.CodeInvalidInput, "confidence must be between 0 and 1")
	}
	switch r.Outcome {
	case models.StatusPending, models.StatusVerified:
	case models.StatusRejected:
		if r.Reason == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "a rejection needs a reason")
		}
	case models.StatusCorrected:
		if strings.TrimSpace(r.CorrectedValue) == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "a correction needs the corrected value")
		}
		if r.CorrectedValue == r.Value {
			return dErrors.New(dErrors.CodeInvalidInput, "corrected value equals the original")
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown verification status: "+string(r.Outcome))
	}
	return nil
}

// RecordVerification appends an outcome to the field's ledger. A decision on
// an open PENDING row for the same value resolves that row in place; every
// other outcome is a new row that inherits the cumulative correction history.
func (s *Service) RecordVerification(ctx context.Context, req RecordRequest) (*models.Record, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "record", start)

	ctx, span := s.tracer.Start(ctx, "verification.RecordVerification",
		trace.WithAttributes(
			attribute.String("tenant_id", req.Tenant.String()),
			attribute.String("field", req.FieldName),
			attribute.String("outcome", string(req.Outcome)),
		))
	defer span.End()

	if err := req.normalize(); err != nil {
		return nil, fail(span, err)
	}
	key := models.FieldKey{Tenant: req.Tenant, Owner: req.Owner, FieldName: req.FieldName}

	var (
		stored   *models.Record
		resolved bool
	)
	err := s.tx.RunInTx(tx.WithLockKey(ctx, "verification:"+key.String()), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		latest, err := s.store.Latest(ctx, key, true)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		if latest != nil && latest.Status == models.StatusPending && latest.FieldValue == req.Value {
			if req.Outcome == models.StatusPending {
				stored = latest
				return nil
			}
			if req.Outcome != models.StatusCorrected {
				rec := latest.Clone()
				rec.Method = req.Method
				rec.Status = req.Outcome
				rec.RejectionReason = rejectionReason(req)
				rec.VerificationData = req.VerificationData
				rec.Confidence = req.Confidence
				rec.UpdatedAt = now
				if err := s.store.Resolve(ctx, rec); err != nil {
					return err
				}
				stored, resolved = rec, true
				return nil
			}
		}

		rec := &models.Record{
			ID:               id.NewVerificationID(),
			Tenant:           req.Tenant,
			Owner:            req.Owner,
			FieldName:        req.FieldName,
			FieldValue:       req.Value,
			Method:           req.Method,
			Status:           req.Outcome,
			RejectionReason:  rejectionReason(req),
			VerificationData: req.VerificationData,
			Confidence:       req.Confidence,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if latest != nil {
			rec.CorrectionHistory = append(rec.CorrectionHistory, latest.CorrectionHistory...)
		}
		if req.Outcome == models.StatusCorrected {
			rec.FieldValue = req.CorrectedValue
			rec.CorrectedAt = &now
			rec.CorrectionHistory = append(rec.CorrectionHistory, models.Correction{
				OldValue:    req.Value,
				NewValue:    req.CorrectedValue,
				CorrectedAt: now,
				Reason:      req.Reason,
			})
		}
		if err := s.store.Append(ctx, rec); err != nil {
			return err
		}
		stored = rec
		return nil
	})
	if err != nil {
		return nil, fail(span, translate(err))
	}

	s.metrics.IncrementVerification(string(req.Method), string(stored.Status))
	s.logAudit(ctx, "field_verification_recorded", key,
		zap.String("verification_id", stored.ID.String()),
		zap.String("status", string(stored.Status)),
		zap.String("method", string(stored.Method)),
		zap.Bool("resolved_pending", resolved))
	return stored.Clone(), nil
}

func rejectionReason(req RecordRequest) string {
	if req.Outcome == models.StatusRejected {
		return req.Reason
	}
	return ""
}

// ListHistory returns every record of the field, oldest first.
func (s *Service) ListHistory(ctx context.Context, tenant id.TenantID, owner id.OwnerRef, fieldName string) ([]*models.Record, error) {
	if tenant.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	name, err := models.NormalizeFieldName(fieldName)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListHistory(ctx, models.FieldKey{Tenant: tenant, Owner: owner, FieldName: name})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification history")
	}
	return records, nil
}

// Verify asks verifier about the value and records the answer as VERIFIED or
// REJECTED. The verifier runs outside any transaction.
func (s *Service) Verify(ctx context.Context, check Check, verifier Verifier) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify",
		trace.WithAttributes(
			attribute.String("tenant_id", check.Tenant.String()),
			attribute.String("field", check.FieldName),
			attribute.String("method", string(check.Method)),
		))
	defer span.End()

	req := RecordRequest{
		Tenant:    check.Tenant,
		Owner:     check.Owner,
		FieldName: check.FieldName,
		Value:     check.Value,
		Method:    check.Method,
		Outcome:   models.StatusVerified,
	}
	if err := req.normalize(); err != nil {
		return nil, fail(span, err)
	}
	check.FieldName = req.FieldName
	if !s.breaker.Allow() {
		return nil, fail(span, dErrors.New(dErrors.CodeInternal, "verifier unavailable: circuit open"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.verifierTimeout)
	result, err := verifier.Verify(callCtx, check)
	cancel()
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.Warn("verifier circuit opened", zap.String("breaker", s.breaker.Name()))
		}
		s.logger.Warn("verifier call failed",
			zap.String("field", check.FieldName),
			zap.String("method", string(check.Method)),
			zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fail(span, dErrors.Wrap(err, dErrors.CodeTimeout, "verifier timed out"))
		}
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "verifier call failed"))
	}
	s.breaker.RecordSuccess()

	req.VerificationData = result.ProviderData
	req.Confidence = &result.Confidence
	if !result.Passed {
		req.Outcome = models.StatusRejected
		req.Reason = result.Reason
		if req.Reason == "" {
			req.Reason = "rejected by " + strings.ToLower(string(check.Method)) + " verifier"
		}
	}
	return s.RecordVerification(ctx, req)
}

func translate(err error) error {
	switch {
	case dErrors.CodeOf(err) != "":
		return err
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrUniqueViolation):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "verification was recorded concurrently; please retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, key models.FieldKey, fields ...zap.Field) {
	fields = append(fields,
		zap.String("event", event),
		zap.String("log_type", "audit"),
		zap.String("tenant_id", key.Tenant.String()),
		zap.String("owner", key.Owner.Key()),
		zap.String("field", key.FieldName),
	)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	s.logger.Info(event, fields...)
}
