package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/internal/repository"
	"github.com/noah-isme/hostelx-api/pkg/clock"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/logger"
)

// verifyRounds bounds re-reads after losing a consume race. Each lost round
// means another verifier committed, so the next read settles the outcome.
const verifyRounds = 8

// GateService decides physical exits at the gate.
type GateService struct {
	store     requestStore
	audit     auditAppender
	issuer    codeIssuer
	lifecycle *LifecycleService
	clock     clock.Clock
	metrics   domainMetrics
	logger    *zap.Logger
}

// GateOption configures the gate service.
type GateOption func(*GateService)

// WithGateClock overrides the time source.
func WithGateClock(c clock.Clock) GateOption {
	return func(s *GateService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithGateMetrics records gate decisions.
func WithGateMetrics(m domainMetrics) GateOption {
	return func(s *GateService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewGateService constructs the gate verifier. Expiry discovered at the gate
// is persisted through lifecycle.
func NewGateService(store requestStore, audit auditAppender, issuer codeIssuer, lifecycle *LifecycleService, logger *zap.Logger, opts ...GateOption) *GateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GateService{
		store:     store,
		audit:     audit,
		issuer:    issuer,
		lifecycle: lifecycle,
		clock:     clock.Real(),
		metrics:   noopMetrics{},
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Verify checks a typed code and consumes it on success. Concurrent verifies
// of one code produce exactly one grant; the rest see ALREADY_USED.
func (s *GateService) Verify(ctx context.Context, actor models.Actor, raw string) (models.GateDecision, error) {
	code, ok := normalizeCode(raw)
	if !ok {
		return s.deny(models.DenyNotFound, nil), nil
	}

	for round := 0; round < verifyRounds; round++ {
		leave, err := s.store.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return s.deny(models.DenyNotFound, nil), nil
			}
			return models.GateDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up access code")
		}

		now := s.clock.Now()
		if reason, denied := s.check(ctx, leave, now); denied {
			return s.deny(reason, leave), nil
		}

		consumed, err := s.store.Update(ctx, leave.ID, leave.Version, func(r *models.Request) error {
			if !r.LiveCode() || r.Code() != code {
				return repository.ErrVersionConflict
			}
			at := now.UTC()
			r.Status = models.StatusConsumed
			r.OTPConsumedAt = &at
			r.UpdatedAt = at
			return nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if errors.Is(err, sql.ErrNoRows) {
				return s.deny(models.DenyNotFound, nil), nil
			}
			return models.GateDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume access code")
		}

		s.issuer.Release(context.WithoutCancel(ctx), code, consumed.ID)
		method := models.GateMethodCode
		entry := &models.AuditEntry{
			ActorRole:  string(models.RoleSecurity),
			EntityID:   &consumed.ID,
			EntityKind: string(consumed.Kind),
			Action:     models.AuditActionGateGrant,
			FromStatus: string(models.StatusApproved),
			ToStatus:   string(models.StatusConsumed),
			Method:     &method,
			CreatedAt:  now.UTC(),
		}
		if actor.Authenticated() {
			entry.ActorID = &actor.ID
			entry.ActorRole = string(actor.Role)
		}
		if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
			logger.WithContext(ctx, s.logger).Warn("failed to record gate grant", zap.String("entity_id", consumed.ID), zap.Error(err))
		}

		decision := models.GateDecision{
			Outcome:     models.GateGrant,
			Method:      models.GateMethodCode,
			LeaveID:     consumed.ID,
			StudentName: consumed.RequesterName,
			Room:        consumed.Room,
			ValidUntil:  consumed.OTPValidUntil,
			DecidedAt:   now.UTC(),
			AuditID:     entry.ID,
		}
		s.metrics.RecordGateDecision(string(models.GateMethodCode), string(models.GateGrant), "")
		return decision, nil
	}

	return models.GateDecision{}, appErrors.Clone(appErrors.ErrConflict, "access code is being used concurrently, try again")
}

// check returns the deny reason for leave at now, expiring it when its window
// has closed.
func (s *GateService) check(ctx context.Context, leave *models.Request, now time.Time) (models.DenyReason, bool) {
	if leave.Kind != models.KindLeave {
		return models.DenyNotFound, true
	}
	switch {
	case leave.OTPConsumedAt != nil || leave.Status == models.StatusConsumed:
		return models.DenyAlreadyUsed, true
	case leave.Status == models.StatusExpired:
		return models.DenyExpired, true
	case leave.Status != models.StatusApproved:
		return models.DenyNotFound, true
	case leave.Overdue(now):
		if s.lifecycle != nil {
			s.lifecycle.expireIfOverdue(ctx, leave, "gate")
		}
		return models.DenyExpired, true
	case leave.OTPValidFrom != nil && now.Before(*leave.OTPValidFrom):
		return models.DenyNotYetValid, true
	}
	return "", false
}

func (s *GateService) deny(reason models.DenyReason, leave *models.Request) models.GateDecision {
	decision := models.GateDecision{
		Outcome:   models.GateDeny,
		Reason:    reason,
		Method:    models.GateMethodCode,
		DecidedAt: s.clock.Now().UTC(),
	}
	if leave != nil && reason != models.DenyNotFound {
		decision.LeaveID = leave.ID
		decision.StudentName = leave.RequesterName
		decision.Room = leave.Room
		decision.ValidUntil = leave.OTPValidUntil
	}
	s.metrics.RecordGateDecision(string(models.GateMethodCode), string(models.GateDeny), string(reason))
	return decision
}

// Override grants a manual exit. The override audit entry is written once,
// before the grant is returned, and records the linked leave's status as it
// was read. A linked leave whose window has closed is expired; one with a live
// code has that code consumed on a best effort basis, which appends its own
// GATE_GRANT entry when it lands. Overrides are never retried.
func (s *GateService) Override(ctx context.Context, actor models.Actor, justification, leaveID string) (models.GateDecision, error) {
	if !actor.Authenticated() {
		return models.GateDecision{}, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleSecurity {
		return models.GateDecision{}, appErrors.Clone(appErrors.ErrForbidden, "only security staff can override the gate")
	}
	reason := models.OverrideJustification(justification)
	if !reason.Valid() {
		return models.GateDecision{}, appErrors.Clone(appErrors.ErrInvalidRequest, "justification must be one of the predefined reasons")
	}

	var leave *models.Request
	if leaveID != "" {
		found, err := s.store.Get(ctx, leaveID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.GateDecision{}, appErrors.Clone(appErrors.ErrNotFound, "linked leave not found")
			}
			return models.GateDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked leave")
		}
		if found.Kind != models.KindLeave {
			return models.GateDecision{}, appErrors.Clone(appErrors.ErrInvalidRequest, "linked request is not a leave")
		}
		if s.lifecycle != nil {
			found = s.lifecycle.expireIfOverdue(ctx, found, "gate")
		}
		leave = found
	}

	now := s.clock.Now().UTC()
	method := models.GateMethodOverride
	entry := &models.AuditEntry{
		ActorID:       &actor.ID,
		ActorRole:     string(actor.Role),
		EntityKind:    string(models.KindLeave),
		Action:        models.AuditActionGateOverride,
		Method:        &method,
		Justification: string(reason),
		CreatedAt:     now,
	}
	if leave != nil {
		entry.EntityID = &leave.ID
		entry.FromStatus = string(leave.Status)
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.RecordGateDecision(string(models.GateMethodOverride), "error", "")
		return models.GateDecision{}, appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "failed to record gate override")
	}

	decision := models.GateDecision{
		Outcome:   models.GateGrant,
		Method:    models.GateMethodOverride,
		DecidedAt: now,
		AuditID:   entry.ID,
	}
	if leave != nil {
		decision.LeaveID = leave.ID
		decision.StudentName = leave.RequesterName
		decision.Room = leave.Room
		decision.ValidUntil = leave.OTPValidUntil
		if leave.LiveCode() && !leave.Overdue(now) {
			s.consumeLinked(context.WithoutCancel(ctx), actor, leave, now)
		}
	}
	s.metrics.RecordGateDecision(string(models.GateMethodOverride), string(models.GateGrant), "")
	return decision, nil
}

func (s *GateService) consumeLinked(ctx context.Context, actor models.Actor, leave *models.Request, now time.Time) {
	code := leave.Code()
	consumed, err := s.store.Update(ctx, leave.ID, leave.Version, func(r *models.Request) error {
		if !r.LiveCode() || r.Overdue(now) {
			return repository.ErrVersionConflict
		}
		at := now
		r.Status = models.StatusConsumed
		r.OTPConsumedAt = &at
		r.UpdatedAt = at
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.logger).Warn("override granted but linked code was not consumed",
			zap.String("entity_id", leave.ID), zap.Error(err))
		return
	}
	s.issuer.Release(ctx, code, leave.ID)

	method := models.GateMethodOverride
	entry := &models.AuditEntry{
		ActorID:    &actor.ID,
		ActorRole:  string(actor.Role),
		EntityID:   &consumed.ID,
		EntityKind: string(consumed.Kind),
		Action:     models.AuditActionGateGrant,
		FromStatus: string(models.StatusApproved),
		ToStatus:   string(models.StatusConsumed),
		Method:     &method,
		CreatedAt:  now,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to record override consumption", zap.String("entity_id", consumed.ID), zap.Error(err))
	}
}
