package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/advisory"
	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/internal/repository"
	"github.com/noah-isme/hostelx-api/pkg/clock"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/logger"
)

const dateLayout = "2006-01-02"

type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, id string) (*models.Request, error)
	Update(ctx context.Context, id string, expectedVersion int64, mutate func(*models.Request) error) (*models.Request, error)
	FindByCode(ctx context.Context, code string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

type codeIssuer interface {
	Mint(ctx context.Context, owner string, validUntil time.Time, avoid string) (string, error)
	Release(ctx context.Context, code, owner string)
}

var errNotOverdue = errors.New("leave no longer overdue")

// LifecycleService applies submissions and staff transitions to requests.
type LifecycleService struct {
	store           requestStore
	audit           auditAppender
	issuer          codeIssuer
	advisor         advisory.Hook
	validator       *validator.Validate
	clock           clock.Clock
	metrics         domainMetrics
	location        *time.Location
	maxRetries      int
	advisoryTimeout time.Duration
	logger          *zap.Logger
}

// LifecycleOption configures the lifecycle service.
type LifecycleOption func(*LifecycleService)

// WithLifecycleClock overrides the time source.
func WithLifecycleClock(c clock.Clock) LifecycleOption {
	return func(s *LifecycleService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLifecycleMetrics records transition and advisory outcomes.
func WithLifecycleMetrics(m domainMetrics) LifecycleOption {
	return func(s *LifecycleService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLocation sets the timezone leave dates are read in.
func WithLocation(loc *time.Location) LifecycleOption {
	return func(s *LifecycleService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithMaxRetries bounds optimistic retries of code-minting transitions.
func WithMaxRetries(n int) LifecycleOption {
	return func(s *LifecycleService) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithAdvisoryTimeout bounds the complaint triage call.
func WithAdvisoryTimeout(d time.Duration) LifecycleOption {
	return func(s *LifecycleService) {
		if d > 0 {
			s.advisoryTimeout = d
		}
	}
}

// NewLifecycleService constructs the lifecycle engine.
func NewLifecycleService(store requestStore, audit auditAppender, issuer codeIssuer, advisor advisory.Hook, validate *validator.Validate, logger *zap.Logger, opts ...LifecycleOption) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if advisor == nil {
		advisor = advisory.Noop{}
	}
	s := &LifecycleService{
		store:           store,
		audit:           audit,
		issuer:          issuer,
		advisor:         advisor,
		validator:       validate,
		clock:           clock.Real(),
		metrics:         noopMetrics{},
		location:        time.UTC,
		maxRetries:      3,
		advisoryTimeout: 3 * time.Second,
		logger:          logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SubmitComplaint stores a new complaint. Triage runs under a timeout and its
// failure never blocks the submission.
func (s *LifecycleService) SubmitComplaint(ctx context.Context, actor models.Actor, req dto.SubmitComplaintRequest) (*models.Request, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complaint payload")
	}
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "title and description are required")
	}
	if req.EvidenceRef != "" && !strings.HasPrefix(req.EvidenceRef, actor.ID+"/") {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "evidence does not belong to requester")
	}

	advice := s.triage(ctx, description)

	// The caller may give up while triage runs; the complaint is still stored.
	persistCtx := context.WithoutCancel(ctx)
	now := s.clock.Now().UTC()
	complaint := s.newRequest(actor, models.KindComplaint, now)
	complaint.Title = title
	complaint.Description = description
	complaint.Category = advice.Category
	complaint.Priority = advice.Priority
	complaint.AdvisoryNote = advice.Note
	complaint.EvidenceRef = req.EvidenceRef
	return s.create(persistCtx, actor, complaint)
}

// SubmitLeave stores a new leave request. Both dates are calendar days in the
// gate timezone; the start must be today or later and strictly before the end.
func (s *LifecycleService) SubmitLeave(ctx context.Context, actor models.Actor, req dto.SubmitLeaveRequest) (*models.Request, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	start, err := time.ParseInLocation(dateLayout, req.StartDate, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "start_date must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "end_date must be YYYY-MM-DD")
	}
	if !start.Before(end) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "start_date must be before end_date")
	}
	now := s.clock.Now()
	local := now.In(s.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	if start.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "start_date cannot be in the past")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "reason is required")
	}

	leave := s.newRequest(actor, models.KindLeave, now.UTC())
	leave.StartDate = &start
	leave.EndDate = &end
	leave.Reason = reason
	return s.create(ctx, actor, leave)
}

// SubmitMedical stores a new medical request.
func (s *LifecycleService) SubmitMedical(ctx context.Context, actor models.Actor, req dto.SubmitMedicalRequest) (*models.Request, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medical request payload")
	}
	medicine := strings.TrimSpace(req.MedicineName)
	reason := strings.TrimSpace(req.Reason)
	if medicine == "" || reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "medicine_name and reason are required")
	}
	medical := s.newRequest(actor, models.KindMedical, s.clock.Now().UTC())
	medical.MedicineName = medicine
	medical.Reason = reason
	return s.create(ctx, actor, medical)
}

// Transition applies a staff action to the request with the given id.
func (s *LifecycleService) Transition(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.Request, error) {
	if !actor.Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !allowedRole(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only wardens and administrators can change request status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	action, ok := ParseAction(req.Action)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown action "+req.Action)
	}
	note := strings.TrimSpace(req.Note)

	contended := false
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		current = s.expireIfOverdue(ctx, current, "read")

		rule, err := resolveTransition(current, action)
		if err != nil {
			if contended {
				// Another writer moved the request after our first read.
				s.metrics.RecordTransition(string(current.Kind), string(action), "conflict")
				return nil, appErrors.Clone(appErrors.ErrConflict, "request was changed by someone else, reload and retry")
			}
			s.metrics.RecordTransition(string(current.Kind), string(action), "invalid")
			return nil, err
		}

		if !rule.mintsCode {
			updated, err := s.applySimple(ctx, actor, current, action, rule, note)
			if err != nil {
				s.metrics.RecordTransition(string(current.Kind), string(action), resultLabel(err))
				return nil, err
			}
			s.metrics.RecordTransition(string(current.Kind), string(action), "ok")
			return updated, nil
		}

		updated, retry, err := s.applyMint(ctx, actor, current, action, rule, note)
		if retry {
			contended = true
			s.logger.Debug("retrying code-minting transition",
				zap.String("entity_id", id), zap.String("action", string(action)), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.metrics.RecordTransition(string(current.Kind), string(action), resultLabel(err))
			return nil, err
		}
		s.metrics.RecordTransition(string(current.Kind), string(action), "ok")
		return updated, nil
	}

	s.metrics.RecordTransition(string(models.KindLeave), string(action), "exhausted")
	return nil, appErrors.Clone(appErrors.ErrDependencyFailure, "request kept changing while issuing an access code")
}

func (s *LifecycleService) applySimple(ctx context.Context, actor models.Actor, current *models.Request, action Action, rule transitionRule, note string) (*models.Request, error) {
	now := s.clock.Now().UTC()
	updated, err := s.store.Update(ctx, current.ID, current.Version, func(r *models.Request) error {
		if _, err := resolveTransition(r, action); err != nil {
			return err
		}
		r.Status = rule.to
		r.UpdatedAt = now
		markReviewed(r, actor, now, note)
		return nil
	})
	if err != nil {
		return nil, mapUpdateError(err)
	}
	s.recordTransition(ctx, actor, current.Status, updated)
	return updated, nil
}

// applyMint reserves a code first and commits the transition second. The
// reservation is released if the commit does not land. retry is true when a
// concurrent writer got there first.
func (s *LifecycleService) applyMint(ctx context.Context, actor models.Actor, current *models.Request, action Action, rule transitionRule, note string) (*models.Request, bool, error) {
	if current.StartDate == nil || current.EndDate == nil {
		return nil, false, appErrors.Clone(appErrors.ErrInternal, "leave is missing its dates")
	}
	from, until := validityWindow(*current.StartDate, *current.EndDate, s.location)
	superseded := current.Code()

	code, err := s.issuer.Mint(ctx, current.ID, until, superseded)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now().UTC()
	updated, err := s.store.Update(ctx, current.ID, current.Version, func(r *models.Request) error {
		if _, err := resolveTransition(r, action); err != nil {
			return err
		}
		issued := now
		validFrom := from
		validUntil := until
		r.Status = rule.to
		r.UpdatedAt = now
		r.OTPCode = &code
		r.OTPValidFrom = &validFrom
		r.OTPValidUntil = &validUntil
		r.OTPIssuedAt = &issued
		r.OTPConsumedAt = nil
		markReviewed(r, actor, now, note)
		return nil
	})
	if err != nil {
		s.issuer.Release(context.WithoutCancel(ctx), code, current.ID)
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrDuplicateCode) {
			return nil, true, nil
		}
		return nil, false, mapUpdateError(err)
	}
	if superseded != "" {
		s.issuer.Release(ctx, superseded, current.ID)
	}
	s.recordTransition(ctx, actor, current.Status, updated)
	return updated, false, nil
}

// Get returns a request visible to actor. Students only see their own and
// security staff only see leaves; anything else reads as not found.
func (s *LifecycleService) Get(ctx context.Context, actor models.Actor, id string) (*models.Request, error) {
	if !actor.Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(req, actor) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	return s.expireIfOverdue(ctx, req, "read"), nil
}

// List returns the requests visible to actor, newest first.
func (s *LifecycleService) List(ctx context.Context, actor models.Actor, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error) {
	if !actor.Authenticated() {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	page, size := models.NormalizePage(query.Page, query.PageSize)
	filter := models.RequestFilter{Page: page, PageSize: size}

	if raw := strings.TrimSpace(query.Kind); raw != "" {
		kind := models.RequestKind(strings.ToUpper(raw))
		if !kind.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown kind "+raw)
		}
		filter.Kinds = []models.RequestKind{kind}
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := models.RequestStatus(strings.ToUpper(raw))
		if !validStatus(status) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown status "+raw)
		}
		filter.Status = &status
	}

	switch actor.Role {
	case models.RoleStudent:
		filter.RequesterID = actor.ID
	case models.RoleSecurity:
		if len(filter.Kinds) > 0 && filter.Kinds[0] != models.KindLeave {
			return []models.Request{}, &models.Pagination{Page: page, PageSize: size}, nil
		}
		filter.Kinds = []models.RequestKind{models.KindLeave}
	}

	rows, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	visible := rows[:0]
	for i := range rows {
		row := s.expireIfOverdue(ctx, &rows[i], "read")
		if filter.Status != nil && row.Status != *filter.Status {
			total--
			continue
		}
		visible = append(visible, *row)
	}
	return visible, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// OverdueLeaves returns ids of approved leaves whose window has closed.
func (s *LifecycleService) OverdueLeaves(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.store.ListOverdue(ctx, s.clock.Now(), limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue leaves")
	}
	return ids, nil
}

// ExpireOne moves a single overdue leave to EXPIRED. It is a no-op for
// anything that is not overdue any more.
func (s *LifecycleService) ExpireOne(ctx context.Context, id string) error {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if !req.Overdue(s.clock.Now()) {
		return nil
	}
	_, err = s.persistExpiry(ctx, req, "sweep")
	if errors.Is(err, repository.ErrVersionConflict) {
		// Changed underneath us; the next sweep sees the fresh state.
		return nil
	}
	return err
}

// expireIfOverdue returns req as the caller should see it. An overdue leave is
// persisted as EXPIRED; if that write fails it is still reported as EXPIRED.
func (s *LifecycleService) expireIfOverdue(ctx context.Context, req *models.Request, source string) *models.Request {
	if !req.Overdue(s.clock.Now()) {
		return req
	}
	updated, err := s.persistExpiry(ctx, req, source)
	if err == nil {
		return updated
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		if fresh, getErr := s.store.Get(ctx, req.ID); getErr == nil {
			if !fresh.Overdue(s.clock.Now()) {
				return fresh
			}
			req = fresh
		}
	} else {
		logger.WithContext(ctx, s.logger).Warn("failed to persist leave expiry", zap.String("entity_id", req.ID), zap.Error(err))
	}
	view := req.Clone()
	view.Status = models.StatusExpired
	return view
}

func (s *LifecycleService) persistExpiry(ctx context.Context, req *models.Request, source string) (*models.Request, error) {
	now := s.clock.Now()
	updated, err := s.store.Update(ctx, req.ID, req.Version, func(r *models.Request) error {
		if !r.Overdue(now) {
			return errNotOverdue
		}
		r.Status = models.StatusExpired
		r.UpdatedAt = now.UTC()
		return nil
	})
	if errors.Is(err, errNotOverdue) {
		return nil, repository.ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	s.issuer.Release(ctx, req.Code(), req.ID)
	s.metrics.RecordExpired(source)
	s.appendAudit(ctx, &models.AuditEntry{
		ActorRole:  models.SystemActor,
		EntityID:   &updated.ID,
		EntityKind: string(updated.Kind),
		Action:     models.AuditActionExpire,
		FromStatus: string(models.StatusApproved),
		ToStatus:   string(models.StatusExpired),
		CreatedAt:  now.UTC(),
	})
	return updated, nil
}

func (s *LifecycleService) triage(ctx context.Context, text string) models.Advisory {
	advCtx, cancel := context.WithTimeout(ctx, s.advisoryTimeout)
	defer cancel()

	advice, err := s.advisor.Analyze(advCtx, text)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case errors.Is(err, context.Canceled):
			outcome = "cancelled"
		}
		s.metrics.RecordAdvisory(outcome)
		logger.WithContext(ctx, s.logger).Warn("complaint triage unavailable, using defaults",
			zap.String("outcome", outcome), zap.Error(err))
		return models.DefaultAdvisory()
	}
	s.metrics.RecordAdvisory("ok")
	if advice.Category == "" {
		advice.Category = models.DefaultCategory
	}
	advice.Priority = models.ParsePriority(string(advice.Priority))
	return advice
}

func (s *LifecycleService) newRequest(actor models.Actor, kind models.RequestKind, now time.Time) *models.Request {
	return &models.Request{
		ID:            uuid.NewString(),
		Kind:          kind,
		RequesterID:   actor.ID,
		RequesterName: actor.FullName,
		Room:          actor.Room,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *LifecycleService) create(ctx context.Context, actor models.Actor, req *models.Request) (*models.Request, error) {
	if err := s.store.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store request")
	}
	s.appendAudit(ctx, &models.AuditEntry{
		ActorID:    &actor.ID,
		ActorRole:  string(actor.Role),
		EntityID:   &req.ID,
		EntityKind: string(req.Kind),
		Action:     models.AuditActionSubmit,
		ToStatus:   string(req.Status),
		CreatedAt:  req.CreatedAt,
	})
	return req, nil
}

func (s *LifecycleService) load(ctx context.Context, id string) (*models.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *LifecycleService) recordTransition(ctx context.Context, actor models.Actor, from models.RequestStatus, updated *models.Request) {
	s.appendAudit(ctx, &models.AuditEntry{
		ActorID:       &actor.ID,
		ActorRole:     string(actor.Role),
		EntityID:      &updated.ID,
		EntityKind:    string(updated.Kind),
		Action:        models.AuditActionTransition,
		FromStatus:    string(from),
		ToStatus:      string(updated.Status),
		Justification: updated.ReviewNote,
		CreatedAt:     updated.UpdatedAt,
	})
}

func (s *LifecycleService) appendAudit(ctx context.Context, entry *models.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to record audit entry",
			zap.String("action", entry.Action), zap.Error(err))
	}
}

func requireStudent(actor models.Actor) error {
	if !actor.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "only students can submit requests")
	}
	return nil
}

func visibleTo(req *models.Request, actor models.Actor) bool {
	switch actor.Role {
	case models.RoleStudent:
		return req.RequesterID == actor.ID
	case models.RoleSecurity:
		return req.Kind == models.KindLeave
	default:
		return actor.Role.IsStaff()
	}
}

func validStatus(s models.RequestStatus) bool {
	switch s {
	case models.StatusPending, models.StatusInProgress, models.StatusResolved, models.StatusRejected,
		models.StatusApproved, models.StatusConsumed, models.StatusExpired:
		return true
	}
	return false
}

func markReviewed(r *models.Request, actor models.Actor, now time.Time, note string) {
	reviewer := actor.ID
	at := now
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &at
	if note != "" {
		r.ReviewNote = note
	}
}

func mapUpdateError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Clone(appErrors.ErrConflict, "request was changed by someone else, reload and retry")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
}

func resultLabel(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
