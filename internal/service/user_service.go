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

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, revokedAt time.Time) error
}

// UserService lets administrators manage resident and staff accounts.
type UserService struct {
	repo      userRepository
	audit     auditAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. audit may be nil.
func NewUserService(repo userRepository, audit auditAppender, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated accounts and pagination metadata.
func (s *UserService) List(ctx context.Context, actor models.Actor, query dto.ListUsersQuery) ([]models.User, *models.Pagination, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, nil, err
	}
	filter := models.UserFilter{Active: query.Active, Room: query.Room, Search: strings.TrimSpace(query.Search)}
	if query.Role != "" {
		role := models.UserRole(strings.ToUpper(query.Role))
		if !role.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown role filter")
		}
		filter.Role = &role
	}
	filter.Page, filter.PageSize = models.NormalizePage(query.Page, query.PageSize)

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an account by ID.
func (s *UserService) Get(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Create adds a new account. Students must be assigned a room.
func (s *UserService) Create(ctx context.Context, actor models.Actor, req dto.CreateUserRequest, ip string) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Room = strings.TrimSpace(req.Room)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         req.Role,
		IDNumber:     req.IDNumber,
		Active:       req.Active == nil || *req.Active,
		PasswordHash: passwordHash,
	}
	if req.Room != "" {
		room := req.Room
		user.Room = &room
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	s.record(ctx, actor, user, models.AuditActionUserCreate, "", string(user.Role), ip)
	return user, nil
}

// Update modifies profile attributes. Deactivating revokes live sessions.
func (s *UserService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateUserRequest, ip string) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ID == actor.ID && (req.Role != user.Role || (req.Active != nil && !*req.Active)) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "administrators cannot demote or deactivate themselves")
	}

	fromRole := string(user.Role)
	wasActive := user.Active
	user.FullName = req.FullName
	user.Role = req.Role
	if req.Room != nil {
		room := strings.TrimSpace(*req.Room)
		user.Room = &room
		if room == "" {
			user.Room = nil
		}
	}
	if req.IDNumber != nil {
		user.IDNumber = *req.IDNumber
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if user.Role == models.RoleStudent && user.Room == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "students must be assigned a room")
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.record(ctx, actor, user, models.AuditActionUserUpdate, fromRole, string(user.Role), ip)
	if wasActive && !user.Active {
		s.revokeSessions(ctx, user.ID)
	}
	return user, nil
}

// Deactivate disables an account and revokes its refresh sessions.
func (s *UserService) Deactivate(ctx context.Context, actor models.Actor, id, ip string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "administrators cannot deactivate themselves")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !user.Active {
		return nil
	}
	user.Active = false
	if err := s.repo.Update(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	s.record(ctx, actor, user, models.AuditActionUserDeactivate, "ACTIVE", "INACTIVE", ip)
	s.revokeSessions(ctx, user.ID)
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) revokeSessions(ctx context.Context, userID string) {
	if err := s.repo.RevokeUserRefreshTokens(context.WithoutCancel(ctx), userID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke sessions of deactivated user", zap.String("entity_id", userID), zap.Error(err))
	}
}

func (s *UserService) record(ctx context.Context, actor models.Actor, user *models.User, action, from, to, ip string) {
	if s.audit == nil {
		return
	}
	actorID := actor.ID
	entry := &models.AuditEntry{
		ActorID:    &actorID,
		ActorRole:  string(actor.Role),
		EntityID:   &user.ID,
		EntityKind: "USER",
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		IPAddress:  ip,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to record user audit entry", zap.String("action", action), zap.Error(err))
	}
}

func requireAdmin(actor models.Actor) error {
	if !actor.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators manage accounts")
	}
	return nil
}
