package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

const announcementCachePrefix = "hostelx:announcements:"

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	Create(ctx context.Context, announcement *models.Announcement) error
}

type announcementCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type cachedAnnouncementPage struct {
	Items []models.Announcement `json:"items"`
	Total int                   `json:"total"`
}

// AnnouncementService handles the notice board.
type AnnouncementService struct {
	repo      announcementRepository
	cache     announcementCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service. cache may be nil.
func NewAnnouncementService(repo announcementRepository, cache announcementCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns announcements with pagination. Any authenticated role may read.
func (s *AnnouncementService) List(ctx context.Context, actor models.Actor, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	if !actor.Authenticated() {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	page, pageSize = models.NormalizePage(page, pageSize)
	key := fmt.Sprintf("%slist:%d:%d", announcementCachePrefix, page, pageSize)

	if s.cacheEnabled() {
		var cached cachedAnnouncementPage
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached.Items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: cached.Total}, nil
		}
	}

	rows, total, err := s.repo.List(ctx, models.AnnouncementFilter{Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	if s.cacheEnabled() {
		_ = s.cache.Set(ctx, key, cachedAnnouncementPage{Items: rows, Total: total}, s.cacheTTL)
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Create posts a new announcement. Only wardens and administrators may post.
func (s *AnnouncementService) Create(ctx context.Context, actor models.Actor, req dto.CreateAnnouncementRequest) (*models.Announcement, error) {
	if !actor.Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only wardens and administrators can post announcements")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if title == "" || content == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "title and content are required")
	}
	announcement := &models.Announcement{
		Title:      title,
		Content:    content,
		AuthorID:   actor.ID,
		AuthorName: actor.FullName,
		AuthorRole: actor.Role,
		Pinned:     req.Pinned,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	if s.cacheEnabled() {
		if err := s.cache.Invalidate(ctx, announcementCachePrefix+"*"); err != nil {
			s.logger.Warn("failed to invalidate announcement cache", zap.Error(err))
		}
	}
	return announcement, nil
}

func (s *AnnouncementService) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}
