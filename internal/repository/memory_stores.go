package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/hostelx-api/internal/models"
)

// MemoryUserStore keeps accounts and refresh sessions in process memory.
type MemoryUserStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	byEmail  map[string]string
	sessions map[string]models.RefreshToken
}

// NewMemoryUserStore constructs an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:    make(map[string]models.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]models.RefreshToken),
	}
}

// Create stores user unless the email is already registered.
func (s *MemoryUserStore) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return nil
	}
	s.users[user.ID] = *user
	s.byEmail[email] = user.ID
	return nil
}

// FindByEmail returns a user by email address.
func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	user := s.users[id]
	return &user, nil
}

// FindByID returns a user by identifier.
func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// UpdateLastLogin records the login time.
func (s *MemoryUserStore) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.LastLogin = &ts
		user.UpdatedAt = ts
		s.users[id] = user
	}
	return nil
}

// List filters and pages accounts, newest first.
func (s *MemoryUserStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.mu.RLock()
	matched := make([]models.User, 0, len(s.users))
	search := strings.ToLower(filter.Search)
	for _, user := range s.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		if filter.Room != "" && (user.Room == nil || *user.Room != filter.Room) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.Email+" "+user.FullName+" "+user.IDNumber), search) {
			continue
		}
		matched = append(matched, user)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= len(matched) {
		return []models.User{}, len(matched), nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

// Update replaces the mutable profile fields of user.
func (s *MemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.FullName = user.FullName
	current.Role = user.Role
	current.Room = user.Room
	current.IDNumber = user.IDNumber
	current.Active = user.Active
	current.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = current
	user.UpdatedAt = current.UpdatedAt
	return nil
}

// CreateRefreshToken persists a refresh session.
func (s *MemoryUserStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.sessions[token.ID] = *token
	s.mu.Unlock()
	return nil
}

// FindRefreshToken returns a session by token value.
func (s *MemoryUserStore) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rt := range s.sessions {
		if rt.Token == token {
			found := rt
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

// RevokeRefreshToken marks a session revoked.
func (s *MemoryUserStore) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.sessions[id]; ok {
		rt.Revoked = true
		rt.RevokedAt = &revokedAt
		s.sessions[id] = rt
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live session of a user.
func (s *MemoryUserStore) RevokeUserRefreshTokens(_ context.Context, userID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rt := range s.sessions {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
			s.sessions[id] = rt
		}
	}
	return nil
}

// MemoryAnnouncementStore keeps announcements in process memory.
type MemoryAnnouncementStore struct {
	mu    sync.RWMutex
	items []models.Announcement
}

// NewMemoryAnnouncementStore constructs an empty store.
func NewMemoryAnnouncementStore() *MemoryAnnouncementStore {
	return &MemoryAnnouncementStore{}
}

// Create stores an announcement.
func (s *MemoryAnnouncementStore) Create(_ context.Context, a *models.Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.items = append(s.items, *a)
	s.mu.Unlock()
	return nil
}

// List returns announcements with pinned notices first.
func (s *MemoryAnnouncementStore) List(_ context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	s.mu.RLock()
	items := append([]models.Announcement(nil), s.items...)
	s.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Pinned != items[j].Pinned {
			return items[i].Pinned
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	total := len(items)
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return []models.Announcement{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}
