package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/hostelx-api/internal/models"
)

// MemoryRequestStore is an in-process request store with one lock per entity.
// The code index lock is only ever taken while holding at most one entity lock.
type MemoryRequestStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord

	indexMu sync.Mutex
	live    map[string]string
	byCode  map[string][]string
}

type memoryRecord struct {
	mu  sync.Mutex
	req *models.Request
}

// NewMemoryRequestStore constructs an empty store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		records: make(map[string]*memoryRecord),
		live:    make(map[string]string),
		byCode:  make(map[string][]string),
	}
}

// Create stores a new request at version 1.
func (s *MemoryRequestStore) Create(_ context.Context, req *models.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	req.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[req.ID]; exists {
		return ErrVersionConflict
	}
	s.records[req.ID] = &memoryRecord{req: req.Clone()}
	return nil
}

// Get returns a copy of the stored request.
func (s *MemoryRequestStore) Get(_ context.Context, id string) (*models.Request, error) {
	rec := s.record(id)
	if rec == nil {
		return nil, sql.ErrNoRows
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.req.Clone(), nil
}

// Update applies mutate under the entity lock when the version matches.
func (s *MemoryRequestStore) Update(ctx context.Context, id string, expectedVersion int64, mutate func(*models.Request) error) (*models.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := s.record(id)
	if rec == nil {
		return nil, sql.ErrNoRows
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.req.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	next := rec.req.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = rec.req.ID
	next.Kind = rec.req.Kind
	next.RequesterID = rec.req.RequesterID
	next.Room = rec.req.Room
	next.CreatedAt = rec.req.CreatedAt
	next.Version = expectedVersion + 1

	if err := s.reindex(rec.req, next); err != nil {
		return nil, err
	}
	rec.req = next
	return next.Clone(), nil
}

func (s *MemoryRequestStore) reindex(prev, next *models.Request) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	var oldLive, newLive string
	if prev.LiveCode() {
		oldLive = prev.Code()
	}
	if next.LiveCode() {
		newLive = next.Code()
	}
	if newLive != "" && newLive != oldLive {
		if holder, taken := s.live[newLive]; taken && holder != next.ID {
			return ErrDuplicateCode
		}
	}
	if oldLive != "" && oldLive != newLive && s.live[oldLive] == prev.ID {
		delete(s.live, oldLive)
	}
	if newLive != "" {
		s.live[newLive] = next.ID
	}
	if code := next.Code(); code != "" && code != prev.Code() {
		s.byCode[code] = append(s.byCode[code], next.ID)
	}
	return nil
}

// FindByCode returns the live holder of code, or the most recent historical one.
func (s *MemoryRequestStore) FindByCode(_ context.Context, code string) (*models.Request, error) {
	s.indexMu.Lock()
	ids := append([]string(nil), s.byCode[code]...)
	s.indexMu.Unlock()

	var best *models.Request
	for i := len(ids) - 1; i >= 0; i-- {
		rec := s.record(ids[i])
		if rec == nil {
			continue
		}
		rec.mu.Lock()
		snapshot := rec.req.Clone()
		rec.mu.Unlock()
		if snapshot.Code() != code {
			continue
		}
		if snapshot.LiveCode() {
			return snapshot, nil
		}
		if best == nil {
			best = snapshot
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return best, nil
}

// List returns matching requests, newest first, with the total count.
func (s *MemoryRequestStore) List(_ context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	kinds := make(map[models.RequestKind]struct{}, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds[k] = struct{}{}
	}

	matched := make([]models.Request, 0)
	for _, req := range s.snapshot() {
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		if len(kinds) > 0 {
			if _, ok := kinds[req.Kind]; !ok {
				continue
			}
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		matched = append(matched, *req)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return []models.Request{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListOverdue returns ids of approved leaves whose window closed before now.
func (s *MemoryRequestStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	ids := make([]string, 0)
	for _, req := range s.snapshot() {
		if req.Overdue(now) {
			ids = append(ids, req.ID)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *MemoryRequestStore) record(id string) *memoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

func (s *MemoryRequestStore) snapshot() []*models.Request {
	s.mu.RLock()
	recs := make([]*memoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]*models.Request, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.req.Clone())
		rec.mu.Unlock()
	}
	return out
}
