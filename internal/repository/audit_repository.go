package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostelx-api/internal/models"
)

const auditColumns = `id, actor_id, actor_role, entity_id, entity_kind, action, from_status, to_status, method, justification, ip_address, created_at`

// AuditRepository appends and lists audit entries in PostgreSQL.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append stores an audit entry. Entries are never updated.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	prepareAuditEntry(entry)
	const query = `INSERT INTO audit_entries (` + auditColumns + `)
	VALUES (:id, :actor_id, :actor_role, :entity_id, :entity_kind, :action, :from_status, :to_status, :method, :justification, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first, with the total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	where := sq.And{}
	if filter.EntityID != "" {
		where = append(where, sq.Eq{"entity_id": filter.EntityID})
	}
	if filter.ActorID != "" {
		where = append(where, sq.Eq{"actor_id": filter.ActorID})
	}
	if filter.Action != "" {
		where = append(where, sq.Eq{"action": filter.Action})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"created_at": *filter.To})
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query, args, err := psql.Select(auditColumns).
		From("audit_entries").
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit list query: %w", err)
	}
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("audit_entries").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	return entries, total, nil
}

// MemoryAuditStore keeps audit entries in process memory.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

// NewMemoryAuditStore constructs an empty store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append stores an audit entry.
func (s *MemoryAuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareAuditEntry(entry)
	s.mu.Lock()
	s.entries = append(s.entries, *entry)
	s.mu.Unlock()
	return nil
}

// List returns entries matching filter, newest first.
func (s *MemoryAuditStore) List(_ context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	s.mu.RLock()
	matched := make([]models.AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.EntityID != "" && (e.EntityID == nil || *e.EntityID != filter.EntityID) {
			continue
		}
		if filter.ActorID != "" && (e.ActorID == nil || *e.ActorID != filter.ActorID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return []models.AuditEntry{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func prepareAuditEntry(entry *models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}
