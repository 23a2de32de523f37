package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostelx-api/internal/models"
)

const requestColumns = `id, kind, requester_id, requester_name, room, status, version, created_at, updated_at,
       title, description, category, priority, evidence_ref, advisory_note,
       start_date, end_date, reason, medicine_name,
       otp_code, otp_valid_from, otp_valid_until, otp_issued_at, otp_consumed_at,
       reviewed_by, reviewed_at, review_note`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RequestRepository persists requests in PostgreSQL with optimistic versioning.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request at version 1.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
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

	const query = `INSERT INTO requests
	(id, kind, requester_id, requester_name, room, status, version, created_at, updated_at,
	 title, description, category, priority, evidence_ref, advisory_note,
	 start_date, end_date, reason, medicine_name,
	 otp_code, otp_valid_from, otp_valid_until, otp_issued_at, otp_consumed_at,
	 reviewed_by, reviewed_at, review_note)
	VALUES (:id, :kind, :requester_id, :requester_name, :room, :status, :version, :created_at, :updated_at,
	 :title, :description, :category, :priority, :evidence_ref, :advisory_note,
	 :start_date, :end_date, :reason, :medicine_name,
	 :otp_code, :otp_valid_from, :otp_valid_until, :otp_issued_at, :otp_consumed_at,
	 :reviewed_by, :reviewed_at, :review_note)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// Get fetches a request by identifier. Missing rows surface as sql.ErrNoRows.
func (r *RequestRepository) Get(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

type requestUpdate struct {
	*models.Request
	ExpectedVersion int64 `db:"expected_version"`
}

// Update applies mutate to a copy of the stored request and writes it back
// only if the stored version still equals expectedVersion.
func (r *RequestRepository) Update(ctx context.Context, id string, expectedVersion int64, mutate func(*models.Request) error) (*models.Request, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Kind = current.Kind
	next.RequesterID = current.RequesterID
	next.Room = current.Room
	next.CreatedAt = current.CreatedAt
	next.Version = expectedVersion + 1

	const query = `UPDATE requests SET
	status = :status, version = :version, updated_at = :updated_at,
	category = :category, priority = :priority, evidence_ref = :evidence_ref, advisory_note = :advisory_note,
	otp_code = :otp_code, otp_valid_from = :otp_valid_from, otp_valid_until = :otp_valid_until,
	otp_issued_at = :otp_issued_at, otp_consumed_at = :otp_consumed_at,
	reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, review_note = :review_note
	WHERE id = :id AND version = :expected_version`
	result, err := r.db.NamedExecContext(ctx, query, requestUpdate{Request: next, ExpectedVersion: expectedVersion})
	if err != nil {
		if isLiveCodeViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("update request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return nil, ErrVersionConflict
	}
	return next, nil
}

// FindByCode returns the leave carrying code, preferring the live holder over
// historical ones that were consumed with the same digits.
func (r *RequestRepository) FindByCode(ctx context.Context, code string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
	WHERE kind = 'LEAVE' AND otp_code = $1
	ORDER BY (status = 'APPROVED' AND otp_consumed_at IS NULL) DESC, otp_issued_at DESC
	LIMIT 1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find request by code: %w", err)
	}
	return &req, nil
}

// List returns requests matching filter, newest first, with the total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	where := sq.And{}
	if filter.RequesterID != "" {
		where = append(where, sq.Eq{"requester_id": filter.RequesterID})
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, sq.Eq{"kind": kinds})
	}
	if filter.Status != nil {
		where = append(where, sq.Eq{"status": string(*filter.Status)})
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery, args, err := psql.Select(requestColumns).
		From("requests").
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build request list query: %w", err)
	}

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("requests").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build request count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// ListOverdue returns ids of approved leaves whose window closed before now.
func (r *RequestRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	query, args, err := psql.Select("id").
		From("requests").
		Where(sq.Eq{"kind": string(models.KindLeave), "status": string(models.StatusApproved), "otp_consumed_at": nil}).
		Where(sq.Lt{"otp_valid_until": now}).
		OrderBy("otp_valid_until").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list overdue leaves: %w", err)
	}
	return ids, nil
}
