package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/export"
)

const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"

	maxExportRows = 5000
)

type auditReader interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered audit report.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

var auditHeaders = []string{"Time", "Action", "Actor Role", "Actor ID", "Entity Kind", "Entity ID", "From", "To", "Method", "Justification", "IP"}

// AuditService lists and exports the audit trail.
type AuditService struct {
	audit  auditReader
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewAuditService constructs an AuditService. Nil renderers fall back to the
// defaults from pkg/export.
func NewAuditService(audit auditReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &AuditService{audit: audit, csv: csv, pdf: pdf, logger: logger}
}

// List returns audit entries. Wardens and administrators may read the trail.
func (s *AuditService) List(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditEntry, *models.Pagination, error) {
	if err := requireStaff(actor); err != nil {
		return nil, nil, err
	}
	filter, err := auditFilter(query)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = models.NormalizePage(query.Page, query.PageSize)
	rows, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders the filtered trail as CSV or PDF. Administrators only.
func (s *AuditService) Export(ctx context.Context, actor models.Actor, query dto.AuditQuery) (*ExportResult, error) {
	if !actor.Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can export the audit trail")
	}
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "format must be csv or pdf")
	}
	filter, err := auditFilter(query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: auditHeaders}
	for page := 1; len(dataset.Rows) < maxExportRows; page++ {
		filter.Page, filter.PageSize = page, 100
		rows, total, err := s.audit.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit entries")
		}
		for _, e := range rows {
			dataset.Rows = append(dataset.Rows, auditRow(e))
		}
		if len(rows) == 0 || page*filter.PageSize >= total {
			break
		}
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	result := &ExportResult{Rows: len(dataset.Rows)}
	switch format {
	case ExportFormatPDF:
		result.Body, err = s.pdf.Render(dataset, "Audit trail")
		result.ContentType = "application/pdf"
	default:
		result.Body, err = s.csv.Render(dataset)
		result.ContentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	result.Filename = fmt.Sprintf("audit-%s.%s", stamp, format)
	s.logger.Info("audit trail exported", zap.String("actor_id", actor.ID), zap.String("format", format), zap.Int("rows", result.Rows))
	return result, nil
}

func auditFilter(query dto.AuditQuery) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		EntityID: strings.TrimSpace(query.EntityID),
		ActorID:  strings.TrimSpace(query.ActorID),
		Action:   strings.ToUpper(strings.TrimSpace(query.Action)),
	}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "from must be RFC3339")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "to must be RFC3339")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrInvalidRequest, "from must be before to")
	}
	return filter, nil
}

func auditRow(e models.AuditEntry) map[string]string {
	row := map[string]string{
		"Time":          e.CreatedAt.UTC().Format(time.RFC3339),
		"Action":        e.Action,
		"Actor Role":    e.ActorRole,
		"Entity Kind":   e.EntityKind,
		"From":          e.FromStatus,
		"To":            e.ToStatus,
		"Justification": e.Justification,
		"IP":            e.IPAddress,
	}
	if e.ActorID != nil {
		row["Actor ID"] = *e.ActorID
	}
	if e.EntityID != nil {
		row["Entity ID"] = *e.EntityID
	}
	if e.Method != nil {
		row["Method"] = string(*e.Method)
	}
	return row
}

func requireStaff(actor models.Actor) error {
	if !actor.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !actor.Role.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "staff access required")
	}
	return nil
}
