package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/internal/service"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditEntry, *models.Pagination, error)
	Export(ctx context.Context, actor models.Actor, query dto.AuditQuery) (*service.ExportResult, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	audit auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audit auditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param entity_id query string false "Request ID"
// @Param actor_id query string false "Actor ID"
// @Param action query string false "SUBMIT, TRANSITION, EXPIRE, GATE_GRANT, GATE_OVERRIDE, LOGIN, LOGOUT"
// @Param from query string false "RFC 3339 lower bound"
// @Param to query string false "RFC 3339 upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	rows, page, err := h.audit.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, page, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export audit trail
// @Description Renders the filtered trail as CSV (default) or PDF. Administrators only.
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	result, err := h.audit.Export(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	c.Header("X-Export-Rows", strconv.Itoa(result.Rows))
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
