package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

type announcementService interface {
	List(ctx context.Context, actor models.Actor, page, pageSize int) ([]models.Announcement, *models.Pagination, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateAnnouncementRequest) (*models.Announcement, error)
}

// AnnouncementHandler serves the notice board.
type AnnouncementHandler struct {
	service announcementService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(svc announcementService) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc}
}

// List godoc
// @Summary List announcements
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	rows, page, err := h.service.List(c.Request.Context(), actorFromContext(c), queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, page, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Post announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateAnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req dto.CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid announcement payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}
