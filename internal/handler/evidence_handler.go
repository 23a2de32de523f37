package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

type evidenceService interface {
	Upload(ctx context.Context, actor models.Actor, r io.Reader) (*dto.EvidenceUploadResponse, error)
	Open(ctx context.Context, actor models.Actor, token string) (*os.File, string, error)
}

// EvidenceHandler accepts complaint attachments and serves signed downloads.
type EvidenceHandler struct {
	service evidenceService
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(svc evidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Upload godoc
// @Summary Upload complaint evidence
// @Description Stores an image or PDF and returns a reference to attach to a complaint
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /complaints/evidence [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	res, err := h.service.Upload(c.Request.Context(), actorFromContext(c), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download complaint evidence
// @Tags Requests
// @Produce octet-stream
// @Security BearerAuth
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	file, contentType, err := h.service.Open(c.Request.Context(), actorFromContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read evidence"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
