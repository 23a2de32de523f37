package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

type lifecycleService interface {
	SubmitComplaint(ctx context.Context, actor models.Actor, req dto.SubmitComplaintRequest) (*models.Request, error)
	SubmitLeave(ctx context.Context, actor models.Actor, req dto.SubmitLeaveRequest) (*models.Request, error)
	SubmitMedical(ctx context.Context, actor models.Actor, req dto.SubmitMedicalRequest) (*models.Request, error)
	Transition(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.Request, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Request, error)
	List(ctx context.Context, actor models.Actor, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error)
}

type gatePassService interface {
	Render(ctx context.Context, actor models.Actor, leaveID string) ([]byte, error)
}

type evidenceLinker interface {
	LinkFor(req *models.Request) string
}

// RequestHandler exposes complaint, leave and medical request endpoints.
type RequestHandler struct {
	lifecycle lifecycleService
	passes    gatePassService
	evidence  evidenceLinker
}

// NewRequestHandler constructs the handler. passes and evidence may be nil.
func NewRequestHandler(lifecycle lifecycleService, passes gatePassService, evidence evidenceLinker) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle, passes: passes, evidence: evidence}
}

// SubmitComplaint godoc
// @Summary Submit complaint
// @Description Students file a complaint. Category and priority are suggested by triage when available.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SubmitComplaintRequest true "Complaint"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /complaints [post]
func (h *RequestHandler) SubmitComplaint(c *gin.Context) {
	var req dto.SubmitComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid complaint payload"))
		return
	}
	actor := actorFromContext(c)
	created, err := h.lifecycle.SubmitComplaint(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.render(created, actor))
}

// SubmitLeave godoc
// @Summary Submit leave request
// @Description Students ask to leave the hostel between two calendar dates (YYYY-MM-DD)
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SubmitLeaveRequest true "Leave"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /leaves [post]
func (h *RequestHandler) SubmitLeave(c *gin.Context) {
	var req dto.SubmitLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid leave payload"))
		return
	}
	actor := actorFromContext(c)
	created, err := h.lifecycle.SubmitLeave(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.render(created, actor))
}

// SubmitMedical godoc
// @Summary Submit medical request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SubmitMedicalRequest true "Medical request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /medical-requests [post]
func (h *RequestHandler) SubmitMedical(c *gin.Context) {
	var req dto.SubmitMedicalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid medical request payload"))
		return
	}
	actor := actorFromContext(c)
	created, err := h.lifecycle.SubmitMedical(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.render(created, actor))
}

// Transition godoc
// @Summary Apply a staff action
// @Description Wardens and admins move a request through its lifecycle. Approving or reissuing a leave issues a new gate code.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest true "Action"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /requests/{id}/transitions [post]
func (h *RequestHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid transition payload"))
		return
	}
	actor := actorFromContext(c)
	updated, err := h.lifecycle.Transition(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.render(updated, actor), nil)
}

// Get godoc
// @Summary Get request
// @Description Students see their own requests; security staff see leaves only.
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	req, err := h.lifecycle.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.render(req, actor), nil)
}

// List godoc
// @Summary List requests
// @Description Lists requests visible to the caller, newest first
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param kind query string false "COMPLAINT, LEAVE or MEDICAL"
// @Param status query string false "Lifecycle status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	actor := actorFromContext(c)
	rows, page, err := h.lifecycle.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := dto.NewRequestResponses(rows, actor)
	for i := range out {
		out[i].EvidenceURL = h.evidenceURL(&rows[i], actor)
	}
	response.JSON(c, http.StatusOK, out, page, middleware.ExtractMeta(c))
}

// GatePass godoc
// @Summary Download gate pass
// @Description Printable PDF with the live gate code of the student's approved leave
// @Tags Requests
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Leave ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/{id}/pass.pdf [get]
func (h *RequestHandler) GatePass(c *gin.Context) {
	if h.passes == nil {
		c.Status(http.StatusNotImplemented)
		return
	}
	body, err := h.passes.Render(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=gate-pass-%s.pdf", c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (h *RequestHandler) render(req *models.Request, actor models.Actor) dto.RequestResponse {
	out := dto.NewRequestResponse(req, actor)
	out.EvidenceURL = h.evidenceURL(req, actor)
	return out
}

// evidenceURL signs a download link for viewers other than security staff.
func (h *RequestHandler) evidenceURL(req *models.Request, actor models.Actor) string {
	if h.evidence == nil || actor.Role == models.RoleSecurity {
		return ""
	}
	return h.evidence.LinkFor(req)
}
