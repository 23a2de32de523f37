package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

type gateService interface {
	Verify(ctx context.Context, actor models.Actor, raw string) (models.GateDecision, error)
	Override(ctx context.Context, actor models.Actor, justification, leaveID string) (models.GateDecision, error)
}

// GateHandler serves the security desk.
type GateHandler struct {
	gate gateService
}

// NewGateHandler constructs the handler.
func NewGateHandler(gate gateService) *GateHandler {
	return &GateHandler{gate: gate}
}

// Verify godoc
// @Summary Verify gate code
// @Description Checks a six digit code and consumes it on GRANT. Callers that are not authenticated security staff only learn GRANT or DENY.
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.VerifyGateRequest true "Code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /gate/verify [post]
func (h *GateHandler) Verify(c *gin.Context) {
	var req dto.VerifyGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "code is required"))
		return
	}
	actor := actorFromContext(c)
	decision, err := h.gate.Verify(c.Request.Context(), actor, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewGateDecisionResponse(decision, actor), nil)
}

// Override godoc
// @Summary Manual gate override
// @Description Security staff grant an exit without a code. One of the predefined justifications is required and the override is always audited.
// @Tags Gate
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.OverrideGateRequest true "Override"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /gate/override [post]
func (h *GateHandler) Override(c *gin.Context) {
	var req dto.OverrideGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid override payload"))
		return
	}
	actor := actorFromContext(c)
	decision, err := h.gate.Override(c.Request.Context(), actor, req.Justification, req.LeaveID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewGateDecisionResponse(decision, actor), nil, map[string]interface{}{"audit_id": decision.AuditID})
}
