package dto

import (
	"time"

	"github.com/noah-isme/hostelx-api/internal/models"
)

// VerifyGateRequest carries the code typed at the gate.
type VerifyGateRequest struct {
	Code string `json:"code" binding:"required,max=32"`
}

// OverrideGateRequest records a manual exit.
type OverrideGateRequest struct {
	Justification string `json:"justification" binding:"required"`
	LeaveID       string `json:"leave_id" binding:"omitempty,uuid"`
}

// GateDecisionResponse is the API representation of a gate decision.
type GateDecisionResponse struct {
	Decision    models.GateOutcome `json:"decision"`
	Reason      models.DenyReason  `json:"reason,omitempty"`
	Method      models.GateMethod  `json:"method,omitempty"`
	LeaveID     string             `json:"leave_id,omitempty"`
	StudentName string             `json:"student_name,omitempty"`
	Room        string             `json:"room,omitempty"`
	ValidUntil  *time.Time         `json:"valid_until,omitempty"`
	DecidedAt   time.Time          `json:"decided_at"`
}

// NewGateDecisionResponse renders d for viewer. Anyone other than security
// staff only learns the verdict.
func NewGateDecisionResponse(d models.GateDecision, viewer models.Actor) GateDecisionResponse {
	resp := GateDecisionResponse{Decision: d.Outcome, DecidedAt: d.DecidedAt}
	if viewer.Role != models.RoleSecurity || !viewer.Authenticated() {
		return resp
	}
	resp.Reason = d.Reason
	resp.Method = d.Method
	resp.LeaveID = d.LeaveID
	resp.StudentName = d.StudentName
	resp.Room = d.Room
	resp.ValidUntil = d.ValidUntil
	return resp
}
