package dto

import (
	"time"

	"github.com/noah-isme/hostelx-api/internal/models"
)

// SubmitComplaintRequest is the payload for a new complaint.
type SubmitComplaintRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=4000"`
	EvidenceRef string `json:"evidence_ref" validate:"omitempty,max=255"`
}

// SubmitLeaveRequest is the payload for a new leave request. Dates are
// calendar days in the gate timezone.
type SubmitLeaveRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// SubmitMedicalRequest is the payload for a new medical request.
type SubmitMedicalRequest struct {
	MedicineName string `json:"medicine_name" validate:"required,max=120"`
	Reason       string `json:"reason" validate:"required,max=500"`
}

// TransitionRequest names the lifecycle action to apply.
type TransitionRequest struct {
	Action string `json:"action" validate:"required,max=32"`
	Note   string `json:"note" validate:"max=500"`
}

// ListRequestsQuery mirrors supported listing filters.
type ListRequestsQuery struct {
	Kind     string `form:"kind"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// AccessCodeView exposes a live gate code to the people allowed to see it.
type AccessCodeView struct {
	Code       string    `json:"code"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	IssuedAt   time.Time `json:"issued_at"`
}

// RequestResponse is the API representation of a request.
type RequestResponse struct {
	models.Request
	OTP         *AccessCodeView `json:"otp,omitempty"`
	EvidenceURL string          `json:"evidence_url,omitempty"`
}

// NewRequestResponse renders r for viewer. The code is only included while it
// is live, and never for security staff.
func NewRequestResponse(r *models.Request, viewer models.Actor) RequestResponse {
	resp := RequestResponse{Request: *r}
	if !r.LiveCode() || viewer.Role == models.RoleSecurity {
		return resp
	}
	if viewer.Role == models.RoleStudent && viewer.ID != r.RequesterID {
		return resp
	}
	view := &AccessCodeView{Code: r.Code()}
	if r.OTPValidFrom != nil {
		view.ValidFrom = *r.OTPValidFrom
	}
	if r.OTPValidUntil != nil {
		view.ValidUntil = *r.OTPValidUntil
	}
	if r.OTPIssuedAt != nil {
		view.IssuedAt = *r.OTPIssuedAt
	}
	resp.OTP = view
	return resp
}

// NewRequestResponses renders a page of requests for viewer.
func NewRequestResponses(list []models.Request, viewer models.Actor) []RequestResponse {
	out := make([]RequestResponse, len(list))
	for i := range list {
		out[i] = NewRequestResponse(&list[i], viewer)
	}
	return out
}
