package service

import (
	"context"

	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/export"
)

type gatePassRenderer interface {
	RenderGatePass(p export.GatePass) ([]byte, error)
}

// GatePassService renders the printable pass for an approved leave.
type GatePassService struct {
	lifecycle *LifecycleService
	renderer  gatePassRenderer
}

// NewGatePassService constructs the service.
func NewGatePassService(lifecycle *LifecycleService, renderer gatePassRenderer) *GatePassService {
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	return &GatePassService{lifecycle: lifecycle, renderer: renderer}
}

// Render returns the PDF pass for the student's own live leave.
func (s *GatePassService) Render(ctx context.Context, actor models.Actor, leaveID string) ([]byte, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	leave, err := s.lifecycle.Get(ctx, actor, leaveID)
	if err != nil {
		return nil, err
	}
	if leave.Kind != models.KindLeave {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave not found")
	}
	if !leave.LiveCode() || leave.OTPValidFrom == nil || leave.OTPValidUntil == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "leave has no usable access code")
	}
	loc := s.lifecycle.location
	pass := export.GatePass{
		LeaveID:     leave.ID,
		StudentName: leave.RequesterName,
		Room:        leave.Room,
		Reason:      leave.Reason,
		Code:        leave.Code(),
		ValidFrom:   leave.OTPValidFrom.In(loc),
		ValidUntil:  leave.OTPValidUntil.In(loc),
	}
	if leave.OTPIssuedAt != nil {
		pass.IssuedAt = leave.OTPIssuedAt.In(loc)
	}
	body, err := s.renderer.RenderGatePass(pass)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gate pass")
	}
	return body, nil
}
