package models

import (
	"strings"
	"time"
)

// RequestKind discriminates the request variants sharing one record.
type RequestKind string

const (
	KindComplaint RequestKind = "COMPLAINT"
	KindLeave     RequestKind = "LEAVE"
	KindMedical   RequestKind = "MEDICAL"
)

// Valid reports whether k is a known kind.
func (k RequestKind) Valid() bool {
	switch k {
	case KindComplaint, KindLeave, KindMedical:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusResolved   RequestStatus = "RESOLVED"
	StatusRejected   RequestStatus = "REJECTED"
	StatusApproved   RequestStatus = "APPROVED"
	StatusConsumed   RequestStatus = "CONSUMED"
	StatusExpired    RequestStatus = "EXPIRED"
)

// Terminal reports whether no further transition can leave s.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusResolved, StatusRejected, StatusConsumed, StatusExpired:
		return true
	}
	return false
}

// Priority ranks complaint urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority normalises free text into a Priority, defaulting to MEDIUM.
func ParsePriority(raw string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(raw))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// DefaultCategory is applied when complaint triage is unavailable.
const DefaultCategory = "General"

// Request is the persisted record for complaints, leave and medical requests.
// Fields that do not apply to a kind are left at their zero value.
type Request struct {
	ID            string        `db:"id" json:"id"`
	Kind          RequestKind   `db:"kind" json:"kind"`
	RequesterID   string        `db:"requester_id" json:"requester_id"`
	RequesterName string        `db:"requester_name" json:"requester_name"`
	Room          string        `db:"room" json:"room"`
	Status        RequestStatus `db:"status" json:"status"`
	Version       int64         `db:"version" json:"version"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`

	Title        string   `db:"title" json:"title,omitempty"`
	Description  string   `db:"description" json:"description,omitempty"`
	Category     string   `db:"category" json:"category,omitempty"`
	Priority     Priority `db:"priority" json:"priority,omitempty"`
	EvidenceRef  string   `db:"evidence_ref" json:"evidence_ref,omitempty"`
	AdvisoryNote string   `db:"advisory_note" json:"advisory_note,omitempty"`

	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Reason    string     `db:"reason" json:"reason,omitempty"`

	MedicineName string `db:"medicine_name" json:"medicine_name,omitempty"`

	OTPCode       *string    `db:"otp_code" json:"-"`
	OTPValidFrom  *time.Time `db:"otp_valid_from" json:"-"`
	OTPValidUntil *time.Time `db:"otp_valid_until" json:"-"`
	OTPIssuedAt   *time.Time `db:"otp_issued_at" json:"-"`
	OTPConsumedAt *time.Time `db:"otp_consumed_at" json:"-"`

	ReviewedBy *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote string     `db:"review_note" json:"review_note,omitempty"`
}

// Clone returns a deep copy safe to mutate independently of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.StartDate = cloneTime(r.StartDate)
	c.EndDate = cloneTime(r.EndDate)
	c.OTPValidFrom = cloneTime(r.OTPValidFrom)
	c.OTPValidUntil = cloneTime(r.OTPValidUntil)
	c.OTPIssuedAt = cloneTime(r.OTPIssuedAt)
	c.OTPConsumedAt = cloneTime(r.OTPConsumedAt)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	if r.OTPCode != nil {
		code := *r.OTPCode
		c.OTPCode = &code
	}
	if r.ReviewedBy != nil {
		by := *r.ReviewedBy
		c.ReviewedBy = &by
	}
	return &c
}

// LiveCode reports whether the leave holds an unconsumed code that the gate
// may still accept.
func (r *Request) LiveCode() bool {
	return r.Kind == KindLeave &&
		r.Status == StatusApproved &&
		r.OTPCode != nil &&
		r.OTPConsumedAt == nil
}

// Code returns the current code or an empty string.
func (r *Request) Code() string {
	if r.OTPCode == nil {
		return ""
	}
	return *r.OTPCode
}

// Overdue reports whether an approved leave has passed its validity window at now.
func (r *Request) Overdue(now time.Time) bool {
	return r.LiveCode() && r.OTPValidUntil != nil && now.After(*r.OTPValidUntil)
}

// RequestFilter narrows list queries. RequesterID and Kinds are populated by
// visibility scoping and cannot be widened by callers.
type RequestFilter struct {
	RequesterID string
	Kinds       []RequestKind
	Status      *RequestStatus
	Page        int
	PageSize    int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
