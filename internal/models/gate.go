package models

import "time"

// GateOutcome is the verdict of a gate check.
type GateOutcome string

const (
	GateGrant GateOutcome = "GRANT"
	GateDeny  GateOutcome = "DENY"
)

// DenyReason explains a DENY to security staff.
type DenyReason string

const (
	DenyNotFound    DenyReason = "NOT_FOUND"
	DenyAlreadyUsed DenyReason = "ALREADY_USED"
	DenyExpired     DenyReason = "EXPIRED"
	DenyNotYetValid DenyReason = "NOT_YET_VALID"
)

// OverrideJustification is the closed set of reasons for a manual exit.
type OverrideJustification string

const (
	JustificationMedicalEmergency  OverrideJustification = "Medical Emergency"
	JustificationDirectWardenCall  OverrideJustification = "Direct Warden Call"
	JustificationTechnicalFailure  OverrideJustification = "Device/Technical Failure"
	JustificationPreAuthorizedExit OverrideJustification = "Pre-Authorized Group Exit"
)

// Valid reports whether j is an accepted justification.
func (j OverrideJustification) Valid() bool {
	switch j {
	case JustificationMedicalEmergency, JustificationDirectWardenCall,
		JustificationTechnicalFailure, JustificationPreAuthorizedExit:
		return true
	}
	return false
}

// GateDecision is the full result of a verify or override call.
type GateDecision struct {
	Outcome     GateOutcome
	Reason      DenyReason
	Method      GateMethod
	LeaveID     string
	StudentName string
	Room        string
	ValidUntil  *time.Time
	DecidedAt   time.Time
	AuditID     string
}

// Granted reports whether the decision allows exit.
func (d GateDecision) Granted() bool { return d.Outcome == GateGrant }

// Advisory is the triage suggestion attached to a complaint.
type Advisory struct {
	Category string
	Priority Priority
	Note     string
}

// DefaultAdvisory is used when triage is unavailable.
func DefaultAdvisory() Advisory {
	return Advisory{Category: DefaultCategory, Priority: PriorityMedium}
}
