package models

import "time"

// Audit actions recorded by the lifecycle and gate.
const (
	AuditActionLogin        = "LOGIN"
	AuditActionLogout       = "LOGOUT"
	AuditActionSubmit       = "SUBMIT"
	AuditActionTransition   = "TRANSITION"
	AuditActionExpire       = "EXPIRE"
	AuditActionGateGrant    = "GATE_GRANT"
	AuditActionGateOverride = "GATE_OVERRIDE"

	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDeactivate = "USER_DEACTIVATE"
)

// GateMethod records how an exit was granted.
type GateMethod string

const (
	GateMethodCode     GateMethod = "CODE"
	GateMethodOverride GateMethod = "OVERRIDE"
)

// AuditEntry is an append-only record of a state change or gate event.
type AuditEntry struct {
	ID            string      `db:"id" json:"id"`
	ActorID       *string     `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole     string      `db:"actor_role" json:"actor_role"`
	EntityID      *string     `db:"entity_id" json:"entity_id,omitempty"`
	EntityKind    string      `db:"entity_kind" json:"entity_kind,omitempty"`
	Action        string      `db:"action" json:"action"`
	FromStatus    string      `db:"from_status" json:"from_status,omitempty"`
	ToStatus      string      `db:"to_status" json:"to_status,omitempty"`
	Method        *GateMethod `db:"method" json:"method,omitempty"`
	Justification string      `db:"justification" json:"justification,omitempty"`
	IPAddress     string      `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit trail listings.
type AuditFilter struct {
	EntityID string
	ActorID  string
	Action   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// SystemActor is recorded for transitions performed by background work.
const SystemActor = "SYSTEM"
