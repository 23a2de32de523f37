package service

import (
	"strings"

	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

// Action names a staff-triggered lifecycle transition.
type Action string

const (
	ActionSetInProgress Action = "setInProgress"
	ActionSetPending    Action = "setPending"
	ActionResolve       Action = "resolve"
	ActionReject        Action = "reject"
	ActionApprove       Action = "approve"
	ActionReissue       Action = "reissue"
)

var knownActions = map[string]Action{
	strings.ToLower(string(ActionSetInProgress)): ActionSetInProgress,
	strings.ToLower(string(ActionSetPending)):    ActionSetPending,
	strings.ToLower(string(ActionResolve)):       ActionResolve,
	strings.ToLower(string(ActionReject)):        ActionReject,
	strings.ToLower(string(ActionApprove)):       ActionApprove,
	strings.ToLower(string(ActionReissue)):       ActionReissue,
}

// ParseAction resolves raw case-insensitively.
func ParseAction(raw string) (Action, bool) {
	a, ok := knownActions[strings.ToLower(strings.TrimSpace(raw))]
	return a, ok
}

type transitionRule struct {
	from      []models.RequestStatus
	to        models.RequestStatus
	mintsCode bool
}

var staffRoles = []models.UserRole{models.RoleWarden, models.RoleAdmin}

var transitionTable = map[models.RequestKind]map[Action]transitionRule{
	models.KindComplaint: {
		ActionSetInProgress: {from: []models.RequestStatus{models.StatusPending}, to: models.StatusInProgress},
		ActionSetPending:    {from: []models.RequestStatus{models.StatusInProgress}, to: models.StatusPending},
		ActionResolve:       {from: []models.RequestStatus{models.StatusPending, models.StatusInProgress}, to: models.StatusResolved},
		ActionReject:        {from: []models.RequestStatus{models.StatusPending, models.StatusInProgress}, to: models.StatusRejected},
	},
	models.KindMedical: {
		ActionResolve: {from: []models.RequestStatus{models.StatusPending}, to: models.StatusResolved},
		ActionReject:  {from: []models.RequestStatus{models.StatusPending}, to: models.StatusRejected},
	},
	models.KindLeave: {
		ActionApprove: {from: []models.RequestStatus{models.StatusPending}, to: models.StatusApproved, mintsCode: true},
		ActionReject:  {from: []models.RequestStatus{models.StatusPending}, to: models.StatusRejected},
		ActionReissue: {from: []models.RequestStatus{models.StatusApproved}, to: models.StatusApproved, mintsCode: true},
	},
}

// allowedRole reports whether role may invoke any staff transition.
func allowedRole(role models.UserRole) bool {
	for _, r := range staffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// resolveTransition returns the rule for applying action to req in its
// current state, or INVALID_TRANSITION.
func resolveTransition(req *models.Request, action Action) (transitionRule, error) {
	rule, ok := transitionTable[req.Kind][action]
	if !ok {
		return transitionRule{}, appErrors.Clone(appErrors.ErrInvalidTransition,
			"action "+string(action)+" does not apply to "+strings.ToLower(string(req.Kind))+" requests")
	}
	if !rule.permits(req) {
		return transitionRule{}, appErrors.Clone(appErrors.ErrInvalidTransition,
			"cannot "+string(action)+" a request in status "+string(req.Status))
	}
	return rule, nil
}

func (r transitionRule) permits(req *models.Request) bool {
	for _, s := range r.from {
		if s == req.Status {
			if s == models.StatusApproved {
				return req.LiveCode()
			}
			return true
		}
	}
	return false
}
