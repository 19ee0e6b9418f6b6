// Package lifecycle defines which role may move an appointment along which edge.
package lifecycle

import (
	"errors"
	"fmt"

	"rentview/internal/models"
)

var ErrIllegalTransition = errors.New("illegal appointment transition")

// permissions lists offered actions per status and role. Absent entries mean no action.
var permissions = map[models.Status]map[models.Role][]models.Action{
	models.StatusPending: {
		models.RoleOwner:     {models.ActionConfirm, models.ActionCancel},
		models.RoleRequester: {models.ActionCancel},
	},
	models.StatusConfirmed: {
		models.RoleOwner: {models.ActionComplete, models.ActionCancel},
	},
	models.StatusCancelled: {
		models.RoleOwner: {models.ActionDelete},
	},
	models.StatusCompleted: {
		models.RoleOwner: {models.ActionDelete},
	},
}

// edges maps a status and action to the resulting status. Delete has no
// resulting status: the appointment stops being listed.
var edges = map[models.Status]map[models.Action]models.Status{
	models.StatusPending: {
		models.ActionConfirm: models.StatusConfirmed,
		models.ActionCancel:  models.StatusCancelled,
	},
	models.StatusConfirmed: {
		models.ActionComplete: models.StatusCompleted,
		models.ActionCancel:   models.StatusCancelled,
	},
}

// AllowedActions returns the actions role may take on an appointment in status.
// The returned slice is a copy.
func AllowedActions(status models.Status, role models.Role) []models.Action {
	actions := permissions[status][role]
	if len(actions) == 0 {
		return nil
	}
	return append([]models.Action(nil), actions...)
}

// Allowed reports whether role may take action on an appointment in status.
func Allowed(status models.Status, role models.Role, action models.Action) bool {
	for _, a := range permissions[status][role] {
		if a == action {
			return true
		}
	}
	return false
}

// Next returns the status reached by applying action. Delete is only valid on
// terminal statuses and returns the unchanged status.
func Next(status models.Status, action models.Action) (models.Status, error) {
	if action == models.ActionDelete {
		if status.IsTerminal() {
			return status, nil
		}
		return "", fmt.Errorf("%w: delete from %s", ErrIllegalTransition, status)
	}
	next, ok := edges[status][action]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, action, status)
	}
	return next, nil
}

// RequiresReason reports whether the action needs a free-text reason.
// Cancelling an already confirmed viewing must tell the requester why.
func RequiresReason(status models.Status, role models.Role, action models.Action) bool {
	return action == models.ActionCancel && role == models.RoleOwner && status == models.StatusConfirmed
}
