package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentview/internal/models"
)

var allActions = []models.Action{
	models.ActionConfirm, models.ActionCancel, models.ActionComplete, models.ActionDelete,
}

func TestAllowedActions_MatchesTable(t *testing.T) {
	expected := map[models.Status]map[models.Role][]models.Action{
		models.StatusPending: {
			models.RoleOwner:     {models.ActionConfirm, models.ActionCancel},
			models.RoleRequester: {models.ActionCancel},
		},
		models.StatusConfirmed: {
			models.RoleOwner:     {models.ActionComplete, models.ActionCancel},
			models.RoleRequester: nil,
		},
		models.StatusCancelled: {
			models.RoleOwner:     {models.ActionDelete},
			models.RoleRequester: nil,
		},
		models.StatusCompleted: {
			models.RoleOwner:     {models.ActionDelete},
			models.RoleRequester: nil,
		},
	}

	for _, st := range models.AllStatuses {
		for _, role := range []models.Role{models.RoleOwner, models.RoleRequester} {
			got := AllowedActions(st, role)
			assert.ElementsMatch(t, expected[st][role], got, "%s/%s", st, role)

			for _, a := range allActions {
				want := false
				for _, e := range expected[st][role] {
					if e == a {
						want = true
					}
				}
				assert.Equal(t, want, Allowed(st, role, a), "%s/%s/%s", st, role, a)
			}
		}
	}
}

func TestAllowedActions_ReturnsCopy(t *testing.T) {
	got := AllowedActions(models.StatusPending, models.RoleOwner)
	got[0] = models.ActionDelete
	assert.Equal(t, models.ActionConfirm, AllowedActions(models.StatusPending, models.RoleOwner)[0])
}

func TestOfferedActionsAreLegalEdges(t *testing.T) {
	for _, st := range models.AllStatuses {
		for _, role := range []models.Role{models.RoleOwner, models.RoleRequester} {
			for _, a := range AllowedActions(st, role) {
				_, err := Next(st, a)
				assert.NoError(t, err, "%s/%s/%s", st, role, a)
			}
		}
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		from     models.Status
		action   models.Action
		expected models.Status
		ok       bool
	}{
		{models.StatusPending, models.ActionConfirm, models.StatusConfirmed, true},
		{models.StatusPending, models.ActionCancel, models.StatusCancelled, true},
		{models.StatusConfirmed, models.ActionComplete, models.StatusCompleted, true},
		{models.StatusConfirmed, models.ActionCancel, models.StatusCancelled, true},
		{models.StatusCancelled, models.ActionDelete, models.StatusCancelled, true},
		{models.StatusCompleted, models.ActionDelete, models.StatusCompleted, true},
		{models.StatusPending, models.ActionComplete, "", false},
		{models.StatusPending, models.ActionDelete, "", false},
		{models.StatusConfirmed, models.ActionConfirm, "", false},
		{models.StatusCancelled, models.ActionConfirm, "", false},
		{models.StatusCompleted, models.ActionCancel, "", false},
	}

	for _, tt := range tests {
		got, err := Next(tt.from, tt.action)
		if !tt.ok {
			require.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", tt.from, tt.action)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestTerminalStatusesOnlyDelete(t *testing.T) {
	for _, st := range []models.Status{models.StatusCancelled, models.StatusCompleted} {
		for _, a := range []models.Action{models.ActionConfirm, models.ActionCancel, models.ActionComplete} {
			_, err := Next(st, a)
			assert.ErrorIs(t, err, ErrIllegalTransition)
		}
	}
}

func TestRequiresReason(t *testing.T) {
	assert.True(t, RequiresReason(models.StatusConfirmed, models.RoleOwner, models.ActionCancel))
	assert.False(t, RequiresReason(models.StatusPending, models.RoleOwner, models.ActionCancel))
	assert.False(t, RequiresReason(models.StatusPending, models.RoleRequester, models.ActionCancel))
	assert.False(t, RequiresReason(models.StatusConfirmed, models.RoleOwner, models.ActionComplete))
}
