// Package registry keeps the role-scoped list of appointments a viewer sees,
// together with the actions that viewer may take on each row.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rentview/internal/appointments"
	"rentview/internal/lifecycle"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

// Row is one listed appointment as the viewing role may see it.
type Row struct {
	models.Appointment
	Actions []models.Action `json:"actions"`
	Busy    bool            `json:"busy"`
}

// Can reports whether action is offered on the row.
func (r Row) Can(action models.Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Registry lists appointments for one viewer in one role.
// The service is the only source of truth: rows are replaced wholesale on every refresh.
type Registry struct {
	svc    appointments.Lister
	viewer string
	role   models.Role
	filter appointments.Filter
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.RWMutex
	rows      []Row
	fetchedAt time.Time
	loaded    bool
}

// New creates a registry. Nothing is fetched until Refresh.
func New(svc appointments.Lister, viewer string, role models.Role, filter appointments.Filter, logger zerolog.Logger) *Registry {
	return &Registry{
		svc:    svc,
		viewer: viewer,
		role:   role,
		filter: filter,
		now:    time.Now,
		logger: logger.With().
			Str("component", "registry").
			Str("role", string(role)).
			Str("viewer", viewer).
			Logger(),
	}
}

func (r *Registry) Viewer() string    { return r.viewer }
func (r *Registry) Role() models.Role { return r.role }

// Refresh re-fetches the full list. On failure the previous rows stay in place.
func (r *Registry) Refresh(ctx context.Context) error {
	list, err := r.fetch(ctx)
	if err != nil {
		metrics.IncRegistryRefresh(string(r.role), "failed")
		r.logger.Warn().Err(err).Msg("refresh failed")
		return fmt.Errorf("refresh %s appointments: %w", r.role, err)
	}

	rows := make([]Row, 0, len(list))
	for _, a := range list {
		status, err := models.NormalizeStatus(string(a.Status))
		if err != nil {
			r.logger.Warn().Str("appointment_id", a.ID).Str("status", string(a.Status)).Msg("skipping row with unknown status")
			continue
		}
		a.Status = status
		if !r.owns(a) || !r.filter.Match(a) {
			continue
		}
		rows = append(rows, Row{
			Appointment: a.RedactedFor(r.role),
			Actions:     lifecycle.AllowedActions(a.Status, r.role),
		})
	}
	sortRows(rows)

	r.mu.Lock()
	r.rows = rows
	r.fetchedAt = r.now()
	r.loaded = true
	r.mu.Unlock()

	metrics.IncRegistryRefresh(string(r.role), "ok")
	r.logger.Debug().Int("rows", len(rows)).Msg("refreshed")
	return nil
}

func (r *Registry) fetch(ctx context.Context) ([]models.Appointment, error) {
	switch r.role {
	case models.RoleOwner:
		return r.svc.ListForOwner(ctx, r.viewer, r.filter)
	case models.RoleRequester:
		return r.svc.ListForRequester(ctx, r.viewer, r.filter)
	}
	return nil, models.ErrUnknownRole
}

// owns checks the foreign key the view is scoped by.
func (r *Registry) owns(a models.Appointment) bool {
	if r.role == models.RoleOwner {
		return a.OwnerRef == r.viewer
	}
	return a.RequesterRef == r.viewer
}

// sortRows orders by viewing date, then slot, then creation time.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ScheduledDate != b.ScheduledDate {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if ai, bi := a.ScheduledTimeSlot.Index(), b.ScheduledTimeSlot.Index(); ai != bi {
			return ai < bi
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// Rows returns a copy of the current rows.
func (r *Registry) Rows() []Row {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Row, len(r.rows))
	for i, row := range r.rows {
		row.Actions = append([]models.Action(nil), row.Actions...)
		out[i] = row
	}
	return out
}

// Find returns the row with the given id.
func (r *Registry) Find(id string) (Row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.rows {
		if row.ID == id {
			row.Actions = append([]models.Action(nil), row.Actions...)
			return row, true
		}
	}
	return Row{}, false
}

// Counts returns the number of rows per status. Every status is present.
func (r *Registry) Counts() map[models.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, row := range r.rows {
		counts[row.Status]++
	}
	return counts
}

// FetchedAt returns the time of the last successful refresh.
func (r *Registry) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// Loaded reports whether at least one refresh succeeded.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}
