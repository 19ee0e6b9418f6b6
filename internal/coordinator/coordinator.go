// Package coordinator dispatches dashboard actions with at most one call in
// flight per appointment and action, then re-fetches the registry.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"rentview/internal/appointments"
	"rentview/internal/lifecycle"
	"rentview/internal/metrics"
	"rentview/internal/models"
	"rentview/internal/registry"
)

var (
	ErrNotFound       = errors.New("appointment is not listed")
	ErrNotAllowed     = errors.New("action is not allowed")
	ErrNotPrompted    = errors.New("action was not confirmed")
	ErrMessageTooLong = models.ErrMessageTooLong
	ErrReasonRequired = errors.New("a reason is required")
)

// Confirmation describes the consequence of an action before it is sent.
// Only confirmations returned by Prompt can be executed.
type Confirmation struct {
	AppointmentID  string        `json:"appointment_id"`
	Action         models.Action `json:"action"`
	Title          string        `json:"title"`
	Consequence    string        `json:"consequence"`
	MessageLimit   int           `json:"message_limit"`
	ReasonRequired bool          `json:"reason_required"`
	Destructive    bool          `json:"destructive"`

	issued bool
}

// Coordinator runs actions for one viewer's registry.
type Coordinator struct {
	reg     *registry.Registry
	svc     appointments.Transitioner
	tracker *Tracker
	logger  zerolog.Logger
}

func New(reg *registry.Registry, svc appointments.Transitioner, tracker *Tracker, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		reg:     reg,
		svc:     svc,
		tracker: tracker,
		logger: logger.With().
			Str("component", "coordinator").
			Str("role", string(reg.Role())).
			Str("viewer", reg.Viewer()).
			Logger(),
	}
}

// Prompt returns the confirmation to present for action on a listed row.
func (c *Coordinator) Prompt(id string, action models.Action) (Confirmation, error) {
	row, ok := c.reg.Find(id)
	if !ok {
		return Confirmation{}, ErrNotFound
	}
	role := c.reg.Role()
	if !lifecycle.Allowed(row.Status, role, action) {
		return Confirmation{}, fmt.Errorf("%w: %s on %s appointment", ErrNotAllowed, action, row.Status)
	}

	title, consequence := describe(row.Appointment, role, action)
	return Confirmation{
		AppointmentID:  id,
		Action:         action,
		Title:          title,
		Consequence:    consequence,
		MessageLimit:   models.MaxMessageLength,
		ReasonRequired: lifecycle.RequiresReason(row.Status, role, action),
		Destructive:    action != models.ActionConfirm,
		issued:         true,
	}, nil
}

// Execute dispatches a confirmed action. A call for an (id, action) already in
// flight returns false without touching the service. Whatever the outcome of a
// dispatched call, the registry is re-fetched before the marker is cleared.
func (c *Coordinator) Execute(ctx context.Context, conf Confirmation, message string) (bool, error) {
	if !conf.issued {
		return false, ErrNotPrompted
	}
	message = strings.TrimSpace(message)
	if err := models.ValidateMessage(message); err != nil {
		return false, err
	}
	if conf.ReasonRequired && message == "" {
		return false, ErrReasonRequired
	}

	id, action := conf.AppointmentID, conf.Action
	if !c.tracker.TryAcquire(id, action) {
		metrics.IncAppointmentAction(string(action), "duplicate")
		c.logger.Debug().Str("appointment_id", id).Str("action", string(action)).Msg("action already in flight")
		return false, nil
	}
	defer c.tracker.Release(id, action)

	start := time.Now()
	err := c.dispatch(ctx, id, action, message)
	metrics.ObserveActionDuration(string(action), time.Since(start))

	if rerr := c.reg.Refresh(ctx); rerr != nil {
		c.logger.Warn().Err(rerr).Str("appointment_id", id).Msg("refresh after action failed")
	}

	if err != nil {
		metrics.IncAppointmentAction(string(action), "failed")
		c.logger.Error().Err(err).Str("appointment_id", id).Str("action", string(action)).Msg("action failed")
		return true, fmt.Errorf("%s appointment %s: %w", action, id, err)
	}

	metrics.IncAppointmentAction(string(action), "ok")
	c.logger.Info().Str("appointment_id", id).Str("action", string(action)).Msg("action applied")
	return true, nil
}

func (c *Coordinator) dispatch(ctx context.Context, id string, action models.Action, message string) error {
	if action == models.ActionDelete {
		return c.svc.Remove(ctx, id)
	}
	_, err := c.svc.Transition(ctx, id, action, message)
	return err
}

// Rows returns the registry rows with busy flags for in-flight actions.
func (c *Coordinator) Rows() []registry.Row {
	rows := c.reg.Rows()
	for i := range rows {
		rows[i].Busy = c.tracker.Busy(rows[i].ID)
	}
	return rows
}

func (c *Coordinator) Counts() map[models.Status]int { return c.reg.Counts() }
func (c *Coordinator) FetchedAt() time.Time          { return c.reg.FetchedAt() }

func describe(a models.Appointment, role models.Role, action models.Action) (title, consequence string) {
	when := fmt.Sprintf("%s at %s", formatDate(a.ScheduledDate), a.ScheduledTimeSlot)

	switch action {
	case models.ActionConfirm:
		return "Confirm viewing",
			fmt.Sprintf("The viewing on %s will be confirmed. The requester is notified and their phone number becomes visible to you.", when)
	case models.ActionComplete:
		return "Mark viewing as done",
			fmt.Sprintf("The viewing on %s will be marked as completed. It can no longer be cancelled.", when)
	case models.ActionDelete:
		return "Delete appointment",
			fmt.Sprintf("The %s appointment on %s will be removed for both parties. This cannot be undone.", a.Status, when)
	case models.ActionCancel:
		if role == models.RoleRequester {
			return "Withdraw viewing request",
				fmt.Sprintf("Your viewing request for %s will be cancelled. The owner is notified.", when)
		}
		if a.Status == models.StatusConfirmed {
			return "Cancel confirmed viewing",
				fmt.Sprintf("The confirmed viewing on %s will be cancelled. Tell the requester why.", when)
		}
		return "Decline viewing request",
			fmt.Sprintf("The viewing request for %s will be declined. The requester is notified.", when)
	}
	return string(action), when
}

func formatDate(d civil.Date) string {
	return d.In(time.UTC).Format("Mon, 2 Jan 2006")
}
