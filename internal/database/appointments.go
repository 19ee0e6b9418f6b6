package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"rentview/internal/appointments"
	"rentview/internal/events"
	"rentview/internal/lifecycle"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

var (
	ErrInvalidRequest         = appointments.ErrInvalid
	ErrPastDate               = fmt.Errorf("%w: cannot book a viewing in the past", appointments.ErrInvalid)
	ErrSlotTaken              = fmt.Errorf("%w: slot already requested", appointments.ErrConflict)
	ErrNotTerminal            = fmt.Errorf("%w: only cancelled or completed appointments can be deleted", appointments.ErrConflict)
	ErrConcurrentModification = fmt.Errorf("%w: concurrent modification", appointments.ErrConflict)
)

const appointmentColumns = `id, room_ref, building_ref, requester_ref, owner_ref,
	scheduled_date, scheduled_time_slot, status,
	contact_name, contact_phone, contact_email, notes,
	counterpart_message, cancellation_reason, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s scanner) (*models.Appointment, error) {
	var (
		a      models.Appointment
		date   string
		slot   string
		status string
	)
	err := s.Scan(
		&a.ID, &a.RoomRef, &a.BuildingRef, &a.RequesterRef, &a.OwnerRef,
		&date, &slot, &status,
		&a.Contact.Name, &a.Contact.Phone, &a.Contact.Email, &a.Notes,
		&a.CounterpartMessage, &a.CancellationReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.ScheduledDate, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("appointment %s: scheduled_date: %w", a.ID, err)
	}
	if a.Status, err = models.NormalizeStatus(status); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	a.ScheduledTimeSlot = models.TimeSlot(slot)
	return &a, nil
}

func (db *DB) today() civil.Date {
	return civil.DateOf(db.now().In(db.loc))
}

// Create stores a pending appointment. The owner is taken from the room.
func (db *DB) Create(ctx context.Context, req appointments.CreateRequest) (*models.Appointment, error) {
	slot, err := models.ParseTimeSlot(string(req.ScheduledTimeSlot))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	switch {
	case req.RoomRef == "" || req.RequesterRef == "":
		return nil, fmt.Errorf("%w: room and requester are required", ErrInvalidRequest)
	case req.Contact.Name == "" || req.Contact.Phone == "":
		return nil, fmt.Errorf("%w: contact name and phone are required", ErrInvalidRequest)
	case req.ScheduledDate == (civil.Date{}) || !req.ScheduledDate.IsValid():
		return nil, fmt.Errorf("%w: scheduled date is required", ErrInvalidRequest)
	case req.ScheduledDate.Before(db.today()):
		return nil, ErrPastDate
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	room, err := getRoom(ctx, tx, req.RoomRef)
	if err != nil {
		return nil, err
	}

	// One open request per requester, room, date and slot.
	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE room_ref = ? AND requester_ref = ? AND scheduled_date = ? AND scheduled_time_slot = ?
		AND status IN ('pending', 'confirmed')`,
		req.RoomRef, req.RequesterRef, req.ScheduledDate.String(), string(slot),
	).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}
	if existing > 0 {
		return nil, ErrSlotTaken
	}

	now := db.now()
	a := models.Appointment{
		ID:                uuid.NewString(),
		RoomRef:           room.Ref,
		BuildingRef:       room.BuildingRef,
		RequesterRef:      req.RequesterRef,
		OwnerRef:          room.OwnerRef,
		ScheduledDate:     req.ScheduledDate,
		ScheduledTimeSlot: slot,
		Status:            models.StatusPending,
		Contact:           req.Contact,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RoomRef, a.BuildingRef, a.RequesterRef, a.OwnerRef,
		a.ScheduledDate.String(), string(a.ScheduledTimeSlot), string(a.Status),
		a.Contact.Name, a.Contact.Phone, a.Contact.Email, a.Notes,
		"", "", a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	db.logger.Info().Str("appointment_id", a.ID).Str("room_ref", a.RoomRef).Msg("Appointment created")
	actor, _ := appointments.ActorFrom(ctx)
	db.publish(events.TypeAppointmentCreated, events.AppointmentChange{
		Appointment: a,
		ActorRef:    actor.Ref,
		ActorRole:   models.RoleRequester,
	})
	return &a, nil
}

// Get returns one appointment.
func (db *DB) Get(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appointments.ErrNotFound
	}
	return a, err
}

func (db *DB) ListForRequester(ctx context.Context, requesterRef string, f appointments.Filter) ([]models.Appointment, error) {
	return db.list(ctx, "requester_ref", requesterRef, f)
}

func (db *DB) ListForOwner(ctx context.Context, ownerRef string, f appointments.Filter) ([]models.Appointment, error) {
	return db.list(ctx, "owner_ref", ownerRef, f)
}

// ListAll returns every appointment matching f; used by mirrors and exports.
func (db *DB) ListAll(ctx context.Context, f appointments.Filter) ([]models.Appointment, error) {
	return db.list(ctx, "", "", f)
}

func (db *DB) list(ctx context.Context, column, ref string, f appointments.Filter) ([]models.Appointment, error) {
	var (
		where []string
		args  []any
	)
	if column != "" {
		where = append(where, column+" = ?")
		args = append(args, ref)
	}
	if len(f.Statuses) > 0 {
		var spellings []string
		for _, s := range f.Statuses {
			for _, sp := range s.Spellings() {
				spellings = append(spellings, "?")
				args = append(args, sp)
			}
		}
		where = append(where, "status IN ("+strings.Join(spellings, ", ")+")")
	}
	if f.From != (civil.Date{}) {
		where = append(where, "scheduled_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != (civil.Date{}) {
		where = append(where, "scheduled_date <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_date, created_at"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			db.logger.Warn().Err(err).Msg("Skipping unreadable appointment row")
			continue
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Transition applies a lifecycle edge. Who may take the action is decided by
// the caller; the store only guards the edge itself.
func (db *DB) Transition(ctx context.Context, id string, action models.Action, message string) (*models.Appointment, error) {
	message = strings.TrimSpace(message)
	if err := models.ValidateMessage(message); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if action == models.ActionDelete {
		return nil, fmt.Errorf("%w: use Remove to delete", ErrInvalidRequest)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, storedStatus, err := db.getInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	next, err := lifecycle.Next(current.Status, action)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appointments.ErrConflict, err)
	}

	updated := *current
	updated.Status = next
	updated.CounterpartMessage = message
	if action == models.ActionCancel {
		updated.CancellationReason = message
	}
	updated.UpdatedAt = db.now()

	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?, counterpart_message = ?, cancellation_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(updated.Status), updated.CounterpartMessage, updated.CancellationReason, updated.UpdatedAt,
		id, storedStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrConcurrentModification
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	metrics.IncStatusTransition(string(current.Status), string(next))
	db.logger.Info().
		Str("appointment_id", id).
		Str("action", string(action)).
		Str("from", string(current.Status)).
		Str("to", string(next)).
		Msg("Appointment transitioned")

	actor, _ := appointments.ActorFrom(ctx)
	db.publish(events.TypeAppointmentTransitioned, events.AppointmentChange{
		Appointment:    updated,
		Action:         action,
		PreviousStatus: current.Status,
		ActorRef:       actor.Ref,
		ActorRole:      actor.Role,
	})
	return &updated, nil
}

// Remove deletes a cancelled or completed appointment.
func (db *DB) Remove(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, _, err := db.getInTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !current.Status.IsTerminal() {
		return ErrNotTerminal
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info().Str("appointment_id", id).Msg("Appointment removed")
	actor, _ := appointments.ActorFrom(ctx)
	db.publish(events.TypeAppointmentRemoved, events.AppointmentChange{
		Appointment:    *current,
		Action:         models.ActionDelete,
		PreviousStatus: current.Status,
		ActorRef:       actor.Ref,
		ActorRole:      actor.Role,
	})
	return nil
}

// getInTx reads a row inside tx and also returns the status as stored,
// which may be a legacy spelling. The stored status guards the later update.
func (db *DB) getInTx(ctx context.Context, tx *sql.Tx, id string) (*models.Appointment, string, error) {
	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appointments.ErrNotFound
		}
		return nil, "", fmt.Errorf("get appointment: %w", err)
	}
	a, err := scanAppointment(tx.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err != nil {
		return nil, "", fmt.Errorf("get appointment: %w", err)
	}
	return a, stored, nil
}

var _ appointments.Service = (*DB)(nil)
