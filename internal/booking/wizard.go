package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"rentview/internal/appointments"
	"rentview/internal/calendar"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

var (
	ErrDateRequired      = errors.New("pick a viewing date")
	ErrSlotRequired      = errors.New("pick a viewing time slot")
	ErrDayNotSelectable  = errors.New("this day cannot be selected")
	ErrMonthUnavailable  = errors.New("this month cannot be displayed")
	ErrWrongStep         = errors.New("not available at this step")
	ErrTerminalStep      = errors.New("the request was already sent")
	ErrClosed            = errors.New("the wizard was closed")
	ErrSubmitInProgress  = errors.New("the request is being sent")
	ErrSubmitFailed      = errors.New("could not send the viewing request")
	ErrContactIncomplete = errors.New("contact name and phone are required")
)

// Clock returns the current time in the service's zone.
type Clock func() time.Time

// Selection is the transient wizard state.
type Selection struct {
	Date   civil.Date      `json:"date"`
	Slot   models.TimeSlot `json:"slot,omitempty"`
	Cursor calendar.Month  `json:"cursor"`
	Step   Step            `json:"step"`
}

// Snapshot is everything needed to restore a wizard between requests.
type Snapshot struct {
	RequesterRef string              `json:"requester_ref"`
	Room         models.Room         `json:"room"`
	Contact      models.Contact      `json:"contact"`
	Notes        string              `json:"notes,omitempty"`
	Selection    Selection           `json:"selection"`
	Created      *models.Appointment `json:"created,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// View is the wizard state for rendering.
type View struct {
	Step         Step                `json:"step"`
	StepNumber   int                 `json:"step_number"`
	Prompt       string              `json:"prompt"`
	Cursor       calendar.Month      `json:"cursor"`
	CanPrevMonth bool                `json:"can_prev_month"`
	CanNextMonth bool                `json:"can_next_month"`
	Grid         []calendar.Day      `json:"grid,omitempty"`
	Slots        []models.TimeSlot   `json:"slots,omitempty"`
	SelectedDate *civil.Date         `json:"selected_date,omitempty"`
	SelectedSlot models.TimeSlot     `json:"selected_slot,omitempty"`
	Room         models.Room         `json:"room"`
	Contact      models.Contact      `json:"contact"`
	Notes        string              `json:"notes,omitempty"`
	Appointment  *models.Appointment `json:"appointment,omitempty"`
}

// Factory opens and restores wizards sharing one service and calendar.
type Factory struct {
	svc    appointments.Creator
	gen    calendar.Generator
	clock  Clock
	logger zerolog.Logger
}

// NewFactory creates a wizard factory. A nil clock means time.Now.
func NewFactory(svc appointments.Creator, gen calendar.Generator, clock Clock, logger zerolog.Logger) *Factory {
	if clock == nil {
		clock = time.Now
	}
	return &Factory{
		svc:    svc,
		gen:    gen,
		clock:  clock,
		logger: logger.With().Str("component", "wizard").Logger(),
	}
}

// Open starts a wizard at the schedule step on today's month.
func (f *Factory) Open(requesterRef string, room models.Room, contact models.Contact, notes string) (*Wizard, error) {
	if contact.Name == "" || contact.Phone == "" {
		return nil, ErrContactIncomplete
	}
	today := civil.DateOf(f.clock())
	cursor := calendar.MonthOf(today)
	w := f.newWizard(Snapshot{
		RequesterRef: requesterRef,
		Room:         room,
		Contact:      contact,
		Notes:        notes,
		Selection: Selection{
			Date:   calendar.DefaultSelection(cursor, today),
			Cursor: cursor,
			Step:   StepSchedule,
		},
	})
	metrics.IncWizardStep(string(StepSchedule))
	return w, nil
}

// Restore rebuilds a wizard from a stored snapshot.
func (f *Factory) Restore(snap Snapshot) *Wizard {
	return f.newWizard(snap)
}

func (f *Factory) newWizard(snap Snapshot) *Wizard {
	return &Wizard{
		fsm:          NewFSM(),
		svc:          f.svc,
		gen:          f.gen,
		clock:        f.clock,
		logger:       f.logger,
		requesterRef: snap.RequesterRef,
		room:         snap.Room,
		contact:      snap.Contact,
		notes:        snap.Notes,
		sel:          snap.Selection,
		created:      snap.Created,
	}
}

// Wizard is the 3-step viewing request controller.
type Wizard struct {
	mu     sync.Mutex
	fsm    *FSM
	svc    appointments.Creator
	gen    calendar.Generator
	clock  Clock
	logger zerolog.Logger

	requesterRef string
	room         models.Room
	contact      models.Contact
	notes        string
	sel          Selection
	created      *models.Appointment
	submitting   bool
}

func (w *Wizard) today() civil.Date {
	return civil.DateOf(w.clock())
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sel.Step
}

// Selection returns a copy of the current selection.
func (w *Wizard) Selection() Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sel
}

// Created returns the appointment created by a successful submission.
func (w *Wizard) Created() *models.Appointment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.created
}

// SelectDate picks a day of the displayed month. Past days and days of
// neighbouring months leave the selection unchanged.
func (w *Wizard) SelectDate(d civil.Date) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(StepSchedule); err != nil {
		return err
	}
	day, ok := w.gen.Lookup(w.sel.Cursor, w.today(), d)
	if !ok || !day.Selectable() {
		return ErrDayNotSelectable
	}
	w.sel.Date = d
	return nil
}

// SelectSlot picks one label of the fixed slot set.
func (w *Wizard) SelectSlot(raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(StepSchedule); err != nil {
		return err
	}
	slot, err := models.ParseTimeSlot(raw)
	if err != nil {
		return err
	}
	w.sel.Slot = slot
	return nil
}

// NextMonth shows the following month.
func (w *Wizard) NextMonth() error {
	return w.moveMonth(1)
}

// PrevMonth shows the previous month; never earlier than today's month.
func (w *Wizard) PrevMonth() error {
	return w.moveMonth(-1)
}

func (w *Wizard) moveMonth(delta int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(StepSchedule); err != nil {
		return err
	}
	today := w.today()
	cursor, ok := calendar.Navigate(w.sel.Cursor, delta, today)
	if !ok {
		return ErrMonthUnavailable
	}
	w.sel.Cursor = cursor
	w.sel.Date = calendar.DefaultSelection(cursor, today)
	return nil
}

// Continue moves forward. From review it submits the request exactly once.
func (w *Wizard) Continue(ctx context.Context) error {
	w.mu.Lock()
	switch w.sel.Step {
	case StepSchedule:
		defer w.mu.Unlock()
		if err := w.validateSelection(); err != nil {
			return err
		}
		return w.moveTo(StepReview)
	case StepReview:
		if w.submitting {
			w.mu.Unlock()
			return ErrSubmitInProgress
		}
		if w.sel.Date.Before(w.today()) {
			w.mu.Unlock()
			return ErrDayNotSelectable
		}
		w.submitting = true
		req := appointments.CreateRequest{
			RoomRef:           w.room.Ref,
			RequesterRef:      w.requesterRef,
			ScheduledDate:     w.sel.Date,
			ScheduledTimeSlot: w.sel.Slot,
			Contact:           w.contact,
			Notes:             w.notes,
		}
		w.mu.Unlock()
		return w.submit(ctx, req)
	case StepDone:
		w.mu.Unlock()
		return ErrTerminalStep
	default:
		w.mu.Unlock()
		return ErrClosed
	}
}

func (w *Wizard) submit(ctx context.Context, req appointments.CreateRequest) error {
	a, err := w.svc.Create(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		metrics.IncWizardSubmission("failed")
		w.logger.Warn().Err(err).
			Str("room_ref", req.RoomRef).
			Str("requester_ref", req.RequesterRef).
			Str("date", req.ScheduledDate.String()).
			Msg("viewing request failed")
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	w.created = a
	if err := w.moveTo(StepDone); err != nil {
		return err
	}
	metrics.IncWizardSubmission("created")
	w.logger.Info().
		Str("appointment_id", a.ID).
		Str("room_ref", req.RoomRef).
		Str("requester_ref", req.RequesterRef).
		Msg("viewing request created")
	return nil
}

// Back returns to the schedule step, or discards the wizard from step 1.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.sel.Step {
	case StepReview:
		if w.submitting {
			return ErrSubmitInProgress
		}
		return w.moveTo(StepSchedule)
	case StepSchedule:
		w.discard()
		return nil
	case StepDone:
		return ErrTerminalStep
	default:
		return ErrClosed
	}
}

// Close discards the wizard. Nothing is sent.
func (w *Wizard) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}
	if w.sel.Step == StepClosed {
		return nil
	}
	w.discard()
	return nil
}

func (w *Wizard) discard() {
	w.sel = Selection{Step: StepClosed}
	w.created = nil
	metrics.IncWizardStep(string(StepClosed))
}

// View renders the current state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	today := w.today()
	v := View{
		Step:        w.sel.Step,
		StepNumber:  w.sel.Step.Number(),
		Prompt:      StepPrompts[w.sel.Step],
		Cursor:      w.sel.Cursor,
		Room:        w.room,
		Contact:     w.contact,
		Notes:       w.notes,
		Appointment: w.created,
	}
	if w.sel.Date != (civil.Date{}) {
		d := w.sel.Date
		v.SelectedDate = &d
	}
	v.SelectedSlot = w.sel.Slot

	if w.sel.Step == StepSchedule {
		v.Grid = w.gen.Grid(w.sel.Cursor, today, w.sel.Date)
		v.Slots = append([]models.TimeSlot(nil), models.TimeSlots...)
		v.CanPrevMonth = calendar.CanNavigate(w.sel.Cursor.Add(-1), today)
		v.CanNextMonth = calendar.CanNavigate(w.sel.Cursor.Add(1), today)
	}
	return v
}

// Snapshot captures the wizard for a session store.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		RequesterRef: w.requesterRef,
		Room:         w.room,
		Contact:      w.contact,
		Notes:        w.notes,
		Selection:    w.sel,
		Created:      w.created,
		UpdatedAt:    w.clock(),
	}
}

func (w *Wizard) validateSelection() error {
	if w.sel.Date == (civil.Date{}) {
		return ErrDateRequired
	}
	if w.sel.Slot == "" {
		return ErrSlotRequired
	}
	if w.sel.Date.Before(w.today()) {
		return ErrDayNotSelectable
	}
	return nil
}

func (w *Wizard) requireStep(step Step) error {
	switch {
	case w.sel.Step == step:
		return nil
	case w.sel.Step == StepClosed:
		return ErrClosed
	default:
		return ErrWrongStep
	}
}

// moveTo applies a step change through the FSM.
func (w *Wizard) moveTo(step Step) error {
	if !w.fsm.CanTransition(w.sel.Step, step) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongStep, w.sel.Step, step)
	}
	w.sel.Step = step
	metrics.IncWizardStep(string(step))
	return nil
}
