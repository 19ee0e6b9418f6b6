// Package appointmentstest provides an in-memory appointments.Service for tests.
package appointmentstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentview/internal/appointments"
	"rentview/internal/lifecycle"
	"rentview/internal/models"
)

// Fake is an in-memory appointment service. Rooms map room refs to owner refs.
type Fake struct {
	mu      sync.Mutex
	items   map[string]models.Appointment
	rooms   map[string]string
	seq     int
	calls   map[string]int
	listErr error
	failErr error
	gate    chan struct{}
	entered chan string
	now     func() time.Time
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		items: make(map[string]models.Appointment),
		rooms: make(map[string]string),
		calls: make(map[string]int),
		now:   func() time.Time { return time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC) },
	}
}

// SetRoom registers the owner of a room.
func (f *Fake) SetRoom(roomRef, ownerRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomRef] = ownerRef
}

// Seed stores a as is, raw status included.
func (f *Fake) Seed(a models.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = a
}

// Get returns the stored appointment.
func (f *Fake) Get(id string) (models.Appointment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	return a, ok
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// FailLists makes list calls fail with err until reset with nil.
func (f *Fake) FailLists(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailMutations makes Create, Transition and Remove fail with err until reset with nil.
func (f *Fake) FailMutations(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// Hold makes Transition and Remove block until release is called.
// Each blocked call sends its appointment id on entered first.
func (f *Fake) Hold() (entered <-chan string, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, 16)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

func (f *Fake) begin(ctx context.Context, method, id string) error {
	f.mu.Lock()
	f.calls[method]++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- id
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failErr
}

func (f *Fake) Create(ctx context.Context, req appointments.CreateRequest) (*models.Appointment, error) {
	if err := f.begin(ctx, "Create", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	owner, ok := f.rooms[req.RoomRef]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", req.RoomRef, appointments.ErrRoomNotFound)
	}
	f.seq++
	now := f.now()
	a := models.Appointment{
		ID:                fmt.Sprintf("appt-%d", f.seq),
		RoomRef:           req.RoomRef,
		RequesterRef:      req.RequesterRef,
		OwnerRef:          owner,
		ScheduledDate:     req.ScheduledDate,
		ScheduledTimeSlot: req.ScheduledTimeSlot,
		Status:            models.StatusPending,
		Contact:           req.Contact,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.items[a.ID] = a
	return &a, nil
}

func (f *Fake) ListForRequester(_ context.Context, requesterRef string, filter appointments.Filter) ([]models.Appointment, error) {
	return f.list("ListForRequester", func(a models.Appointment) bool { return a.RequesterRef == requesterRef }, filter)
}

func (f *Fake) ListForOwner(_ context.Context, ownerRef string, filter appointments.Filter) ([]models.Appointment, error) {
	return f.list("ListForOwner", func(a models.Appointment) bool { return a.OwnerRef == ownerRef }, filter)
}

func (f *Fake) list(method string, keep func(models.Appointment) bool, filter appointments.Filter) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[method]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Appointment
	for _, a := range f.items {
		if !keep(a) {
			continue
		}
		if st, err := models.NormalizeStatus(string(a.Status)); err == nil {
			if !filter.Match(models.Appointment{Status: st, ScheduledDate: a.ScheduledDate}) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *Fake) Transition(ctx context.Context, id string, action models.Action, message string) (*models.Appointment, error) {
	if err := f.begin(ctx, "Transition", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.items[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	current, err := models.NormalizeStatus(string(a.Status))
	if err != nil {
		return nil, err
	}
	next, err := lifecycle.Next(current, action)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appointments.ErrConflict, err)
	}
	a.Status = next
	a.CounterpartMessage = message
	if action == models.ActionCancel {
		a.CancellationReason = message
	}
	a.UpdatedAt = f.now()
	f.items[id] = a
	return &a, nil
}

func (f *Fake) Remove(ctx context.Context, id string) error {
	if err := f.begin(ctx, "Remove", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.items[id]
	if !ok {
		return appointments.ErrNotFound
	}
	current, err := models.NormalizeStatus(string(a.Status))
	if err != nil {
		return err
	}
	if !current.IsTerminal() {
		return fmt.Errorf("%w: appointment is %s", appointments.ErrConflict, current)
	}
	delete(f.items, id)
	return nil
}

var _ appointments.Service = (*Fake)(nil)
