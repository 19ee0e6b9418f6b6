package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentview/internal/appointments"
	"rentview/internal/events"
	"rentview/internal/lifecycle"
	"rentview/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var testNow = time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*DB, *recorder) {
	t.Helper()
	logger := zerolog.Nop()
	rec := &recorder{}
	db, err := NewDB(filepath.Join(t.TempDir(), "rentview.db"), rec, time.UTC, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.now = func() time.Time { return testNow }

	require.NoError(t, db.PutRoom(context.Background(), models.Room{
		Ref: "room-1", BuildingRef: "bld-1", OwnerRef: "owner-1", Title: "Studio 1",
	}))
	return db, rec
}

func request(day int, slot models.TimeSlot) appointments.CreateRequest {
	return appointments.CreateRequest{
		RoomRef:           "room-1",
		RequesterRef:      "req-1",
		ScheduledDate:     civil.Date{Year: 2026, Month: time.October, Day: day},
		ScheduledTimeSlot: slot,
		Contact:           models.Contact{Name: "Lan", Phone: "+84 90 123 4567"},
		Notes:             "  ground floor please ",
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	db, rec := newTestDB(t)

	a, err := db.Create(ctx, request(15, "3:00 PM"))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, "owner-1", a.OwnerRef)
	assert.Equal(t, "bld-1", a.BuildingRef)
	assert.Equal(t, "ground floor please", a.Notes)

	got, err := db.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ScheduledDate, got.ScheduledDate)
	assert.Equal(t, models.TimeSlot("3:00 PM"), got.ScheduledTimeSlot)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))

	assert.Equal(t, []string{events.TypeAppointmentCreated}, rec.types())
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	_, err := db.Create(ctx, request(14, "3:00 PM"))
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = db.Create(ctx, request(16, "3:30 PM"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, models.ErrUnknownSlot)

	req := request(16, "3:00 PM")
	req.Contact.Phone = ""
	_, err = db.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = request(16, "3:00 PM")
	req.RoomRef = "room-404"
	_, err = db.Create(ctx, req)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = db.Create(ctx, request(16, "3:00 PM"))
	require.NoError(t, err)
	_, err = db.Create(ctx, request(16, "3:00 PM"))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.ErrorIs(t, err, appointments.ErrConflict)
}

func TestTransition_FollowsLifecycle(t *testing.T) {
	ctx := appointments.WithActor(context.Background(), appointments.Actor{Ref: "owner-1", Role: models.RoleOwner})
	db, rec := newTestDB(t)

	a, err := db.Create(ctx, request(20, "9:00 AM"))
	require.NoError(t, err)

	_, err = db.Transition(ctx, a.ID, models.ActionComplete, "")
	assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition)
	assert.ErrorIs(t, err, appointments.ErrConflict)

	confirmed, err := db.Transition(ctx, a.ID, models.ActionConfirm, " Sẽ có mặt đúng giờ ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "Sẽ có mặt đúng giờ", confirmed.CounterpartMessage)

	cancelled, err := db.Transition(ctx, a.ID, models.ActionCancel, "owner travelling")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, "owner travelling", cancelled.CancellationReason)

	_, err = db.Transition(ctx, a.ID, models.ActionConfirm, "")
	assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition)

	_, err = db.Transition(ctx, "missing", models.ActionConfirm, "")
	assert.ErrorIs(t, err, appointments.ErrNotFound)

	require.Len(t, rec.events, 3)
	change, err := events.DecodeChange(rec.events[1])
	require.NoError(t, err)
	assert.Equal(t, models.ActionConfirm, change.Action)
	assert.Equal(t, models.StatusPending, change.PreviousStatus)
	assert.Equal(t, models.RoleOwner, change.ActorRole)
	assert.Equal(t, "owner-1", change.ActorRef)
}

func TestTransition_RejectsLongMessage(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	a, err := db.Create(ctx, request(20, "9:00 AM"))
	require.NoError(t, err)

	long := make([]rune, models.MaxMessageLength+1)
	for i := range long {
		long[i] = 'ý'
	}
	_, err = db.Transition(ctx, a.ID, models.ActionConfirm, string(long))
	assert.ErrorIs(t, err, models.ErrMessageTooLong)

	got, err := db.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	db, rec := newTestDB(t)
	a, err := db.Create(ctx, request(20, "9:00 AM"))
	require.NoError(t, err)

	assert.ErrorIs(t, db.Remove(ctx, a.ID), ErrNotTerminal)

	_, err = db.Transition(ctx, a.ID, models.ActionCancel, "")
	require.NoError(t, err)
	require.NoError(t, db.Remove(ctx, a.ID))

	_, err = db.Get(ctx, a.ID)
	assert.ErrorIs(t, err, appointments.ErrNotFound)
	assert.ErrorIs(t, db.Remove(ctx, a.ID), appointments.ErrNotFound)

	owner, err := db.ListForOwner(ctx, "owner-1", appointments.Filter{})
	require.NoError(t, err)
	assert.Empty(t, owner)
	requester, err := db.ListForRequester(ctx, "req-1", appointments.Filter{})
	require.NoError(t, err)
	assert.Empty(t, requester)

	assert.Equal(t, events.TypeAppointmentRemoved, rec.types()[len(rec.types())-1])
}

func TestList_LegacySpellingAndFilters(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	a, err := db.Create(ctx, request(20, "9:00 AM"))
	require.NoError(t, err)
	b, err := db.Create(ctx, request(22, "9:00 AM"))
	require.NoError(t, err)

	// Rows written by older writers carry the US spelling.
	_, err = db.ExecContext(ctx, `UPDATE appointments SET status = 'canceled' WHERE id = ?`, a.ID)
	require.NoError(t, err)

	all, err := db.ListForOwner(ctx, "owner-1", appointments.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, models.StatusCancelled, all[0].Status)

	cancelled, err := db.ListForRequester(ctx, "req-1", appointments.Filter{Statuses: []models.Status{models.StatusCancelled}})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, a.ID, cancelled[0].ID)

	later, err := db.ListForOwner(ctx, "owner-1", appointments.Filter{From: civil.Date{Year: 2026, Month: time.October, Day: 21}})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, b.ID, later[0].ID)

	none, err := db.ListForOwner(ctx, "owner-2", appointments.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	// A legacy row can still be deleted and moved along its edges.
	require.NoError(t, db.Remove(ctx, a.ID))

	everything, err := db.ListAll(ctx, appointments.Filter{})
	require.NoError(t, err)
	assert.Len(t, everything, 1)
}

func TestPutRoom_Upserts(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	require.NoError(t, db.PutRoom(ctx, models.Room{Ref: "room-1", OwnerRef: "owner-9", Title: "Renamed"}))
	r, err := db.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-9", r.OwnerRef)
	assert.Equal(t, "Renamed", r.Title)

	assert.ErrorIs(t, db.PutRoom(ctx, models.Room{Ref: "room-2"}), ErrInvalidRequest)
	_, err = db.GetRoom(ctx, "room-2")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestNewDB_ReopenKeepsSchema(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "rentview.db")

	db, err := NewDB(path, nil, time.UTC, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path, nil, time.UTC, &logger)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ready(context.Background()))
}
