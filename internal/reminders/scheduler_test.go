package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentview/internal/appointments"
	"rentview/internal/models"
)

type fakeSource struct {
	filters []appointments.Filter
	items   []models.Appointment
	err     error
}

func (f *fakeSource) ListAll(_ context.Context, filter appointments.Filter) ([]models.Appointment, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Appointment
	for _, a := range f.items {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeSender) Remind(_ context.Context, a models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[a.ID] {
		return errors.New("telegram down")
	}
	f.sent = append(f.sent, a.ID)
	return nil
}

func viewing(id string, day int, status models.Status) models.Appointment {
	return models.Appointment{
		ID:            id,
		RoomRef:       "room-7",
		RequesterRef:  "req-1",
		OwnerRef:      "owner-1",
		ScheduledDate: civil.Date{Year: 2026, Month: time.October, Day: day},
		Status:        status,
	}
}

func newScheduler(src Source, snd Sender, now time.Time) *Scheduler {
	s := NewScheduler(Config{DailyHour: 12}, src, snd, time.UTC, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestRunNow_RemindsConfirmedViewingsTomorrow(t *testing.T) {
	src := &fakeSource{items: []models.Appointment{
		viewing("a-1", 16, models.StatusConfirmed),
		viewing("a-2", 16, models.StatusPending),
		viewing("a-3", 17, models.StatusConfirmed),
		viewing("a-4", 16, models.StatusConfirmed),
	}}
	snd := &fakeSender{fail: map[string]bool{"a-4": true}}
	s := newScheduler(src, snd, time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC))

	stats := s.RunNow(context.Background())

	assert.Equal(t, Stats{Total: 2, Sent: 1, Failed: 1}, stats)
	assert.Equal(t, []string{"a-1"}, snd.sent)
	require.Len(t, src.filters, 1)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.October, Day: 16}, src.filters[0].From)
	assert.Equal(t, src.filters[0].From, src.filters[0].To)
}

func TestCheckAndRun_OncePerDayAfterDailyTime(t *testing.T) {
	src := &fakeSource{items: []models.Appointment{viewing("a-1", 16, models.StatusConfirmed)}}
	snd := &fakeSender{}
	now := time.Date(2026, time.October, 15, 11, 59, 0, 0, time.UTC)
	s := newScheduler(src, snd, now)
	s.now = func() time.Time { return now }

	assert.False(t, s.checkAndRun(context.Background()))

	now = now.Add(time.Minute)
	assert.True(t, s.checkAndRun(context.Background()))
	now = now.Add(3 * time.Hour)
	assert.False(t, s.checkAndRun(context.Background()))
	assert.Equal(t, []string{"a-1"}, snd.sent)

	now = now.Add(24 * time.Hour)
	assert.True(t, s.checkAndRun(context.Background()))
	assert.Len(t, src.filters, 2)
}

func TestRunNow_SourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("db locked")}
	snd := &fakeSender{}
	s := newScheduler(src, snd, time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, Stats{}, s.RunNow(context.Background()))
	assert.Empty(t, snd.sent)
}
