package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"rentview/internal/events"
	"rentview/internal/models"
)

type fakeSheets struct {
	mu       sync.Mutex
	ids      [][]any
	appended [][]any
	updated  map[string][]any
	cleared  []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	rng := path[strings.LastIndex(path, "/values/")+len("/values/"):]
	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.ids})
	case strings.HasSuffix(path, ":append"):
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values[0])
		f.ids = append(f.ids, []any{vr.Values[0][0]})
		n := len(f.ids)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Appointments!A" + strconv.Itoa(n) + ":I" + strconv.Itoa(n)},
		})
	case strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, strings.TrimSuffix(rng, ":clear"))
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.updated[rng] = vr.Values[0]
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newMirror(t *testing.T, fake *fakeSheets) *Mirror {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return NewMirror(svc, "sheet-id", "Appointments", zerolog.Nop())
}

func appointment(status models.Status) models.Appointment {
	return models.Appointment{
		ID:                "a1",
		RoomRef:           "room-1",
		ScheduledDate:     civil.Date{Year: 2026, Month: time.October, Day: 20},
		ScheduledTimeSlot: "3:00 PM",
		Status:            status,
		Contact:           models.Contact{Name: "Lan", Phone: "+84 90 123 4567"},
	}
}

func TestMirror_Lifecycle(t *testing.T) {
	fake := &fakeSheets{ids: [][]any{{"ID"}}, updated: map[string][]any{}}
	m := newMirror(t, fake)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, appointment(models.StatusPending)))
	require.Len(t, fake.appended, 1)
	assert.Equal(t, "a1", fake.appended[0][0])
	assert.Equal(t, "2026-10-20", fake.appended[0][1])
	for _, v := range fake.appended[0] {
		assert.NotEqual(t, "+84 90 123 4567", v)
	}

	ev, err := events.NewAppointmentEvent(events.TypeAppointmentTransitioned, events.AppointmentChange{
		Appointment: appointment(models.StatusConfirmed),
		Action:      models.ActionConfirm,
	})
	require.NoError(t, err)
	require.NoError(t, m.Handle(ev))
	require.Contains(t, fake.updated, "Appointments!A2:I2")
	assert.Equal(t, "confirmed", fake.updated["Appointments!A2:I2"][5])

	require.NoError(t, m.Clear(ctx, "a1"))
	assert.Equal(t, []string{"Appointments!A2:I2"}, fake.cleared)
}

func TestMirror_FindsRowWithoutCache(t *testing.T) {
	fake := &fakeSheets{ids: [][]any{{"ID"}, {"a0"}, {"a1"}}, updated: map[string][]any{}}
	m := newMirror(t, fake)

	require.NoError(t, m.Upsert(context.Background(), appointment(models.StatusCancelled)))
	assert.Empty(t, fake.appended)
	assert.Contains(t, fake.updated, "Appointments!A3:I3")

	m.ClearCache()
	_, ok := m.getCachedRow("a1")
	assert.False(t, ok)
}

func TestMirror_EnsureHeader(t *testing.T) {
	fake := &fakeSheets{updated: map[string][]any{}}
	m := newMirror(t, fake)

	require.NoError(t, m.EnsureHeader(context.Background()))
	assert.Equal(t, Header, fake.updated["Appointments!A1:I1"])
}

func TestParseRow(t *testing.T) {
	n, ok := parseRow("Appointments!A12:I12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = parseRow("garbage")
	assert.False(t, ok)
}
