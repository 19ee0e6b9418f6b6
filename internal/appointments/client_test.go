package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentview/internal/models"
)

func TestClient_Create(t *testing.T) {
	var got CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/appointments", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","room_ref":"room-7","status":"pending",
			"scheduled_date":"2026-10-20","scheduled_time_slot":"3:00 PM"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "test-key", time.Second, zerolog.Nop())
	a, err := c.Create(context.Background(), CreateRequest{
		RoomRef:           "room-7",
		RequesterRef:      "renter-1",
		ScheduledDate:     civil.Date{Year: 2026, Month: 10, Day: 20},
		ScheduledTimeSlot: "3:00 PM",
		Contact:           models.Contact{Name: "Lan", Phone: "0901234567"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, models.StatusPending, a.Status)

	assert.Equal(t, civil.Date{Year: 2026, Month: 10, Day: 20}, got.ScheduledDate)
	assert.Equal(t, models.TimeSlot("3:00 PM"), got.ScheduledTimeSlot)
	assert.Equal(t, "renter-1", got.RequesterRef)
}

func TestClient_ListNormalizesLegacyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/owners/owner 1/appointments", r.URL.Path)
		assert.Equal(t, "pending,cancelled", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"appointments":[
			{"id":"a1","status":"canceled","scheduled_date":"2026-10-20","scheduled_time_slot":"9:00 AM"},
			{"id":"a2","status":"pending","scheduled_date":"2026-10-21","scheduled_time_slot":"5:00 PM"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	list, err := c.ListForOwner(context.Background(), "owner 1", Filter{
		Statuses: []models.Status{models.StatusPending, models.StatusCancelled},
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.StatusCancelled, list[0].Status)
}

func TestClient_ListSkipsUnreadableRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"appointments":[
			{"id":"a1","status":"pending","scheduled_date":"2026-10-20","scheduled_time_slot":"9:00 AM"},
			{"id":"a2","status":"archived","scheduled_date":"2026-10-21","scheduled_time_slot":"5:00 PM"},
			{"id":"a3","status":"pending","scheduled_date":"2026-10-22","scheduled_time_slot":"midnight"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	list, err := c.ListForOwner(context.Background(), "owner-1", Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}

func TestClient_TransitionAndRemove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/appointments/a1/transitions":
			var body TransitionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, models.ActionConfirm, body.Action)
			assert.Equal(t, "Sẽ có mặt đúng giờ", body.Message)
			actor, ok := ActorFromHeaders(r.Header)
			assert.True(t, ok)
			assert.Equal(t, Actor{Ref: "owner-1", Role: models.RoleOwner}, actor)
			_, _ = w.Write([]byte(`{"id":"a1","status":"confirmed","scheduled_date":"2026-10-20","scheduled_time_slot":"9:00 AM"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/appointments/a1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	ctx := WithActor(context.Background(), Actor{Ref: "owner-1", Role: models.RoleOwner})
	a, err := c.Transition(ctx, "a1", models.ActionConfirm, "Sẽ có mặt đúng giờ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, a.Status)

	require.NoError(t, c.Remove(context.Background(), "a1"))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		sentinel error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"server error", http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
			_, err := c.Transition(context.Background(), "a1", models.ActionCancel, "")
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "boom", se.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, 1, calls, "no retries")
		})
	}
}

func TestFilter_EncodeDecode(t *testing.T) {
	f := Filter{
		Statuses: []models.Status{models.StatusConfirmed},
		From:     civil.Date{Year: 2026, Month: 10, Day: 1},
		To:       civil.Date{Year: 2026, Month: 10, Day: 31},
	}
	back, err := DecodeFilter(EncodeFilter(f))
	require.NoError(t, err)
	assert.Equal(t, f, back)

	legacy, err := DecodeFilter(url.Values{"status": {"canceled"}})
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusCancelled}, legacy.Statuses)

	_, err = DecodeFilter(url.Values{"status": {"archived"}})
	assert.ErrorIs(t, err, models.ErrUnknownStatus)

	_, err = DecodeFilter(url.Values{"from": {"15.10.2026"}})
	assert.Error(t, err)
}

func TestFilter_Match(t *testing.T) {
	a := models.Appointment{Status: models.StatusPending, ScheduledDate: civil.Date{Year: 2026, Month: 10, Day: 20}}

	assert.True(t, Filter{}.Match(a))
	assert.False(t, Filter{Statuses: []models.Status{models.StatusConfirmed}}.Match(a))
	assert.True(t, Filter{From: civil.Date{Year: 2026, Month: 10, Day: 20}}.Match(a))
	assert.False(t, Filter{From: civil.Date{Year: 2026, Month: 10, Day: 21}}.Match(a))
	assert.False(t, Filter{To: civil.Date{Year: 2026, Month: 10, Day: 19}}.Match(a))
}
