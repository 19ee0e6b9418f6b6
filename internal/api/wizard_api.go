package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"rentview/internal/appointments"
	"rentview/internal/booking"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

var (
	errNoSession   = errors.New("no open viewing request for this room")
	errSessionBusy = errors.New("another step of this viewing request is in progress")
)

// sessionGuard lets one request at a time act on a wizard session.
type sessionGuard struct {
	mu   sync.Mutex
	busy map[booking.SessionKey]struct{}
}

func newSessionGuard() *sessionGuard {
	return &sessionGuard{busy: make(map[booking.SessionKey]struct{})}
}

func (g *sessionGuard) acquire(key booking.SessionKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[key]; ok {
		return false
	}
	g.busy[key] = struct{}{}
	return true
}

func (g *sessionGuard) release(key booking.SessionKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, key)
}

// OpenWizardRequest starts a viewing request for a room.
type OpenWizardRequest struct {
	Contact models.Contact `json:"contact"`
	Notes   string         `json:"notes,omitempty"`
}

type selectDateRequest struct {
	Date civil.Date `json:"date"`
}

type selectSlotRequest struct {
	Slot string `json:"slot"`
}

type moveMonthRequest struct {
	Delta int `json:"delta"`
}

func sessionKey(r *http.Request) booking.SessionKey {
	return booking.SessionKey{
		RequesterRef: chi.URLParam(r, "requester"),
		RoomRef:      chi.URLParam(r, "room"),
	}
}

func requesterContext(ctx context.Context, key booking.SessionKey) context.Context {
	return appointments.WithActor(ctx, appointments.Actor{Ref: key.RequesterRef, Role: models.RoleRequester})
}

// handleWizardOpen resumes the open wizard for the room or starts a new one.
// POST /api/v1/wizard/{requester}/{room}
func (s *HTTPServer) handleWizardOpen(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_open")

	var req OpenWizardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key := sessionKey(r)
	if !s.guard.acquire(key) {
		s.fail(w, r, errSessionBusy)
		return
	}
	defer s.guard.release(key)

	ctx := r.Context()
	snap, err := s.sessions.Get(ctx, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if snap != nil && snap.Selection.Step != booking.StepDone {
		writeJSON(w, http.StatusOK, s.wizards.Restore(*snap).View())
		return
	}

	if s.rooms == nil {
		s.fail(w, r, appointments.ErrRoomNotFound)
		return
	}
	room, err := s.rooms.GetRoom(ctx, key.RoomRef)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wiz, err := s.wizards.Open(key.RequesterRef, *room, req.Contact, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.sessions.Save(ctx, key, wiz.Snapshot()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info().
		Str("requester_ref", key.RequesterRef).
		Str("room_ref", key.RoomRef).
		Msg("viewing wizard opened")
	writeJSON(w, http.StatusCreated, wiz.View())
}

// GET /api/v1/wizard/{requester}/{room}
func (s *HTTPServer) handleWizardView(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_view")
	s.withWizard(w, r, func(context.Context, *booking.Wizard) error { return nil })
}

// POST /api/v1/wizard/{requester}/{room}/date
func (s *HTTPServer) handleWizardDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_date")

	var req selectDateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	s.withWizard(w, r, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.SelectDate(req.Date)
	})
}

// POST /api/v1/wizard/{requester}/{room}/slot
func (s *HTTPServer) handleWizardSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_slot")

	var req selectSlotRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.withWizard(w, r, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.SelectSlot(req.Slot)
	})
}

// POST /api/v1/wizard/{requester}/{room}/month
func (s *HTTPServer) handleWizardMonth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_month")

	var req moveMonthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.withWizard(w, r, func(_ context.Context, wiz *booking.Wizard) error {
		switch req.Delta {
		case 1:
			return wiz.NextMonth()
		case -1:
			return wiz.PrevMonth()
		}
		return badRequest("delta must be 1 or -1")
	})
}

// handleWizardContinue moves forward; from the review step it sends the request.
// POST /api/v1/wizard/{requester}/{room}/continue
func (s *HTTPServer) handleWizardContinue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_continue")
	s.withWizard(w, r, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.Continue(ctx)
	})
}

// POST /api/v1/wizard/{requester}/{room}/back
func (s *HTTPServer) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_back")
	s.withWizard(w, r, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.Back()
	})
}

// DELETE /api/v1/wizard/{requester}/{room}
func (s *HTTPServer) handleWizardClose(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("wizard_close")
	s.withWizard(w, r, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.Close()
	})
}

// withWizard restores the session wizard, applies fn and stores the result.
// A closed wizard is dropped from the store. The state is stored even when fn
// fails so a failed submission stays on the review step.
func (s *HTTPServer) withWizard(w http.ResponseWriter, r *http.Request, fn func(context.Context, *booking.Wizard) error) {
	key := sessionKey(r)
	if !s.guard.acquire(key) {
		s.fail(w, r, errSessionBusy)
		return
	}
	defer s.guard.release(key)

	ctx := requesterContext(r.Context(), key)
	snap, err := s.sessions.Get(ctx, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if snap == nil {
		s.fail(w, r, errNoSession)
		return
	}

	wiz := s.wizards.Restore(*snap)
	opErr := fn(ctx, wiz)

	var storeErr error
	if wiz.Step() == booking.StepClosed {
		storeErr = s.sessions.Delete(ctx, key)
	} else {
		storeErr = s.sessions.Save(ctx, key, wiz.Snapshot())
	}
	if storeErr != nil {
		s.log.Error().Err(storeErr).Str("session", key.String()).Msg("failed to store wizard session")
		if opErr == nil {
			s.fail(w, r, storeErr)
			return
		}
	}

	if opErr != nil {
		s.fail(w, r, opErr)
		return
	}
	writeJSON(w, http.StatusOK, wiz.View())
}
