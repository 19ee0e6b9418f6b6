package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentview/internal/appointments"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

// withForwardedActor copies the caller identity from the request headers
// into the request context.
func withForwardedActor(r *http.Request) *http.Request {
	if actor, ok := appointments.ActorFromHeaders(r.Header); ok {
		return r.WithContext(appointments.WithActor(r.Context(), actor))
	}
	return r
}

// handleCreateAppointment stores a new pending appointment.
// POST /api/v1/appointments
func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_appointment")
	r = withForwardedActor(r)

	var req appointments.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := s.svc.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GET /api/v1/requesters/{ref}/appointments
func (s *HTTPServer) handleListForRequester(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_for_requester")
	s.list(w, r, s.svc.ListForRequester)
}

// GET /api/v1/owners/{ref}/appointments
func (s *HTTPServer) handleListForOwner(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_for_owner")
	s.list(w, r, func(ctx context.Context, ref string, f appointments.Filter) ([]models.Appointment, error) {
		list, err := s.svc.ListForOwner(ctx, ref, f)
		for i := range list {
			list[i] = list[i].RedactedFor(models.RoleOwner)
		}
		return list, err
	})
}

type listFunc func(ctx context.Context, ref string, f appointments.Filter) ([]models.Appointment, error)

func (s *HTTPServer) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	f, err := appointments.DecodeFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := fn(r.Context(), chi.URLParam(r, "ref"), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// handleTransition applies a status change.
// POST /api/v1/appointments/{id}/transitions
func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("transition")
	r = withForwardedActor(r)

	var req appointments.TransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := models.ParseAction(string(req.Action)); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := models.ValidateMessage(req.Message); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.svc.Transition(r.Context(), chi.URLParam(r, "id"), req.Action, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if actor, ok := appointments.ActorFrom(r.Context()); ok && actor.Role == models.RoleOwner {
		redacted := a.RedactedFor(models.RoleOwner)
		a = &redacted
	}
	writeJSON(w, http.StatusOK, a)
}

// handleRemove deletes a cancelled or completed appointment.
// DELETE /api/v1/appointments/{id}
func (s *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("remove")
	r = withForwardedActor(r)

	if err := s.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/rooms/{ref}
func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_room")
	if s.rooms == nil {
		writeError(w, http.StatusNotFound, "room catalog is not configured")
		return
	}
	room, err := s.rooms.GetRoom(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// handlePutRoom mirrors a room from the catalog. The path ref wins over the body.
// PUT /api/v1/rooms/{ref}
func (s *HTTPServer) handlePutRoom(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("put_room")
	if s.rooms == nil {
		writeError(w, http.StatusNotFound, "room catalog is not configured")
		return
	}
	var room models.Room
	if err := decodeBody(r, &room); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	room.Ref = chi.URLParam(r, "ref")
	if room.OwnerRef == "" {
		writeError(w, http.StatusBadRequest, "owner_ref is required")
		return
	}
	if err := s.rooms.PutRoom(r.Context(), room); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}
