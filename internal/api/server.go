// Package api exposes the appointment service, the booking wizard and the
// role dashboards over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"rentview/internal/appointments"
	"rentview/internal/booking"
	"rentview/internal/coordinator"
	"rentview/internal/models"
)

// RoomCatalog resolves and stores the rooms viewings are booked for.
type RoomCatalog interface {
	GetRoom(ctx context.Context, ref string) (*models.Room, error)
	PutRoom(ctx context.Context, r models.Room) error
}

// Deps are the collaborators the HTTP server dispatches to.
type Deps struct {
	Service  appointments.Service
	Rooms    RoomCatalog
	Wizards  *booking.Factory
	Sessions booking.SessionStore
	Tracker  *coordinator.Tracker
	APIKey   string
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	server   *http.Server
	svc      appointments.Service
	rooms    RoomCatalog
	wizards  *booking.Factory
	sessions booking.SessionStore
	tracker  *coordinator.Tracker
	apiKey   string
	guard    *sessionGuard
	log      zerolog.Logger
}

// NewHTTPServer builds the router and the underlying http.Server.
func NewHTTPServer(addr string, deps Deps, logger zerolog.Logger) *HTTPServer {
	if deps.Tracker == nil {
		deps.Tracker = coordinator.NewTracker()
	}
	s := &HTTPServer{
		svc:      deps.Service,
		rooms:    deps.Rooms,
		wizards:  deps.Wizards,
		sessions: deps.Sessions,
		tracker:  deps.Tracker,
		apiKey:   deps.APIKey,
		guard:    newSessionGuard(),
		log:      logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests until Shutdown.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth)

		r.Post("/appointments", s.handleCreateAppointment)
		r.Get("/requesters/{ref}/appointments", s.handleListForRequester)
		r.Get("/owners/{ref}/appointments", s.handleListForOwner)
		r.Post("/appointments/{id}/transitions", s.handleTransition)
		r.Delete("/appointments/{id}", s.handleRemove)
		r.Get("/rooms/{ref}", s.handleGetRoom)
		r.Put("/rooms/{ref}", s.handlePutRoom)

		r.Route("/wizard/{requester}/{room}", func(r chi.Router) {
			r.Post("/", s.handleWizardOpen)
			r.Get("/", s.handleWizardView)
			r.Post("/date", s.handleWizardDate)
			r.Post("/slot", s.handleWizardSlot)
			r.Post("/month", s.handleWizardMonth)
			r.Post("/continue", s.handleWizardContinue)
			r.Post("/back", s.handleWizardBack)
			r.Delete("/", s.handleWizardClose)
		})

		r.Route("/dashboard/{role}/{viewer}", func(r chi.Router) {
			r.Get("/", s.handleDashboard)
			r.Get("/export.xlsx", s.handleDashboardExport)
			r.Get("/appointments/{id}/prompt", s.handleActionPrompt)
			r.Post("/appointments/{id}/actions", s.handleAction)
		})
	})
	return r
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// fail maps err onto a status code and writes it.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, appointments.ErrInvalid),
		errors.Is(err, booking.ErrContactIncomplete),
		errors.Is(err, booking.ErrDateRequired),
		errors.Is(err, booking.ErrSlotRequired),
		errors.Is(err, booking.ErrDayNotSelectable),
		errors.Is(err, booking.ErrMonthUnavailable),
		errors.Is(err, models.ErrUnknownSlot),
		errors.Is(err, models.ErrUnknownRole),
		errors.Is(err, models.ErrUnknownAction),
		errors.Is(err, models.ErrUnknownStatus),
		errors.Is(err, models.ErrMessageTooLong),
		errors.Is(err, coordinator.ErrReasonRequired),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, appointments.ErrNotFound),
		errors.Is(err, appointments.ErrRoomNotFound),
		errors.Is(err, coordinator.ErrNotFound),
		errors.Is(err, errNoSession):
		return http.StatusNotFound
	case errors.Is(err, appointments.ErrConflict),
		errors.Is(err, booking.ErrWrongStep),
		errors.Is(err, booking.ErrTerminalStep),
		errors.Is(err, booking.ErrClosed),
		errors.Is(err, booking.ErrSubmitInProgress),
		errors.Is(err, errSessionBusy):
		return http.StatusConflict
	case errors.Is(err, booking.ErrSubmitFailed),
		errors.Is(err, errListUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
