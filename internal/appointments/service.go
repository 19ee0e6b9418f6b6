// Package appointments describes the external AppointmentService and provides an HTTP client for it.
package appointments

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"rentview/internal/models"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrRoomNotFound = errors.New("room not found")
	ErrConflict     = errors.New("appointment conflict")
	ErrInvalid      = errors.New("invalid appointment request")
)

// CreateRequest carries everything the wizard submits.
type CreateRequest struct {
	RoomRef           string          `json:"room_ref"`
	RequesterRef      string          `json:"requester_ref"`
	ScheduledDate     civil.Date      `json:"scheduled_date"`
	ScheduledTimeSlot models.TimeSlot `json:"scheduled_time_slot"`
	Contact           models.Contact  `json:"contact"`
	Notes             string          `json:"notes,omitempty"`
}

// Filter narrows list results. Zero values mean no restriction.
type Filter struct {
	Statuses []models.Status
	From     civil.Date
	To       civil.Date
}

// Match reports whether a passes the filter.
func (f Filter) Match(a models.Appointment) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == a.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != (civil.Date{}) && a.ScheduledDate.Before(f.From) {
		return false
	}
	if f.To != (civil.Date{}) && a.ScheduledDate.After(f.To) {
		return false
	}
	return true
}

// TransitionRequest is the body of a status transition.
type TransitionRequest struct {
	Action  models.Action `json:"action"`
	Message string        `json:"message,omitempty"`
}

// Creator submits new appointments.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) (*models.Appointment, error)
}

// Lister lists appointments per party.
type Lister interface {
	ListForRequester(ctx context.Context, requesterRef string, f Filter) ([]models.Appointment, error)
	ListForOwner(ctx context.Context, ownerRef string, f Filter) ([]models.Appointment, error)
}

// Transitioner changes status or removes appointments.
type Transitioner interface {
	Transition(ctx context.Context, id string, action models.Action, message string) (*models.Appointment, error)
	Remove(ctx context.Context, id string) error
}

// Service is the full external AppointmentService.
type Service interface {
	Creator
	Lister
	Transitioner
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("appointment service: http %d", e.Code)
	}
	return fmt.Sprintf("appointment service: http %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known codes to sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case 400, 422:
		return ErrInvalid
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	}
	return nil
}
