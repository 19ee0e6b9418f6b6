// Package models holds the viewing appointment domain types shared by every layer.
package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
)

// MaxMessageLength limits counterpart messages and cancellation reasons (in runes).
const MaxMessageLength = 300

// Status is the lifecycle status of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// legacyCancelled is the alternate spelling some upstream rows still carry.
const legacyCancelled = "canceled"

var ErrUnknownStatus = errors.New("unknown appointment status")

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

// NormalizeStatus maps raw status text to its canonical value.
func NormalizeStatus(raw string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == legacyCancelled {
		return StatusCancelled, nil
	}
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return Status(s), nil
	}
	return "", ErrUnknownStatus
}

// UnmarshalText normalizes statuses on every JSON/text decode.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := NormalizeStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// IsTerminal reports whether no further status change is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Role is the viewer's relation to an appointment.
type Role string

const (
	RoleRequester Role = "requester"
	RoleOwner     Role = "owner"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleRequester, RoleOwner:
		return r, nil
	}
	return "", ErrUnknownRole
}

// Action is a state-changing request against an appointment.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionDelete   Action = "delete"
)

var ErrUnknownAction = errors.New("unknown action")

// ParseAction validates an action name.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionConfirm, ActionCancel, ActionComplete, ActionDelete:
		return a, nil
	}
	return "", ErrUnknownAction
}

// Contact is the requester contact info captured by the wizard.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Appointment is a scheduled room viewing.
type Appointment struct {
	ID                 string     `json:"id"`
	RoomRef            string     `json:"room_ref"`
	BuildingRef        string     `json:"building_ref"`
	RequesterRef       string     `json:"requester_ref"`
	OwnerRef           string     `json:"owner_ref"`
	ScheduledDate      civil.Date `json:"scheduled_date"`
	ScheduledTimeSlot  TimeSlot   `json:"scheduled_time_slot"`
	Status             Status     `json:"status"`
	Contact            Contact    `json:"contact"`
	Notes              string     `json:"notes,omitempty"`
	CounterpartMessage string     `json:"counterpart_message,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RedactedFor returns the copy of the appointment the given role may see.
// Owners get the requester phone only once the appointment is confirmed.
func (a Appointment) RedactedFor(role Role) Appointment {
	if role == RoleOwner && a.Status != StatusConfirmed {
		a.Contact.Phone = ""
	}
	return a
}

// CounterpartOf returns the party that should hear about a change made by actor.
func (a Appointment) CounterpartOf(actor Role) string {
	if actor == RoleOwner {
		return a.RequesterRef
	}
	return a.OwnerRef
}

// Room is the catalog summary mirrored for viewings.
type Room struct {
	Ref         string `json:"ref"`
	BuildingRef string `json:"building_ref"`
	OwnerRef    string `json:"owner_ref"`
	Title       string `json:"title"`
	Address     string `json:"address,omitempty"`
}

// Spellings returns every stored spelling of s.
func (s Status) Spellings() []string {
	if s == StatusCancelled {
		return []string{string(s), legacyCancelled}
	}
	return []string{string(s)}
}

var ErrMessageTooLong = errors.New("message is too long")

// ValidateMessage enforces MaxMessageLength in runes.
func ValidateMessage(msg string) error {
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
