// Package notify tells the other party of an appointment about changes via Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rentview/internal/events"
	"rentview/internal/metrics"
	"rentview/internal/models"
)

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatDirectory resolves party refs to Telegram chat ids.
type ChatDirectory interface {
	ChatID(ref string) (int64, bool)
}

// StaticChats is a ChatDirectory loaded from configuration.
type StaticChats map[string]int64

func (c StaticChats) ChatID(ref string) (int64, bool) {
	id, ok := c[ref]
	return id, ok
}

// NewBotSender connects to the Telegram bot API.
func NewBotSender(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return api, nil
}

type Notifier struct {
	sender  TelegramSender
	chats   ChatDirectory
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
}

func NewNotifier(sender TelegramSender, chats ChatDirectory, ratePerSecond float64, logger zerolog.Logger) *Notifier {
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	return &Notifier{
		sender:  sender,
		chats:   chats,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier on bus.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.Handle, events.TypeAppointmentCreated, events.TypeAppointmentTransitioned)
}

// Handle is the event handler. Delivery failures never undo the stored change.
func (n *Notifier) Handle(e events.Event) error {
	change, err := events.DecodeChange(e)
	if err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	return n.Notify(ctx, e.Type, change)
}

// Notify sends the change to every recipient that has a known chat.
func (n *Notifier) Notify(ctx context.Context, eventType string, change events.AppointmentChange) error {
	text := Message(eventType, change)
	if text == "" {
		return nil
	}

	return n.deliver(ctx, Recipients(eventType, change), change.Appointment.ID, text)
}

// Remind tells both parties of a confirmed viewing that it is coming up.
func (n *Notifier) Remind(ctx context.Context, a models.Appointment) error {
	return n.deliver(ctx, []string{a.RequesterRef, a.OwnerRef}, a.ID, ReminderMessage(a))
}

func (n *Notifier) deliver(ctx context.Context, refs []string, appointmentID, text string) error {
	var errs []error
	for _, ref := range refs {
		chatID, ok := n.chats.ChatID(ref)
		if !ok {
			metrics.IncNotificationSent("no_chat")
			n.logger.Debug().Str("ref", ref).Msg("no telegram chat for party")
			continue
		}
		if err := n.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rate limiter: %w", err))
			break
		}
		if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			metrics.IncNotificationSent("failed")
			n.logger.Warn().Err(err).
				Str("ref", ref).
				Str("appointment_id", appointmentID).
				Msg("telegram delivery failed")
			errs = append(errs, err)
			continue
		}
		metrics.IncNotificationSent("sent")
	}
	return errors.Join(errs...)
}

// Recipients returns who hears about a change. Without a known actor both parties do.
func Recipients(eventType string, change events.AppointmentChange) []string {
	a := change.Appointment
	if eventType == events.TypeAppointmentCreated {
		return []string{a.OwnerRef}
	}
	switch change.ActorRole {
	case models.RoleOwner, models.RoleRequester:
		return []string{a.CounterpartOf(change.ActorRole)}
	}
	return []string{a.RequesterRef, a.OwnerRef}
}

// Message renders the notification text. The requester phone is never included.
func Message(eventType string, change events.AppointmentChange) string {
	a := change.Appointment
	when := viewingTime(a)

	var b strings.Builder
	switch {
	case eventType == events.TypeAppointmentCreated:
		fmt.Fprintf(&b, "New viewing request for room %s on %s from %s.", a.RoomRef, when, a.Contact.Name)
		if a.Notes != "" {
			fmt.Fprintf(&b, "\nNotes: %s", a.Notes)
		}
		return b.String()
	case change.Action == models.ActionConfirm:
		fmt.Fprintf(&b, "Your viewing of room %s on %s was confirmed.", a.RoomRef, when)
	case change.Action == models.ActionComplete:
		fmt.Fprintf(&b, "The viewing of room %s on %s was marked as completed.", a.RoomRef, when)
	case change.Action == models.ActionCancel:
		fmt.Fprintf(&b, "The viewing of room %s on %s was cancelled.", a.RoomRef, when)
		if a.CancellationReason != "" {
			fmt.Fprintf(&b, "\nReason: %s", a.CancellationReason)
		}
		return b.String()
	default:
		return ""
	}
	if a.CounterpartMessage != "" {
		fmt.Fprintf(&b, "\nMessage: %s", a.CounterpartMessage)
	}
	return b.String()
}

// ReminderMessage renders the day-before reminder of a confirmed viewing.
func ReminderMessage(a models.Appointment) string {
	return fmt.Sprintf("Reminder: the viewing of room %s is on %s.", a.RoomRef, viewingTime(a))
}

func viewingTime(a models.Appointment) string {
	return fmt.Sprintf("%s at %s", a.ScheduledDate.In(time.UTC).Format("Mon, 2 Jan 2006"), a.ScheduledTimeSlot)
}
