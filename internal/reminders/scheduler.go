// Package reminders sends a once-a-day reminder for confirmed viewings taking
// place the next day.
package reminders

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"rentview/internal/appointments"
	"rentview/internal/models"
)

// Source lists appointments across all parties.
type Source interface {
	ListAll(ctx context.Context, f appointments.Filter) ([]models.Appointment, error)
}

// Sender delivers one reminder.
type Sender interface {
	Remind(ctx context.Context, a models.Appointment) error
}

// Config holds the daily run time.
type Config struct {
	// DailyHour is the hour (0-23) when reminders are processed.
	DailyHour int
	// DailyMinute is the minute (0-59) when reminders are processed.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
}

// Stats summarises one run.
type Stats struct {
	Total  int
	Sent   int
	Failed int
}

// Scheduler runs the reminder pass once per local day.
type Scheduler struct {
	config   Config
	source   Source
	sender   Sender
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRunDate civil.Date
	running     bool
}

func NewScheduler(cfg Config, source Source, sender Sender, loc *time.Location, logger zerolog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		config:   cfg,
		source:   source,
		sender:   sender,
		location: loc,
		now:      time.Now,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Start blocks checking the clock until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().
		Int("hour", s.config.DailyHour).
		Int("minute", s.config.DailyMinute).
		Msg("reminder scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun runs the pass when the daily time is reached and it has not run today.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.now().In(s.location)
	today := civil.DateOf(now)

	s.mu.Lock()
	if s.lastRunDate == today {
		s.mu.Unlock()
		return false
	}
	if now.Hour() < s.config.DailyHour ||
		(now.Hour() == s.config.DailyHour && now.Minute() < s.config.DailyMinute) {
		s.mu.Unlock()
		return false
	}
	s.lastRunDate = today
	s.mu.Unlock()

	s.RunNow(ctx)
	return true
}

// RunNow reminds both parties of every confirmed viewing scheduled for tomorrow.
func (s *Scheduler) RunNow(ctx context.Context) Stats {
	start := time.Now()
	tomorrow := civil.DateOf(s.now().In(s.location)).AddDays(1)

	list, err := s.source.ListAll(ctx, appointments.Filter{
		Statuses: []models.Status{models.StatusConfirmed},
		From:     tomorrow,
		To:       tomorrow,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch upcoming viewings")
		return Stats{}
	}

	stats := Stats{Total: len(list)}
	for _, a := range list {
		if ctx.Err() != nil {
			s.logger.Info().Int("remaining", stats.Total-stats.Sent-stats.Failed).Msg("reminder processing interrupted")
			break
		}
		if err := s.sender.Remind(ctx, a); err != nil {
			stats.Failed++
			s.logger.Warn().Err(err).Str("appointment_id", a.ID).Msg("reminder failed")
			continue
		}
		stats.Sent++
	}

	s.logger.Info().
		Str("date", tomorrow.String()).
		Int("total", stats.Total).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Dur("duration", time.Since(start)).
		Msg("daily reminders processed")
	return stats
}
