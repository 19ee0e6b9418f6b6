// Package database is the SQLite implementation of the appointment service.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"rentview/internal/events"
)

// DB wraps the SQLite connection and announces every stored change.
type DB struct {
	*sql.DB
	path      string
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
	logger    *zerolog.Logger
}

// NewDB opens the database and creates tables if they don't exist.
// Dates are judged against the calendar of loc; nil means time.Local.
func NewDB(path string, publisher events.Publisher, loc *time.Location, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	instance := &DB{
		DB:        db,
		path:      path,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			ref TEXT PRIMARY KEY,
			building_ref TEXT NOT NULL DEFAULT '',
			owner_ref TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_owner ON rooms(owner_ref)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			room_ref TEXT NOT NULL,
			building_ref TEXT NOT NULL DEFAULT '',
			requester_ref TEXT NOT NULL,
			owner_ref TEXT NOT NULL,
			scheduled_date TEXT NOT NULL,
			scheduled_time_slot TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			contact_name TEXT NOT NULL,
			contact_phone TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(room_ref) REFERENCES rooms(ref)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_requester ON appointments(requester_ref, scheduled_date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_owner ON appointments(owner_ref, scheduled_date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_slot ON appointments(room_ref, scheduled_date, scheduled_time_slot, status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return db.ensureNewColumns()
}

// ensureNewColumns adds columns introduced after the first schema.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE appointments ADD COLUMN counterpart_message TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE appointments ADD COLUMN cancellation_reason TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("migration %q: %w", m, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ready checks the connection; used by readiness probes.
func (db *DB) Ready(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) publish(eventType string, change events.AppointmentChange) {
	if db.publisher == nil {
		return
	}
	ev, err := events.NewAppointmentEvent(eventType, change)
	if err != nil {
		db.logger.Error().Err(err).Str("type", eventType).Msg("Failed to build event")
		return
	}
	if err := db.publisher.Publish(ev); err != nil {
		db.logger.Warn().Err(err).Str("type", eventType).Str("appointment_id", change.Appointment.ID).Msg("Event subscribers failed")
	}
}
