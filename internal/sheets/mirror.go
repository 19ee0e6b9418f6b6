// Package sheets mirrors appointments into a Google spreadsheet, one row per appointment.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"rentview/internal/events"
	"rentview/internal/models"
)

// Header is the first row of the mirror sheet. The phone is never mirrored.
var Header = []any{"ID", "Date", "Time slot", "Room", "Building", "Status", "Requester", "Created", "Updated"}

var rowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// NewService builds a Sheets client from a service account key file.
func NewService(ctx context.Context, credentialsFile string) (*sheets.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return srv, nil
}

type Mirror struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetName     string
	timeout       time.Duration
	logger        zerolog.Logger

	mu       sync.Mutex
	rowCache map[string]int
}

func NewMirror(srv *sheets.Service, spreadsheetID, sheetName string, logger zerolog.Logger) *Mirror {
	return &Mirror{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		timeout:       15 * time.Second,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[string]int),
	}
}

// Subscribe registers the mirror on bus.
func (m *Mirror) Subscribe(bus *events.EventBus) {
	bus.Subscribe(m.Handle, events.TypeAppointmentCreated, events.TypeAppointmentTransitioned, events.TypeAppointmentRemoved)
}

// Handle applies one appointment event to the sheet.
func (m *Mirror) Handle(e events.Event) error {
	change, err := events.DecodeChange(e)
	if err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if e.Type == events.TypeAppointmentRemoved {
		return m.Clear(ctx, change.Appointment.ID)
	}
	return m.Upsert(ctx, change.Appointment)
}

// EnsureHeader writes the header row when the sheet is empty.
func (m *Mirror) EnsureHeader(ctx context.Context) error {
	resp, err := m.srv.Spreadsheets.Values.Get(m.spreadsheetID, m.rangeOf(1)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	return m.write(ctx, 1, Header)
}

// Upsert updates the appointment's row, appending one when it has none.
func (m *Mirror) Upsert(ctx context.Context, a models.Appointment) error {
	row, ok, err := m.findRow(ctx, a.ID)
	if err != nil {
		return err
	}
	values := rowValues(a)
	if ok {
		return m.write(ctx, row, values)
	}

	resp, err := m.srv.Spreadsheets.Values.Append(m.spreadsheetID, m.sheetName+"!A:I", &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil {
		if n, ok := parseRow(resp.Updates.UpdatedRange); ok {
			m.setCachedRow(a.ID, n)
		}
	}
	m.logger.Debug().Str("appointment_id", a.ID).Msg("row appended")
	return nil
}

// Clear blanks the appointment's row.
func (m *Mirror) Clear(ctx context.Context, id string) error {
	row, ok, err := m.findRow(ctx, id)
	if err != nil || !ok {
		return err
	}
	if _, err := m.srv.Spreadsheets.Values.Clear(m.spreadsheetID, m.rangeOf(row), &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear row: %w", err)
	}
	m.deleteCachedRow(id)
	return nil
}

func (m *Mirror) write(ctx context.Context, row int, values []any) error {
	_, err := m.srv.Spreadsheets.Values.Update(m.spreadsheetID, m.rangeOf(row), &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}

// findRow looks the id up in the cache, then in column A.
func (m *Mirror) findRow(ctx context.Context, id string) (int, bool, error) {
	if row, ok := m.getCachedRow(id); ok {
		return row, true, nil
	}
	resp, err := m.srv.Spreadsheets.Values.Get(m.spreadsheetID, m.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read ids: %w", err)
	}
	for i, r := range resp.Values {
		if len(r) > 0 && fmt.Sprint(r[0]) == id {
			m.setCachedRow(id, i+1)
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

func (m *Mirror) rangeOf(row int) string {
	return fmt.Sprintf("%s!A%d:I%d", m.sheetName, row, row)
}

func (m *Mirror) getCachedRow(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rowCache[id]
	return row, ok
}

func (m *Mirror) setCachedRow(id string, row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowCache[id] = row
}

func (m *Mirror) deleteCachedRow(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rowCache, id)
}

// ClearCache forgets every known row position.
func (m *Mirror) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowCache = make(map[string]int)
}

func rowValues(a models.Appointment) []any {
	return []any{
		a.ID,
		a.ScheduledDate.String(),
		string(a.ScheduledTimeSlot),
		a.RoomRef,
		a.BuildingRef,
		string(a.Status),
		a.Contact.Name,
		a.CreatedAt.Format("2006-01-02 15:04:05"),
		a.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func parseRow(updatedRange string) (int, bool) {
	match := rowPattern.FindStringSubmatch(updatedRange)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	return n, err == nil
}
