// Package export renders dashboard rows as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"rentview/internal/models"
	"rentview/internal/registry"
)

// Columns of the appointments sheet.
var Columns = []string{
	"Date", "Time slot", "Room", "Building", "Status",
	"Requester", "Phone", "Email", "Notes", "Message", "Cancellation reason", "Created",
}

// sheetWriter appends rows to named sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	if err := w.writeRow(values); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// OwnerWorkbook writes the owner's rows and per-status totals to out.
// Rows are written as given, so phone redaction already applied stays applied.
func OwnerWorkbook(out io.Writer, rows []registry.Row, counts map[models.Status]int, generatedAt time.Time) error {
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet("Appointments"); err != nil {
		return err
	}
	if err := w.writeHeader(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.writeRow([]any{
			r.ScheduledDate.String(),
			string(r.ScheduledTimeSlot),
			r.RoomRef,
			r.BuildingRef,
			string(r.Status),
			r.Contact.Name,
			r.Contact.Phone,
			r.Contact.Email,
			r.Notes,
			r.CounterpartMessage,
			r.CancellationReason,
			r.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("write appointment %s: %w", r.ID, err)
		}
	}

	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Status", "Count"}); err != nil {
		return err
	}
	for _, s := range models.AllStatuses {
		if err := w.writeRow([]any{string(s), counts[s]}); err != nil {
			return err
		}
	}
	if err := w.writeRow([]any{"Generated", generatedAt.Format(time.RFC3339)}); err != nil {
		return err
	}

	return w.file.Write(out)
}
