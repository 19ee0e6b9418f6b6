// Package calendar builds the selectable month day-grid of the viewing wizard.
package calendar

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Month is a month cursor.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d civil.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// First returns the 1st day of the month.
func (m Month) First() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Last returns the last day of the month.
func (m Month) Last() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: daysIn(m.Month, m.Year)}
}

// Add moves the cursor by n months.
func (m Month) Add(n int) Month {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

// Contains reports whether d falls in the month.
func (m Month) Contains(d civil.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalText encodes the cursor as YYYY-MM.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a YYYY-MM cursor.
func (m *Month) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return fmt.Errorf("invalid month %q: %w", string(b), err)
	}
	*m = Month{Year: t.Year(), Month: t.Month()}
	return nil
}

// Day is one cell of the month grid.
type Day struct {
	Date           civil.Date `json:"date"`
	IsCurrentMonth bool       `json:"is_current_month"`
	IsPast         bool       `json:"is_past"`
	IsSelected     bool       `json:"is_selected"`
}

// Selectable reports whether the day may be picked. Today is selectable.
func (d Day) Selectable() bool {
	return d.IsCurrentMonth && !d.IsPast
}

// Generator builds grids for a given first day of the week.
type Generator struct {
	WeekStart time.Weekday
}

// DefaultGenerator uses Monday-first weeks.
var DefaultGenerator = Generator{WeekStart: time.Monday}

// GenerateMonthGrid builds the grid for cursor with no selection.
func GenerateMonthGrid(cursor Month, today civil.Date) []Day {
	return DefaultGenerator.Grid(cursor, today, civil.Date{})
}

// Grid returns whole weeks from the week holding the 1st of the cursor month
// to the week holding its last day. The result length is a multiple of 7.
func (g Generator) Grid(cursor Month, today, selected civil.Date) []Day {
	first := cursor.First()
	last := cursor.Last()
	start := first.AddDays(-g.offset(first))
	end := last.AddDays(6 - g.offset(last))

	days := make([]Day, 0, 42)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, Day{
			Date:           d,
			IsCurrentMonth: cursor.Contains(d),
			IsPast:         d.Before(today),
			IsSelected:     d == selected,
		})
	}
	return days
}

// Lookup finds the cell for d in the cursor month grid.
func (g Generator) Lookup(cursor Month, today, d civil.Date) (Day, bool) {
	for _, day := range g.Grid(cursor, today, civil.Date{}) {
		if day.Date == d {
			return day, true
		}
	}
	return Day{}, false
}

// offset is the number of days between the week start and d.
func (g Generator) offset(d civil.Date) int {
	wd := d.In(time.UTC).Weekday()
	return (int(wd) - int(g.WeekStart) + 7) % 7
}

// CanNavigate reports whether target may be displayed: only months of the
// current year, from the current month forward.
func CanNavigate(target Month, today civil.Date) bool {
	current := MonthOf(today)
	return target.Year == current.Year && !target.Before(current)
}

// Navigate moves the cursor by delta months when the target is reachable.
func Navigate(cursor Month, delta int, today civil.Date) (Month, bool) {
	target := cursor.Add(delta)
	if !CanNavigate(target, today) {
		return cursor, false
	}
	return target, true
}

// DefaultSelection is today for the current month and the 1st otherwise.
func DefaultSelection(m Month, today civil.Date) civil.Date {
	if m.Contains(today) {
		return today
	}
	return m.First()
}

// ParseWeekStart maps a config value to a weekday. Empty means Monday.
func ParseWeekStart(s string) (time.Weekday, error) {
	switch s {
	case "", "monday":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Monday, fmt.Errorf("unsupported week start %q", s)
}

func daysIn(m time.Month, year int) int {
	switch m {
	case time.February:
		if (year%4 == 0 && year%100 != 0) || year%400 == 0 {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}
