package market

import (
	"fmt"
	"time"
)

// DateFormat is the layout of every date key in the journal and caches.
const DateFormat = "2006-01-02"

// Calendar decides which days are trading days and when the session closes.
// Trading days are weekdays not listed in Holidays; without a configured
// holiday list, exchange holidays that fall on weekdays count as trading days.
type Calendar struct {
	Location    *time.Location
	CloseHour   int
	CloseMinute int
	Holidays    map[string]bool
}

// DefaultCalendar is the US equity session: New York time, 16:00 close.
func DefaultCalendar() Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Calendar{Location: loc, CloseHour: 16}
}

// NewCalendar builds a calendar from a zone name, a "HH:MM" close time and
// an optional list of holiday dates.
func NewCalendar(zone, closeTime string, holidays []string) (Calendar, error) {
	cal := DefaultCalendar()
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return Calendar{}, fmt.Errorf("load timezone %q: %w", zone, err)
		}
		cal.Location = loc
	}
	if closeTime != "" {
		t, err := time.Parse("15:04", closeTime)
		if err != nil {
			return Calendar{}, fmt.Errorf("parse close time %q: %w", closeTime, err)
		}
		cal.CloseHour, cal.CloseMinute = t.Hour(), t.Minute()
	}
	if len(holidays) > 0 {
		cal.Holidays = make(map[string]bool, len(holidays))
		for _, h := range holidays {
			if _, err := ParseDate(h); err != nil {
				return Calendar{}, fmt.Errorf("holiday: %w", err)
			}
			cal.Holidays[h] = true
		}
	}
	return cal, nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Today returns the calendar date of now in the session's location.
func (c Calendar) Today(now time.Time) string {
	return now.In(c.loc()).Format(DateFormat)
}

// IsTradingDay reports whether date is a weekday that is not a holiday.
func (c Calendar) IsTradingDay(date string) bool {
	if IsWeekend(date) {
		return false
	}
	return !c.Holidays[date]
}

// MostRecentTradingDay returns today when today trades, otherwise the last
// trading day before it.
func (c Calendar) MostRecentTradingDay(now time.Time) string {
	d := c.Today(now)
	for i := 0; i < 14 && !c.IsTradingDay(d); i++ {
		d = AddDays(d, -1)
	}
	return d
}

// PrevTradingDay returns the last trading day strictly before date.
func (c Calendar) PrevTradingDay(date string) string {
	d := AddDays(date, -1)
	for i := 0; i < 14 && !c.IsTradingDay(d); i++ {
		d = AddDays(d, -1)
	}
	return d
}

// AfterClose reports whether now is at or past today's session close.
func (c Calendar) AfterClose(now time.Time) bool {
	local := now.In(c.loc())
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), c.CloseHour, c.CloseMinute, 0, 0, c.loc())
	return !local.Before(closeAt)
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q want format %q: %w", s, DateFormat, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD in t's own location.
func FormatDate(t time.Time) string { return t.Format(DateFormat) }

// AddDays shifts a date key by n calendar days. An unparsable key is
// returned unchanged.
func AddDays(date string, n int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(DateFormat)
}

// Weekday returns the weekday of a date key.
func Weekday(date string) time.Weekday {
	t, err := ParseDate(date)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

func IsWeekend(date string) bool {
	wd := Weekday(date)
	return wd == time.Saturday || wd == time.Sunday
}

// PrevBusinessDay returns the weekday immediately before date.
func PrevBusinessDay(date string) string {
	d := AddDays(date, -1)
	for IsWeekend(d) {
		d = AddDays(d, -1)
	}
	return d
}

// Days returns every date from..to inclusive. Date keys compare correctly as
// strings, so from > to yields nil.
func Days(from, to string) []string {
	if from > to {
		return nil
	}
	if _, err := ParseDate(from); err != nil {
		return nil
	}
	if _, err := ParseDate(to); err != nil {
		return nil
	}
	var out []string
	for d := from; d <= to; d = AddDays(d, 1) {
		out = append(out, d)
	}
	return out
}
