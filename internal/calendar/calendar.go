// Package calendar implements business-day arithmetic. Saturdays, Sundays and
// configured holidays are never business days.
package calendar

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar answers business-day questions in a fixed location. It is
// immutable after construction and safe for concurrent use.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New builds a calendar. A nil location means UTC.
func New(loc *time.Location, holidays ...time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format(dateLayout)] = struct{}{}
	}
	return c
}

// ParseHolidays parses YYYY-MM-DD dates from configuration.
func ParseHolidays(values []string, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", v, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsBusinessDay reports whether t's date, in the calendar location, is a working day.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	t = t.In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format(dateLayout)]
	return !holiday
}

// BusinessDaysBetween counts business dates d with date(from) < d <= date(to).
// A document received on Monday has 0 elapsed days on Monday and 1 on Tuesday.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	start := c.dateOf(from)
	end := c.dateOf(to)
	if !end.After(start) {
		return 0
	}
	n := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// AddBusinessDays moves t forward by n business days, keeping the time of day.
// n <= 0 returns t unchanged.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	if n <= 0 {
		return t
	}
	d := t.In(c.loc)
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if c.IsBusinessDay(d) {
			n--
		}
	}
	return d
}

func (c *Calendar) dateOf(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}
