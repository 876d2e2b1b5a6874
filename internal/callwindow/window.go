// Package callwindow decides whether outbound calls may be dispatched at a given instant.
//
// A Window is a pair of wall-clock times, both inclusive, read in one fixed time zone.
// Minutes are the finest granularity: 21:59:59 is still inside a window ending at 21:59.
// A window whose start is after its end is empty; overnight windows are not supported.
package callwindow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruslaninoyatov1/calling/internal/domain"
)

const (
	// DefaultTimezone is the zone the call window and "today" are evaluated in.
	DefaultTimezone = "Asia/Tashkent"

	hintStep = 5
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h). The hour may be a single digit; the minute may not.
func ParseClock(value string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%w: time of day %q must be HH:MM", domain.ErrValidation, value)
	}

	if len(hh) < 1 || len(hh) > 2 || !digitsOnly(hh) {
		return Clock{}, fmt.Errorf("%w: invalid hour in %q", domain.ErrValidation, value)
	}
	if len(mm) != 2 || !digitsOnly(mm) {
		return Clock{}, fmt.Errorf("%w: invalid minute in %q", domain.ErrValidation, value)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour > 23 {
		return Clock{}, fmt.Errorf("%w: invalid hour in %q", domain.ErrValidation, value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute > 59 {
		return Clock{}, fmt.Errorf("%w: invalid minute in %q", domain.ErrValidation, value)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// on returns the instant of c on the calendar day of day, in loc.
func (c Clock) on(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Window is the daily interval during which dispatch may run.
type Window struct {
	start Clock
	end   Clock
	loc   *time.Location
}

// New parses both bounds and loads the zone. Any malformed input is an error.
func New(start, end, timezone string) (Window, error) {
	startClock, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	endClock, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}

	if strings.TrimSpace(timezone) == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Window{}, fmt.Errorf("%w: unknown time zone %q: %v", domain.ErrValidation, timezone, err)
	}

	return NewInLocation(startClock, endClock, loc), nil
}

func NewInLocation(start, end Clock, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{start: start, end: end, loc: loc}
}

func (w Window) Start() Clock { return w.start }

func (w Window) End() Clock { return w.end }

func (w Window) Location() *time.Location { return w.location() }

// IsEmpty reports a window that can never contain an instant (start after end).
func (w Window) IsEmpty() bool { return w.start.Minutes() > w.end.Minutes() }

func (w Window) String() string {
	return w.start.String() + "-" + w.end.String() + " " + w.location().String()
}

func (w Window) location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// Contains reports whether now falls inside the window.
func (w Window) Contains(now time.Time) bool {
	local := now.In(w.location())
	current := local.Hour()*60 + local.Minute()
	return w.start.Minutes() <= current && current <= w.end.Minutes()
}

// Today is the calendar date of now in the window's zone.
func (w Window) Today(now time.Time) time.Time {
	return domain.DateOf(now.In(w.location()))
}

// NextEligible is an advisory hint for when dispatch is next worth trying: the next
// five-minute boundary while inside the window, today's start before it, and tomorrow's
// start once the window (or the rounded boundary) is past its end.
func (w Window) NextEligible(now time.Time) time.Time {
	loc := w.location()
	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	if current < w.start.Minutes() {
		return w.start.on(local, loc)
	}

	tomorrowStart := w.start.on(local.AddDate(0, 0, 1), loc)
	if current > w.end.Minutes() {
		return tomorrowStart
	}

	next := (local.Minute()/hintStep + 1) * hintStep
	y, m, d := local.Date()
	candidate := time.Date(y, m, d, local.Hour(), 0, 0, 0, loc).Add(time.Duration(next) * time.Minute)
	if candidate.After(w.end.on(local, loc)) {
		return tomorrowStart
	}
	return candidate
}
