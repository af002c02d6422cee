// Package scheduling holds the pure scheduling rules: the daily slot grid,
// availability, the booking lifecycle and the money policies. Nothing in this
// package touches storage or reads the wall clock; "now" is always a parameter.
package scheduling

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, NewValidationError("time", fmt.Sprintf("%q is not a valid HH:MM time", s))
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MarshalText renders the time as "HH:MM" in JSON payloads.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, NewValidationError("date", fmt.Sprintf("%q is not a valid YYYY-MM-DD date", s))
	}
	return DateOf(t, time.UTC), nil
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Bounds returns [midnight, next midnight) of the day in loc.
func (d Date) Bounds(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
	return start, end
}

// Combine anchors a time of day on a date in loc.
func Combine(d Date, t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

func AddMinutes(t time.Time, minutes int) time.Time {
	return t.Add(time.Duration(minutes) * time.Minute)
}

// IsPast reports whether date+time is not strictly after now.
func IsPast(d Date, t TimeOfDay, now time.Time, loc *time.Location) bool {
	return !Combine(d, t, loc).After(now)
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Grid is the fixed daily slot grid shared by providers: starts every Step
// from Open through Close inclusive, minus starts inside [BreakStart, BreakEnd).
type Grid struct {
	Open       TimeOfDay
	Close      TimeOfDay
	Step       int // minutes
	BreakStart TimeOfDay
	BreakEnd   TimeOfDay
	Location   *time.Location
	LeadTime   time.Duration
}

// GridSpec is the string form of a Grid as it appears in configuration.
type GridSpec struct {
	Timezone   string
	Open       string
	Close      string
	StepMins   int
	BreakStart string
	BreakEnd   string
	LeadMins   int
}

func NewGrid(spec GridSpec) (Grid, error) {
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		return Grid{}, fmt.Errorf("load timezone %q: %w", spec.Timezone, err)
	}

	open, err := ParseTimeOfDay(spec.Open)
	if err != nil {
		return Grid{}, err
	}
	closing, err := ParseTimeOfDay(spec.Close)
	if err != nil {
		return Grid{}, err
	}

	g := Grid{
		Open:     open,
		Close:    closing,
		Step:     spec.StepMins,
		Location: loc,
		LeadTime: time.Duration(spec.LeadMins) * time.Minute,
	}

	if spec.BreakStart != "" && spec.BreakEnd != "" {
		if g.BreakStart, err = ParseTimeOfDay(spec.BreakStart); err != nil {
			return Grid{}, err
		}
		if g.BreakEnd, err = ParseTimeOfDay(spec.BreakEnd); err != nil {
			return Grid{}, err
		}
	}

	if g.Step <= 0 {
		return Grid{}, fmt.Errorf("grid step must be positive, got %d", g.Step)
	}
	if g.Close < g.Open {
		return Grid{}, fmt.Errorf("grid closes (%s) before it opens (%s)", g.Close, g.Open)
	}
	if g.BreakEnd < g.BreakStart {
		return Grid{}, fmt.Errorf("break ends (%s) before it starts (%s)", g.BreakEnd, g.BreakStart)
	}
	return g, nil
}

func (g Grid) inBreak(t TimeOfDay) bool {
	return t >= g.BreakStart && t < g.BreakEnd
}

// DailySlotGrid returns the candidate start times for one day in order.
// The grid is the same every day; date is accepted so callers never assume it.
func (g Grid) DailySlotGrid(_ Date) []TimeOfDay {
	var slots []TimeOfDay
	for t := g.Open; t <= g.Close; t += TimeOfDay(g.Step) {
		if g.inBreak(t) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

// OnGrid reports whether t is one of the grid's start times.
func (g Grid) OnGrid(t TimeOfDay) bool {
	if t < g.Open || t > g.Close || g.inBreak(t) {
		return false
	}
	return int(t-g.Open)%g.Step == 0
}

// Bookable reports whether a start at t on d leaves at least LeadTime before it.
func (g Grid) Bookable(d Date, t TimeOfDay, now time.Time) bool {
	return !Combine(d, t, g.Location).Before(now.Add(g.LeadTime))
}
