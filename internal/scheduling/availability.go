package scheduling

import (
	"sort"
	"time"
)

// AvailableSlots returns the grid start times on d where a service of
// durationMinutes fits without touching any busy interval, in chronological
// order. Starts closer to now than the grid's lead time are dropped, which
// also drops every start on a past day.
//
// The result is a snapshot. Reservation must re-check overlap atomically.
func AvailableSlots(g Grid, d Date, durationMinutes int, now time.Time, busy []Interval) ([]TimeOfDay, error) {
	free, err := FreeSlots(g, d, durationMinutes, busy)
	if err != nil {
		return nil, err
	}
	return Upcoming(g, d, free, now), nil
}

// FreeSlots is AvailableSlots without the clock: every grid start on d whose
// [start, start+duration) overlaps no busy interval.
func FreeSlots(g Grid, d Date, durationMinutes int, busy []Interval) ([]TimeOfDay, error) {
	if durationMinutes <= 0 {
		return nil, NewValidationError("duration", "must be a positive number of minutes")
	}

	candidates := g.DailySlotGrid(d)
	slots := make([]TimeOfDay, 0, len(candidates))

	for _, t := range candidates {
		start := Combine(d, t, g.Location)
		want := Interval{Start: start, End: AddMinutes(start, durationMinutes)}
		if _, hit := FindConflict(want, busy); hit {
			continue
		}
		slots = append(slots, t)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots, nil
}

// Upcoming keeps the slots of d that can still be booked at now.
func Upcoming(g Grid, d Date, slots []TimeOfDay, now time.Time) []TimeOfDay {
	kept := make([]TimeOfDay, 0, len(slots))
	for _, t := range slots {
		if IsPast(d, t, now, g.Location) || !g.Bookable(d, t, now) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// FindConflict returns the first busy interval overlapping want, if any.
func FindConflict(want Interval, busy []Interval) (Interval, bool) {
	for _, b := range busy {
		if want.Overlaps(b) {
			return b, true
		}
	}
	return Interval{}, false
}
