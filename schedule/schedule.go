/*
schedule.go - The fixed daily time-of-day enumeration

PURPOSE:
  Defines the closed, ordered set of time-of-day labels that make up the
  operating day. Every SlotKey's Time must be one of these labels; unknown
  labels are rejected before any mutation.

  The enumeration is configuration, not code: callers inject their own
  Schedule (or use DefaultSchedule, the half-hour grid from 08:00 AM to
  08:00 PM the venue runs on).

SEE ALSO:
  - search.go: Iterates the enumeration to find admissible slots
  - types.go: SlotKey
*/
package schedule

import (
	"fmt"
	"time"
)

// TimeOfDay is one label from the fixed daily enumeration, e.g. "09:30 AM".
type TimeOfDay string

// Schedule is a closed ordered set of time-of-day labels spanning the
// operating day. Immutable after construction.
type Schedule struct {
	labels []TimeOfDay
	index  map[TimeOfDay]int
}

// NewSchedule builds a schedule from an ordered label list. Labels must
// be unique and parse as clock times ("03:04 PM").
func NewSchedule(labels []TimeOfDay) (*Schedule, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("schedule requires at least one label")
	}
	index := make(map[TimeOfDay]int, len(labels))
	for i, l := range labels {
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("duplicate schedule label %q", l)
		}
		if _, err := time.Parse(clockLayout, string(l)); err != nil {
			return nil, fmt.Errorf("invalid schedule label %q: %w", l, err)
		}
		index[l] = i
	}
	return &Schedule{labels: append([]TimeOfDay(nil), labels...), index: index}, nil
}

// MustSchedule is NewSchedule that panics on error. For package-level defaults.
func MustSchedule(labels []TimeOfDay) *Schedule {
	s, err := NewSchedule(labels)
	if err != nil {
		panic(err)
	}
	return s
}

const clockLayout = "03:04 PM"

// DefaultSchedule returns the standard operating day: half-hour slots
// from 08:00 AM through 08:00 PM.
func DefaultSchedule() *Schedule {
	return MustSchedule([]TimeOfDay{
		"08:00 AM", "08:30 AM", "09:00 AM", "09:30 AM",
		"10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM",
		"12:00 PM", "12:30 PM", "01:00 PM", "01:30 PM",
		"02:00 PM", "02:30 PM", "03:00 PM", "03:30 PM",
		"04:00 PM", "04:30 PM", "05:00 PM", "05:30 PM",
		"06:00 PM", "06:30 PM", "07:00 PM", "07:30 PM",
		"08:00 PM",
	})
}

// Len returns the number of labels in the operating day.
func (s *Schedule) Len() int { return len(s.labels) }

// Labels returns a copy of the ordered label list.
func (s *Schedule) Labels() []TimeOfDay {
	return append([]TimeOfDay(nil), s.labels...)
}

// Contains reports whether the label belongs to the enumeration.
func (s *Schedule) Contains(label TimeOfDay) bool {
	_, ok := s.index[label]
	return ok
}

// IndexOf returns the position of the label, or -1 if unknown.
func (s *Schedule) IndexOf(label TimeOfDay) int {
	i, ok := s.index[label]
	if !ok {
		return -1
	}
	return i
}

// At returns the label at position i.
func (s *Schedule) At(i int) TimeOfDay { return s.labels[i] }

// First returns the opening label of the day.
func (s *Schedule) First() TimeOfDay { return s.labels[0] }

// Next returns the label following the given one, or false when the given
// label is the last of the day (or unknown).
func (s *Schedule) Next(label TimeOfDay) (TimeOfDay, bool) {
	i, ok := s.index[label]
	if !ok || i+1 >= len(s.labels) {
		return "", false
	}
	return s.labels[i+1], true
}

// StartTime returns the wall-clock start of the slot identified by key,
// in UTC. The key's label must belong to this schedule.
func (s *Schedule) StartTime(key SlotKey) (time.Time, error) {
	if !s.Contains(key.Time) {
		return time.Time{}, &UnknownSlotLabelError{Label: key.Time}
	}
	clock, err := time.Parse(clockLayout, string(key.Time))
	if err != nil {
		return time.Time{}, &UnknownSlotLabelError{Label: key.Time}
	}
	d := key.Date
	return time.Date(d.Year(), d.Month(), d.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}
