/*
search.go - Slot search with cascading overflow

PURPOSE:
  Finds the earliest slot at or after a requested (date, time) that can
  admit a quantity. The scan walks the fixed daily enumeration from the
  requested label through the end of that date, then rolls into the first
  label of subsequent dates.

  The lookahead is a bounded iterative loop, capped at HorizonDays; past
  the cap the search fails with a typed NoCapacityError instead of
  scanning forever.

  Availability reads here are ADVISORY: the caller must still win the
  atomic TryReserve on the returned slot, and may lose that race to a
  concurrent booking.

SEE ALSO:
  - ledger.go: Availability semantics
  - reservation.go: The TryReserve that makes the admission authoritative
*/
package schedule

import (
	"context"
	"errors"
)

// DefaultHorizonDays caps how far into the future the search will roll.
const DefaultHorizonDays = 30

// SlotSearch scans the ledger for admissible slots. Read-only.
type SlotSearch struct {
	Schedule    *Schedule
	Ledger      *SlotLedger
	HorizonDays int
}

// NewSlotSearch builds a search over the given schedule and ledger.
// A non-positive horizon falls back to DefaultHorizonDays.
func NewSlotSearch(sched *Schedule, ledger *SlotLedger, horizonDays int) *SlotSearch {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &SlotSearch{Schedule: sched, Ledger: ledger, HorizonDays: horizonDays}
}

// FindAdmissibleSlot returns the earliest slot at or after requested that
// currently has headroom for qty, and whether it differs from the request.
func (s *SlotSearch) FindAdmissibleSlot(ctx context.Context, requested SlotKey, qty int) (SlotKey, bool, error) {
	start := s.Schedule.IndexOf(requested.Time)
	if start < 0 {
		return SlotKey{}, false, &UnknownSlotLabelError{Label: requested.Time}
	}
	return s.scan(ctx, requested, start, qty)
}

// FindAfter returns the earliest admissible slot strictly after the given
// one. Used for the single retry after a lost capacity race.
func (s *SlotSearch) FindAfter(ctx context.Context, after SlotKey, origRequested SlotKey, qty int) (SlotKey, error) {
	idx := s.Schedule.IndexOf(after.Time)
	if idx < 0 {
		return SlotKey{}, &UnknownSlotLabelError{Label: after.Time}
	}
	day := after.Date
	start := idx + 1
	if start >= s.Schedule.Len() {
		day = day.AddDate(0, 0, 1)
		start = 0
	}
	key, _, err := s.scan(ctx, SlotKey{Date: day, Time: s.Schedule.At(start)}, start, qty)
	if err != nil {
		// Report the horizon relative to what the holder asked for.
		var noCap *NoCapacityError
		if errors.As(err, &noCap) {
			noCap.Requested = origRequested
		}
		return SlotKey{}, err
	}
	return key, nil
}

// scan walks labels [startIdx..end) on the first day, then full days up
// to the horizon.
func (s *SlotSearch) scan(ctx context.Context, from SlotKey, startIdx int, qty int) (SlotKey, bool, error) {
	day := from.Date
	idx := startIdx

	for offset := 0; offset <= s.HorizonDays; offset++ {
		for ; idx < s.Schedule.Len(); idx++ {
			candidate := SlotKey{Date: day, Time: s.Schedule.At(idx)}
			entry, err := s.Ledger.GetOrInit(ctx, candidate)
			if err != nil {
				return SlotKey{}, false, err
			}
			if entry.Available() >= qty {
				return candidate, !candidate.Equal(from), nil
			}
		}
		day = day.AddDate(0, 0, 1)
		idx = 0
	}

	return SlotKey{}, false, &NoCapacityError{
		Requested:   from,
		Quantity:    qty,
		HorizonDays: s.HorizonDays,
	}
}
