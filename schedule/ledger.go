/*
ledger.go - The slot capacity ledger

PURPOSE:
  The ledger is the source of truth for per-slot load. Exactly one writer
  ADDS load (ReservationService, via TryReserve) and three writers REMOVE
  it (AdmissionService on expiry-at-scan, CancellationService, and the
  ExpirySweeper, via Release). All four serialize against the same row
  through the store's atomic conditional updates.

CRITICAL INVARIANTS:
  1. 0 <= reserved <= capacity at every committed state
  2. TryReserve is linearizable per key: no two successful calls may
     together push reserved above capacity
  3. Release floors at zero; a double-release is clamped, never negative
  4. Availability is a point-in-time read for display only - it is NEVER
     an admission decision; TryReserve is the only authority

SEE ALSO:
  - store.go: The atomic operations the ledger delegates to
  - search.go: Read-only consumer of availability
*/
package schedule

import (
	"context"
	"fmt"
)

// SlotLedger is a typed facade over the store's ledger operations. It
// owns the default capacity applied when rows are created lazily.
type SlotLedger struct {
	Store           Store
	DefaultCapacity int
}

// NewSlotLedger builds a ledger facade. A non-positive defaultCapacity
// falls back to DefaultSlotCapacity.
func NewSlotLedger(store Store, defaultCapacity int) *SlotLedger {
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultSlotCapacity
	}
	return &SlotLedger{Store: store, DefaultCapacity: defaultCapacity}
}

// GetOrInit returns the ledger entry for key, creating it lazily.
func (l *SlotLedger) GetOrInit(ctx context.Context, key SlotKey) (SlotLedgerEntry, error) {
	return l.Store.GetOrInitSlot(ctx, key, l.DefaultCapacity)
}

// TryReserve atomically claims qty units of the slot's capacity. The row
// is initialized first so the conditional update always has a target.
func (l *SlotLedger) TryReserve(ctx context.Context, key SlotKey, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("try reserve %d: %w", qty, ErrInvalidQuantity)
	}
	if _, err := l.Store.GetOrInitSlot(ctx, key, l.DefaultCapacity); err != nil {
		return false, err
	}
	return l.Store.TryReserve(ctx, key, qty)
}

// Release returns qty units of reserved load to the slot, floored at zero.
func (l *SlotLedger) Release(ctx context.Context, key SlotKey, qty int) error {
	if qty <= 0 {
		return nil
	}
	return l.Store.Release(ctx, key, qty)
}

// RecordEntry bumps the slot's present-occupancy counter after a gate scan.
func (l *SlotLedger) RecordEntry(ctx context.Context, key SlotKey, qty int) error {
	if qty <= 0 {
		return nil
	}
	return l.Store.RecordEntry(ctx, key, qty)
}

// Availability returns capacity - reserved as a display value. No
// ordering guarantee against concurrent writers.
func (l *SlotLedger) Availability(ctx context.Context, key SlotKey) (int, error) {
	entry, err := l.Store.GetOrInitSlot(ctx, key, l.DefaultCapacity)
	if err != nil {
		return 0, err
	}
	return entry.Available(), nil
}
