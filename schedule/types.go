/*
Package schedule provides the core darshan admission engine.

PURPOSE:
  This package contains the domain types and algorithms for scheduling
  time-boxed admission slots against finite per-slot capacity: the slot
  capacity ledger, slot search with cascading overflow, the reservation
  lifecycle, gate redemption, cancellation, and expiry reclamation.

KEY CONCEPTS IN THIS FILE (types.go):
  - SlotKey: Identity of one admission window (date + time-of-day label)
  - SlotLedgerEntry: Per-slot counters (reserved load, entered occupancy)
  - Reservation: A holder's claim on slot capacity, redeemable over time
  - RedemptionRecord: Append-only audit entry for each gate scan

DESIGN PRINCIPLES:
  1. Two counters per slot: "reserved" tracks admitted load (consumed at
     booking time, released on cancel/expiry), "entered" tracks present
     occupancy (incremented once per gate scan). They share a key but are
     never conflated.
  2. Atomic compound operations: callers never compose a read and a write
     across two round-trips; the Store exposes conditional updates only.
  3. Lazy ledger rows: a slot's ledger entry is created on first use and
     never deleted.

SEE ALSO:
  - ledger.go: Slot ledger contract and invariants
  - store.go: Persistence interfaces
  - reservation.go: Booking orchestration
*/
package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// SLOT KEY - Identity of one admission window
// =============================================================================

// SlotKey identifies a single admission window: a calendar date plus one
// label from the fixed daily time enumeration. Immutable once built.
type SlotKey struct {
	Date time.Time // midnight UTC of the calendar date
	Time TimeOfDay
}

// NewSlotKey builds a key for the given calendar date and time-of-day label.
func NewSlotKey(year int, month time.Month, day int, label TimeOfDay) SlotKey {
	return SlotKey{
		Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Time: label,
	}
}

// DateString returns the calendar date in YYYY-MM-DD form.
// Used as the stable ledger key component.
func (k SlotKey) DateString() string { return k.Date.Format("2006-01-02") }

func (k SlotKey) String() string {
	return fmt.Sprintf("%s %s", k.DateString(), k.Time)
}

// Equal reports whether two keys identify the same slot.
func (k SlotKey) Equal(other SlotKey) bool {
	return k.DateString() == other.DateString() && k.Time == other.Time
}

// NextDay returns the key for the same label on the following calendar date.
func (k SlotKey) NextDay() SlotKey {
	return SlotKey{Date: k.Date.AddDate(0, 0, 1), Time: k.Time}
}

// =============================================================================
// SLOT LEDGER ENTRY - Per-slot capacity counters
// =============================================================================

// SlotLedgerEntry holds the durable counters for one slot.
//
// INVARIANT: 0 <= Reserved <= Capacity at every committed state.
// Entered is a monotonically increasing occupancy signal and is not
// bounded by Capacity (late arrivals may overlap slot boundaries).
type SlotLedgerEntry struct {
	Key      SlotKey
	Reserved int // admitted load: units claimed by live reservations
	Entered  int // present occupancy: units scanned through the gate
	Capacity int // ceiling for Reserved
}

// Available returns the headroom left for new reservations.
func (e SlotLedgerEntry) Available() int { return e.Capacity - e.Reserved }

// DefaultSlotCapacity is the capacity ceiling applied when a ledger row is
// created lazily and no override is configured.
const DefaultSlotCapacity = 100

// =============================================================================
// RESERVATION - A holder's claim on slot capacity
// =============================================================================

type ReservationID string

type HolderID string

// State is the reservation lifecycle state. Transitions are strictly
// Active -> (Exhausted | Cancelled | Expired); terminal states never
// return to Active.
type State string

const (
	StateActive    State = "active"
	StateExhausted State = "exhausted"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s != StateActive }

// MaxPartySize caps the quantity of a single booking.
const MaxPartySize = 10

// Reservation is a holder's claim on one or more units of a slot's
// capacity. Slot is the admitted slot, which may differ from the
// originally requested one when the request overflowed (Rescheduled).
type Reservation struct {
	ID           ReservationID
	Holder       HolderID
	Slot         SlotKey
	Requested    int // original party size, 1..MaxPartySize
	Remaining    int // units not yet redeemed; forced to 0 on cancel/expiry
	Deadline     time.Time
	State        State
	Credential   Credential
	PriorityRank int
	Rescheduled  bool
	CreatedAt    time.Time
}

// Usable reports whether the reservation can still be redeemed at the
// given instant. The sweep may lag, so redemption checks this directly.
func (r *Reservation) Usable(now time.Time) bool {
	return r.State == StateActive && r.Remaining > 0 && !now.After(r.Deadline)
}

// =============================================================================
// REDEMPTION RECORD - Append-only gate audit log
// =============================================================================

// RedemptionRecord captures a single successful gate scan. Records are
// append-only and never referenced for mutation.
type RedemptionRecord struct {
	ReservationID ReservationID
	RedeemedAt    time.Time
	RedeemerID    HolderID
}

// =============================================================================
// PRINCIPAL - Resolved holder identity (owned elsewhere, consumed here)
// =============================================================================

// Principal is the engine's view of a resolved identity. Identity
// management itself is an external collaborator; the engine only needs a
// stable identifier, a display name, and a requester class.
type Principal struct {
	ID    HolderID
	Name  string
	Class RequesterClass
}
