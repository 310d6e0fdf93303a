/*
store.go - Persistence interfaces for the admission engine

PURPOSE:
  Defines the contract between the domain logic and the datastore.
  Different implementations can use SQLite or in-memory storage.

ATOMICITY CONTRACT:
  Every method that both reads and conditionally writes is a SINGLE
  atomic operation inside the store (conditional UPDATE, or a mutex-held
  section in memory). Callers are forbidden from composing a read and a
  write across two round-trips:

  - TryReserve:         "check headroom then increment" in one step
  - ConsumeOne:         "check Active and remaining then decrement" in one step
  - TransitionIfActive: "transition only if still Active" in one step

  Two racing terminal transitions (sweep vs. cancel) therefore cannot
  both claim a reservation, and concurrent TryReserve calls cannot
  together push reserved above capacity.

TRANSACTIONS:
  WithTx groups multiple store calls into one all-or-nothing unit. The
  booking path uses it so a failed reservation insert rolls back the
  ledger increment that preceded it.

IMPLEMENTATIONS:
  - store/sqlite:          Production SQLite (conditional UPDATEs, WAL)
  - schedule/store/memory: In-memory for testing/dev

SEE ALSO:
  - ledger.go: Semantics of the ledger operations
  - store/sqlite/sqlite.go: Concrete implementation
*/
package schedule

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Ledger rows, reservations, and the redemption log
// =============================================================================

// Store is the persistence surface for the engine. All conditional
// read-modify-write methods are atomic per the contract above.
type Store interface {
	// --- slot ledger ---

	// GetOrInitSlot returns the ledger entry for key, creating it with
	// zero counters and the given capacity if absent.
	GetOrInitSlot(ctx context.Context, key SlotKey, defaultCapacity int) (SlotLedgerEntry, error)

	// TryReserve atomically increments reserved by qty if headroom allows,
	// returning false (and making no change) otherwise. Linearizable per key.
	TryReserve(ctx context.Context, key SlotKey, qty int) (bool, error)

	// Release atomically decrements reserved by qty, floored at zero.
	// The floor defends against double-release from retried sweeps.
	Release(ctx context.Context, key SlotKey, qty int) error

	// RecordEntry increments the slot's entered-occupancy counter by qty.
	RecordEntry(ctx context.Context, key SlotKey, qty int) error

	// --- reservations ---

	// InsertReservation persists a newly minted reservation.
	InsertReservation(ctx context.Context, r Reservation) error

	// GetReservation returns the reservation or ErrNotFound.
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// ReservationsByHolder returns a holder's reservations, newest first.
	ReservationsByHolder(ctx context.Context, holder HolderID) ([]Reservation, error)

	// ConsumeOne atomically decrements remaining by one if the reservation
	// is Active with remaining > 0, flipping state to Exhausted when the
	// counter reaches zero. Returns the post-decrement remaining and state.
	// Fails with ErrNotFound or a StateConflictError otherwise.
	ConsumeOne(ctx context.Context, id ReservationID) (remaining int, state State, err error)

	// TransitionIfActive atomically moves an Active reservation to the
	// given terminal state, zeroing remaining. Returns the remaining
	// quantity held at the moment of transition and whether this caller
	// won the transition (false when the reservation was not Active).
	TransitionIfActive(ctx context.Context, id ReservationID, to State) (released int, ok bool, err error)

	// ExpiredActive returns up to limit Active reservations whose deadline
	// is before now, oldest deadline first. Used by the sweep in bounded
	// batches.
	ExpiredActive(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	// --- redemption log (append-only) ---

	AppendRedemption(ctx context.Context, rec RedemptionRecord) error
	RedemptionsByReservation(ctx context.Context, id ReservationID) ([]RedemptionRecord, error)
}

// TxStore wraps Store with transaction support. If fn returns an error
// the transaction is rolled back, undoing every store call made through
// the Store passed to fn.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// DIRECTORY - Inbound identity resolution (owned elsewhere)
// =============================================================================

// Directory resolves holder identities to principals. Authentication and
// identity management live outside the engine; this is the read surface
// the engine consumes.
type Directory interface {
	// ResolvePrincipal returns the principal or ErrUnknownPrincipal.
	ResolvePrincipal(ctx context.Context, id HolderID) (*Principal, error)
}
