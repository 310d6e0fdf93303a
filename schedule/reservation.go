/*
reservation.go - Booking orchestration

PURPOSE:
  ReservationService is the ONLY writer that adds load to a slot. It
  validates the request, finds an admissible slot (rescheduling forward
  across time and date boundaries when the requested one is full),
  computes the expiry deadline, mints the reservation with its scannable
  credential, and claims ledger capacity - all inside one store
  transaction so a failure at any step leaves no partial state.

RACE HANDLING:
  The search's availability read is advisory, so the atomic TryReserve
  can still lose to a concurrent booking. On a lost race the service
  retries once from the next candidate slot; a second loss surfaces
  SlotFullError rather than looping.

SEE ALSO:
  - search.go: Candidate selection
  - ledger.go: TryReserve semantics
  - credential.go: Encoder contract
*/
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultGraceWindow is how long past the slot's start a reservation
// stays redeemable.
const DefaultGraceWindow = 2 * time.Hour

// ReservationService orchestrates booking creation.
type ReservationService struct {
	Store     TxStore
	Directory Directory
	Ledger    *SlotLedger
	Search    *SlotSearch
	Encoder   CredentialEncoder
	Clock     Clock

	// Grace is added to the admitted slot's start to form the deadline.
	// Zero falls back to DefaultGraceWindow.
	Grace time.Duration
}

func (rs *ReservationService) grace() time.Duration {
	if rs.Grace > 0 {
		return rs.Grace
	}
	return DefaultGraceWindow
}

// Create books qty units at or after the requested slot for holder.
// The returned reservation's Rescheduled flag tells callers whether the
// admitted slot differs from the request; they must surface it.
func (rs *ReservationService) Create(ctx context.Context, holder HolderID, requested SlotKey, qty int) (*Reservation, error) {
	if qty < 1 || qty > MaxPartySize {
		return nil, fmt.Errorf("quantity %d not in 1..%d: %w", qty, MaxPartySize, ErrInvalidQuantity)
	}
	if !rs.Search.Schedule.Contains(requested.Time) {
		return nil, &UnknownSlotLabelError{Label: requested.Time}
	}

	principal, err := rs.Directory.ResolvePrincipal(ctx, holder)
	if err != nil {
		return nil, err
	}
	// Informational only: rank never affects admission order.
	rank, err := ResolveRank(principal.Class)
	if err != nil {
		return nil, err
	}

	admitted, rescheduled, err := rs.Search.FindAdmissibleSlot(ctx, requested, qty)
	if err != nil {
		return nil, err
	}

	var reservation *Reservation
	err = rs.Store.WithTx(ctx, func(tx Store) error {
		ledger := NewSlotLedger(tx, rs.Ledger.DefaultCapacity)
		// The retry search must read through the transaction, not the
		// outer store, or it would deadlock against our own write lock.
		txSearch := NewSlotSearch(rs.Search.Schedule, ledger, rs.Search.HorizonDays)

		ok, err := ledger.TryReserve(ctx, admitted, qty)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the capacity race since the search's read. One retry
			// from the next candidate, then give up.
			next, ferr := txSearch.FindAfter(ctx, admitted, requested, qty)
			if ferr != nil {
				return ferr
			}
			ok, err = ledger.TryReserve(ctx, next, qty)
			if err != nil {
				return err
			}
			if !ok {
				return &SlotFullError{Slot: next, Requested: qty}
			}
			admitted = next
			rescheduled = true
		}

		deadline, err := rs.deadlineFor(admitted)
		if err != nil {
			return err
		}

		r := Reservation{
			ID:           ReservationID(uuid.NewString()),
			Holder:       holder,
			Slot:         admitted,
			Requested:    qty,
			Remaining:    qty,
			Deadline:     deadline,
			State:        StateActive,
			PriorityRank: rank,
			Rescheduled:  rescheduled,
			CreatedAt:    rs.Clock.Now(),
		}

		cred, err := rs.Encoder.Encode(ctx, CredentialPayload{
			ReservationID: r.ID,
			HolderID:      holder,
			Date:          admitted.DateString(),
			Time:          admitted.Time,
			Quantity:      qty,
		})
		if err != nil {
			return fmt.Errorf("encode credential: %w", err)
		}
		r.Credential = cred

		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		reservation = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// deadlineFor is the admitted slot's start plus the grace window.
func (rs *ReservationService) deadlineFor(admitted SlotKey) (time.Time, error) {
	start, err := rs.Search.Schedule.StartTime(admitted)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(rs.grace()), nil
}
