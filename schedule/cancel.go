/*
cancel.go - Holder-initiated cancellation

PURPOSE:
  CancellationService terminates an Active reservation before its
  deadline and returns its unredeemed units to the slot ledger. The
  release amount is the remaining quantity at the moment of cancellation:
  units already redeemed stay counted as admitted load, because those
  holders entered.

IDEMPOTENCE:
  Cancelling a reservation that is already Cancelled, Expired, or
  Exhausted fails with a state conflict and performs NO ledger mutation.
  The conditional Active-only transition is what makes a cancel racing an
  expiry sweep release capacity exactly once.
*/
package schedule

import "context"

// CancellationService terminates active reservations on the holder's behalf.
type CancellationService struct {
	Store  TxStore
	Ledger *SlotLedger
}

// Cancel moves the holder's Active reservation to Cancelled, zeroing its
// remaining quantity and releasing that quantity from the admitted slot.
// The returned reservation reflects the post-cancellation state.
func (cs *CancellationService) Cancel(ctx context.Context, id ReservationID, holder HolderID) (*Reservation, error) {
	r, err := cs.Store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Holder != holder {
		// Foreign reservations are indistinguishable from absent ones.
		return nil, ErrNotFound
	}
	if r.State.Terminal() {
		return nil, &StateConflictError{ID: r.ID, State: r.State}
	}

	err = cs.Store.WithTx(ctx, func(tx Store) error {
		released, ok, err := tx.TransitionIfActive(ctx, id, StateCancelled)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another terminal transition since the read.
			current, gerr := tx.GetReservation(ctx, id)
			if gerr != nil {
				return gerr
			}
			return &StateConflictError{ID: id, State: current.State}
		}
		return NewSlotLedger(tx, cs.Ledger.DefaultCapacity).Release(ctx, r.Slot, released)
	})
	if err != nil {
		return nil, err
	}

	r.State = StateCancelled
	r.Remaining = 0
	return r, nil
}
