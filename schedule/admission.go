/*
admission.go - Gate redemption

PURPOSE:
  AdmissionService redeems a reservation at the gate: it decodes the
  scanned credential, verifies the reservation is live, appends the audit
  record, bumps the slot's entered-occupancy counter, and decrements the
  reservation's remaining quantity - one unit per scan. A party of five
  scans the same credential five times.

LEDGER SEMANTICS:
  Redemption does NOT consume reserved capacity a second time; that was
  claimed at booking. It increments the separate "entered" counter, which
  models occupancy at the instant of entry. Slot headroom at the gate is
  therefore informational and never a hard admission gate.

DEADLINE ENFORCEMENT:
  The sweep may lag, so redemption checks the deadline itself. A scan
  past the deadline transitions the reservation to Expired and releases
  its remaining units - the same reclamation the sweep would have done.

SEE ALSO:
  - sweeper.go: Background reclamation of expired holds
  - credential.go: Decoder contract
*/
package schedule

import (
	"context"
	"time"
)

// AdmissionService redeems reservations at the gate.
type AdmissionService struct {
	Store     TxStore
	Directory Directory
	Ledger    *SlotLedger
	Decoder   CredentialDecoder
	Clock     Clock
}

// RedemptionOutcome is the gate's confirmation of a successful scan.
type RedemptionOutcome struct {
	ReservationID ReservationID
	Slot          SlotKey
	Remaining     int
	State         State
	RedeemedAt    time.Time
	HolderName    string
	HolderClass   RequesterClass
}

// Redeem consumes one unit of the reservation identified by the scanned
// credential token.
func (as *AdmissionService) Redeem(ctx context.Context, token string, redeemer HolderID) (*RedemptionOutcome, error) {
	payload, err := as.Decoder.Decode(token)
	if err != nil {
		return nil, err
	}

	r, err := as.Store.GetReservation(ctx, payload.ReservationID)
	if err != nil {
		return nil, err
	}
	if r.State.Terminal() {
		return nil, &StateConflictError{ID: r.ID, State: r.State}
	}
	if r.Remaining <= 0 {
		return nil, &StateConflictError{ID: r.ID, State: StateExhausted}
	}

	now := as.Clock.Now()
	if now.After(r.Deadline) {
		// Expired but not yet swept: reclaim here and reject the scan.
		if err := as.expire(ctx, r); err != nil {
			return nil, err
		}
		return nil, &ExpiredError{ID: r.ID, Deadline: r.Deadline, Now: now}
	}

	outcome := &RedemptionOutcome{ReservationID: r.ID, Slot: r.Slot, RedeemedAt: now}
	err = as.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.AppendRedemption(ctx, RedemptionRecord{
			ReservationID: r.ID,
			RedeemedAt:    now,
			RedeemerID:    redeemer,
		}); err != nil {
			return err
		}
		if err := tx.RecordEntry(ctx, r.Slot, 1); err != nil {
			return err
		}
		remaining, state, err := tx.ConsumeOne(ctx, r.ID)
		if err != nil {
			return err
		}
		outcome.Remaining = remaining
		outcome.State = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	if principal, derr := as.Directory.ResolvePrincipal(ctx, r.Holder); derr == nil {
		outcome.HolderName = principal.Name
		outcome.HolderClass = principal.Class
	}
	return outcome, nil
}

// expire performs the lazy expiry-at-scan reclamation. The conditional
// transition means a concurrent sweep claiming the same reservation
// results in exactly one release.
func (as *AdmissionService) expire(ctx context.Context, r *Reservation) error {
	return as.Store.WithTx(ctx, func(tx Store) error {
		released, ok, err := tx.TransitionIfActive(ctx, r.ID, StateExpired)
		if err != nil {
			return err
		}
		if !ok {
			return nil // sweep got there first
		}
		return NewSlotLedger(tx, as.Ledger.DefaultCapacity).Release(ctx, r.Slot, released)
	})
}
