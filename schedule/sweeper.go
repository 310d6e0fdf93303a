/*
sweeper.go - Expiry reclamation pass

PURPOSE:
  ExpirySweeper finds reservations past their deadline and still Active,
  marks them Expired, and returns their remaining quantity to the slot
  ledger. It runs on demand or from the api package's background runner.

CONCURRENCY:
  Multiple sweeps may run at once (several process instances, or a manual
  trigger overlapping the timer). Each reservation is claimed by exactly
  one pass: the Active-only conditional transition either wins or is a
  no-op, so capacity is released exactly once.

BATCHING:
  The sweep works in bounded batches with one short store transaction per
  reservation, never one long transaction over the whole active set, to
  keep ledger lock hold times short.

  The sweep is NOT the authority on "is this reservation usable" - the
  gate checks deadlines itself, since the sweep may lag.
*/
package schedule

import "context"

// DefaultSweepBatchSize bounds how many expired reservations one pass
// loads at a time.
const DefaultSweepBatchSize = 100

// ExpirySweeper reclaims capacity from expired holds.
type ExpirySweeper struct {
	Store  TxStore
	Ledger *SlotLedger
	Clock  Clock

	// BatchSize caps reservations per store query. Zero falls back to
	// DefaultSweepBatchSize.
	BatchSize int
}

func (sw *ExpirySweeper) batchSize() int {
	if sw.BatchSize > 0 {
		return sw.BatchSize
	}
	return DefaultSweepBatchSize
}

// Sweep expires every Active reservation whose deadline has passed,
// returning the number this pass claimed.
func (sw *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := sw.Clock.Now()
	claimed := 0

	for {
		batch, err := sw.Store.ExpiredActive(ctx, now, sw.batchSize())
		if err != nil {
			return claimed, err
		}
		if len(batch) == 0 {
			return claimed, nil
		}

		for i := range batch {
			won, err := sw.expireOne(ctx, &batch[i])
			if err != nil {
				return claimed, err
			}
			if won {
				claimed++
			}
		}

		// Every batch member left the Active set (claimed by us or by a
		// concurrent pass), so the re-query shrinks until empty.
		if len(batch) < sw.batchSize() {
			return claimed, nil
		}
	}
}

func (sw *ExpirySweeper) expireOne(ctx context.Context, r *Reservation) (bool, error) {
	won := false
	err := sw.Store.WithTx(ctx, func(tx Store) error {
		released, ok, err := tx.TransitionIfActive(ctx, r.ID, StateExpired)
		if err != nil {
			return err
		}
		if !ok {
			return nil // another pass, a cancel, or the gate claimed it
		}
		won = true
		return NewSlotLedger(tx, sw.Ledger.DefaultCapacity).Release(ctx, r.Slot, released)
	})
	return won, err
}
