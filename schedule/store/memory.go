// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/darshan-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements schedule.TxStore and schedule.Directory with maps
// behind a single mutex. Conditional updates are atomic by virtue of the
// lock; WithTx simulates rollback with a snapshot.
type Memory struct {
	mu          sync.RWMutex
	slots       map[slotKey]*schedule.SlotLedgerEntry
	reservation map[schedule.ReservationID]*schedule.Reservation
	redemptions map[schedule.ReservationID][]schedule.RedemptionRecord
	principals  map[schedule.HolderID]schedule.Principal
}

type slotKey struct {
	Date string
	Time schedule.TimeOfDay
}

func keyOf(k schedule.SlotKey) slotKey {
	return slotKey{Date: k.DateString(), Time: k.Time}
}

func NewMemory() *Memory {
	return &Memory{
		slots:       make(map[slotKey]*schedule.SlotLedgerEntry),
		reservation: make(map[schedule.ReservationID]*schedule.Reservation),
		redemptions: make(map[schedule.ReservationID][]schedule.RedemptionRecord),
		principals:  make(map[schedule.HolderID]schedule.Principal),
	}
}

// SavePrincipal registers or updates a holder identity.
func (m *Memory) SavePrincipal(_ context.Context, p schedule.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[p.ID] = p
	return nil
}

// ResolvePrincipal implements schedule.Directory.
func (m *Memory) ResolvePrincipal(_ context.Context, id schedule.HolderID) (*schedule.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, schedule.ErrUnknownPrincipal
	}
	return &p, nil
}

// =============================================================================
// SLOT LEDGER
// =============================================================================

func (m *Memory) GetOrInitSlot(_ context.Context, key schedule.SlotKey, defaultCapacity int) (schedule.SlotLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrInitLocked(key, defaultCapacity), nil
}

func (m *Memory) getOrInitLocked(key schedule.SlotKey, defaultCapacity int) schedule.SlotLedgerEntry {
	k := keyOf(key)
	entry, ok := m.slots[k]
	if !ok {
		entry = &schedule.SlotLedgerEntry{Key: key, Capacity: defaultCapacity}
		m.slots[k] = entry
	}
	return *entry
}

func (m *Memory) TryReserve(_ context.Context, key schedule.SlotKey, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tryReserveLocked(key, qty), nil
}

func (m *Memory) tryReserveLocked(key schedule.SlotKey, qty int) bool {
	entry, ok := m.slots[keyOf(key)]
	if !ok || entry.Capacity-entry.Reserved < qty {
		return false
	}
	entry.Reserved += qty
	return true
}

func (m *Memory) Release(_ context.Context, key schedule.SlotKey, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(key, qty)
	return nil
}

func (m *Memory) releaseLocked(key schedule.SlotKey, qty int) {
	if entry, ok := m.slots[keyOf(key)]; ok {
		entry.Reserved -= qty
		if entry.Reserved < 0 {
			entry.Reserved = 0
		}
	}
}

func (m *Memory) RecordEntry(_ context.Context, key schedule.SlotKey, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordEntryLocked(key, qty)
	return nil
}

func (m *Memory) recordEntryLocked(key schedule.SlotKey, qty int) {
	if entry, ok := m.slots[keyOf(key)]; ok {
		entry.Entered += qty
	}
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) InsertReservation(_ context.Context, r schedule.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(r)
}

func (m *Memory) insertLocked(r schedule.Reservation) error {
	stored := r
	m.reservation[r.ID] = &stored
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id schedule.ReservationID) (*schedule.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id schedule.ReservationID) (*schedule.Reservation, error) {
	r, ok := m.reservation[id]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *Memory) ReservationsByHolder(_ context.Context, holder schedule.HolderID) ([]schedule.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.Reservation
	for _, r := range m.reservation {
		if r.Holder == holder {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) ConsumeOne(_ context.Context, id schedule.ReservationID) (int, schedule.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeOneLocked(id)
}

func (m *Memory) consumeOneLocked(id schedule.ReservationID) (int, schedule.State, error) {
	r, ok := m.reservation[id]
	if !ok {
		return 0, "", schedule.ErrNotFound
	}
	if r.State != schedule.StateActive || r.Remaining <= 0 {
		return 0, r.State, &schedule.StateConflictError{ID: id, State: r.State}
	}
	r.Remaining--
	if r.Remaining == 0 {
		r.State = schedule.StateExhausted
	}
	return r.Remaining, r.State, nil
}

func (m *Memory) TransitionIfActive(_ context.Context, id schedule.ReservationID, to schedule.State) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, to)
}

func (m *Memory) transitionLocked(id schedule.ReservationID, to schedule.State) (int, bool, error) {
	r, ok := m.reservation[id]
	if !ok {
		return 0, false, schedule.ErrNotFound
	}
	if r.State != schedule.StateActive {
		return 0, false, nil
	}
	released := r.Remaining
	r.State = to
	r.Remaining = 0
	return released, true, nil
}

func (m *Memory) ExpiredActive(_ context.Context, now time.Time, limit int) ([]schedule.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.Reservation
	for _, r := range m.reservation {
		if r.State == schedule.StateActive && r.Deadline.Before(now) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Deadline.Before(result[j].Deadline)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// REDEMPTION LOG
// =============================================================================

func (m *Memory) AppendRedemption(_ context.Context, rec schedule.RedemptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendRedemptionLocked(rec)
	return nil
}

func (m *Memory) appendRedemptionLocked(rec schedule.RedemptionRecord) {
	m.redemptions[rec.ReservationID] = append(m.redemptions[rec.ReservationID], rec)
}

func (m *Memory) RedemptionsByReservation(_ context.Context, id schedule.ReservationID) ([]schedule.RedemptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]schedule.RedemptionRecord, len(m.redemptions[id]))
	copy(result, m.redemptions[id])
	return result, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn while holding the store lock. On error the whole
// store is restored from a snapshot, so partial writes never commit.
func (m *Memory) WithTx(_ context.Context, fn func(schedule.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	slots       map[slotKey]*schedule.SlotLedgerEntry
	reservation map[schedule.ReservationID]*schedule.Reservation
	redemptions map[schedule.ReservationID][]schedule.RedemptionRecord
}

func (m *Memory) snapshot() memorySnapshot {
	slots := make(map[slotKey]*schedule.SlotLedgerEntry, len(m.slots))
	for k, v := range m.slots {
		copied := *v
		slots[k] = &copied
	}
	reservations := make(map[schedule.ReservationID]*schedule.Reservation, len(m.reservation))
	for k, v := range m.reservation {
		copied := *v
		reservations[k] = &copied
	}
	redemptions := make(map[schedule.ReservationID][]schedule.RedemptionRecord, len(m.redemptions))
	for k, v := range m.redemptions {
		redemptions[k] = append([]schedule.RedemptionRecord(nil), v...)
	}
	return memorySnapshot{slots: slots, reservation: reservations, redemptions: redemptions}
}

func (m *Memory) restore(s memorySnapshot) {
	m.slots = s.slots
	m.reservation = s.reservation
	m.redemptions = s.redemptions
}

// txView routes Store calls to the parent's unlocked internals; the
// parent holds its lock for the whole transaction.
type txView struct {
	parent *Memory
}

func (tv *txView) GetOrInitSlot(_ context.Context, key schedule.SlotKey, defaultCapacity int) (schedule.SlotLedgerEntry, error) {
	return tv.parent.getOrInitLocked(key, defaultCapacity), nil
}

func (tv *txView) TryReserve(_ context.Context, key schedule.SlotKey, qty int) (bool, error) {
	return tv.parent.tryReserveLocked(key, qty), nil
}

func (tv *txView) Release(_ context.Context, key schedule.SlotKey, qty int) error {
	tv.parent.releaseLocked(key, qty)
	return nil
}

func (tv *txView) RecordEntry(_ context.Context, key schedule.SlotKey, qty int) error {
	tv.parent.recordEntryLocked(key, qty)
	return nil
}

func (tv *txView) InsertReservation(_ context.Context, r schedule.Reservation) error {
	return tv.parent.insertLocked(r)
}

func (tv *txView) GetReservation(_ context.Context, id schedule.ReservationID) (*schedule.Reservation, error) {
	return tv.parent.getLocked(id)
}

func (tv *txView) ReservationsByHolder(_ context.Context, holder schedule.HolderID) ([]schedule.Reservation, error) {
	var result []schedule.Reservation
	for _, r := range tv.parent.reservation {
		if r.Holder == holder {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (tv *txView) ConsumeOne(_ context.Context, id schedule.ReservationID) (int, schedule.State, error) {
	return tv.parent.consumeOneLocked(id)
}

func (tv *txView) TransitionIfActive(_ context.Context, id schedule.ReservationID, to schedule.State) (int, bool, error) {
	return tv.parent.transitionLocked(id, to)
}

func (tv *txView) ExpiredActive(_ context.Context, now time.Time, limit int) ([]schedule.Reservation, error) {
	var result []schedule.Reservation
	for _, r := range tv.parent.reservation {
		if r.State == schedule.StateActive && r.Deadline.Before(now) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Deadline.Before(result[j].Deadline)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (tv *txView) AppendRedemption(_ context.Context, rec schedule.RedemptionRecord) error {
	tv.parent.appendRedemptionLocked(rec)
	return nil
}

func (tv *txView) RedemptionsByReservation(_ context.Context, id schedule.ReservationID) ([]schedule.RedemptionRecord, error) {
	result := make([]schedule.RedemptionRecord, len(tv.parent.redemptions[id]))
	copy(result, tv.parent.redemptions[id])
	return result, nil
}

// Compile-time interface checks.
var (
	_ schedule.TxStore   = (*Memory)(nil)
	_ schedule.Store     = (*txView)(nil)
	_ schedule.Directory = (*Memory)(nil)
)
