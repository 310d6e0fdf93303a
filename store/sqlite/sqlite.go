/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements schedule.TxStore and schedule.Directory using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

ATOMICITY:
  Every conditional read-modify-write is a single conditional UPDATE
  whose WHERE clause carries the precondition:
  - try reserve:  WHERE reserved + qty <= capacity
  - consume one:  WHERE state = 'active' AND remaining > 0
  - transition:   WHERE state = 'active'
  RowsAffected tells the caller whether it won. Ledger rows are therefore
  linearizable per key at the database level, not via in-process locks
  alone - multiple process instances can share one database file.

KEY TABLES:
  slot_ledger:  Per-(date, time) counters: reserved, entered, capacity
  reservations: Reservation lifecycle rows
  redemptions:  Append-only gate audit log
  principals:   Holder directory (id, display name, class)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/darshan.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - schedule/store.go: Interface definitions and atomicity contract
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/darshan-engine/schedule"
)

// Store implements schedule.TxStore and schedule.Directory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schemaSQL := `
	-- Slot ledger: one row per (date, time-of-day) admission window.
	-- reserved tracks admitted load, entered tracks gate occupancy.
	CREATE TABLE IF NOT EXISTS slot_ledger (
		slot_date  TEXT NOT NULL,
		slot_time  TEXT NOT NULL,
		reserved   INTEGER NOT NULL DEFAULT 0,
		entered    INTEGER NOT NULL DEFAULT 0,
		capacity   INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (slot_date, slot_time),
		CHECK (reserved >= 0),
		CHECK (reserved <= capacity),
		CHECK (capacity > 0)
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id            TEXT PRIMARY KEY,
		holder_id     TEXT NOT NULL,
		slot_date     TEXT NOT NULL,
		slot_time     TEXT NOT NULL,
		requested     INTEGER NOT NULL,
		remaining     INTEGER NOT NULL,
		deadline      TEXT NOT NULL,
		state         TEXT NOT NULL DEFAULT 'active',
		cred_token    TEXT NOT NULL,
		cred_image    TEXT NOT NULL,
		priority_rank INTEGER NOT NULL,
		rescheduled   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TEXT NOT NULL,
		CHECK (remaining >= 0),
		CHECK (remaining <= requested)
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_holder
		ON reservations(holder_id, created_at DESC);

	-- Hot path for the expiry sweep: active rows ordered by deadline.
	CREATE INDEX IF NOT EXISTS idx_reservations_state_deadline
		ON reservations(state, deadline);

	CREATE INDEX IF NOT EXISTS idx_reservations_slot
		ON reservations(slot_date, slot_time);

	-- Append-only gate audit log. No UPDATE or DELETE, ever.
	CREATE TABLE IF NOT EXISTS redemptions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		reservation_id TEXT NOT NULL,
		redeemed_at    TEXT NOT NULL,
		redeemer_id    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_reservation
		ON redemptions(reservation_id);

	CREATE TABLE IF NOT EXISTS principals (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		class      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schemaSQL)
	return err
}

// dbtx is the common surface of *sql.DB and *sql.Tx the query helpers
// run on. Helpers never touch the store mutex, so the same code serves
// both the public methods and the transactional view.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SLOT LEDGER
// =============================================================================

func (s *Store) GetOrInitSlot(ctx context.Context, key schedule.SlotKey, defaultCapacity int) (schedule.SlotLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getOrInitSlot(ctx, s.db, key, defaultCapacity)
}

func getOrInitSlot(ctx context.Context, db dbtx, key schedule.SlotKey, defaultCapacity int) (schedule.SlotLedgerEntry, error) {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO slot_ledger (slot_date, slot_time, reserved, entered, capacity, created_at)
		VALUES (?, ?, 0, 0, ?, ?)`,
		key.DateString(), key.Time, defaultCapacity, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return schedule.SlotLedgerEntry{}, fmt.Errorf("init slot %s: %w", key, err)
	}

	entry := schedule.SlotLedgerEntry{Key: key}
	err = db.QueryRowContext(ctx, `
		SELECT reserved, entered, capacity FROM slot_ledger
		WHERE slot_date = ? AND slot_time = ?`,
		key.DateString(), key.Time,
	).Scan(&entry.Reserved, &entry.Entered, &entry.Capacity)
	if err != nil {
		return schedule.SlotLedgerEntry{}, fmt.Errorf("load slot %s: %w", key, err)
	}
	return entry, nil
}

func (s *Store) TryReserve(ctx context.Context, key schedule.SlotKey, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tryReserve(ctx, s.db, key, qty)
}

// tryReserve is the capacity invariant in one statement: the WHERE
// clause carries the headroom check, so two racing callers cannot both
// win past the ceiling. Zero rows affected means no headroom or no row.
func tryReserve(ctx context.Context, db dbtx, key schedule.SlotKey, qty int) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE slot_ledger SET reserved = reserved + ?
		WHERE slot_date = ? AND slot_time = ? AND reserved + ? <= capacity`,
		qty, key.DateString(), key.Time, qty,
	)
	if err != nil {
		return false, fmt.Errorf("try reserve %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Release(ctx context.Context, key schedule.SlotKey, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return release(ctx, s.db, key, qty)
}

func release(ctx context.Context, db dbtx, key schedule.SlotKey, qty int) error {
	_, err := db.ExecContext(ctx, `
		UPDATE slot_ledger SET reserved = MAX(0, reserved - ?)
		WHERE slot_date = ? AND slot_time = ?`,
		qty, key.DateString(), key.Time,
	)
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (s *Store) RecordEntry(ctx context.Context, key schedule.SlotKey, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordEntry(ctx, s.db, key, qty)
}

func recordEntry(ctx context.Context, db dbtx, key schedule.SlotKey, qty int) error {
	_, err := db.ExecContext(ctx, `
		UPDATE slot_ledger SET entered = entered + ?
		WHERE slot_date = ? AND slot_time = ?`,
		qty, key.DateString(), key.Time,
	)
	if err != nil {
		return fmt.Errorf("record entry %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, holder_id, slot_date, slot_time, requested, remaining,
	deadline, state, cred_token, cred_image, priority_rank, rescheduled, created_at`

func (s *Store) InsertReservation(ctx context.Context, r schedule.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, r)
}

func insertReservation(ctx context.Context, db dbtx, r schedule.Reservation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Holder, r.Slot.DateString(), r.Slot.Time, r.Requested, r.Remaining,
		r.Deadline.UTC().Format(time.RFC3339), r.State,
		r.Credential.Token, r.Credential.Image,
		r.PriorityRank, r.Rescheduled, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id schedule.ReservationID) (*schedule.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func getReservation(ctx context.Context, db dbtx, id schedule.ReservationID) (*schedule.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, schedule.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ReservationsByHolder(ctx context.Context, holder schedule.HolderID) ([]schedule.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationsByHolder(ctx, s.db, holder)
}

func reservationsByHolder(ctx context.Context, db dbtx, holder schedule.HolderID) ([]schedule.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE holder_id = ? ORDER BY created_at DESC`, holder)
	if err != nil {
		return nil, fmt.Errorf("list reservations for %s: %w", holder, err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (s *Store) ConsumeOne(ctx context.Context, id schedule.ReservationID) (int, schedule.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consumeOne(ctx, s.db, id)
}

// consumeOne decrements remaining and flips the row to exhausted at
// zero. The liveness precondition lives inside the WHERE clause, so a
// reservation can never be redeemed past its party size.
func consumeOne(ctx context.Context, db dbtx, id schedule.ReservationID) (int, schedule.State, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET
			remaining = remaining - 1,
			state = CASE WHEN remaining = 1 THEN 'exhausted' ELSE state END
		WHERE id = ? AND state = 'active' AND remaining > 0`, id)
	if err != nil {
		return 0, "", fmt.Errorf("consume reservation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, "", err
	}
	if n == 0 {
		// Lost: either the row is gone or it is no longer redeemable.
		current, gerr := getReservation(ctx, db, id)
		if gerr != nil {
			return 0, "", gerr
		}
		return 0, current.State, &schedule.StateConflictError{ID: id, State: current.State}
	}

	var remaining int
	var state schedule.State
	err = db.QueryRowContext(ctx,
		`SELECT remaining, state FROM reservations WHERE id = ?`, id,
	).Scan(&remaining, &state)
	if err != nil {
		return 0, "", fmt.Errorf("reload reservation %s: %w", id, err)
	}
	return remaining, state, nil
}

func (s *Store) TransitionIfActive(ctx context.Context, id schedule.ReservationID, to schedule.State) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transitionIfActive(ctx, s.db, id, to)
}

// transitionIfActive reads the held quantity and performs the CAS-style
// terminal transition. Callers that pair it with a ledger release run it
// inside WithTx so both land or neither does.
func transitionIfActive(ctx context.Context, db dbtx, id schedule.ReservationID, to schedule.State) (int, bool, error) {
	var remaining int
	err := db.QueryRowContext(ctx,
		`SELECT remaining FROM reservations WHERE id = ? AND state = 'active'`, id,
	).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load reservation %s: %w", id, err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET state = ?, remaining = 0
		WHERE id = ? AND state = 'active'`, to, id)
	if err != nil {
		return 0, false, fmt.Errorf("transition reservation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	return remaining, n == 1, nil
}

func (s *Store) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]schedule.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expiredActive(ctx, s.db, now, limit)
}

func expiredActive(ctx context.Context, db dbtx, now time.Time, limit int) ([]schedule.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE state = 'active' AND deadline < ?
		ORDER BY deadline ASC LIMIT ?`,
		now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("query expired reservations: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

// =============================================================================
// REDEMPTION LOG (append-only)
// =============================================================================

func (s *Store) AppendRedemption(ctx context.Context, rec schedule.RedemptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRedemption(ctx, s.db, rec)
}

func appendRedemption(ctx context.Context, db dbtx, rec schedule.RedemptionRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO redemptions (reservation_id, redeemed_at, redeemer_id)
		VALUES (?, ?, ?)`,
		rec.ReservationID, rec.RedeemedAt.UTC().Format(time.RFC3339), rec.RedeemerID,
	)
	if err != nil {
		return fmt.Errorf("append redemption for %s: %w", rec.ReservationID, err)
	}
	return nil
}

func (s *Store) RedemptionsByReservation(ctx context.Context, id schedule.ReservationID) ([]schedule.RedemptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return redemptionsByReservation(ctx, s.db, id)
}

func redemptionsByReservation(ctx context.Context, db dbtx, id schedule.ReservationID) ([]schedule.RedemptionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT reservation_id, redeemed_at, redeemer_id FROM redemptions
		WHERE reservation_id = ? ORDER BY redeemed_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list redemptions for %s: %w", id, err)
	}
	defer rows.Close()

	var records []schedule.RedemptionRecord
	for rows.Next() {
		var rec schedule.RedemptionRecord
		var redeemedAt string
		if err := rows.Scan(&rec.ReservationID, &redeemedAt, &rec.RedeemerID); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		rec.RedeemedAt, _ = time.Parse(time.RFC3339, redeemedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// PRINCIPALS (schedule.Directory)
// =============================================================================

// SavePrincipal registers or updates a holder identity.
func (s *Store) SavePrincipal(ctx context.Context, p schedule.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, name, class, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, class = excluded.class`,
		p.ID, p.Name, p.Class, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save principal %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) ResolvePrincipal(ctx context.Context, id schedule.HolderID) (*schedule.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := schedule.Principal{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, class FROM principals WHERE id = ?`, id,
	).Scan(&p.Name, &p.Class)
	if err == sql.ErrNoRows {
		return nil, schedule.ErrUnknownPrincipal
	}
	if err != nil {
		return nil, fmt.Errorf("resolve principal %s: %w", id, err)
	}
	return &p, nil
}

// =============================================================================
// TRANSACTIONS (schedule.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back, including any ledger increments
// made through the transactional store.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", schedule.ErrPersistence, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", schedule.ErrPersistence, err)
	}
	return nil
}

// txStore routes every Store call through the open transaction. It never
// touches the parent's mutex; WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetOrInitSlot(ctx context.Context, key schedule.SlotKey, defaultCapacity int) (schedule.SlotLedgerEntry, error) {
	return getOrInitSlot(ctx, ts.tx, key, defaultCapacity)
}

func (ts *txStore) TryReserve(ctx context.Context, key schedule.SlotKey, qty int) (bool, error) {
	return tryReserve(ctx, ts.tx, key, qty)
}

func (ts *txStore) Release(ctx context.Context, key schedule.SlotKey, qty int) error {
	return release(ctx, ts.tx, key, qty)
}

func (ts *txStore) RecordEntry(ctx context.Context, key schedule.SlotKey, qty int) error {
	return recordEntry(ctx, ts.tx, key, qty)
}

func (ts *txStore) InsertReservation(ctx context.Context, r schedule.Reservation) error {
	return insertReservation(ctx, ts.tx, r)
}

func (ts *txStore) GetReservation(ctx context.Context, id schedule.ReservationID) (*schedule.Reservation, error) {
	return getReservation(ctx, ts.tx, id)
}

func (ts *txStore) ReservationsByHolder(ctx context.Context, holder schedule.HolderID) ([]schedule.Reservation, error) {
	return reservationsByHolder(ctx, ts.tx, holder)
}

func (ts *txStore) ConsumeOne(ctx context.Context, id schedule.ReservationID) (int, schedule.State, error) {
	return consumeOne(ctx, ts.tx, id)
}

func (ts *txStore) TransitionIfActive(ctx context.Context, id schedule.ReservationID, to schedule.State) (int, bool, error) {
	return transitionIfActive(ctx, ts.tx, id, to)
}

func (ts *txStore) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]schedule.Reservation, error) {
	return expiredActive(ctx, ts.tx, now, limit)
}

func (ts *txStore) AppendRedemption(ctx context.Context, rec schedule.RedemptionRecord) error {
	return appendRedemption(ctx, ts.tx, rec)
}

func (ts *txStore) RedemptionsByReservation(ctx context.Context, id schedule.ReservationID) ([]schedule.RedemptionRecord, error) {
	return redemptionsByReservation(ctx, ts.tx, id)
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*schedule.Reservation, error) {
	var (
		r         schedule.Reservation
		slotDate  string
		slotTime  string
		deadline  string
		createdAt string
	)
	err := row.Scan(
		&r.ID, &r.Holder, &slotDate, &slotTime, &r.Requested, &r.Remaining,
		&deadline, &r.State, &r.Credential.Token, &r.Credential.Image,
		&r.PriorityRank, &r.Rescheduled, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	date, err := time.Parse("2006-01-02", slotDate)
	if err != nil {
		return nil, fmt.Errorf("parse slot date %q: %w", slotDate, err)
	}
	r.Slot = schedule.SlotKey{Date: date, Time: schedule.TimeOfDay(slotTime)}
	r.Deadline, _ = time.Parse(time.RFC3339, deadline)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]schedule.Reservation, error) {
	var result []schedule.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// Compile-time interface checks.
var (
	_ schedule.TxStore   = (*Store)(nil)
	_ schedule.Store     = (*txStore)(nil)
	_ schedule.Directory = (*Store)(nil)
)
