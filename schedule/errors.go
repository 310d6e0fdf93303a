/*
errors.go - Centralized error types for the admission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (HTTP transport, CLI) map these to status codes via the
  classifier helpers, never by string matching.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any mutation; caller fixes input
  2. Capacity errors   - Slot or horizon full; caller picks another time
  3. State conflicts   - Stale client view of a reservation; caller refreshes
  4. Not found         - Unknown reservation, credential, or principal
  5. Persistence       - Infrastructure failure; retryable, fully rolled back

USAGE:
  if errors.Is(err, schedule.ErrSlotFull) { ... }

  var full *schedule.SlotFullError
  if errors.As(err, &full) { ... full.Slot ... }

SEE ALSO:
  - reservation.go, admission.go: Producers of these errors
  - api/handlers.go: HTTP status mapping via classifiers
*/
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned when a booking quantity is outside 1..MaxPartySize.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrUnknownSlotLabel is returned when a time-of-day label is not part of
	// the fixed daily enumeration.
	ErrUnknownSlotLabel = errors.New("unknown slot label")

	// ErrUnknownRequesterClass is returned for a requester class outside the
	// closed enumeration. Unknown classes are rejected, never defaulted.
	ErrUnknownRequesterClass = errors.New("unknown requester class")

	// ErrUnknownPrincipal is returned when a holder identity does not resolve.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrSlotFull is returned when the admitted slot lost its capacity in the
	// window between search and reserve, and the one retry also failed.
	ErrSlotFull = errors.New("slot full")

	// ErrNoCapacity is returned when no slot within the lookahead horizon can
	// admit the requested quantity.
	ErrNoCapacity = errors.New("no capacity available within horizon")

	// ErrNotFound is returned for an unknown reservation id or credential.
	ErrNotFound = errors.New("reservation not found")

	// ErrBadCredential is returned when a scanned credential fails to decode
	// or verify. Indistinguishable from an unknown credential to callers.
	ErrBadCredential = errors.New("bad credential")

	// ErrAlreadyExhausted is returned when redeeming a reservation whose
	// remaining quantity is zero.
	ErrAlreadyExhausted = errors.New("reservation already exhausted")

	// ErrReservationCancelled is returned when acting on a cancelled reservation.
	ErrReservationCancelled = errors.New("reservation cancelled")

	// ErrReservationExpired is returned when a reservation's deadline has passed.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrInvalidState is returned for a transition that requires an Active
	// reservation, e.g. double-cancel. No ledger mutation is performed.
	ErrInvalidState = errors.New("invalid reservation state")

	// ErrPersistence wraps datastore failures. Any partial ledger mutation in
	// the same logical operation has been rolled back; safe to retry.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SlotFullError reports a lost capacity race on a specific slot.
type SlotFullError struct {
	Slot      SlotKey
	Requested int
}

func (e *SlotFullError) Error() string {
	return fmt.Sprintf("slot %s cannot admit %d more", e.Slot, e.Requested)
}

func (e *SlotFullError) Unwrap() error { return ErrSlotFull }

// NoCapacityError reports an exhausted lookahead horizon.
type NoCapacityError struct {
	Requested   SlotKey
	Quantity    int
	HorizonDays int
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no slot within %d days of %s can admit %d",
		e.HorizonDays, e.Requested, e.Quantity)
}

func (e *NoCapacityError) Unwrap() error { return ErrNoCapacity }

// UnknownSlotLabelError reports a label outside the daily enumeration.
type UnknownSlotLabelError struct {
	Label TimeOfDay
}

func (e *UnknownSlotLabelError) Error() string {
	return fmt.Sprintf("slot label %q is not in the daily schedule", e.Label)
}

func (e *UnknownSlotLabelError) Unwrap() error { return ErrUnknownSlotLabel }

// StateConflictError reports an operation against a reservation that is not
// in the state the operation requires.
type StateConflictError struct {
	ID    ReservationID
	State State
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("reservation %s is %s", e.ID, e.State)
}

// Unwrap maps the conflicting state to its sentinel so callers can use
// errors.Is against the specific condition.
func (e *StateConflictError) Unwrap() error {
	switch e.State {
	case StateExhausted:
		return ErrAlreadyExhausted
	case StateCancelled:
		return ErrReservationCancelled
	case StateExpired:
		return ErrReservationExpired
	default:
		return ErrInvalidState
	}
}

// ExpiredError reports a redemption attempt past the deadline.
type ExpiredError struct {
	ID       ReservationID
	Deadline time.Time
	Now      time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("reservation %s expired at %s (scan at %s)",
		e.ID, e.Deadline.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *ExpiredError) Unwrap() error { return ErrReservationExpired }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true when the error is due to invalid client input,
// recoverable by correcting the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrUnknownSlotLabel) ||
		errors.Is(err, ErrUnknownRequesterClass)
}

// IsCapacityError returns true when no capacity was available; recoverable
// by choosing a different date or time.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrSlotFull) || errors.Is(err, ErrNoCapacity)
}

// IsConflict returns true when the client acted on a stale view of a
// reservation's state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExhausted) ||
		errors.Is(err, ErrReservationCancelled) ||
		errors.Is(err, ErrReservationExpired) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true when the target does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBadCredential) ||
		errors.Is(err, ErrUnknownPrincipal)
}

// IsRetryable returns true when the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
