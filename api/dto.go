/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - schedule/types.go: Domain model the DTOs project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/darshan-engine/schedule"
)

// =============================================================================
// RESERVATION TYPES
// =============================================================================

// CreateReservationRequest is the body for booking an admission slot.
type CreateReservationRequest struct {
	HolderID string `json:"holder_id"`
	Date     string `json:"date"` // YYYY-MM-DD
	Time     string `json:"time"` // e.g. "09:30 AM"
	Quantity int    `json:"quantity"`
}

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID           string `json:"id"`
	HolderID     string `json:"holder_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Requested    int    `json:"requested"`
	Remaining    int    `json:"remaining"`
	Deadline     string `json:"deadline"`
	State        string `json:"state"`
	Token        string `json:"token,omitempty"`
	QRImage      string `json:"qr_image,omitempty"`
	PriorityRank int    `json:"priority_rank"`
	Rescheduled  bool   `json:"rescheduled"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toReservationDTO(r *schedule.Reservation, includeCredential bool) ReservationDTO {
	dto := ReservationDTO{
		ID:           string(r.ID),
		HolderID:     string(r.Holder),
		Date:         r.Slot.DateString(),
		Time:         string(r.Slot.Time),
		Requested:    r.Requested,
		Remaining:    r.Remaining,
		Deadline:     r.Deadline.Format(time.RFC3339),
		State:        string(r.State),
		PriorityRank: r.PriorityRank,
		Rescheduled:  r.Rescheduled,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
	if includeCredential {
		dto.Token = r.Credential.Token
		dto.QRImage = r.Credential.Image
	}
	return dto
}

// =============================================================================
// ADMISSION TYPES
// =============================================================================

// ScanRequest is the body submitted by a gate scanner.
type ScanRequest struct {
	Token      string `json:"token"`
	RedeemerID string `json:"redeemer_id"`
}

// ScanResultDTO reports the outcome of a gate scan.
type ScanResultDTO struct {
	ReservationID string `json:"reservation_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Remaining     int    `json:"remaining"`
	State         string `json:"state"`
	RedeemedAt    string `json:"redeemed_at"`
	HolderName    string `json:"holder_name,omitempty"`
	HolderClass   string `json:"holder_class,omitempty"`
}

// RedemptionDTO is a single audit log entry for a reservation.
type RedemptionDTO struct {
	ReservationID string `json:"reservation_id"`
	RedeemedAt    string `json:"redeemed_at"`
	RedeemerID    string `json:"redeemer_id"`
}

// =============================================================================
// AVAILABILITY TYPES
// =============================================================================

// SlotAvailabilityDTO reports one slot's headroom. Utilization is a
// percentage with two decimal places, e.g. "37.50".
type SlotAvailabilityDTO struct {
	Date        string          `json:"date"`
	Time        string          `json:"time"`
	Capacity    int             `json:"capacity"`
	Reserved    int             `json:"reserved"`
	Entered     int             `json:"entered"`
	Available   int             `json:"available"`
	Utilization decimal.Decimal `json:"utilization"`
}

func toSlotAvailabilityDTO(e schedule.SlotLedgerEntry) SlotAvailabilityDTO {
	utilization := decimal.Zero
	if e.Capacity > 0 {
		utilization = decimal.NewFromInt(int64(e.Reserved)).
			Div(decimal.NewFromInt(int64(e.Capacity))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return SlotAvailabilityDTO{
		Date:        e.Key.DateString(),
		Time:        string(e.Key.Time),
		Capacity:    e.Capacity,
		Reserved:    e.Reserved,
		Entered:     e.Entered,
		Available:   e.Available(),
		Utilization: utilization,
	}
}

// =============================================================================
// PRINCIPAL TYPES
// =============================================================================

// RegisterPrincipalRequest registers a holder identity.
type RegisterPrincipalRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// PrincipalDTO represents a registered holder.
type PrincipalDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
	Rank  int    `json:"rank"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// SweepResponse reports one expiry sweep pass.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
