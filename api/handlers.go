/*
handlers.go - HTTP API handlers for the admission reservation system

PURPOSE:
  Exposes the reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Availability:
    GET    /api/availability            Slot headroom for a date

  Reservations:
    POST   /api/reservations            Book an admission slot
    GET    /api/reservations/{id}       Reservation details
    PUT    /api/reservations/{id}/cancel Cancel and release seats
    GET    /api/reservations/{id}/redemptions Gate audit log
    GET    /api/holders/{id}/reservations Holder history

  Gate:
    POST   /api/admissions/scan         Redeem one seat of a credential

  Principals:
    POST   /api/principals              Register a holder
    GET    /api/principals/{id}         Holder details

  Admin:
    POST   /api/admin/sweep             Run an expiry sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad credentials
  - 404: Resource not found
  - 409: Conflict (cancelled, exhausted, expired, slot full)
  - 500: Internal errors
  The status is derived from the domain error classifiers, so handlers
  never inspect individual sentinel errors.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Gate scanners authenticate implicitly by possessing the signing secret
  outcome; a production deployment fronts this with an API gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - schedule/errors.go: Error classifiers driving status codes
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/darshan-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// PrincipalSaver persists holder identities. Both store
// implementations satisfy it.
type PrincipalSaver interface {
	SavePrincipal(ctx context.Context, p schedule.Principal) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Schedule     *schedule.Schedule
	Ledger       *schedule.SlotLedger
	Reservations *schedule.ReservationService
	Admissions   *schedule.AdmissionService
	Cancels      *schedule.CancellationService
	Sweeper      *schedule.ExpirySweeper
	Store        schedule.TxStore
	Directory    schedule.Directory
	Registrar    PrincipalSaver
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// GetAvailability returns the ledger state of every slot on a date.
// GET /api/availability?date=2026-09-01
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = time.Now().UTC().Format("2006-01-02")
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}

	dtos := make([]SlotAvailabilityDTO, 0, h.Schedule.Len())
	for _, label := range h.Schedule.Labels() {
		key := schedule.SlotKey{Date: date, Time: label}
		entry, err := h.Ledger.GetOrInit(ctx, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load slot ledger", err)
			return
		}
		dtos = append(dtos, toSlotAvailabilityDTO(entry))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// CreateReservation books an admission slot, falling forward to the
// next open slot when the requested one is full.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.HolderID == "" {
		writeError(w, http.StatusBadRequest, "holder_id is required", nil)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	requested := schedule.SlotKey{Date: date, Time: schedule.TimeOfDay(req.Time)}

	reservation, err := h.Reservations.Create(r.Context(),
		schedule.HolderID(req.HolderID), requested, req.Quantity)
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationDTO(reservation, true))
}

// GetReservation returns a single reservation, credential included.
// GET /api/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := schedule.ReservationID(chi.URLParam(r, "id"))

	reservation, err := h.Store.GetReservation(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(reservation, true))
}

// CancelReservation voids a reservation and releases its unredeemed
// seats back to the slot.
// PUT /api/reservations/{id}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := schedule.ReservationID(chi.URLParam(r, "id"))
	holder := schedule.HolderID(r.URL.Query().Get("holder_id"))
	if holder == "" {
		writeError(w, http.StatusBadRequest, "holder_id is required", nil)
		return
	}

	reservation, err := h.Cancels.Cancel(r.Context(), id, holder)
	if err != nil {
		writeDomainError(w, "Failed to cancel reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(reservation, false))
}

// ListRedemptions returns the gate audit log of a reservation.
// GET /api/reservations/{id}/redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	id := schedule.ReservationID(chi.URLParam(r, "id"))
	ctx := r.Context()

	// 404 for unknown ids rather than an empty log.
	if _, err := h.Store.GetReservation(ctx, id); err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}

	records, err := h.Store.RedemptionsByReservation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, len(records))
	for i, rec := range records {
		dtos[i] = RedemptionDTO{
			ReservationID: string(rec.ReservationID),
			RedeemedAt:    rec.RedeemedAt.Format(time.RFC3339),
			RedeemerID:    string(rec.RedeemerID),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// ListHolderReservations returns a holder's reservations, newest first.
// GET /api/holders/{id}/reservations
func (h *Handler) ListHolderReservations(w http.ResponseWriter, r *http.Request) {
	holder := schedule.HolderID(chi.URLParam(r, "id"))

	reservations, err := h.Store.ReservationsByHolder(r.Context(), holder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i := range reservations {
		dtos[i] = toReservationDTO(&reservations[i], false)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// GATE
// =============================================================================

// ScanCredential redeems one seat of a scanned credential.
// POST /api/admissions/scan
func (h *Handler) ScanCredential(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required", nil)
		return
	}

	outcome, err := h.Admissions.Redeem(r.Context(), req.Token, schedule.HolderID(req.RedeemerID))
	if err != nil {
		writeDomainError(w, "Scan rejected", err)
		return
	}

	writeJSON(w, http.StatusOK, ScanResultDTO{
		ReservationID: string(outcome.ReservationID),
		Date:          outcome.Slot.DateString(),
		Time:          string(outcome.Slot.Time),
		Remaining:     outcome.Remaining,
		State:         string(outcome.State),
		RedeemedAt:    outcome.RedeemedAt.Format(time.RFC3339),
		HolderName:    outcome.HolderName,
		HolderClass:   string(outcome.HolderClass),
	})
}

// =============================================================================
// PRINCIPALS
// =============================================================================

// RegisterPrincipal registers or updates a holder identity.
// POST /api/principals
func (h *Handler) RegisterPrincipal(w http.ResponseWriter, r *http.Request) {
	var req RegisterPrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	class := schedule.RequesterClass(req.Class)
	rank, err := schedule.ResolveRank(class)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown requester class", err)
		return
	}

	p := schedule.Principal{
		ID:    schedule.HolderID(req.ID),
		Name:  req.Name,
		Class: class,
	}
	if err := h.Registrar.SavePrincipal(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save principal", err)
		return
	}

	writeJSON(w, http.StatusCreated, PrincipalDTO{
		ID:    req.ID,
		Name:  req.Name,
		Class: string(class),
		Rank:  rank,
	})
}

// GetPrincipal returns a registered holder.
// GET /api/principals/{id}
func (h *Handler) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	id := schedule.HolderID(chi.URLParam(r, "id"))

	p, err := h.Directory.ResolvePrincipal(r.Context(), id)
	if err != nil {
		if errors.Is(err, schedule.ErrUnknownPrincipal) {
			writeError(w, http.StatusNotFound, "Principal not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve principal", err)
		return
	}

	rank, _ := schedule.ResolveRank(p.Class)
	writeJSON(w, http.StatusOK, PrincipalDTO{
		ID:    string(p.ID),
		Name:  p.Name,
		Class: string(p.Class),
		Rank:  rank,
	})
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs an expiry sweep immediately.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{Expired: expired})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to an HTTP status via the
// schedule classifiers.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case schedule.IsConflict(err), schedule.IsCapacityError(err):
		writeError(w, http.StatusConflict, message, err)
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
