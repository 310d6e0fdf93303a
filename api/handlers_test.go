package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/darshan-engine/api"
	"github.com/warp/darshan-engine/credential"
	"github.com/warp/darshan-engine/schedule"
	memstore "github.com/warp/darshan-engine/schedule/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testApp struct {
	router  http.Handler
	store   *memstore.Memory
	clock   *schedule.ManualClock
	sweeper *schedule.ExpirySweeper
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store := memstore.NewMemory()
	sched := schedule.MustSchedule([]schedule.TimeOfDay{"08:00 AM", "08:30 AM", "09:00 AM"})
	clock := schedule.NewManualClock(time.Date(2026, time.September, 1, 6, 0, 0, 0, time.UTC))
	codec, err := credential.NewCodec([]byte("handler-test-secret"), "darshan-engine")
	require.NoError(t, err)

	ledger := schedule.NewSlotLedger(store, 10)
	search := schedule.NewSlotSearch(sched, ledger, 7)
	sweeper := &schedule.ExpirySweeper{Store: store, Ledger: ledger, Clock: clock}

	handler := &api.Handler{
		Schedule: sched,
		Ledger:   ledger,
		Reservations: &schedule.ReservationService{
			Store:     store,
			Directory: store,
			Ledger:    ledger,
			Search:    search,
			Encoder:   codec,
			Clock:     clock,
		},
		Admissions: &schedule.AdmissionService{
			Store:     store,
			Directory: store,
			Ledger:    ledger,
			Decoder:   codec,
			Clock:     clock,
		},
		Cancels:   &schedule.CancellationService{Store: store, Ledger: ledger},
		Sweeper:   sweeper,
		Store:     store,
		Directory: store,
		Registrar: store,
	}

	err = store.SavePrincipal(context.Background(), schedule.Principal{
		ID: "visitor-1", Name: "Asha Pillai", Class: schedule.ClassCivilian,
	})
	require.NoError(t, err)

	return &testApp{
		router:  api.NewRouter(handler),
		store:   store,
		clock:   clock,
		sweeper: sweeper,
	}
}

func (app *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (app *testApp) book(t *testing.T, timeLabel string, qty int) api.ReservationDTO {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/api/reservations", api.CreateReservationRequest{
		HolderID: "visitor-1",
		Date:     "2026-09-01",
		Time:     timeLabel,
		Quantity: qty,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.ReservationDTO](t, rec)
}

// =============================================================================
// RESERVATION ENDPOINTS
// =============================================================================

func TestAPI_CreateReservation(t *testing.T) {
	app := newTestApp(t)

	dto := app.book(t, "09:00 AM", 4)

	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, "2026-09-01", dto.Date)
	assert.Equal(t, "09:00 AM", dto.Time)
	assert.Equal(t, 4, dto.Remaining)
	assert.Equal(t, "active", dto.State)
	assert.False(t, dto.Rescheduled)
	assert.NotEmpty(t, dto.Token)
	assert.Contains(t, dto.QRImage, "data:image/png;base64,")
}

func TestAPI_CreateReservation_Validation(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		name string
		req  api.CreateReservationRequest
		code int
	}{
		{"missing holder", api.CreateReservationRequest{Date: "2026-09-01", Time: "09:00 AM", Quantity: 1}, http.StatusBadRequest},
		{"bad date", api.CreateReservationRequest{HolderID: "visitor-1", Date: "01/09/2026", Time: "09:00 AM", Quantity: 1}, http.StatusBadRequest},
		{"bad label", api.CreateReservationRequest{HolderID: "visitor-1", Date: "2026-09-01", Time: "09:15 AM", Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", api.CreateReservationRequest{HolderID: "visitor-1", Date: "2026-09-01", Time: "09:00 AM", Quantity: 0}, http.StatusBadRequest},
		{"oversized party", api.CreateReservationRequest{HolderID: "visitor-1", Date: "2026-09-01", Time: "09:00 AM", Quantity: 11}, http.StatusBadRequest},
		{"unknown holder", api.CreateReservationRequest{HolderID: "ghost", Date: "2026-09-01", Time: "09:00 AM", Quantity: 1}, http.StatusNotFound},
	}

	for _, tc := range cases {
		rec := app.do(t, http.MethodPost, "/api/reservations", tc.req)
		assert.Equal(t, tc.code, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}
}

func TestAPI_GetReservation(t *testing.T) {
	app := newTestApp(t)
	dto := app.book(t, "08:00 AM", 2)

	rec := app.do(t, http.MethodGet, "/api/reservations/"+dto.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, dto.ID, got.ID)

	rec = app.do(t, http.MethodGet, "/api/reservations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelReservation(t *testing.T) {
	app := newTestApp(t)
	dto := app.book(t, "08:00 AM", 3)

	rec := app.do(t, http.MethodPut,
		fmt.Sprintf("/api/reservations/%s/cancel?holder_id=visitor-1", dto.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, "cancelled", got.State)
	assert.Equal(t, 0, got.Remaining)

	// Second cancel conflicts.
	rec = app.do(t, http.MethodPut,
		fmt.Sprintf("/api/reservations/%s/cancel?holder_id=visitor-1", dto.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Missing holder_id is a client error.
	rec = app.do(t, http.MethodPut,
		fmt.Sprintf("/api/reservations/%s/cancel", dto.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_HolderHistory(t *testing.T) {
	app := newTestApp(t)
	app.book(t, "08:00 AM", 1)
	app.clock.Advance(time.Minute)
	second := app.book(t, "08:30 AM", 2)

	rec := app.do(t, http.MethodGet, "/api/holders/visitor-1/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ReservationDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Empty(t, list[0].Token, "history omits credentials")
}

// =============================================================================
// GATE ENDPOINTS
// =============================================================================

func TestAPI_ScanCredential(t *testing.T) {
	app := newTestApp(t)
	dto := app.book(t, "08:00 AM", 2)

	rec := app.do(t, http.MethodPost, "/api/admissions/scan", api.ScanRequest{
		Token: dto.Token, RedeemerID: "gate-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[api.ScanResultDTO](t, rec)
	assert.Equal(t, dto.ID, result.ReservationID)
	assert.Equal(t, 1, result.Remaining)
	assert.Equal(t, "Asha Pillai", result.HolderName)

	// Audit log shows the scan.
	rec = app.do(t, http.MethodGet, "/api/reservations/"+dto.ID+"/redemptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[[]api.RedemptionDTO](t, rec)
	require.Len(t, log, 1)
	assert.Equal(t, "gate-1", log[0].RedeemerID)
}

func TestAPI_ScanCredential_ExhaustionAndBadTokens(t *testing.T) {
	app := newTestApp(t)
	dto := app.book(t, "08:00 AM", 1)

	rec := app.do(t, http.MethodPost, "/api/admissions/scan", api.ScanRequest{Token: dto.Token, RedeemerID: "gate-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-scan of an exhausted credential conflicts.
	rec = app.do(t, http.MethodPost, "/api/admissions/scan", api.ScanRequest{Token: dto.Token, RedeemerID: "gate-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/admissions/scan", api.ScanRequest{Token: "", RedeemerID: "gate-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/admissions/scan", api.ScanRequest{Token: "garbage", RedeemerID: "gate-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unverifiable credential looks like a missing one")
}

// =============================================================================
// AVAILABILITY AND ADMIN ENDPOINTS
// =============================================================================

func TestAPI_Availability(t *testing.T) {
	app := newTestApp(t)
	app.book(t, "08:00 AM", 4)

	rec := app.do(t, http.MethodGet, "/api/availability?date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]api.SlotAvailabilityDTO](t, rec)
	require.Len(t, slots, 3)

	assert.Equal(t, "08:00 AM", slots[0].Time)
	assert.Equal(t, 4, slots[0].Reserved)
	assert.Equal(t, 6, slots[0].Available)
	assert.Equal(t, "40", slots[0].Utilization.String())
	assert.Equal(t, "0", slots[1].Utilization.String())

	rec = app.do(t, http.MethodGet, "/api/availability?date=septober", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Sweep(t *testing.T) {
	app := newTestApp(t)
	app.book(t, "08:00 AM", 5)

	// Past 08:00 + 2h grace.
	app.clock.Set(time.Date(2026, time.September, 1, 10, 30, 0, 0, time.UTC))

	rec := app.do(t, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.SweepResponse](t, rec)
	assert.Equal(t, 1, resp.Expired)

	// The freed seats show up in availability.
	rec = app.do(t, http.MethodGet, "/api/availability?date=2026-09-01", nil)
	slots := decode[[]api.SlotAvailabilityDTO](t, rec)
	assert.Equal(t, 0, slots[0].Reserved)
}

// =============================================================================
// PRINCIPAL ENDPOINTS
// =============================================================================

func TestAPI_Principals(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/principals", api.RegisterPrincipalRequest{
		ID: "sadhu-1", Name: "Swami Anand", Class: "Sadhu",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.PrincipalDTO](t, rec)
	assert.Equal(t, 3, created.Rank)

	rec = app.do(t, http.MethodGet, "/api/principals/sadhu-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.PrincipalDTO](t, rec)
	assert.Equal(t, "Swami Anand", got.Name)
	assert.Equal(t, "Sadhu", got.Class)

	// Unknown class is rejected, never defaulted.
	rec = app.do(t, http.MethodPost, "/api/principals", api.RegisterPrincipalRequest{
		ID: "x", Name: "X", Class: "priest",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/principals/stranger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
