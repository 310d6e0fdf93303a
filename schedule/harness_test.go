package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/darshan-engine/schedule"
	memstore "github.com/warp/darshan-engine/schedule/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// stubCodec issues tokens that are just the reservation id, sidestepping
// real signing. The credential package covers the real codec.
type stubCodec struct {
	failEncode bool
}

func (c *stubCodec) Encode(_ context.Context, p schedule.CredentialPayload) (schedule.Credential, error) {
	if c.failEncode {
		return schedule.Credential{}, errors.New("signing backend offline")
	}
	return schedule.Credential{
		Token: string(p.ReservationID),
		Image: "data:image/png;base64,stub",
	}, nil
}

func (c *stubCodec) Decode(token string) (*schedule.CredentialPayload, error) {
	if token == "" {
		return nil, schedule.ErrBadCredential
	}
	return &schedule.CredentialPayload{ReservationID: schedule.ReservationID(token)}, nil
}

// engine bundles the full service stack over the in-memory store.
type engine struct {
	store        *memstore.Memory
	clock        *schedule.ManualClock
	sched        *schedule.Schedule
	codec        *stubCodec
	ledger       *schedule.SlotLedger
	search       *schedule.SlotSearch
	reservations *schedule.ReservationService
	admissions   *schedule.AdmissionService
	cancels      *schedule.CancellationService
	sweeper      *schedule.ExpirySweeper
}

// testDay is the date every engine test books against.
var testDay = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, labels []schedule.TimeOfDay, capacity int) *engine {
	t.Helper()

	store := memstore.NewMemory()
	sched := schedule.MustSchedule(labels)
	clock := schedule.NewManualClock(testDay.Add(6 * time.Hour)) // 06:00, before every slot
	codec := &stubCodec{}
	ledger := schedule.NewSlotLedger(store, capacity)
	search := schedule.NewSlotSearch(sched, ledger, schedule.DefaultHorizonDays)

	e := &engine{
		store:  store,
		clock:  clock,
		sched:  sched,
		codec:  codec,
		ledger: ledger,
		search: search,
		reservations: &schedule.ReservationService{
			Store:     store,
			Directory: store,
			Ledger:    ledger,
			Search:    search,
			Encoder:   codec,
			Clock:     clock,
		},
		admissions: &schedule.AdmissionService{
			Store:     store,
			Directory: store,
			Ledger:    ledger,
			Decoder:   codec,
			Clock:     clock,
		},
		cancels: &schedule.CancellationService{
			Store:  store,
			Ledger: ledger,
		},
		sweeper: &schedule.ExpirySweeper{
			Store:  store,
			Ledger: ledger,
			Clock:  clock,
		},
	}

	e.seed(t, "visitor-1", "Asha Pillai", schedule.ClassCivilian)
	return e
}

func (e *engine) seed(t *testing.T, id schedule.HolderID, name string, class schedule.RequesterClass) {
	t.Helper()
	err := e.store.SavePrincipal(context.Background(), schedule.Principal{
		ID:    id,
		Name:  name,
		Class: class,
	})
	require.NoError(t, err)
}

func (e *engine) slot(label schedule.TimeOfDay) schedule.SlotKey {
	return schedule.SlotKey{Date: testDay, Time: label}
}

func (e *engine) entry(t *testing.T, key schedule.SlotKey) schedule.SlotLedgerEntry {
	t.Helper()
	entry, err := e.ledger.GetOrInit(context.Background(), key)
	require.NoError(t, err)
	return entry
}

// morningLabels is a compact three-slot schedule for cascade tests.
func morningLabels() []schedule.TimeOfDay {
	return []schedule.TimeOfDay{"08:00 AM", "08:30 AM", "09:00 AM"}
}
