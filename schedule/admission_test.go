package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/darshan-engine/schedule"
)

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestAdmission_Redeem_OneUnitPerScan(t *testing.T) {
	// GIVEN: a party of 3 with one shared credential
	// WHEN: the credential is scanned three times
	// THEN: remaining steps 2, 1, 0 and the third scan exhausts it

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 3)
	require.NoError(t, err)

	for i, want := range []int{2, 1, 0} {
		outcome, err := e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
		require.NoError(t, err, "scan %d", i+1)
		assert.Equal(t, want, outcome.Remaining)
		assert.Equal(t, "Asha Pillai", outcome.HolderName)
	}

	stored, err := e.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StateExhausted, stored.State)
	assert.Equal(t, 0, stored.Remaining)
}

func TestAdmission_Redeem_FourthScanRejected(t *testing.T) {
	// GIVEN: a party of 3, fully admitted
	// WHEN: the credential is scanned a fourth time
	// THEN: rejected with an exhaustion conflict, occupancy unchanged

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
		require.NoError(t, err)
	}

	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
	assert.ErrorIs(t, err, schedule.ErrAlreadyExhausted)

	entry := e.entry(t, e.slot("08:00 AM"))
	assert.Equal(t, 3, entry.Entered, "overscan must not bump occupancy")
}

func TestAdmission_Redeem_CountsEnteredNotReserved(t *testing.T) {
	// GIVEN: booking claimed 4 reserved seats
	// WHEN: two members enter
	// THEN: entered rises, reserved does NOT change - redemption never
	//       double-consumes the capacity claimed at booking

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 4)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
		require.NoError(t, err)
	}

	entry := e.entry(t, e.slot("08:00 AM"))
	assert.Equal(t, 4, entry.Reserved)
	assert.Equal(t, 2, entry.Entered)
}

func TestAdmission_Redeem_BadToken_Rejected(t *testing.T) {
	e := newEngine(t, morningLabels(), 10)

	_, err := e.admissions.Redeem(context.Background(), "", "gate-1")
	assert.ErrorIs(t, err, schedule.ErrBadCredential)

	// Well-formed token naming a reservation that does not exist.
	_, err = e.admissions.Redeem(context.Background(), "no-such-id", "gate-1")
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestAdmission_Redeem_CancelledReservation_Rejected(t *testing.T) {
	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 2)
	require.NoError(t, err)

	_, err = e.cancels.Cancel(ctx, r.ID, "visitor-1")
	require.NoError(t, err)

	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
	assert.ErrorIs(t, err, schedule.ErrReservationCancelled)
}

// =============================================================================
// EXPIRY-AT-SCAN TESTS
// =============================================================================

func TestAdmission_Redeem_PastDeadline_ExpiresAndReclaims(t *testing.T) {
	// GIVEN: a reservation whose grace window lapsed without the sweep
	//        having run
	// WHEN: the credential is finally scanned
	// THEN: the scan is rejected, the reservation is Expired, and its
	//       remaining seats return to the slot

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 4)
	require.NoError(t, err)
	require.Equal(t, 4, e.entry(t, e.slot("08:00 AM")).Reserved)

	// Jump past 08:00 + 2h grace.
	e.clock.Set(r.Deadline.Add(time.Minute))

	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
	assert.ErrorIs(t, err, schedule.ErrReservationExpired)

	var expired *schedule.ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, r.ID, expired.ID)

	stored, err := e.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StateExpired, stored.State)
	assert.Equal(t, 0, e.entry(t, e.slot("08:00 AM")).Reserved,
		"expiry at scan must release all remaining seats")
}

func TestAdmission_Redeem_PartialEntryThenExpiry(t *testing.T) {
	// GIVEN: 2 of 5 entered before the deadline
	// WHEN: the deadline passes and a sixth scan arrives
	// THEN: only the 3 unredeemed seats are released; the 2 admitted
	//       entries stay on the books

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 5)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
		require.NoError(t, err)
	}

	e.clock.Set(r.Deadline.Add(time.Second))

	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-1")
	assert.ErrorIs(t, err, schedule.ErrReservationExpired)

	entry := e.entry(t, e.slot("08:00 AM"))
	assert.Equal(t, 2, entry.Reserved, "redeemed units remain admitted load")
	assert.Equal(t, 2, entry.Entered)
}

// =============================================================================
// AUDIT LOG TESTS
// =============================================================================

func TestAdmission_Redeem_AppendsAuditRecords(t *testing.T) {
	// GIVEN: two scans at different gates
	// THEN: the audit log holds one record per scan, in order

	e := newEngine(t, morningLabels(), 10)
	ctx := context.Background()

	r, err := e.reservations.Create(ctx, "visitor-1", e.slot("08:00 AM"), 2)
	require.NoError(t, err)

	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-east")
	require.NoError(t, err)
	e.clock.Advance(5 * time.Minute)
	_, err = e.admissions.Redeem(ctx, r.Credential.Token, "gate-west")
	require.NoError(t, err)

	records, err := e.store.RedemptionsByReservation(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, schedule.HolderID("gate-east"), records[0].RedeemerID)
	assert.Equal(t, schedule.HolderID("gate-west"), records[1].RedeemerID)
	assert.True(t, records[0].RedeemedAt.Before(records[1].RedeemedAt))
}
