package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/darshan-engine/schedule"
)

func TestResolveRank_KnownClasses(t *testing.T) {
	// GIVEN: the closed set of requester classes
	// THEN: ranks are total and stable, lower = higher precedence

	cases := []struct {
		class schedule.RequesterClass
		rank  int
	}{
		{schedule.ClassAdmin, 1},
		{schedule.ClassVIP, 2},
		{schedule.ClassSadhu, 3},
		{schedule.ClassCivilian, 4},
	}

	for _, tc := range cases {
		rank, err := schedule.ResolveRank(tc.class)
		require.NoError(t, err, "class %s", tc.class)
		assert.Equal(t, tc.rank, rank, "class %s", tc.class)
		assert.True(t, schedule.KnownClass(tc.class))
	}
}

func TestResolveRank_UnknownClass_Rejected(t *testing.T) {
	// GIVEN: a class outside the closed set
	// WHEN: resolving its rank
	// THEN: rejected, never silently defaulted

	_, err := schedule.ResolveRank("priest")
	assert.ErrorIs(t, err, schedule.ErrUnknownRequesterClass)
	assert.False(t, schedule.KnownClass("priest"))

	_, err = schedule.ResolveRank("")
	assert.ErrorIs(t, err, schedule.ErrUnknownRequesterClass)
}
