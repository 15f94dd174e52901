package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInv() *Inventory {
	return NewInventory(Address{Group: "test", ID: 0})
}

func TestCreateAndDestroy(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 5)
	inv.Create(corn, 2.5)
	assert.Equal(t, 7.5, inv.Have(corn))

	require.NoError(t, inv.Destroy(corn, 3))
	assert.Equal(t, 4.5, inv.Have(corn))

	err := inv.Destroy(corn, 5)
	var short *NotEnoughGoodsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, corn, short.Good)
	assert.InDelta(t, 0.5, short.Shortfall, 1e-9)
	assert.Equal(t, 4.5, inv.Have(corn), "failed destroy removes nothing")

	assert.Equal(t, 4.5, inv.DestroyAll(corn))
	assert.Equal(t, 0.0, inv.Have(corn))
}

func TestDestroyWithinToleranceSnaps(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 1)
	require.NoError(t, inv.Destroy(corn, 1+Epsilon/2))
	assert.Equal(t, 0.0, inv.Have(corn))
}

func TestReserveRollsBackOnShortfall(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 4)
	require.NoError(t, inv.Reserve(corn, 3))

	err := inv.Reserve(corn, 2)
	var short *NotEnoughGoodsError
	require.ErrorAs(t, err, &short)
	assert.InDelta(t, 1.0, short.Shortfall, 1e-9)
	assert.Equal(t, 3.0, inv.Reserved(corn), "failed reserve rolled back")
	assert.Equal(t, 1.0, inv.NotReserved(corn))
}

func TestReserveWithinToleranceClampsToHaves(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 2)
	require.NoError(t, inv.Reserve(corn, 2+Epsilon/2))
	assert.Equal(t, 2.0, inv.Reserved(corn))
	assert.Equal(t, 0.0, inv.NotReserved(corn))
}

func TestRewindReleasesWithoutRemoving(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 5)
	require.NoError(t, inv.Reserve(corn, 4))
	inv.Rewind(corn, 4)
	assert.Equal(t, 0.0, inv.Reserved(corn))
	assert.Equal(t, 5.0, inv.Have(corn))

	// Rewinding past zero clamps instead of going negative.
	inv.Rewind(corn, 1)
	assert.Equal(t, 0.0, inv.Reserved(corn))
}

func TestCommitReleasesFullAndRemovesFinal(t *testing.T) {
	inv := testInv()
	inv.Create(corn, 10)
	require.NoError(t, inv.Reserve(corn, 5))

	inv.Commit(corn, 5, 2) // partial settle: 2 of 5 traded
	assert.Equal(t, 0.0, inv.Reserved(corn))
	assert.Equal(t, 8.0, inv.Have(corn))
	assert.Equal(t, 8.0, inv.NotReserved(corn))
}

func TestPerishableZeroedAtRoundEnd(t *testing.T) {
	inv := testInv()
	inv.SetPerishable("labor")
	inv.Create("labor", 3)
	inv.Create(corn, 5)

	lost := inv.RoundEnd()
	assert.Equal(t, 3.0, lost["labor"])
	assert.Equal(t, 0.0, inv.Have("labor"))
	assert.Equal(t, 5.0, inv.Have(corn), "non-perishable untouched")
}

func TestExpiringGoodAgesThroughCohorts(t *testing.T) {
	inv := testInv()
	inv.SetExpiring("bread", 2)
	inv.Create("bread", 4) // youngest cohort

	lost := inv.RoundEnd() // cohort shifts: 4 now oldest
	assert.Equal(t, 0.0, lost["bread"])
	assert.Equal(t, 4.0, inv.Have("bread"))

	inv.Create("bread", 1) // fresh batch behind the old one
	lost = inv.RoundEnd()  // the 4 fall off the end
	assert.Equal(t, 4.0, lost["bread"])
	assert.Equal(t, 1.0, inv.Have("bread"))

	lost = inv.RoundEnd()
	assert.Equal(t, 1.0, lost["bread"])
	assert.Equal(t, 0.0, inv.Have("bread"))
}

func TestExpiringConsumesOldestFirst(t *testing.T) {
	inv := testInv()
	inv.SetExpiring("bread", 3)
	inv.Create("bread", 2)
	inv.RoundEnd()
	inv.Create("bread", 5) // cohorts: [0, 2, 5] oldest→youngest

	require.NoError(t, inv.Destroy("bread", 3)) // eats the 2 old, 1 new
	assert.Equal(t, 4.0, inv.Have("bread"))

	inv.RoundEnd()
	inv.RoundEnd()
	lost := inv.RoundEnd() // the remaining 4 reach the end of the ring
	assert.Equal(t, 4.0, lost["bread"])
}

func TestRoundEndClampsReservationsOnPerish(t *testing.T) {
	inv := testInv()
	inv.SetPerishable("labor")
	inv.Create("labor", 3)
	require.NoError(t, inv.Reserve("labor", 2))

	inv.RoundEnd()
	assert.Equal(t, 0.0, inv.Have("labor"))
	assert.LessOrEqual(t, inv.Reserved("labor"), inv.Have("labor")+Epsilon)
}

func TestGoodsSkipsZeroedEntries(t *testing.T) {
	inv := testInv()
	inv.SetPerishable("labor")
	inv.Create("labor", 3)
	inv.Create(corn, 5)
	assert.ElementsMatch(t, []Good{"labor", corn}, inv.Goods())

	inv.RoundEnd() // labor perishes, leaving a zeroed map entry
	assert.ElementsMatch(t, []Good{corn}, inv.Goods())

	inv.DestroyAll(corn)
	assert.Empty(t, inv.Goods())
}

func TestNegativeCreateIgnored(t *testing.T) {
	inv := testInv()
	inv.Create(corn, -Epsilon/2)
	assert.Equal(t, 0.0, inv.Have(corn))
}
