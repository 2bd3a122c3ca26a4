package region_test

import (
	"testing"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worldBox() cmn.BoundingBox {
	return cmn.NewBoundingBox(cmn.Vector3{X: -100, Y: -100, Z: -100}, cmn.Vector3{X: 100, Y: 100, Z: 100})
}

func TestLookupSingleLeaf(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	sid, box := tr.Lookup(cmn.Vector3{X: 5, Y: 5, Z: 5})
	assert.EqualValues(t, 1, sid)
	assert.Equal(t, worldBox(), box)
}

func TestLookupClampsOutOfRange(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	sid, _ := tr.Lookup(cmn.Vector3{X: 5000, Y: 0, Z: 0})
	assert.EqualValues(t, 1, sid)
}

func TestSplitThenLookupBothSides(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	require.NoError(t, tr.Split(1, 2))
	require.NoError(t, tr.CheckInvariants())

	leftSid, _ := tr.Lookup(cmn.Vector3{X: -50, Y: 0, Z: 0})
	rightSid, _ := tr.Lookup(cmn.Vector3{X: 50, Y: 0, Z: 0})
	assert.NotEqual(t, leftSid, rightSid)
	assert.ElementsMatch(t, []cmn.ServerID{1, 2}, []cmn.ServerID{leftSid, rightSid})
}

func TestMergeReturnsFreedServerAndRestoresSingleLeaf(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	require.NoError(t, tr.Split(1, 2))
	require.True(t, tr.SiblingIsLeaf(1))

	freed, err := tr.Merge(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, freed)
	require.NoError(t, tr.CheckInvariants())

	sid, box := tr.Lookup(cmn.Vector3{X: 50, Y: 0, Z: 0})
	assert.EqualValues(t, 1, sid)
	assert.Equal(t, worldBox(), box)
}

func TestServerRegionsAfterSplit(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	require.NoError(t, tr.Split(1, 2))
	regions1 := tr.ServerRegions(1)
	regions2 := tr.ServerRegions(2)
	require.Len(t, regions1, 1)
	require.Len(t, regions2, 1)
	assert.NotEqual(t, regions1[0], regions2[0])
}

func TestSplitTwiceThenMergeOnce(t *testing.T) {
	tr := region.NewTree(worldBox(), 1)
	require.NoError(t, tr.Split(1, 2))
	require.NoError(t, tr.Split(1, 3))
	require.NoError(t, tr.CheckInvariants())
	require.Len(t, tr.AllLeaves(), 3)

	// The second split gave 1 a new immediate sibling, leaf 3, so 1 can be
	// merged and the merge frees 3.
	if tr.SiblingIsLeaf(1) {
		freed, err := tr.Merge(1)
		require.NoError(t, err)
		require.NoError(t, tr.CheckInvariants())
		assert.NotZero(t, freed)
	}
}
