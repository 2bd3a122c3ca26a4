package loc

import (
	"testing"

	"github.com/sirikata/space/cmn"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	added, removed []cmn.ObjectReference
	locs           int
}

func (r *recorder) OnLocationUpdated(cmn.ObjectReference, cmn.TimedMotionVector)    { r.locs++ }
func (r *recorder) OnBoundsUpdated(cmn.ObjectReference, cmn.BoundingSphere)         {}
func (r *recorder) OnOrientationUpdated(cmn.ObjectReference, cmn.TimedMotionQuaternion) {}
func (r *recorder) OnMeshUpdated(cmn.ObjectReference, string)                       {}
func (r *recorder) OnPhysicsUpdated(cmn.ObjectReference, []byte)                    {}
func (r *recorder) OnObjectAdded(o cmn.ObjectReference)                            { r.added = append(r.added, o) }
func (r *recorder) OnObjectRemoved(o cmn.ObjectReference)                          { r.removed = append(r.removed, o) }

func TestAddTrackRemove(t *testing.T) {
	c := New()
	rec := &recorder{}
	c.Subscribe(rec)

	oref := cmn.NewObjectReference()
	assert.False(t, c.Tracking(oref))

	c.Add(oref)
	assert.True(t, c.Tracking(oref))
	assert.Len(t, rec.added, 1)

	c.Remove(oref)
	assert.False(t, c.Tracking(oref))
	assert.Len(t, rec.removed, 1)
}

func TestSeqnoGate(t *testing.T) {
	c := New()
	oref := cmn.NewObjectReference()
	c.Add(oref)

	c.UpdateLocation(oref, 5, cmn.NewTimedMotionVector(0, cmn.Vector3{X: 1}, cmn.Vector3{}))
	assert.EqualValues(t, 5, c.MaxSeqNo(oref))

	c.UpdateLocation(oref, 3, cmn.NewTimedMotionVector(0, cmn.Vector3{X: 99}, cmn.Vector3{}))
	e, ok := c.Get(oref)
	assert.True(t, ok)
	assert.EqualValues(t, 5, e.SeqNo)
	assert.Equal(t, float32(1), e.Motion.Position.X)
}
