package prox

import (
	"testing"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/loc"
	"github.com/stretchr/testify/assert"
)

type captureDelivery struct {
	updates []ProximityUpdate
}

func (c *captureDelivery) DeliverProximityUpdate(u ProximityUpdate) {
	c.updates = append(c.updates, u)
}

func TestBruteForceAdditionOnTick(t *testing.T) {
	cache := loc.New()
	delivery := &captureDelivery{}
	engine := NewEngine(cache, delivery, 1e-3, NewBruteForceHandler)

	querier := cmn.ServerQuerierID(cmn.ServerID(1))
	engine.serverDynamic.RegisterQuery(querier, cmn.Vector3{}, cmn.BoundingBox{}, 0, cmn.SolidAngleMin, 0)

	oref := cmn.NewObjectReference()
	cache.Add(oref)
	cache.UpdateLocation(oref, 1, cmn.NewTimedMotionVector(0, cmn.Vector3{X: 1, Y: 1, Z: 1}, cmn.Vector3{X: 5}))
	cache.UpdateBounds(oref, 1, cmn.BoundingSphere{Radius: 1})

	engine.Tick(0)

	assert.Len(t, delivery.updates, 1)
	assert.Len(t, delivery.updates[0].Additions, 1)
	assert.Equal(t, oref, delivery.updates[0].Additions[0].Object)
}

func TestHandleDisconnectedObjectEmitsTransientRemoval(t *testing.T) {
	cache := loc.New()
	delivery := &captureDelivery{}
	engine := NewEngine(cache, delivery, 1e-3, NewBruteForceHandler)

	oref := cmn.NewObjectReference()
	querier := cmn.ServerQuerierID(cmn.ServerID(2))
	engine.addSub(oref, querier)

	engine.HandleDisconnectedObject(oref)

	assert.Len(t, delivery.updates, 1)
	assert.Len(t, delivery.updates[0].Removals, 1)
	assert.Equal(t, Transient, delivery.updates[0].Removals[0].Transience)
}
