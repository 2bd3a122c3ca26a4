package prox

import "github.com/sirikata/space/cmn"

// MigrationData is the per-object-query visibility snapshot packaged at the
// source server by GenerateMigrationData and replayed at the destination by
// ReceiveMigrationData, so a migrating object's queriers never observe a
// duplicate addition.
type MigrationData struct {
	Object  cmn.ObjectReference
	Visible map[cmn.ObjectReference]uint64 // object -> seqno at time of snapshot
}

// GenerateMigrationData snapshots obj's object-query visibility set as
// known to this (source) engine.
func (e *Engine) GenerateMigrationData(obj cmn.ObjectReference) MigrationData {
	qid := cmn.QuerierID{Object: cmn.SpaceObjectReference{Object: obj}}
	data := MigrationData{Object: obj, Visible: make(map[cmn.ObjectReference]uint64)}

	for _, h := range []Handler{e.objectStatic, e.objectDynamic} {
		for _, q := range h.Queries() {
			if q.ID != qid {
				continue
			}
			q.mu.Lock()
			for o := range q.result {
				data.Visible[o] = e.locCache.MaxSeqNo(o)
			}
			q.mu.Unlock()
		}
	}
	return data
}

// ReceiveMigrationData seeds the destination engine's object-query result
// set for obj from data, so the first post-migration tick only emits
// additions/removals for what actually changed since the snapshot instead
// of re-announcing everything obj could already see.
func (e *Engine) ReceiveMigrationData(data MigrationData, loc cmn.Vector3, region cmn.BoundingBox, maxResults int, angle cmn.SolidAngle, maxDist float32) {
	c := classDynamic
	e.mu.RLock()
	if known, ok := e.classOf[data.Object]; ok {
		c = known
	}
	e.mu.RUnlock()

	h := e.handlerFor(false, c)
	q := h.RegisterQuery(cmn.QuerierID{Object: cmn.SpaceObjectReference{Object: data.Object}}, loc, region, maxResults, angle, maxDist)
	q.mu.Lock()
	for o := range data.Visible {
		q.result[o] = struct{}{}
	}
	q.mu.Unlock()
}
