package prox

import (
	"sync"

	"github.com/sirikata/space/cmn"
)

// bruteForceHandler is the "brutef" HandlerType: O(objects x queries) per
// tick, the simplest correct implementation and the CLI surface default.
type bruteForceHandler struct {
	mu      sync.RWMutex
	objects map[cmn.ObjectReference]objState
	queries map[cmn.QuerierID]*Query
}

type objState struct {
	pos    cmn.Vector3
	bounds cmn.BoundingSphere
}

func NewBruteForceHandler() Handler {
	return &bruteForceHandler{
		objects: make(map[cmn.ObjectReference]objState),
		queries: make(map[cmn.QuerierID]*Query),
	}
}

func (h *bruteForceHandler) RegisterQuery(id cmn.QuerierID, loc cmn.Vector3, region cmn.BoundingBox, maxResults int, angle cmn.SolidAngle, maxDist float32) *Query {
	q := newQuery(id, loc, region, maxResults, angle, maxDist)
	h.mu.Lock()
	h.queries[id] = q
	h.mu.Unlock()
	return q
}

func (h *bruteForceHandler) RemoveQuery(id cmn.QuerierID) {
	h.mu.Lock()
	delete(h.queries, id)
	h.mu.Unlock()
}

func (h *bruteForceHandler) AddObject(o cmn.ObjectReference, pos cmn.Vector3, bounds cmn.BoundingSphere) {
	h.mu.Lock()
	h.objects[o] = objState{pos: pos, bounds: bounds}
	h.mu.Unlock()
}

func (h *bruteForceHandler) RemoveObject(o cmn.ObjectReference) {
	h.mu.Lock()
	delete(h.objects, o)
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, q := range h.queries {
		if q.setResult(o, false) {
			q.pushEvent(QueryEvent{Addition: false, Object: o, Transience: Permanent})
		}
	}
}

func (h *bruteForceHandler) ContainsObject(o cmn.ObjectReference) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.objects[o]
	return ok
}

func (h *bruteForceHandler) Queries() []*Query {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Query, 0, len(h.queries))
	for _, q := range h.queries {
		out = append(out, q)
	}
	return out
}

// Tick re-evaluates every (query, object) pair, matching the original's
// brute-force handler: each query's view of the world is the full current
// membership of the handler.
func (h *bruteForceHandler) Tick(t cmn.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, q := range h.queries {
		for o, st := range h.objects {
			in := visible(q, st)
			if q.setResult(o, in) {
				q.pushEvent(QueryEvent{Addition: in, Object: o, Transience: Transient})
			}
		}
	}
}

// Rebuild is a no-op for the brute-force handler: there is no auxiliary
// index to rebuild, only full re-scans on every tick.
func (h *bruteForceHandler) Rebuild() {}

// visible implements the angle/distance visibility test of the
// query-distance mode: dist/rtreedist handlers cap by distance, others by
// solid angle threshold.
func visible(q *Query, st objState) bool {
	d := st.pos.Sub(q.Loc).Length()
	if q.MaxDist > 0 && d > q.MaxDist {
		return false
	}
	if q.Angle <= NoUpdateSolidAngle {
		return true
	}
	sa := cmn.ApparentSolidAngle(st.bounds.Radius, d)
	return sa >= q.Angle
}
