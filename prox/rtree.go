package prox

import (
	"sync"

	"github.com/tidwall/rtred"

	"github.com/sirikata/space/cmn"
)

// rtreeItem adapts one tracked object into rtred.Item (a 3D point expanded
// by its bounding radius, so a range query against a query's region also
// catches objects whose bounds overlap it).
type rtreeItem struct {
	obj    cmn.ObjectReference
	pos    cmn.Vector3
	bounds cmn.BoundingSphere
}

func (it *rtreeItem) Rect(ctx interface{}) (min, max []float64) {
	r := float64(it.bounds.Radius)
	return []float64{float64(it.pos.X) - r, float64(it.pos.Y) - r, float64(it.pos.Z) - r},
		[]float64{float64(it.pos.X) + r, float64(it.pos.Y) + r, float64(it.pos.Z) + r}
}

// rtreeHandler is the "rtree" HandlerType: object membership indexed by an
// R-tree so Tick only re-evaluates queries against nearby objects instead
// of the full population.
type rtreeHandler struct {
	mu      sync.RWMutex
	tree    *rtred.RTree
	objects map[cmn.ObjectReference]*rtreeItem
	queries map[cmn.QuerierID]*Query
}

func NewRTreeHandler() Handler {
	return &rtreeHandler{
		tree:    rtred.New(nil),
		objects: make(map[cmn.ObjectReference]*rtreeItem),
		queries: make(map[cmn.QuerierID]*Query),
	}
}

func (h *rtreeHandler) RegisterQuery(id cmn.QuerierID, loc cmn.Vector3, region cmn.BoundingBox, maxResults int, angle cmn.SolidAngle, maxDist float32) *Query {
	q := newQuery(id, loc, region, maxResults, angle, maxDist)
	h.mu.Lock()
	h.queries[id] = q
	h.mu.Unlock()
	return q
}

func (h *rtreeHandler) RemoveQuery(id cmn.QuerierID) {
	h.mu.Lock()
	delete(h.queries, id)
	h.mu.Unlock()
}

func (h *rtreeHandler) AddObject(o cmn.ObjectReference, pos cmn.Vector3, bounds cmn.BoundingSphere) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.objects[o]; ok {
		h.tree.Remove(old)
	}
	it := &rtreeItem{obj: o, pos: pos, bounds: bounds}
	h.objects[o] = it
	h.tree.Insert(it)
}

func (h *rtreeHandler) RemoveObject(o cmn.ObjectReference) {
	h.mu.Lock()
	it, ok := h.objects[o]
	if ok {
		h.tree.Remove(it)
		delete(h.objects, o)
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, q := range h.queries {
		if q.setResult(o, false) {
			q.pushEvent(QueryEvent{Addition: false, Object: o, Transience: Permanent})
		}
	}
}

func (h *rtreeHandler) ContainsObject(o cmn.ObjectReference) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.objects[o]
	return ok
}

func (h *rtreeHandler) Queries() []*Query {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Query, 0, len(h.queries))
	for _, q := range h.queries {
		out = append(out, q)
	}
	return out
}

// Tick scans the R-tree bounded by each query's search radius instead of
// the full object set: the radius is derived from MaxDist when set, else a
// conservative bound wide enough that ApparentSolidAngle's own falloff does
// the real filtering.
func (h *rtreeHandler) Tick(t cmn.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, q := range h.queries {
		radius := q.MaxDist
		if radius <= 0 {
			radius = searchRadiusFor(q.Angle)
		}
		bounds := &rtreeItem{pos: q.Loc, bounds: cmn.BoundingSphere{Radius: radius}}
		h.tree.Search(bounds, func(item rtred.Item) bool {
			it := item.(*rtreeItem)
			in := visible(q, objState{pos: it.pos, bounds: it.bounds})
			if q.setResult(it.obj, in) {
				q.pushEvent(QueryEvent{Addition: in, Object: it.obj, Transience: Transient})
			}
			return true
		})
	}
}

// searchRadiusFor picks a generous cutoff distance for an angle-mode query:
// below this distance even a minimal-radius object exceeds most practical
// angle thresholds, above it the R-tree prune is safe to skip.
func searchRadiusFor(angle cmn.SolidAngle) float32 {
	if angle <= NoUpdateSolidAngle {
		return 1e6 // effectively unbounded: "everything" query
	}
	return 1e4
}

func (h *rtreeHandler) Rebuild() {
	h.mu.Lock()
	defer h.mu.Unlock()
	fresh := rtred.New(nil)
	for _, it := range h.objects {
		fresh.Insert(it)
	}
	h.tree = fresh
}
