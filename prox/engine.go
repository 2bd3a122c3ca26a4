package prox

import (
	"sync"
	"time"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/hk"
	"github.com/sirikata/space/loc"
	"github.com/sirikata/space/stats"
)

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// class is which of the static/dynamic handler pair currently owns an
// object.
type class int

const (
	classStatic class = iota
	classDynamic
)

// ProximityUpdate is what the prox strand posts to main per querier per
// tick: the additions/removals that querier's handler produced this round.
type ProximityUpdate struct {
	Querier   cmn.QuerierID
	Additions []Addition
	Removals  []Removal
}

type Addition struct {
	Object cmn.ObjectReference
	SeqNo  uint64
	Loc    cmn.TimedMotionVector
	Orient cmn.TimedMotionQuaternion
	Bounds cmn.BoundingSphere
	Mesh   string
}

type Removal struct {
	Object     cmn.ObjectReference
	SeqNo      uint64
	Transience Transience
}

// Delivery is the main-strand callback surface an Engine posts to: once per
// querier per tick with that querier's accumulated ProximityUpdate, pushed
// into the main-strand delivery queue keyed by querier.
type Delivery interface {
	DeliverProximityUpdate(ProximityUpdate)
}

// Engine is the Proximity Engine: four query handlers (server/object x
// static/dynamic) plus the subscription bookkeeping and static/dynamic
// reclassification that sit in front of them.
type Engine struct {
	mu sync.RWMutex

	serverStatic, serverDynamic Handler
	objectStatic, objectDynamic Handler

	locCache    *loc.Cache
	delivery    Delivery
	speedEps    float32

	classOf map[cmn.ObjectReference]class
	subs    map[cmn.ObjectReference]map[cmn.QuerierID]struct{}

	stats *stats.Registry
}

// SetStats attaches a metrics registry; nil (the default) records nothing.
func (e *Engine) SetStats(r *stats.Registry) { e.stats = r }

// NewEngine wires an Engine against a LocationServiceCache and a delivery
// sink, using the given handler factory for all four handlers, so the CLI
// surface can select brutef/rtree/dist/rtreedist.
func NewEngine(locCache *loc.Cache, delivery Delivery, speedEpsilon float32, factory func() Handler) *Engine {
	e := &Engine{
		serverStatic:  factory(),
		serverDynamic: factory(),
		objectStatic:  factory(),
		objectDynamic: factory(),
		locCache:      locCache,
		delivery:      delivery,
		speedEps:      speedEpsilon,
		classOf:       make(map[cmn.ObjectReference]class),
		subs:          make(map[cmn.ObjectReference]map[cmn.QuerierID]struct{}),
	}
	locCache.Subscribe(e)
	return e
}

// StartTicking registers the prox-strand tick and rebuild timers with hk:
// tick default 100ms, static/dynamic rebuild default 3600s each, each on
// its own independent cadence.
func (e *Engine) StartTicking(cfg *cmn.Config) {
	hk.Reg("prox-tick"+hk.NameSuffix, func() time.Duration {
		e.Tick(cmn.Time(nowSeconds()))
		return cfg.Proximity.TickInterval
	}, cfg.Proximity.TickInterval)

	hk.Reg("prox-rebuild-static"+hk.NameSuffix, func() time.Duration {
		e.serverStatic.Rebuild()
		e.objectStatic.Rebuild()
		return cfg.Proximity.StaticRebuildInterval
	}, cfg.Proximity.StaticRebuildInterval)

	hk.Reg("prox-rebuild-dynamic"+hk.NameSuffix, func() time.Duration {
		e.serverDynamic.Rebuild()
		e.objectDynamic.Rebuild()
		return cfg.Proximity.DynamicRebuildInterval
	}, cfg.Proximity.DynamicRebuildInterval)
}

// handlerFor returns the handler an object belongs to given its query scope
// (server or object queries) and current static/dynamic class.
func (e *Engine) handlerFor(scope bool, c class) Handler {
	switch {
	case scope && c == classStatic:
		return e.serverStatic
	case scope && c == classDynamic:
		return e.serverDynamic
	case !scope && c == classStatic:
		return e.objectStatic
	default:
		return e.objectDynamic
	}
}

// checkObjectClass reclassifies an object between static/dynamic on a
// location update, removing it from the old class's handler in each scope
// and then adding it to the new class's handler. The move is not atomic:
// between the two steps the object is in neither handler.
func (e *Engine) checkObjectClass(o cmn.ObjectReference, m cmn.TimedMotionVector, bounds cmn.BoundingSphere) {
	newClass := classDynamic
	if m.Speed() < e.speedEps {
		newClass = classStatic
	}

	e.mu.Lock()
	old, known := e.classOf[o]
	e.classOf[o] = newClass
	e.mu.Unlock()

	if known && old == newClass {
		return
	}
	pos := m.Extrapolate(m.T0)
	if known {
		e.handlerFor(true, old).RemoveObject(o)
		e.handlerFor(false, old).RemoveObject(o)
	}
	e.handlerFor(true, newClass).AddObject(o, pos, bounds)
	e.handlerFor(false, newClass).AddObject(o, pos, bounds)
}

// OnLocationUpdated implements loc.Listener.
func (e *Engine) OnLocationUpdated(o cmn.ObjectReference, m cmn.TimedMotionVector) {
	entry, _ := e.locCache.Get(o)
	e.checkObjectClass(o, m, entry.Bounds)
}

func (e *Engine) OnBoundsUpdated(o cmn.ObjectReference, b cmn.BoundingSphere)            {}
func (e *Engine) OnOrientationUpdated(cmn.ObjectReference, cmn.TimedMotionQuaternion)    {}
func (e *Engine) OnMeshUpdated(cmn.ObjectReference, string)                              {}
func (e *Engine) OnPhysicsUpdated(cmn.ObjectReference, []byte)                           {}

func (e *Engine) OnObjectAdded(o cmn.ObjectReference) {
	entry, ok := e.locCache.Get(o)
	if !ok {
		return
	}
	e.checkObjectClass(o, entry.Motion, entry.Bounds)
}

// OnObjectRemoved implements handleDisconnectedObject's non-query-specific
// half: the object is pulled out of whichever handler currently has it.
func (e *Engine) OnObjectRemoved(o cmn.ObjectReference) {
	e.mu.Lock()
	c, known := e.classOf[o]
	delete(e.classOf, o)
	e.mu.Unlock()
	if !known {
		return
	}
	e.handlerFor(true, c).RemoveObject(o)
	e.handlerFor(false, c).RemoveObject(o)
}

// Tick advances every handler and drains their event queues into
// per-querier ProximityUpdates delivered to main.
func (e *Engine) Tick(t cmn.Time) {
	for _, h := range []Handler{e.serverStatic, e.serverDynamic, e.objectStatic, e.objectDynamic} {
		h.Tick(t)
		e.drainHandler(h)
	}
}

func (e *Engine) drainHandler(h Handler) {
	for _, q := range h.Queries() {
		var events []QueryEvent
		if q.PopEvents(&events) == 0 {
			continue
		}
		upd := ProximityUpdate{Querier: q.ID}
		for _, ev := range events {
			if ev.Addition {
				if !e.locCache.Tracking(ev.Object) {
					continue
				}
				entry, _ := e.locCache.Get(ev.Object)
				upd.Additions = append(upd.Additions, Addition{
					Object: ev.Object,
					SeqNo:  e.locCache.MaxSeqNo(ev.Object),
					Loc:    entry.Motion,
					Orient: entry.Orient,
					Bounds: entry.Bounds,
					Mesh:   entry.MeshURI,
				})
				e.addSub(ev.Object, q.ID)
				if e.stats != nil {
					e.stats.ProxAdditions.WithLabelValues(transienceLabel(ev.Transience)).Inc()
				}
			} else {
				upd.Removals = append(upd.Removals, Removal{
					Object:     ev.Object,
					SeqNo:      e.locCache.MaxSeqNo(ev.Object),
					Transience: ev.Transience,
				})
				e.removeSub(ev.Object, q.ID)
				if e.stats != nil {
					e.stats.ProxRemovals.WithLabelValues(transienceLabel(ev.Transience)).Inc()
				}
			}
		}
		if len(upd.Additions) > 0 || len(upd.Removals) > 0 {
			e.delivery.DeliverProximityUpdate(upd)
		}
	}
}

func transienceLabel(t Transience) string {
	if t == Transient {
		return "transient"
	}
	return "permanent"
}

func (e *Engine) addSub(o cmn.ObjectReference, q cmn.QuerierID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.subs[o]
	if !ok {
		set = make(map[cmn.QuerierID]struct{})
		e.subs[o] = set
	}
	set[q] = struct{}{}
}

func (e *Engine) removeSub(o cmn.ObjectReference, q cmn.QuerierID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.subs[o]; ok {
		delete(set, q)
		if len(set) == 0 {
			delete(e.subs, o)
		}
	}
}

// Subscribers returns the current subscriber set for o: the main-strand
// `Subscribers: ObjectID -> Set<QuerierID>` index.
func (e *Engine) Subscribers(o cmn.ObjectReference) []cmn.QuerierID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := e.subs[o]
	out := make([]cmn.QuerierID, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	return out
}

// HandleDisconnectedObject is the migration hook: delete any object-query
// for oref, emit a Transient removal to every subscriber, and clear the
// reverse subscriber index.
func (e *Engine) HandleDisconnectedObject(oref cmn.ObjectReference) {
	qid := cmn.QuerierID{Object: cmn.SpaceObjectReference{Object: oref}}
	for _, h := range []Handler{e.objectStatic, e.objectDynamic} {
		h.RemoveQuery(qid)
	}

	subs := e.Subscribers(oref)
	if len(subs) > 0 {
		seqno := e.locCache.MaxSeqNo(oref)
		for _, sub := range subs {
			e.delivery.DeliverProximityUpdate(ProximityUpdate{
				Querier:  sub,
				Removals: []Removal{{Object: oref, SeqNo: seqno, Transience: Transient}},
			})
		}
	}

	e.mu.Lock()
	delete(e.subs, oref)
	e.mu.Unlock()
}
