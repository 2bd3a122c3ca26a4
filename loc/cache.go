// Package loc implements the Location Service Cache: the per-server record
// of authoritative position/bounds/orientation/mesh/physics state for every
// object this server tracks, local or replicated.
package loc

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/sirikata/space/cmn"
)

// Entry is one object's cached location state.
type Entry struct {
	Object   cmn.ObjectReference
	Motion   cmn.TimedMotionVector
	Orient   cmn.TimedMotionQuaternion
	Bounds   cmn.BoundingSphere
	MeshURI  string
	Physics  []byte
	SeqNo    uint64
	Tracking bool
}

// Listener receives change notifications as the cache mutates. Every method
// runs on whichever strand posted the update -- Cache itself performs no
// strand dispatch, callers invoke methods from the strand they own.
type Listener interface {
	OnLocationUpdated(cmn.ObjectReference, cmn.TimedMotionVector)
	OnBoundsUpdated(cmn.ObjectReference, cmn.BoundingSphere)
	OnOrientationUpdated(cmn.ObjectReference, cmn.TimedMotionQuaternion)
	OnMeshUpdated(cmn.ObjectReference, string)
	OnPhysicsUpdated(cmn.ObjectReference, []byte)
	OnObjectAdded(cmn.ObjectReference)
	OnObjectRemoved(cmn.ObjectReference)
}

// Cache is the LocationServiceCache: a map guarded by one RWMutex for the
// whole cache (entries carry no lock of their own), safe to share between
// the main and prox strands.
type Cache struct {
	mu        sync.RWMutex
	entries   map[cmn.ObjectReference]*Entry
	listeners []Listener

	// membership is an approximate-membership fast path for Tracking: a
	// negative answer here means definitely-not-tracked and skips the
	// authoritative map lookup entirely, which matters at query-handler tick
	// rates. A positive answer still falls through to the map, since a
	// cuckoo filter has false positives but never false negatives.
	membership *cuckoo.Filter
}

func New() *Cache {
	return &Cache{
		entries:    make(map[cmn.ObjectReference]*Entry),
		membership: cuckoo.NewFilter(1 << 16),
	}
}

func (c *Cache) objectKey(oref cmn.ObjectReference) []byte {
	s := oref.String()
	return []byte(s)
}

func (c *Cache) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Tracking reports whether oref is a currently-known, non-evicted object;
// it returns false for objects already evicted, so proximity event
// generation skips these.
func (c *Cache) Tracking(oref cmn.ObjectReference) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.membership.Lookup(c.objectKey(oref)) {
		return false
	}
	e, ok := c.entries[oref]
	return ok && e.Tracking
}

// MaxSeqNo exposes the highest accepted seqno for oref so downstream
// components can annotate outgoing events for idempotent replay across
// migrations.
func (c *Cache) MaxSeqNo(oref cmn.ObjectReference) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[oref]; ok {
		return e.SeqNo
	}
	return 0
}

func (c *Cache) Get(oref cmn.ObjectReference) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[oref]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (c *Cache) snapshotListeners() []Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Listener(nil), c.listeners...)
}

// Add registers a newly tracked object. A duplicate Add is a no-op save for
// re-marking Tracking true, matching a migrated-back object reappearing.
func (c *Cache) Add(oref cmn.ObjectReference) {
	c.mu.Lock()
	e, existed := c.entries[oref]
	if !existed {
		e = &Entry{Object: oref}
		c.entries[oref] = e
	}
	if !e.Tracking {
		c.membership.Insert(c.objectKey(oref))
	}
	e.Tracking = true
	c.mu.Unlock()

	if !existed {
		for _, l := range c.snapshotListeners() {
			l.OnObjectAdded(oref)
		}
	}
}

// Remove evicts oref: Tracking flips false but the entry is kept around so
// a late out-of-order update can still be seqno-compared and dropped rather
// than resurrecting a removed object.
func (c *Cache) Remove(oref cmn.ObjectReference) {
	c.mu.Lock()
	e, ok := c.entries[oref]
	if !ok || !e.Tracking {
		c.mu.Unlock()
		return
	}
	e.Tracking = false
	c.membership.Delete(c.objectKey(oref))
	c.mu.Unlock()

	for _, l := range c.snapshotListeners() {
		l.OnObjectRemoved(oref)
	}
}

// accept applies the monotonic-seqno gate shared by every update method:
// out-of-order updates (seqno <= current) are dropped.
func (c *Cache) accept(oref cmn.ObjectReference, seqno uint64) (*Entry, bool) {
	e, ok := c.entries[oref]
	if !ok {
		e = &Entry{Object: oref, Tracking: true}
		c.entries[oref] = e
		c.membership.Insert(c.objectKey(oref))
	}
	if seqno <= e.SeqNo && e.SeqNo != 0 {
		return nil, false
	}
	if seqno > e.SeqNo {
		e.SeqNo = seqno
	}
	return e, true
}

func (c *Cache) UpdateLocation(oref cmn.ObjectReference, seqno uint64, m cmn.TimedMotionVector) {
	c.mu.Lock()
	e, ok := c.accept(oref, seqno)
	if ok {
		e.Motion = m
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range c.snapshotListeners() {
		l.OnLocationUpdated(oref, m)
	}
}

func (c *Cache) UpdateBounds(oref cmn.ObjectReference, seqno uint64, b cmn.BoundingSphere) {
	c.mu.Lock()
	e, ok := c.accept(oref, seqno)
	if ok {
		e.Bounds = b
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range c.snapshotListeners() {
		l.OnBoundsUpdated(oref, b)
	}
}

func (c *Cache) UpdateOrientation(oref cmn.ObjectReference, seqno uint64, q cmn.TimedMotionQuaternion) {
	c.mu.Lock()
	e, ok := c.accept(oref, seqno)
	if ok {
		e.Orient = q
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range c.snapshotListeners() {
		l.OnOrientationUpdated(oref, q)
	}
}

func (c *Cache) UpdateMesh(oref cmn.ObjectReference, seqno uint64, uri string) {
	c.mu.Lock()
	e, ok := c.accept(oref, seqno)
	if ok {
		e.MeshURI = uri
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range c.snapshotListeners() {
		l.OnMeshUpdated(oref, uri)
	}
}

func (c *Cache) UpdatePhysics(oref cmn.ObjectReference, seqno uint64, blob []byte) {
	c.mu.Lock()
	e, ok := c.accept(oref, seqno)
	if ok {
		e.Physics = blob
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range c.snapshotListeners() {
		l.OnPhysicsUpdated(oref, blob)
	}
}
