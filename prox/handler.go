// Package prox implements the Proximity Engine: the four spatial query
// handlers (server/object x static/dynamic) that turn object motion into
// subscriber-visible addition/removal events.
package prox

import (
	"sync"

	"github.com/sirikata/space/cmn"
)

// Transience distinguishes a removal caused by the object leaving a query's
// result set (Transient) from one caused by the object itself going away
// (Permanent).
type Transience int

const (
	Permanent Transience = iota
	Transient
)

// QueryEvent is one addition or removal surfaced by a handler's event queue.
type QueryEvent struct {
	Addition   bool
	Object     cmn.ObjectReference
	Transience Transience
}

// Query is one registered spatial query: a point (loc), an angular or
// distance threshold, and a result cap. MaxResults is stored with the
// query, but no handler limits the size of the result set by it.
type Query struct {
	ID         cmn.QuerierID
	Loc        cmn.Vector3
	Region     cmn.BoundingBox
	MaxResults int
	Angle      cmn.SolidAngle
	MaxDist    float32 // only meaningful for dist/rtreedist handlers

	mu     sync.Mutex
	events []QueryEvent
	result map[cmn.ObjectReference]struct{}
}

func newQuery(id cmn.QuerierID, loc cmn.Vector3, region cmn.BoundingBox, maxResults int, angle cmn.SolidAngle, maxDist float32) *Query {
	return &Query{
		ID: id, Loc: loc, Region: region, MaxResults: maxResults, Angle: angle, MaxDist: maxDist,
		result: make(map[cmn.ObjectReference]struct{}),
	}
}

func (q *Query) pushEvent(e QueryEvent) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// PopEvents drains the query's pending events into queue, returning the
// number popped.
func (q *Query) PopEvents(queue *[]QueryEvent) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	*queue = append(*queue, q.events...)
	n := len(q.events)
	q.events = nil
	return n
}

func (q *Query) inResult(o cmn.ObjectReference) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.result[o]
	return ok
}

func (q *Query) setResult(o cmn.ObjectReference, in bool) (changed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, was := q.result[o]
	if in == was {
		return false
	}
	if in {
		q.result[o] = struct{}{}
	} else {
		delete(q.result, o)
	}
	return true
}

// Handler is a spatial index holding one class of tracked objects
// (server/object x static/dynamic) and the queries registered against it.
type Handler interface {
	RegisterQuery(id cmn.QuerierID, loc cmn.Vector3, region cmn.BoundingBox, maxResults int, angle cmn.SolidAngle, maxDist float32) *Query
	RemoveQuery(id cmn.QuerierID)
	AddObject(o cmn.ObjectReference, pos cmn.Vector3, bounds cmn.BoundingSphere)
	RemoveObject(o cmn.ObjectReference)
	ContainsObject(o cmn.ObjectReference) bool
	Tick(t cmn.Time)
	Rebuild()
	Queries() []*Query
}

// NoUpdateSolidAngle is the wire angle meaning "keep the previously
// registered value". NoUpdateMaxResults is the largest int, the "unbounded"
// MaxResults that DecodeParams assigns when max_results is absent; the
// keep-previous sentinel for max_results is NoUpdateMaxResultsWire.
const NoUpdateSolidAngle cmn.SolidAngle = 0
const NoUpdateMaxResults = int(^uint(0) >> 1) // largest int: "unbounded"
