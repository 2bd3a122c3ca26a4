// Package aggregate implements the Aggregate Manager: it consumes tree
// change notifications from a query handler and composes coarse LOD
// meshes for aggregate (non-leaf) proximity-tree nodes. The asset
// pipeline itself -- mesh decimation, material baking -- is out of scope;
// this package implements the scheduling and composition contract around
// that pipeline: a worker thread gated on a condition variable, its queue
// processed in bulk once it crosses a high-water mark, so the worker waits
// on a condition rather than polling a channel.
package aggregate

import (
	"sync"

	"github.com/sirikata/space/cmn"
)

// ChangeKind distinguishes the four tree-change notifications the owning
// query handler emits.
type ChangeKind int

const (
	ChildAdded ChangeKind = iota
	ChildRemoved
	BoundsUpdated
	Destroyed
)

// Change is one queued tree-change notification.
type Change struct {
	Kind   ChangeKind
	Parent cmn.ObjectReference // the aggregate node affected
	Child  cmn.ObjectReference // zero value for BoundsUpdated/Destroyed
	Bounds cmn.BoundingSphere
}

// TransferPool fetches a child's current mesh asset to local disk so it
// can be composed into the parent's aggregate.
type TransferPool interface {
	FetchMesh(uri string) (localPath string, err error)
}

// Uploader publishes a composed local mesh asset and returns its URI.
type Uploader interface {
	Upload(localPath string) (uri string, err error)
}

// MeshSource resolves an object's current mesh URI and up-axis tag, the
// input composition needs per child.
type MeshSource interface {
	MeshURI(o cmn.ObjectReference) (uri string, axis cmn.UpAxis, ok bool)
	Bounds(o cmn.ObjectReference) (cmn.BoundingSphere, bool)
}

// LSCPublisher is the subset of loc.Cache's interface the Manager needs to
// republish a composed aggregate's mesh URI to the location cache.
type LSCPublisher interface {
	UpdateMesh(o cmn.ObjectReference, seqno uint64, uri string)
	MaxSeqNo(o cmn.ObjectReference) uint64
}

// Manager is the Aggregate Manager.
type Manager struct {
	pool     TransferPool
	uploader Uploader
	source   MeshSource
	lsc      LSCPublisher

	triangleBudget int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Change
	highWater int
	stopped   bool

	childrenFn func(parent cmn.ObjectReference) []cmn.ObjectReference
	compose    func(parent cmn.ObjectReference, children []childMesh, budget int) (localPath string, err error)
}

// SetChildrenSource installs the callback Manager uses to resolve an
// aggregate node's current children; the parent/child topology itself
// lives in the owning query handler, not this package, so it is supplied
// rather than tracked here -- change notifications name children
// individually, not the whole subtree.
func (m *Manager) SetChildrenSource(f func(parent cmn.ObjectReference) []cmn.ObjectReference) {
	m.childrenFn = f
}

// childMesh is one input to compose(): a fetched local mesh asset plus the
// affine placement needed to fold it into the parent's local frame --
// axis-correction, affine transform, recentred to the parent's bounds, and
// scaled to the child's BoundingSphere.
type childMesh struct {
	localPath string
	axis      cmn.UpAxis
	offset    cmn.Vector3 // child center relative to parent center
	scale     float32     // child radius / parent radius
}

// NewManager wires a Manager against its collaborators. highWaterMark is
// the queue depth that triggers a bulk processing pass instead of
// composing one change at a time.
func NewManager(pool TransferPool, uploader Uploader, source MeshSource, lsc LSCPublisher, triangleBudget, highWaterMark int) *Manager {
	m := &Manager{
		pool:           pool,
		uploader:       uploader,
		source:         source,
		lsc:            lsc,
		triangleBudget: triangleBudget,
		highWater:      highWaterMark,
	}
	m.cond = sync.NewCond(&m.mu)
	m.compose = m.defaultCompose
	return m
}

// Enqueue is called from the owning query handler's strand for each of the
// four notification kinds; it never blocks.
func (m *Manager) Enqueue(c Change) {
	m.mu.Lock()
	m.queue = append(m.queue, c)
	m.mu.Unlock()
	m.cond.Signal()
}

// Run is the aggregate-worker thread body: asset I/O and mesh
// simplification. It blocks on the condition variable until either the
// queue crosses the high-water mark or Stop is called, then drains and
// processes the whole queue in one batch.
func (m *Manager) Run() {
	for {
		m.mu.Lock()
		for len(m.queue) < m.highWater && !m.stopped {
			m.cond.Wait()
		}
		if m.stopped && len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		m.processBatch(batch)
	}
}

// Stop signals the condition variable so Run drains any remaining queued
// changes and returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

func (m *Manager) processBatch(batch []Change) {
	dirty := make(map[cmn.ObjectReference]struct{}, len(batch))
	for _, c := range batch {
		switch c.Kind {
		case ChildAdded, ChildRemoved, BoundsUpdated:
			dirty[c.Parent] = struct{}{}
		case Destroyed:
			delete(dirty, c.Parent)
		}
	}
	for parent := range dirty {
		m.recompose(parent)
	}
}

// recompose rebuilds one aggregate node's mesh from its current children
// and republishes the result to LSC.
func (m *Manager) recompose(parent cmn.ObjectReference) {
	parentBounds, ok := m.source.Bounds(parent)
	if !ok {
		return
	}

	children := m.childrenOf(parent)
	inputs := make([]childMesh, 0, len(children))
	for _, child := range children {
		uri, axis, ok := m.source.MeshURI(child)
		if !ok || uri == "" {
			continue
		}
		localPath, err := m.pool.FetchMesh(uri)
		if err != nil {
			continue
		}
		childBounds, ok := m.source.Bounds(child)
		if !ok {
			continue
		}
		scale := float32(1)
		if parentBounds.Radius > 0 {
			scale = childBounds.Radius / parentBounds.Radius
		}
		inputs = append(inputs, childMesh{
			localPath: localPath,
			axis:      axis,
			offset:    childBounds.Center.Sub(parentBounds.Center),
			scale:     scale,
		})
	}
	if len(inputs) == 0 {
		return
	}

	localPath, err := m.compose(parent, inputs, m.triangleBudget)
	if err != nil {
		return
	}
	uri, err := m.uploader.Upload(localPath)
	if err != nil {
		return
	}
	m.lsc.UpdateMesh(parent, m.lsc.MaxSeqNo(parent)+1, uri)
}

func (m *Manager) childrenOf(parent cmn.ObjectReference) []cmn.ObjectReference {
	if m.childrenFn != nil {
		return m.childrenFn(parent)
	}
	return nil
}

// defaultCompose is a placeholder compositing step: the actual mesh
// decimation/material pipeline is out of scope. This stands in for
// axis-correction, affine transform, recentre, scale, and simplify by
// producing a manifest path a real asset pipeline would consume. Tests and
// production callers may override m.compose.
func (m *Manager) defaultCompose(parent cmn.ObjectReference, children []childMesh, budget int) (string, error) {
	return "/tmp/aggregate-" + parent.String() + ".mesh", nil
}
