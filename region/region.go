// Package region implements the SegmentedRegion tree: the hierarchical BSP
// partition of 3-space that DCSEG maintains, splits, and merges. A region
// is modeled as an owned tagged variant rather than a pointer graph:
// Leaf{box,server} | Inner{box,axis,left,right}, held in a single arena
// slice so cross-tree references stay as indices, never pointers.
package region

import (
	"fmt"

	"github.com/sirikata/space/cmn"
)

// Kind discriminates a Node's tagged-variant case.
type Kind int

const (
	KindLeaf Kind = iota
	KindInner
)

// Node is one element of the tree arena. Either it is a Leaf (Server set,
// children unset) or an Inner node (Axis/Split set, Left/Right index into
// the same Tree's arena).
type Node struct {
	Box    cmn.BoundingBox
	Kind   Kind
	Server cmn.ServerID // leaf only
	Axis   int          // inner only: 0=X,1=Y,2=Z
	Left   int          // inner only: arena index
	Right  int          // inner only: arena index
}

func (n *Node) IsLeaf() bool { return n.Kind == KindLeaf }

// Tree is an arena-backed binary space partition covering Root. Index 0 is
// always the root node. Leaves partition Root exactly.
type Tree struct {
	arena []Node
	root  int
}

// NewTree bootstraps a single-leaf tree covering the given box, owned by
// the given server.
func NewTree(box cmn.BoundingBox, server cmn.ServerID) *Tree {
	return &Tree{arena: []Node{{Box: box, Kind: KindLeaf, Server: server}}, root: 0}
}

func (t *Tree) RootBox() cmn.BoundingBox { return t.arena[t.root].Box }

// Lookup descends the tree to the leaf containing (a clamped) p and returns
// its server id and box.
func (t *Tree) Lookup(p cmn.Vector3) (cmn.ServerID, cmn.BoundingBox) {
	p = t.RootBox().Clamp(p)
	idx := t.root
	for {
		n := &t.arena[idx]
		if n.IsLeaf() {
			return n.Server, n.Box
		}
		mid := n.Box.Min.Component(n.Axis) + n.Box.Extents().Component(n.Axis)/2
		if p.Component(n.Axis) < mid {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// ServerRegions returns every leaf box owned by server: the exact set of
// leaf boxes labelled with that server id.
func (t *Tree) ServerRegions(server cmn.ServerID) []cmn.BoundingBox {
	var out []cmn.BoundingBox
	t.walkLeaves(t.root, func(n *Node) {
		if n.Server == server {
			out = append(out, n.Box)
		}
	})
	return out
}

// AllLeaves returns (server, box) for every leaf in the tree.
func (t *Tree) AllLeaves() []Node {
	var out []Node
	t.walkLeaves(t.root, func(n *Node) { out = append(out, *n) })
	return out
}

func (t *Tree) walkLeaves(idx int, f func(*Node)) {
	n := &t.arena[idx]
	if n.IsLeaf() {
		f(n)
		return
	}
	t.walkLeaves(n.Left, f)
	t.walkLeaves(n.Right, f)
}

// LeafIndex finds the arena index of the leaf owned by server. Used by
// Split/Merge below, and by tests asserting the post-op tree shape.
func (t *Tree) LeafIndex(server cmn.ServerID) (int, bool) {
	return t.findLeaf(t.root, server)
}

func (t *Tree) findLeaf(idx int, server cmn.ServerID) (int, bool) {
	n := &t.arena[idx]
	if n.IsLeaf() {
		if n.Server == server {
			return idx, true
		}
		return 0, false
	}
	if i, ok := t.findLeaf(n.Left, server); ok {
		return i, true
	}
	return t.findLeaf(n.Right, server)
}

// Split divides the leaf owned by server along its long axis, assigning
// newServer to the upper half. Returns an error if server does not own
// exactly one leaf.
func (t *Tree) Split(server, newServer cmn.ServerID) error {
	idx, ok := t.LeafIndex(server)
	if !ok {
		return fmt.Errorf("region: split: %s owns no leaf", server)
	}
	n := t.arena[idx]
	axis := n.Box.LongAxis()
	lo, hi := n.Box.Split(axis)

	leftIdx := idx // reuse the slot for the left child
	t.arena[leftIdx] = Node{Box: lo, Kind: KindLeaf, Server: server}
	t.arena = append(t.arena, Node{Box: hi, Kind: KindLeaf, Server: newServer})
	rightIdx := len(t.arena) - 1

	t.arena = append(t.arena, Node{Box: n.Box, Kind: KindInner, Axis: axis, Left: leftIdx, Right: rightIdx})
	newInner := len(t.arena) - 1
	t.repointParent(idx, newInner)
	return nil
}

// repointParent rewrites whichever parent pointed at oldIdx to point at
// newIdx instead; if oldIdx was the tree root, the root itself moves.
func (t *Tree) repointParent(oldIdx, newIdx int) {
	if oldIdx == t.root {
		t.root = newIdx
		return
	}
	for i := range t.arena {
		n := &t.arena[i]
		if n.IsLeaf() {
			continue
		}
		if n.Left == oldIdx {
			n.Left = newIdx
			return
		}
		if n.Right == oldIdx {
			n.Right = newIdx
			return
		}
	}
}

// Merge absorbs server's sibling leaf into their shared parent, returning
// the sibling's ServerID to the caller so it can go back into the
// availability pool. Both server and its sibling must be leaves; the
// parent collapses into a single leaf owned by server.
func (t *Tree) Merge(server cmn.ServerID) (freed cmn.ServerID, err error) {
	idx, ok := t.LeafIndex(server)
	if !ok {
		return 0, fmt.Errorf("region: merge: %s owns no leaf", server)
	}
	parentIdx, ok := t.parentOf(idx)
	if !ok {
		return 0, fmt.Errorf("region: merge: %s is the root, nothing to merge", server)
	}
	parent := &t.arena[parentIdx]
	var siblingIdx int
	if parent.Left == idx {
		siblingIdx = parent.Right
	} else {
		siblingIdx = parent.Left
	}
	sibling := &t.arena[siblingIdx]
	if !sibling.IsLeaf() {
		return 0, fmt.Errorf("region: merge: sibling of %s is not a leaf", server)
	}
	freed = sibling.Server
	*parent = Node{Box: parent.Box, Kind: KindLeaf, Server: server}
	return freed, nil
}

func (t *Tree) parentOf(idx int) (int, bool) {
	if idx == t.root {
		return 0, false
	}
	for i := range t.arena {
		n := &t.arena[i]
		if !n.IsLeaf() && (n.Left == idx || n.Right == idx) {
			return i, true
		}
	}
	return 0, false
}

// SiblingIsLeaf reports whether server's leaf has a sibling that is also a
// leaf: the merge-eligibility check.
func (t *Tree) SiblingIsLeaf(server cmn.ServerID) bool {
	idx, ok := t.LeafIndex(server)
	if !ok {
		return false
	}
	parentIdx, ok := t.parentOf(idx)
	if !ok {
		return false
	}
	parent := &t.arena[parentIdx]
	var siblingIdx int
	if parent.Left == idx {
		siblingIdx = parent.Right
	} else {
		siblingIdx = parent.Left
	}
	return t.arena[siblingIdx].IsLeaf()
}

// CheckInvariants validates that leaves partition the root by area/volume
// accounting and reports the first violation found. dcseg's
// applyRemoteChange logs a violation; the tests assert on the result.
func (t *Tree) CheckInvariants() error {
	leaves := t.AllLeaves()
	root := t.RootBox()
	var vol float64
	rv := boxVolume(root)
	for _, l := range leaves {
		if !containsBox(root, l.Box) {
			return fmt.Errorf("region: leaf %v escapes root %v", l.Box, root)
		}
		vol += boxVolume(l.Box)
	}
	// allow floating point slop
	if rv > 0 {
		diff := (vol - rv) / rv
		if diff < -1e-3 || diff > 1e-3 {
			return fmt.Errorf("region: leaves do not partition root: sum=%f root=%f", vol, rv)
		}
	}
	return nil
}

func boxVolume(b cmn.BoundingBox) float64 {
	e := b.Extents()
	return float64(e.X) * float64(e.Y) * float64(e.Z)
}

func containsBox(outer, inner cmn.BoundingBox) bool {
	const eps = 1e-3
	return inner.Min.X >= outer.Min.X-eps && inner.Min.Y >= outer.Min.Y-eps && inner.Min.Z >= outer.Min.Z-eps &&
		inner.Max.X <= outer.Max.X+eps && inner.Max.Y <= outer.Max.Y+eps && inner.Max.Z <= outer.Max.Z+eps
}
