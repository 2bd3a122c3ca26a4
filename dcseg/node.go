package dcseg

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/nlog"
	"github.com/sirikata/space/region"
	"github.com/sirikata/space/stats"
)

// Listener receives segmentation changes as they are applied locally --
// implemented by the space-server side that subscribes via
// SEGMENTATION_LISTEN.
type Listener interface {
	OnSegmentationChange(SegChangeMsg)
}

// Node is one CSEG node: it replicates the entire upper tree (read-mostly)
// and owns a shard of lower trees, indexed by the bboxHash handle of the
// upper-tree leaf slot they root.
type Node struct {
	mu sync.RWMutex

	id    cmn.CSEGNodeID
	upper *region.Tree // leaves' Server field is reinterpreted as a CSEGNodeID
	lower map[bboxHash]*region.Tree

	peers map[cmn.CSEGNodeID]cmn.Address4 // other CSEG nodes, by id
	avail *pool                           // ServerID availability pool

	listeners []Listener // local space servers subscribed via SEGMENTATION_LISTEN

	cfg *cmn.Config

	stats *stats.Registry // nil is valid: metrics are then simply not recorded

	// wholeTreeCache caches ServerRegion's ServerID -> []BoundingBox answers,
	// computed from the lower trees this node owns; invalidated on every
	// SegmentationChange.
	wholeTreeCache map[cmn.ServerID][]cmn.BoundingBox
}

// NewNode bootstraps a CSEG node whose upper tree is a single leaf covering
// world, owned by this node, and which owns one lower tree covering world
// with initialServer as its only leaf. No slots are assigned to peers.
func NewNode(id cmn.CSEGNodeID, world cmn.BoundingBox, initialServer cmn.ServerID, peers map[cmn.CSEGNodeID]cmn.Address4, cfg *cmn.Config) *Node {
	upper := region.NewTree(world, cmn.ServerID(id))
	n := &Node{
		id:             id,
		upper:          upper,
		lower:          make(map[bboxHash]*region.Tree),
		peers:          peers,
		avail:          newPool(),
		cfg:            cfg,
		wholeTreeCache: make(map[cmn.ServerID][]cmn.BoundingBox),
	}
	n.lower[hashBBox(world)] = region.NewTree(world, initialServer)
	return n
}

func (n *Node) ID() cmn.CSEGNodeID { return n.id }

// SetStats attaches a metrics registry; it may be called once, before
// Lookup/split/merge traffic starts, or left uncalled to record nothing.
func (n *Node) SetStats(r *stats.Registry) { n.stats = r }

func (n *Node) Subscribe(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()
}

// ownsSlot reports whether this node is the owner of the upper-tree leaf
// with the given bboxHash handle.
func (n *Node) ownsSlot(h bboxHash) (*region.Tree, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.lower[h]
	return t, ok
}

// Lookup implements the four-step lookup algorithm: clamp the point into
// the tree's bounds, descend the upper tree, descend the owned lower tree
// if this node owns the resolved slot, otherwise forward to the owning peer,
// retrying the remote lookup once after a short backoff.
func (n *Node) Lookup(p cmn.Vector3) (cmn.ServerID, error) {
	start := time.Now()
	sid, outcome, err := n.lookup(p)
	if n.stats != nil {
		n.stats.DCSEGLookups.WithLabelValues(outcome).Inc()
		n.stats.DCSEGLookupLatency.Observe(time.Since(start).Seconds())
	}
	return sid, err
}

func (n *Node) lookup(p cmn.Vector3) (cmn.ServerID, string, error) {
	n.mu.RLock()
	upper := n.upper
	n.mu.RUnlock()

	// steps 1-2: clamp + descend upper tree
	owningNode, leafBox := upper.Lookup(p) // Server field here is actually a CSEGNodeID
	owner := cmn.CSEGNodeID(owningNode)

	if owner == n.id {
		// step 3: local lower-tree descent
		h := hashBBox(leafBox)
		lower, ok := n.ownsSlot(h)
		if !ok {
			return cmn.NoServerID, "failed", fmt.Errorf("%w: no local lower tree for slot %s", cmn.ErrUnknownServer, leafBox)
		}
		sid, _ := lower.Lookup(p)
		if !sid.Valid() {
			return cmn.NoServerID, "failed", cmn.ErrUnknownServer
		}
		return sid, "local", nil
	}

	// step 4: remote RPC to the owning CSEG node
	n.mu.RLock()
	addr, ok := n.peers[owner]
	n.mu.RUnlock()
	if !ok {
		return cmn.NoServerID, "failed", fmt.Errorf("%w: unknown peer %s", cmn.ErrUnknownServer, owner)
	}
	const remoteRetryBackoff = 50 * time.Millisecond
	sid, err := n.remoteLLLookup(addr, p, leafBox)
	if err != nil || !sid.Valid() {
		time.Sleep(remoteRetryBackoff)
		sid, err = n.remoteLLLookup(addr, p, leafBox)
	}
	if err != nil {
		nlog.Warningf("dcseg: LL_LOOKUP to %s(%s) failed: %v", owner, addr, err)
		return cmn.NoServerID, "failed", cmn.ErrUnknownServer
	}
	if !sid.Valid() {
		return cmn.NoServerID, "failed", cmn.ErrUnknownServer
	}
	return sid, "remote", nil
}

// NumServers counts servers that currently own at least one leaf, not the
// size of the availability pool and not a historical high-water mark.
func (n *Node) NumServers() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	seen := make(map[cmn.ServerID]struct{})
	for _, lower := range n.lower {
		for _, leaf := range lower.AllLeaves() {
			seen[leaf.Server] = struct{}{}
		}
	}
	return uint32(len(seen))
}

func (n *Node) Region() cmn.BoundingBox { return n.upper.RootBox() }

// ServerRegion returns every leaf box (across every lower tree this node
// owns) labelled server. Cross-node regions require asking every CSEG node;
// LLServerRegion (wire.go/server.go) is the RPC counterpart.
func (n *Node) ServerRegion(server cmn.ServerID) []cmn.BoundingBox {
	n.mu.RLock()
	cached, ok := n.wholeTreeCache[server]
	n.mu.RUnlock()
	if ok {
		return cached
	}

	var out []cmn.BoundingBox
	n.mu.RLock()
	for _, lower := range n.lower {
		out = append(out, lower.ServerRegions(server)...)
	}
	n.mu.RUnlock()

	n.mu.Lock()
	n.wholeTreeCache[server] = out
	n.mu.Unlock()
	return out
}

func (n *Node) invalidateCache() {
	n.mu.Lock()
	n.wholeTreeCache = make(map[cmn.ServerID][]cmn.BoundingBox)
	n.mu.Unlock()
}
