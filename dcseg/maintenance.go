package dcseg

import (
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/nlog"
	"github.com/sirikata/space/hk"
	"github.com/sirikata/space/region"
)

// applyRemoteChange merges a SEGMENTATION_CHANGE received from a peer CSEG
// node: it checks the invariants of the local lower trees, invalidates the
// wholeTreeCache and passes the message on to local listeners. The lower
// trees themselves are not modified, and applying another node's change
// never mutates the upper tree -- slot ownership is fixed at bootstrap.
func (n *Node) applyRemoteChange(msg SegChangeMsg) {
	n.mu.Lock()
	for h, lower := range n.lower {
		if err := lower.CheckInvariants(); err != nil {
			nlog.Warningf("dcseg: invariant check failed on lower tree %x before applying remote change: %v", h, err)
		}
	}
	// remote entries describe authoritative server->region state owned by
	// the peer; this node's own lower trees remain the source of truth for
	// slots it owns, so applying a remote change only invalidates the cache.
	n.wholeTreeCache = make(map[cmn.ServerID][]cmn.BoundingBox)
	n.mu.Unlock()

	n.mu.RLock()
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.RUnlock()
	for _, l := range listeners {
		l.OnSegmentationChange(msg)
	}
}

// StartMaintenance registers the periodic split/merge sweep with hk, the
// same housekeeper the proximity engine uses for its tick and rebuild
// timers: a maintenance tick evaluates every locally owned leaf for
// split or merge eligibility.
func (n *Node) StartMaintenance() {
	hk.Reg("dcseg-maintenance"+hk.NameSuffix, n.maintenanceTick, n.cfg.DCSEG.MaintenanceInterval)
}

func (n *Node) maintenanceTick() time.Duration {
	n.sweep()
	return n.cfg.DCSEG.MaintenanceInterval
}

// sweep walks every locally-owned lower tree and, per leaf, rolls eligibility
// for a split or merge. MergeEnabled gates the merge path behind a
// configuration toggle; split is always live.
func (n *Node) sweep() {
	n.mu.RLock()
	trees := make([]*region.Tree, 0, len(n.lower))
	for _, t := range n.lower {
		trees = append(trees, t)
	}
	mergeEnabled := n.cfg.DCSEG.MergeEnabled
	splitProb := n.cfg.DCSEG.SplitProbability
	n.mu.RUnlock()

	var changed []segEntry
	for _, t := range trees {
		for _, leaf := range t.AllLeaves() {
			switch {
			case mergeEnabled && t.SiblingIsLeaf(leaf.Server) && rand.Float64() < (1-splitProb):
				freed, err := t.Merge(leaf.Server)
				if err != nil {
					continue
				}
				n.avail.Return(freed)
				if n.stats != nil {
					n.stats.DCSEGMerges.Inc()
				}
				changed = append(changed, segEntry{Server: leaf.Server, Boxes: t.ServerRegions(leaf.Server)})
			case rand.Float64() < splitProb:
				newServer := n.avail.Take()
				if err := t.Split(leaf.Server, newServer); err != nil {
					n.avail.Return(newServer)
					continue
				}
				if n.stats != nil {
					n.stats.DCSEGSplits.Inc()
				}
				changed = append(changed, segEntry{Server: leaf.Server, Boxes: t.ServerRegions(leaf.Server)})
				changed = append(changed, segEntry{Server: newServer, Boxes: t.ServerRegions(newServer)})
			}
		}
	}
	if len(changed) == 0 {
		return
	}

	n.invalidateCache()
	msg := SegChangeMsg{Entries: changed}

	n.mu.RLock()
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.RUnlock()
	for _, l := range listeners {
		l.OnSegmentationChange(msg)
	}

	if errs := n.broadcastChange(msg); !errs.Empty() {
		for id, err := range errs.failed {
			nlog.Warningf("dcseg: broadcast SEGMENTATION_CHANGE to peer %s failed: %v", id, err)
		}
	}
}

// broadcastChangeGroup is the errgroup-based fan-out variant used when the
// caller wants to block until every peer has been attempted (bounded
// parallel sends rather than client.go's sequential loop).
func (n *Node) broadcastChangeGroup(msg SegChangeMsg) error {
	n.mu.RLock()
	peers := make(map[cmn.CSEGNodeID]cmn.Address4, len(n.peers))
	for id, addr := range n.peers {
		peers[id] = addr
	}
	n.mu.RUnlock()

	var g errgroup.Group
	for id, addr := range peers {
		id, addr := id, addr
		g.Go(func() error {
			if err := sendSegmentationChange(addr, msg); err != nil {
				nlog.Warningf("dcseg: broadcast to %s(%s) failed: %v", id, addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}
