// Package dcseg implements Distributed Coordinate Segmentation: the
// hierarchical, two-level BSP-tree fleet that maps points to authoritative
// ServerIDs and propagates live split/merge changes to every space server.
package dcseg

import (
	"crypto/sha1"

	"github.com/OneOfOne/xxhash"
	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/cos"
)

// bboxHash is the cross-node handle for a lower tree: sha1(serialize(bbox))
// of the upper-tree leaf slot it roots. It is used as the map key into a
// CSEG node's lower-tree table, so two CSEG nodes that independently compute
// the same upper-tree leaf arrive at the same handle without ever exchanging
// pointers.
type bboxHash [sha1.Size]byte

func hashBBox(b cmn.BoundingBox) bboxHash {
	buf := serializeBBox(b)
	return sha1.Sum(buf)
}

// slotOwner assigns lower-tree slot i to CSEG node (i mod
// availableCSEGServers) + 1, chosen at bootstrap by a deterministic
// depth-limited traversal. slotIndex is the traversal order index of the
// upper-tree leaf, not its bboxHash -- the hash is only the runtime lookup
// handle once ownership is fixed.
func slotOwner(slotIndex, availableCSEGServers int) cmn.CSEGNodeID {
	if availableCSEGServers <= 0 {
		return cmn.NoCSEGNodeID
	}
	return cmn.CSEGNodeID(slotIndex%availableCSEGServers + 1)
}

// hrwPick is a rendezvous (highest-random-weight) tie-break used when more
// than one CSEG-node replica could answer the same lower-tree slot (e.g.
// read replicas of the upper tree): the replica whose xxhash digest against
// the slot's bbox hash is highest wins.
func hrwPick(candidates []cmn.CSEGNodeID, slot bboxHash) cmn.CSEGNodeID {
	var (
		best cmn.CSEGNodeID
		max  uint64
	)
	digest := xxhash.Checksum64S(slot[:], cos.MLCG32)
	for _, c := range candidates {
		h := xxhash.Checksum64S([]byte(c.String()), digest)
		if h >= max {
			max, best = h, c
		}
	}
	return best
}
