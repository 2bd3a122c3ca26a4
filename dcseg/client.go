package dcseg

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/sirikata/space/cmn"
)

const dialTimeout = 2 * time.Second

// remoteLLLookup issues LL_LOOKUP_REQUEST to the CSEG node owning addr and
// awaits the ServerID reply. On failure or an unreachable peer it is the
// caller's job to fold that into cmn.ErrUnknownServer: a lower-tree RPC
// error yields "unknown", and the caller retries after backoff.
func (n *Node) remoteLLLookup(addr cmn.Address4, p cmn.Vector3, box cmn.BoundingBox) (cmn.ServerID, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), dialTimeout)
	if err != nil {
		return cmn.NoServerID, errors.Wrapf(err, "dcseg: dialing peer at %s for LL_LOOKUP_REQUEST", addr)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := encodeLLLookupRequest(conn, p, box); err != nil {
		return cmn.NoServerID, errors.Wrap(err, "dcseg: encoding LL_LOOKUP_REQUEST")
	}
	sid, err := decodeServerIDReply(conn)
	return sid, errors.Wrap(err, "dcseg: decoding LL_LOOKUP_REQUEST reply")
}

// remoteServerRegion issues LL_SERVER_REGION_REQUEST to a peer CSEG node,
// used when composing the full cross-node serverRegion() answer.
func remoteServerRegion(addr cmn.Address4, server cmn.ServerID) ([]cmn.BoundingBox, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), dialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	if err := writeByte(conn, byte(LLServerRegionRequest)); err != nil {
		return nil, err
	}
	if err := writeUint32(conn, uint32(server)); err != nil {
		return nil, err
	}
	return decodeBBoxListReply(conn)
}

// broadcastChange forwards a SegmentationChangeMessage to every known peer
// CSEG node; a CSEG-to-CSEG connection failure is logged and the broadcast
// continues. Returns the accumulated per-peer errors without stopping the
// fan-out.
func (n *Node) broadcastChange(msg SegChangeMsg) *multiErr {
	n.mu.RLock()
	peers := make(map[cmn.CSEGNodeID]cmn.Address4, len(n.peers))
	for id, addr := range n.peers {
		peers[id] = addr
	}
	n.mu.RUnlock()

	errs := &multiErr{}
	for id, addr := range peers {
		if err := sendSegmentationChange(addr, msg); err != nil {
			errs.add(id, err)
		}
	}
	return errs
}

func sendSegmentationChange(addr cmn.Address4, msg SegChangeMsg) error {
	conn, err := net.DialTimeout("tcp", addr.String(), dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "dcseg: dialing peer at %s for SEGMENTATION_CHANGE", addr)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	return errors.Wrap(encodeSegmentationChange(conn, msg, len(msg.Entries)), "dcseg: encoding SEGMENTATION_CHANGE")
}

// multiErr collects per-peer broadcast failures for logging without halting
// the fan-out (cmn/cos.Errs plays the same role for same-type errors; this
// one additionally tags each failure with which peer it came from).
type multiErr struct {
	failed map[cmn.CSEGNodeID]error
}

func (m *multiErr) add(id cmn.CSEGNodeID, err error) {
	if m.failed == nil {
		m.failed = make(map[cmn.CSEGNodeID]error)
	}
	m.failed[id] = err
}

func (m *multiErr) Empty() bool { return len(m.failed) == 0 }
