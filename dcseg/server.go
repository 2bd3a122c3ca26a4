package dcseg

import (
	"io"
	"net"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/nlog"
)

// Server listens for CSEG TCP connections and dispatches every MessageType
// against a local Node.
type Server struct {
	node     *Node
	ln       net.Listener
	registry *listenerRegistry
}

// listenerRegistry tracks connections that issued SEGMENTATION_LISTEN so
// SegmentationChange can be pushed to them as it is applied locally; local
// space servers subscribe via SEGMENTATION_LISTEN.
type listenerRegistry struct {
	conns []net.Conn
}

func (r *listenerRegistry) add(c net.Conn) { r.conns = append(r.conns, c) }

func (r *listenerRegistry) broadcast(msg SegChangeMsg, maxEntries int) {
	live := r.conns[:0]
	for _, c := range r.conns {
		if err := encodeSegmentationChange(c, msg, maxEntries); err != nil {
			nlog.Warningf("dcseg: dropping SEGMENTATION_LISTEN subscriber %s: %v", c.RemoteAddr(), err)
			c.Close()
			continue
		}
		live = append(live, c)
	}
	r.conns = live
}

// NewServer wraps node with a TCP listener bound to addr ("host:port").
func NewServer(node *Node, addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{node: node, ln: ln, registry: &listenerRegistry{}}
	node.Subscribe(s)
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error { return s.ln.Close() }

// OnSegmentationChange implements Listener: fans the applied change out to
// every SEGMENTATION_LISTEN subscriber of this node.
func (s *Server) OnSegmentationChange(msg SegChangeMsg) {
	s.registry.broadcast(msg, s.node.cfg.DCSEG.MaxServerRegionsChanged)
}

// handleConn serves exactly one request per connection for every message
// type except SEGMENTATION_LISTEN, which keeps the connection open and
// registers it for push delivery.
func (s *Server) handleConn(conn net.Conn) {
	mtByte, err := readByte(conn)
	if err != nil {
		conn.Close()
		return
	}
	mt := MessageType(mtByte)

	switch mt {
	case LookupRequest:
		defer conn.Close()
		p, err := decodeVectorBody(conn)
		if err != nil {
			return
		}
		sid, lerr := s.node.Lookup(p)
		if lerr != nil {
			sid = cmn.NoServerID
		}
		_ = encodeServerIDReply(conn, sid)

	case LLLookupRequest:
		defer conn.Close()
		p, box, err := decodeLLLookupBody(conn)
		if err != nil {
			return
		}
		h := hashBBox(box)
		lower, ok := s.node.ownsSlot(h)
		if !ok {
			_ = encodeServerIDReply(conn, cmn.NoServerID)
			return
		}
		sid, _ := lower.Lookup(p)
		_ = encodeServerIDReply(conn, sid)

	case NumServersRequest:
		defer conn.Close()
		_ = encodeNumServersReply(conn, s.node.NumServers())

	case RegionRequest:
		defer conn.Close()
		_ = encodeBBoxReply(conn, s.node.Region())

	case ServerRegionRequest:
		defer conn.Close()
		sv, err := readUint32(conn)
		if err != nil {
			return
		}
		boxes := s.node.ServerRegion(cmn.ServerID(sv))
		_ = encodeBBoxListReply(conn, boxes, s.node.cfg.DCSEG.MaxBBoxListSize)

	case LLServerRegionRequest:
		defer conn.Close()
		sv, err := readUint32(conn)
		if err != nil {
			return
		}
		n := s.node
		n.mu.RLock()
		var boxes []cmn.BoundingBox
		for _, lower := range n.lower {
			boxes = append(boxes, lower.ServerRegions(cmn.ServerID(sv))...)
		}
		n.mu.RUnlock()
		_ = encodeBBoxListReply(conn, boxes, s.node.cfg.DCSEG.MaxBBoxListSize)

	case SegmentationChange:
		defer conn.Close()
		msg, err := decodeSegmentationChangeBody(conn)
		if err != nil && err != io.EOF {
			nlog.Warningf("dcseg: malformed SEGMENTATION_CHANGE from %s: %v", conn.RemoteAddr(), err)
			return
		}
		s.node.applyRemoteChange(msg)

	case SegmentationListen:
		// kept open: push-only connection, registered for future changes.
		s.registry.add(conn)

	default:
		nlog.Warningf("dcseg: unknown message type %d from %s", mtByte, conn.RemoteAddr())
		conn.Close()
	}
}
