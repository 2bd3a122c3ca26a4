package session

import (
	"errors"
	"fmt"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/transport"
)

// sstStream adapts a transport.Conn's single default substream to the
// Stream interface the Manager sends/receives session traffic over. Each
// TransportDialer.Dial call owns a dedicated transport.Conn, so one
// receive callback and one buffered channel are enough to serve Recv.
type sstStream struct {
	conn      *transport.Conn
	substream uint32
	recvCh    chan []byte
	closeCh   chan struct{}
}

func newSSTStream(conn *transport.Conn, substream uint32) *sstStream {
	s := &sstStream{
		conn:      conn,
		substream: substream,
		recvCh:    make(chan []byte, 16),
		closeCh:   make(chan struct{}),
	}
	conn.SetReceiveCallback(func(sub uint32, payload []byte) {
		if sub != substream {
			return
		}
		select {
		case s.recvCh <- payload:
		case <-s.closeCh:
		}
	})
	return s
}

func (s *sstStream) Send(payload []byte) error { return s.conn.Send(s.substream, payload) }

func (s *sstStream) Recv() ([]byte, error) {
	select {
	case payload := <-s.recvCh:
		return payload, nil
	case <-s.closeCh:
		return nil, errors.New("session: stream closed")
	}
}

func (s *sstStream) Close() error {
	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	return s.conn.Close()
}

// TransportDialer wires the session Manager's Dialer collaborator to the
// transport package's SST implementation.
type TransportDialer struct {
	Extra transport.Extra
}

func (d TransportDialer) Dial(addr cmn.Address4) (Stream, error) {
	conn, err := transport.Dial("tcp", fmt.Sprintf("%s:%s", addr.Host, addr.Service), d.Extra)
	if err != nil {
		return nil, err
	}
	sub := conn.OpenSubstream()
	return newSSTStream(conn, sub), nil
}
