// Package transport implements the SST (reliable stream transport)
// collaborator: ordered reliable substreams multiplexed over one TCP
// connection, with a send-queue/completion-queue worker per connection that
// reports completions back to the caller.
package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirikata/space/cmn/nlog"
)

// frame is the on-wire unit: a fixed header followed by exactly Size bytes
// of payload. opcFin is a reserved opcode terminating a substream.
type frameHeader struct {
	Substream uint32
	Opcode    uint16
	Size      uint32
}

const sizeofFrameHeader = 4 + 2 + 4

const (
	opcData uint16 = iota
	opcFin
)

func writeFrame(w io.Writer, h frameHeader, payload []byte) error {
	buf := make([]byte, sizeofFrameHeader)
	binary.LittleEndian.PutUint32(buf[0:4], h.Substream)
	binary.LittleEndian.PutUint16(buf[4:6], h.Opcode)
	binary.LittleEndian.PutUint32(buf[6:10], h.Size)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (frameHeader, []byte, error) {
	buf := make([]byte, sizeofFrameHeader)
	if _, err := io.ReadFull(r, buf); err != nil {
		return frameHeader{}, nil, err
	}
	h := frameHeader{
		Substream: binary.LittleEndian.Uint32(buf[0:4]),
		Opcode:    binary.LittleEndian.Uint16(buf[4:6]),
		Size:      binary.LittleEndian.Uint32(buf[6:10]),
	}
	if h.Size == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frameHeader{}, nil, err
	}
	return h, payload, nil
}

// ReceiveCB is invoked once per inbound frame on the connection's io
// strand; it must not block, the same non-blocking discipline applied
// symmetrically across every cross-strand callback in this module.
type ReceiveCB func(substream uint32, payload []byte)

// sendItem is one queued outbound frame plus its completion callback.
type sendItem struct {
	hdr     frameHeader
	payload []byte
	done    func(error)
}

// Conn is one SST connection: a single net.Conn multiplexing many
// substreams, with a bounded send queue drained by one writer goroutine and
// inbound frames dispatched to a receive callback from one reader
// goroutine.
type Conn struct {
	nc       net.Conn
	sendq    chan sendItem
	closeCh  chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	nextSubID   uint32
	recvCB      ReceiveCB
	idleTimeout time.Duration
}

// Extra is an options-bag of advanced, optional per-connection controls
// passed at construction instead of threaded through every call.
type Extra struct {
	SendQueueSize int           // default 256
	IdleTeardown  time.Duration // 0 disables idle teardown
}

// NewConn wraps nc with the send-queue worker and starts both the writer
// and (once SetReceiveCallback is called) reader goroutines.
func NewConn(nc net.Conn, extra Extra) *Conn {
	qsize := extra.SendQueueSize
	if qsize <= 0 {
		qsize = 256
	}
	c := &Conn{
		nc:          nc,
		sendq:       make(chan sendItem, qsize),
		closeCh:     make(chan struct{}),
		idleTimeout: extra.IdleTeardown,
	}
	go c.writeLoop()
	return c
}

// OpenSubstream allocates a new substream id; the id is purely a
// multiplexing tag, there is no separate handshake.
func (c *Conn) OpenSubstream() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	return c.nextSubID
}

// SetReceiveCallback installs cb and starts the reader goroutine. Must be
// called at most once.
func (c *Conn) SetReceiveCallback(cb ReceiveCB) {
	c.mu.Lock()
	c.recvCB = cb
	c.mu.Unlock()
	go c.readLoop()
}

// Send enqueues payload on substream, returning ErrWouldBlock immediately
// if the send queue is full instead of blocking the caller's strand. A
// would-block here is a transient-network condition, not a fatal one.
var ErrWouldBlock = errors.New("transport: send queue full")

func (c *Conn) Send(substream uint32, payload []byte) error {
	select {
	case c.sendq <- sendItem{hdr: frameHeader{Substream: substream, Opcode: opcData, Size: uint32(len(payload))}, payload: payload}:
		return nil
	default:
		return ErrWouldBlock
	}
}

// SendWithCallback is Send plus a completion notification, for callers that
// need to know when a payload actually hit the wire (e.g. to free buffers).
func (c *Conn) SendWithCallback(substream uint32, payload []byte, done func(error)) error {
	item := sendItem{hdr: frameHeader{Substream: substream, Opcode: opcData, Size: uint32(len(payload))}, payload: payload, done: done}
	select {
	case c.sendq <- item:
		return nil
	default:
		return ErrWouldBlock
	}
}

func (c *Conn) CloseSubstream(substream uint32) error {
	item := sendItem{hdr: frameHeader{Substream: substream, Opcode: opcFin}}
	select {
	case c.sendq <- item:
		return nil
	default:
		return ErrWouldBlock
	}
}

func (c *Conn) writeLoop() {
	for {
		var (
			item sendItem
			ok   bool
		)
		if c.idleTimeout > 0 {
			select {
			case item, ok = <-c.sendq:
			case <-time.After(c.idleTimeout):
				nlog.Warningf("transport: idle teardown after %s", c.idleTimeout)
				c.Close()
				return
			case <-c.closeCh:
				return
			}
		} else {
			select {
			case item, ok = <-c.sendq:
			case <-c.closeCh:
				return
			}
		}
		if !ok {
			return
		}
		err := writeFrame(c.nc, item.hdr, item.payload)
		if item.done != nil {
			item.done(err)
		}
		if err != nil {
			nlog.Warningf("transport: write failed: %v", err)
			c.Close()
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		h, payload, err := readFrame(c.nc)
		if err != nil {
			if err != io.EOF {
				nlog.Warningf("transport: read failed: %v", err)
			}
			c.Close()
			return
		}
		c.mu.Lock()
		cb := c.recvCB
		c.mu.Unlock()
		if cb != nil && h.Opcode == opcData {
			cb(h.Substream, payload)
		}
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return c.nc.Close()
}

// Dial opens a new SST connection to addr; the session package's Manager
// uses this as its Dialer collaborator, passed in as an explicit dependency
// constructed at bootstrap rather than a global singleton.
func Dial(network, addr string, extra Extra) (*Conn, error) {
	nc, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, extra), nil
}

// Listener accepts inbound SST connections.
type Listener struct {
	ln    net.Listener
	extra Extra
}

func Listen(network, addr string, extra Extra) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, extra: extra}, nil
}

func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc, l.extra), nil
}

func (l *Listener) Close() error { return l.ln.Close() }
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
