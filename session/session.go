// Package session implements the Session Manager and the Object<->Space
// message fabric: one active session per local object to its authoritative
// space server, transparent migration on DCSEG handoff, and message
// delivery both ways.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/nlog"
	"github.com/sirikata/space/stats"
)

// DisconnectCode names the only channel through which object-visible
// session failures are reported.
type DisconnectCode int

const (
	DisconnectNone DisconnectCode = iota
	DisconnectFailedToConnect
	DisconnectMigrationFailed
	DisconnectTransient
	DisconnectRequested
)

// state is ObjectInfo's connection state machine.
type state int

const (
	StateDisconnected state = iota
	StateConnecting
	StateConnected
)

// ObjectInfo is the per-local-object session record.
type ObjectInfo struct {
	SporefSelf cmn.SpaceObjectReference
	Name       string
	State      state
	Server     cmn.ServerID

	mu      sync.Mutex
	pending [][]byte // queued outbound payloads awaiting a connected stream
}

// Stream is the SST collaborator a SpaceNodeConnection sends/receives over.
// Migrate switches a SpaceObjectReference from one Stream to another.
type Stream interface {
	Send(payload []byte) error
	// Recv blocks for the next frame addressed to this stream. Used only for
	// the synchronous connect-response exchange in openConnectionStartSession;
	// ordinary object traffic arrives via HandleServerMessage instead.
	Recv() ([]byte, error)
	Close() error
}

// SpaceNodeConnection is one (possibly half-open) connection to a space
// server: a dial target, the Stream opened to it, and whether time sync over
// that stream has completed.
type SpaceNodeConnection struct {
	mu       sync.Mutex
	Server   cmn.ServerID
	Addr     cmn.Address4
	stream   Stream
	synced   bool
	offset   float64 // clock-offset estimate from the time-sync handshake
}

func (c *SpaceNodeConnection) setStream(s Stream) {
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
}

func (c *SpaceNodeConnection) send(payload []byte) error {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return errors.New("session: connection has no open stream")
	}
	return s.Send(payload)
}

func (c *SpaceNodeConnection) recv() ([]byte, error) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return nil, errors.New("session: connection has no open stream")
	}
	return s.Recv()
}

// Dialer opens the raw transport to a space server; production wires this
// to the SST collaborator's connect(), tests can substitute an in-memory
// fake.
type Dialer interface {
	Dial(addr cmn.Address4) (Stream, error)
}

// Manager is the Session Manager. Its public API runs on the caller's
// goroutine; a caller-supplied Dialer plays the role of the socket-I/O
// collaborator, kept explicit rather than wired to an ambient singleton.
type Manager struct {
	mu       sync.Mutex
	objects  map[cmn.SpaceObjectReference]*ObjectInfo
	conns    map[cmn.ServerID]*SpaceNodeConnection
	dialer   Dialer
	directory ServerIDMap
	cfg      *cmn.Config

	onMessage    func(cmn.SpaceObjectReference, []byte)
	onDisconnect func(cmn.SpaceObjectReference, DisconnectCode)

	stats *stats.Registry
}

// SetStats attaches a metrics registry; nil (the default) records nothing.
func (m *Manager) SetStats(r *stats.Registry) { m.stats = r }

func NewManager(dialer Dialer, directory ServerIDMap, cfg *cmn.Config) *Manager {
	return &Manager{
		objects:   make(map[cmn.SpaceObjectReference]*ObjectInfo),
		conns:     make(map[cmn.ServerID]*SpaceNodeConnection),
		dialer:    dialer,
		directory: directory,
		cfg:       cfg,
	}
}

func (m *Manager) OnMessage(f func(cmn.SpaceObjectReference, []byte))          { m.onMessage = f }
func (m *Manager) OnDisconnect(f func(cmn.SpaceObjectReference, DisconnectCode)) { m.onDisconnect = f }

// Connect inserts a Disconnected ObjectInfo, picks a server via
// getAnySpaceConnection, runs time sync, opens the session, and follows
// redirects up to the configured retry budget.
func (m *Manager) Connect(sporef cmn.SpaceObjectReference, name string) error {
	m.mu.Lock()
	info := &ObjectInfo{SporefSelf: sporef, Name: name, State: StateDisconnected}
	m.objects[sporef] = info
	m.mu.Unlock()

	return m.connectRetry(info, m.cfg.Session.ConnectRetryBudget)
}

func (m *Manager) connectRetry(info *ObjectInfo, budget int) error {
	for attempt := 0; attempt <= budget; attempt++ {
		conn, err := m.getAnySpaceConnection()
		if err != nil {
			continue
		}
		_, err = m.openConnectionStartSession(info, conn)
		if err == nil {
			if m.stats != nil {
				m.stats.SessionConnects.WithLabelValues("ok").Inc()
			}
			return nil
		}
		redirect, ok := err.(*redirectError)
		if !ok {
			continue
		}
		m.teardown(conn)
		conn, derr := m.getConnectionTo(redirect.to)
		if derr != nil {
			continue
		}
		if _, err := m.openConnectionStartSession(info, conn); err == nil {
			if m.stats != nil {
				m.stats.SessionConnects.WithLabelValues("ok").Inc()
			}
			return nil
		}
	}
	m.fail(info, DisconnectFailedToConnect)
	if m.stats != nil {
		m.stats.SessionConnects.WithLabelValues("failed").Inc()
	}
	return pkgerrors.Wrapf(cmn.ErrFailedToConnect, "session: exhausted connect-retry budget (%d) for %s", budget, info.SporefSelf)
}

type redirectError struct{ to cmn.ServerID }

func (e *redirectError) Error() string { return "session: redirected" }

// getAnySpaceConnection picks a random known server via ServerIDMap,
// establishes a SpaceNodeConnection if absent, and runs time sync over it.
func (m *Manager) getAnySpaceConnection() (*SpaceNodeConnection, error) {
	sid, addr, err := m.directory.Random()
	if err != nil {
		return nil, err
	}
	return m.getConnectionTo(sid, addr)
}

func (m *Manager) getConnectionTo(sid cmn.ServerID, addrs ...cmn.Address4) (*SpaceNodeConnection, error) {
	m.mu.Lock()
	conn, ok := m.conns[sid]
	if ok {
		m.mu.Unlock()
		if !conn.synced {
			if err := m.runTimeSync(conn); err != nil {
				return nil, err
			}
		}
		return conn, nil
	}

	addr := cmn.Address4{}
	if len(addrs) > 0 {
		addr = addrs[0]
	} else {
		a, lerr := m.directory.Lookup(sid)
		if lerr != nil {
			m.mu.Unlock()
			return nil, lerr
		}
		addr = a
	}
	conn = &SpaceNodeConnection{Server: sid, Addr: addr}
	m.conns[sid] = conn
	m.mu.Unlock()

	stream, err := m.dialer.Dial(addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "session: dialing server %s at %s", sid, addr)
	}
	conn.setStream(stream)

	if err := m.runTimeSync(conn); err != nil {
		return nil, pkgerrors.Wrapf(err, "session: time sync with server %s", sid)
	}
	return conn, nil
}

func (m *Manager) teardown(conn *SpaceNodeConnection) {
	conn.mu.Lock()
	if conn.stream != nil {
		conn.stream.Close()
		conn.stream = nil
	}
	conn.mu.Unlock()

	m.mu.Lock()
	delete(m.conns, conn.Server)
	m.mu.Unlock()
}

// openConnectionStartSession sends the session-open message and blocks for
// the server's ConnectResponse; on a redirect reply it returns a
// *redirectError naming the server connectRetry must retry against, and
// leaves info in StateConnecting rather than advancing it. info.State only
// reaches StateConnected once the server has actually accepted the session.
func (m *Manager) openConnectionStartSession(info *ObjectInfo, conn *SpaceNodeConnection) (cmn.ServerID, error) {
	info.mu.Lock()
	info.State = StateConnecting
	info.mu.Unlock()

	if err := conn.send(encodeSessionOpen(info.SporefSelf, info.Name)); err != nil {
		return cmn.NoServerID, err
	}

	reply, err := conn.recv()
	if err != nil {
		return cmn.NoServerID, pkgerrors.Wrapf(err, "session: awaiting connect response from server %s", conn.Server)
	}
	redirectTo, err := decodeConnectResponse(reply)
	if err != nil {
		return cmn.NoServerID, err
	}
	if redirectTo.Valid() {
		return cmn.NoServerID, &redirectError{to: redirectTo}
	}

	info.mu.Lock()
	info.State = StateConnected
	info.Server = conn.Server
	pending := info.pending
	info.pending = nil
	info.mu.Unlock()

	for _, p := range pending {
		if err := conn.send(p); err != nil {
			nlog.Warningf("session: flush of queued message for %s failed: %v", info.SporefSelf, err)
		}
	}
	return conn.Server, nil
}

// decodeConnectResponse parses a ConnectResponse wire frame: "ACCEPT <id>"
// grants the session on the responding server; "REDIRECT <id>" names the
// server the client must retry the session-open against.
func decodeConnectResponse(payload []byte) (redirectTo cmn.ServerID, err error) {
	fields := strings.Fields(string(payload))
	if len(fields) != 2 {
		return cmn.NoServerID, fmt.Errorf("session: malformed connect response %q", payload)
	}
	n, perr := strconv.ParseUint(fields[1], 10, 32)
	if perr != nil {
		return cmn.NoServerID, pkgerrors.Wrapf(perr, "session: connect response server id %q", fields[1])
	}
	switch fields[0] {
	case "ACCEPT":
		return cmn.NoServerID, nil
	case "REDIRECT":
		return cmn.ServerID(n), nil
	default:
		return cmn.NoServerID, fmt.Errorf("session: unknown connect response verb %q", fields[0])
	}
}

// encodeConnectResponse is the server-side counterpart of
// decodeConnectResponse.
func encodeConnectResponse(accept bool, server cmn.ServerID) []byte {
	if accept {
		return []byte(fmt.Sprintf("ACCEPT %d", uint32(server)))
	}
	return []byte(fmt.Sprintf("REDIRECT %d", uint32(server)))
}

func (m *Manager) fail(info *ObjectInfo, code DisconnectCode) {
	info.mu.Lock()
	info.State = StateDisconnected
	info.mu.Unlock()
	if m.onDisconnect != nil {
		m.onDisconnect(info.SporefSelf, code)
	}
}

// Send resolves destServer==0 via the object's current connected server;
// allowConnecting permits sending over a half-open session strictly for
// session-management traffic.
func (m *Manager) Send(sporef cmn.SpaceObjectReference, payload []byte, destServer cmn.ServerID, allowConnecting bool) error {
	m.mu.Lock()
	info, ok := m.objects[sporef]
	m.mu.Unlock()
	if !ok {
		return cmn.ErrObjectNotTracked
	}

	info.mu.Lock()
	state := info.State
	if destServer == cmn.NoServerID {
		destServer = info.Server
	}
	info.mu.Unlock()

	if state != StateConnected && !(allowConnecting && state == StateConnecting) {
		info.mu.Lock()
		info.pending = append(info.pending, payload)
		info.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	conn, ok := m.conns[destServer]
	m.mu.Unlock()
	if !ok {
		return cmn.ErrNoConnection
	}
	return conn.send(payload)
}

// HandleServerMessage is what the io strand posts to main for every frame
// that is not a session-management message.
func (m *Manager) HandleServerMessage(sporef cmn.SpaceObjectReference, payload []byte) {
	if m.onMessage != nil {
		m.onMessage(sporef, payload)
	}
}

// Migrate runs the migration protocol: a space server pushes the new
// ServerID, the manager establishes/reuses the connection to it, hands over
// the session carrying sporef, and switches the stream.
func (m *Manager) Migrate(sporef cmn.SpaceObjectReference, newServer cmn.ServerID) error {
	m.mu.Lock()
	info, ok := m.objects[sporef]
	m.mu.Unlock()
	if !ok {
		return cmn.ErrObjectNotTracked
	}

	conn, err := m.getConnectionTo(newServer)
	if err != nil {
		m.fail(info, DisconnectMigrationFailed)
		if m.stats != nil {
			m.stats.SessionMigrations.WithLabelValues("failed").Inc()
		}
		return pkgerrors.Wrapf(err, "session: migrating %s to server %s", sporef, newServer)
	}
	if _, err := m.openConnectionStartSession(info, conn); err != nil {
		m.fail(info, DisconnectMigrationFailed)
		if m.stats != nil {
			m.stats.SessionMigrations.WithLabelValues("failed").Inc()
		}
		return pkgerrors.Wrapf(err, "session: opening migrated session for %s on server %s", sporef, newServer)
	}
	if m.stats != nil {
		m.stats.SessionMigrations.WithLabelValues("ok").Inc()
	}
	return nil
}

func encodeSessionOpen(sporef cmn.SpaceObjectReference, name string) []byte {
	return []byte("CONNECT " + sporef.String() + " " + name)
}
