package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikata/space/cmn"
)

// fakeStream is an in-memory Stream collaborator recording sent payloads
// and handing back a scripted connect response.
type fakeStream struct {
	mu       sync.Mutex
	sent     [][]byte
	response []byte // connect response returned by the first Recv call
}

func (s *fakeStream) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

func (s *fakeStream) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.response != nil {
		return s.response, nil
	}
	return []byte("ACCEPT 0"), nil
}

func (s *fakeStream) Close() error { return nil }

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeDialer hands back a fresh fakeStream per Dial call. responses, if
// set, scripts each successive stream's connect response in order.
type fakeDialer struct {
	mu        sync.Mutex
	streams   []*fakeStream
	responses [][]byte
}

func (d *fakeDialer) Dial(addr cmn.Address4) (Stream, error) {
	s := &fakeStream{}
	d.mu.Lock()
	if len(d.responses) > len(d.streams) {
		s.response = d.responses[len(d.streams)]
	}
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// fakeDirectory is a trivial single-server ServerIDMap.
type fakeDirectory struct {
	id   cmn.ServerID
	addr cmn.Address4
}

func (d *fakeDirectory) Lookup(id cmn.ServerID) (cmn.Address4, error) {
	if id != d.id {
		return cmn.Address4{}, cmn.ErrUnknownServer
	}
	return d.addr, nil
}

func (d *fakeDirectory) Random() (cmn.ServerID, cmn.Address4, error) {
	return d.id, d.addr, nil
}

// multiDirectory looks up any of a fixed set of servers; Random always
// returns the first.
type multiDirectory struct {
	ids   []cmn.ServerID
	addrs map[cmn.ServerID]cmn.Address4
}

func (d *multiDirectory) Lookup(id cmn.ServerID) (cmn.Address4, error) {
	a, ok := d.addrs[id]
	if !ok {
		return cmn.Address4{}, cmn.ErrUnknownServer
	}
	return a, nil
}

func (d *multiDirectory) Random() (cmn.ServerID, cmn.Address4, error) {
	return d.ids[0], d.addrs[d.ids[0]], nil
}

func testConfig() *cmn.Config {
	return cmn.DefaultConfig()
}

func TestConnectEstablishesSession(t *testing.T) {
	dialer := &fakeDialer{}
	dir := &fakeDirectory{id: cmn.ServerID(1), addr: cmn.Address4{Host: "127.0.0.1", Service: "9000"}}
	m := NewManager(dialer, dir, testConfig())

	sporef := cmn.SpaceObjectReference{Object: cmn.NewObjectReference()}
	require.NoError(t, m.Connect(sporef, "alice"))

	m.mu.Lock()
	info := m.objects[sporef]
	m.mu.Unlock()
	require.NotNil(t, info)
	assert.Equal(t, StateConnected, info.State)
	assert.Equal(t, dir.id, info.Server)

	require.Len(t, dialer.streams, 1)
	assert.GreaterOrEqual(t, dialer.streams[0].sentCount(), 1)
}

func TestConnectFollowsRedirect(t *testing.T) {
	serverA := cmn.ServerID(1)
	serverB := cmn.ServerID(2)
	dir := &multiDirectory{
		ids: []cmn.ServerID{serverA},
		addrs: map[cmn.ServerID]cmn.Address4{
			serverA: {Host: "127.0.0.1", Service: "9000"},
			serverB: {Host: "127.0.0.1", Service: "9001"},
		},
	}
	dialer := &fakeDialer{
		responses: [][]byte{
			[]byte(fmt.Sprintf("REDIRECT %d", uint32(serverB))),
			[]byte("ACCEPT 0"),
		},
	}
	cfg := testConfig()
	cfg.Session.ConnectRetryBudget = 2
	m := NewManager(dialer, dir, cfg)

	sporef := cmn.SpaceObjectReference{Object: cmn.NewObjectReference()}
	require.NoError(t, m.Connect(sporef, "carol"))

	m.mu.Lock()
	info := m.objects[sporef]
	m.mu.Unlock()
	require.NotNil(t, info)
	assert.Equal(t, StateConnected, info.State)
	assert.Equal(t, serverB, info.Server)

	require.Len(t, dialer.streams, 2)
}

func TestSendQueuesWhileDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	dir := &fakeDirectory{id: cmn.ServerID(1), addr: cmn.Address4{Host: "127.0.0.1", Service: "9000"}}
	m := NewManager(dialer, dir, testConfig())

	sporef := cmn.SpaceObjectReference{Object: cmn.NewObjectReference()}
	m.mu.Lock()
	info := &ObjectInfo{SporefSelf: sporef, Name: "bob", State: StateDisconnected}
	m.objects[sporef] = info
	m.mu.Unlock()

	require.NoError(t, m.Send(sporef, []byte("hello"), cmn.NoServerID, false))

	info.mu.Lock()
	assert.Len(t, info.pending, 1)
	info.mu.Unlock()
}

func TestSendUnknownObjectFails(t *testing.T) {
	dialer := &fakeDialer{}
	dir := &fakeDirectory{id: cmn.ServerID(1), addr: cmn.Address4{Host: "127.0.0.1", Service: "9000"}}
	m := NewManager(dialer, dir, testConfig())

	err := m.Send(cmn.SpaceObjectReference{Object: cmn.NewObjectReference()}, []byte("x"), cmn.NoServerID, false)
	assert.ErrorIs(t, err, cmn.ErrObjectNotTracked)
}

func TestHandleServerMessageInvokesCallback(t *testing.T) {
	dialer := &fakeDialer{}
	dir := &fakeDirectory{id: cmn.ServerID(1), addr: cmn.Address4{Host: "127.0.0.1", Service: "9000"}}
	m := NewManager(dialer, dir, testConfig())

	var got []byte
	var gotSporef cmn.SpaceObjectReference
	m.OnMessage(func(sporef cmn.SpaceObjectReference, payload []byte) {
		gotSporef = sporef
		got = payload
	})

	sporef := cmn.SpaceObjectReference{Object: cmn.NewObjectReference()}
	m.HandleServerMessage(sporef, []byte("payload"))

	assert.Equal(t, sporef, gotSporef)
	assert.Equal(t, []byte("payload"), got)
}

func TestNumMorePings(t *testing.T) {
	assert.Equal(t, 4, numMorePings(4, 0))
	assert.Equal(t, 1, numMorePings(4, 3))
	assert.Equal(t, 0, numMorePings(4, 4))
	assert.Equal(t, 0, numMorePings(4, 5))
}
