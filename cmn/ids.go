package cmn

import (
	"fmt"

	"github.com/google/uuid"
)

// ServerID identifies a space server. Zero denotes "no server" / "pick at
// random".
type ServerID uint32

const NoServerID ServerID = 0

func (s ServerID) String() string { return fmt.Sprintf("server-%d", uint32(s)) }
func (s ServerID) Valid() bool    { return s != NoServerID }

// CSEGNodeID identifies a CSEG node in the distributed segmentation fleet.
// Upper-tree leaves carry one of these instead of a ServerID.
type CSEGNodeID uint32

const NoCSEGNodeID CSEGNodeID = 0

func (c CSEGNodeID) String() string { return fmt.Sprintf("cseg-%d", uint32(c)) }

// ObjectReference is a 128-bit opaque object identifier.
type ObjectReference uuid.UUID

func NewObjectReference() ObjectReference { return ObjectReference(uuid.New()) }

func (o ObjectReference) String() string { return uuid.UUID(o).String() }
func (o ObjectReference) IsNull() bool   { return o == ObjectReference{} }

func ParseObjectReference(s string) (ObjectReference, error) {
	u, err := uuid.Parse(s)
	return ObjectReference(u), err
}

// SpaceID names a single virtual-world space (a DCSEG + proximity + session
// deployment). Most of this module operates against one SpaceID at a time,
// but identifiers are always qualified by it so that cross-space messages
// (object host talking to multiple spaces) are unambiguous.
type SpaceID uuid.UUID

func (s SpaceID) String() string { return uuid.UUID(s).String() }

// SpaceObjectReference is (SpaceID, ObjectReference) -- the fully qualified
// object identifier used everywhere above the wire-protocol layer.
type SpaceObjectReference struct {
	Space  SpaceID
	Object ObjectReference
}

func (r SpaceObjectReference) String() string {
	return r.Space.String() + ":" + r.Object.String()
}

func (r SpaceObjectReference) IsNull() bool { return r.Object.IsNull() }

// Address4 is a (host, service-or-port) pair, used for both the CSEG TCP
// wire protocol and the session manager's ServerIDMap.
type Address4 struct {
	Host    string
	Service string
}

func (a Address4) String() string { return a.Host + ":" + a.Service }
func (a Address4) Empty() bool    { return a.Host == "" }

// QuerierID names either an object (solid-angle query) or a server (region+
// halo query) as the subject of a proximity query.
type QuerierID struct {
	Object  SpaceObjectReference
	Server  ServerID
	IsServer bool
}

func ObjectQuerierID(oref SpaceObjectReference) QuerierID { return QuerierID{Object: oref} }
func ServerQuerierID(sid ServerID) QuerierID              { return QuerierID{Server: sid, IsServer: true} }

func (q QuerierID) String() string {
	if q.IsServer {
		return q.Server.String()
	}
	return q.Object.String()
}
