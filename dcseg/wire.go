package dcseg

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/sirikata/space/cmn"
)

// MessageType is the first byte of every CSEG TCP frame.
type MessageType byte

const (
	LookupRequest MessageType = iota + 1
	NumServersRequest
	RegionRequest
	ServerRegionRequest
	SegmentationListen
	SegmentationChange
	LLLookupRequest
	LLServerRegionRequest
)

func (m MessageType) String() string {
	switch m {
	case LookupRequest:
		return "LOOKUP_REQUEST"
	case NumServersRequest:
		return "NUM_SERVERS_REQUEST"
	case RegionRequest:
		return "REGION_REQUEST"
	case ServerRegionRequest:
		return "SERVER_REGION_REQUEST"
	case SegmentationListen:
		return "SEGMENTATION_LISTEN"
	case SegmentationChange:
		return "SEGMENTATION_CHANGE"
	case LLLookupRequest:
		return "LL_LOOKUP_REQUEST"
	case LLServerRegionRequest:
		return "LL_SERVER_REGION_REQUEST"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(m))
	}
}

// Wire byte order: little-endian.
var byteOrder = binary.LittleEndian

func serializeVector(v cmn.Vector3) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], float32bits(v.X))
	binary.LittleEndian.PutUint32(buf[4:8], float32bits(v.Y))
	binary.LittleEndian.PutUint32(buf[8:12], float32bits(v.Z))
	return buf
}

func deserializeVector(b []byte) cmn.Vector3 {
	return cmn.Vector3{
		X: float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y: float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Z: float32frombits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

func serializeBBox(b cmn.BoundingBox) []byte {
	buf := make([]byte, 24)
	copy(buf[0:12], serializeVector(b.Min))
	copy(buf[12:24], serializeVector(b.Max))
	return buf
}

func deserializeBBox(b []byte) cmn.BoundingBox {
	return cmn.BoundingBox{Min: deserializeVector(b[0:12]), Max: deserializeVector(b[12:24])}
}

const sizeofBBox = 24
const sizeofVector = 12

// segEntry is one (ServerID, []BoundingBox) pair inside a
// SegmentationChangeMessage.
type segEntry struct {
	Server ServerID
	Boxes  []cmn.BoundingBox
}

// ServerID is a local alias so this file reads the way the wire-protocol
// table does; it is exactly cmn.ServerID.
type ServerID = cmn.ServerID

// SegChangeMsg is the decoded SEGMENTATION_CHANGE payload: one entry per
// affected server, capped at MaxServerRegionsChanged.
type SegChangeMsg struct {
	Entries []segEntry
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	byteOrder.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(buf[:]), nil
}

// encodeLookupRequest/decodeLookupRequest etc. implement the fixed-size and
// explicit-length framings of the wire-protocol table.

func encodeLookupRequest(w io.Writer, p cmn.Vector3) error {
	if err := writeByte(w, byte(LookupRequest)); err != nil {
		return err
	}
	_, err := w.Write(serializeVector(p))
	return err
}

func decodeVectorBody(r io.Reader) (cmn.Vector3, error) {
	buf := make([]byte, sizeofVector)
	if _, err := io.ReadFull(r, buf); err != nil {
		return cmn.Vector3{}, err
	}
	return deserializeVector(buf), nil
}

func encodeServerIDReply(w io.Writer, s cmn.ServerID) error { return writeUint32(w, uint32(s)) }

func decodeServerIDReply(r io.Reader) (cmn.ServerID, error) {
	v, err := readUint32(r)
	return cmn.ServerID(v), err
}

func encodeNumServersReply(w io.Writer, n uint32) error { return writeUint32(w, n) }
func decodeNumServersReply(r io.Reader) (uint32, error) { return readUint32(r) }

func encodeBBoxReply(w io.Writer, b cmn.BoundingBox) error {
	_, err := w.Write(serializeBBox(b))
	return err
}

func decodeBBoxReply(r io.Reader) (cmn.BoundingBox, error) {
	buf := make([]byte, sizeofBBox)
	if _, err := io.ReadFull(r, buf); err != nil {
		return cmn.BoundingBox{}, err
	}
	return deserializeBBox(buf), nil
}

func encodeServerRegionRequest(w io.Writer, s cmn.ServerID) error {
	if err := writeByte(w, byte(ServerRegionRequest)); err != nil {
		return err
	}
	return writeUint32(w, uint32(s))
}

func encodeBBoxListReply(w io.Writer, boxes []cmn.BoundingBox, cap int) error {
	n := len(boxes)
	if n > cap {
		n = cap
	}
	if err := writeUint32(w, uint32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := encodeBBoxReply(w, boxes[i]); err != nil {
			return err
		}
	}
	return nil
}

func decodeBBoxListReply(r io.Reader) ([]cmn.BoundingBox, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]cmn.BoundingBox, n)
	for i := range out {
		out[i], err = decodeBBoxReply(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeLLLookupRequest(w io.Writer, p cmn.Vector3, b cmn.BoundingBox) error {
	if err := writeByte(w, byte(LLLookupRequest)); err != nil {
		return err
	}
	if _, err := w.Write(serializeVector(p)); err != nil {
		return err
	}
	_, err := w.Write(serializeBBox(b))
	return err
}

func decodeLLLookupBody(r io.Reader) (cmn.Vector3, cmn.BoundingBox, error) {
	p, err := decodeVectorBody(r)
	if err != nil {
		return cmn.Vector3{}, cmn.BoundingBox{}, err
	}
	buf := make([]byte, sizeofBBox)
	if _, err := io.ReadFull(r, buf); err != nil {
		return cmn.Vector3{}, cmn.BoundingBox{}, err
	}
	return p, deserializeBBox(buf), nil
}

func encodeSegmentationChange(w io.Writer, msg SegChangeMsg, maxEntries int) error {
	if err := writeByte(w, byte(SegmentationChange)); err != nil {
		return err
	}
	n := len(msg.Entries)
	if n > maxEntries {
		n = maxEntries
	}
	if err := writeByte(w, byte(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		e := msg.Entries[i]
		if err := writeUint32(w, uint32(e.Server)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(e.Boxes))); err != nil {
			return err
		}
		for _, b := range e.Boxes {
			if _, err := w.Write(serializeBBox(b)); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeSegmentationChangeBody(r io.Reader) (SegChangeMsg, error) {
	numEntries, err := readByte(r)
	if err != nil {
		return SegChangeMsg{}, err
	}
	msg := SegChangeMsg{Entries: make([]segEntry, 0, numEntries)}
	for i := byte(0); i < numEntries; i++ {
		sv, err := readUint32(r)
		if err != nil {
			return SegChangeMsg{}, err
		}
		listLen, err := readUint32(r)
		if err != nil {
			return SegChangeMsg{}, err
		}
		boxes := make([]cmn.BoundingBox, listLen)
		for j := range boxes {
			boxes[j], err = decodeBBoxReply(r)
			if err != nil {
				return SegChangeMsg{}, err
			}
		}
		msg.Entries = append(msg.Entries, segEntry{Server: cmn.ServerID(sv), Boxes: boxes})
	}
	return msg, nil
}

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }
