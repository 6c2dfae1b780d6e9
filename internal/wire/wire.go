package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version      byte = 1
	kindSnapshot byte = 1
)

var (
	ErrCorrupt = errors.New("optimist: corrupt snapshot")
	magic4     = [...]byte{'O', 'P', 'T', 'S'}
)

// Item is one encoded collection member.
type Item struct {
	ID      string
	Payload []byte
}

// Snapshot is the decoded frame. FetchedAt is unix nanoseconds; 0 means the
// collection was never fetched.
type Snapshot struct {
	Gen       uint64
	FetchedAt int64
	Items     []Item
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Snapshot frame:
//
//	magic(4) | ver(1) | kind(1) | gen(u64 be) | fetchedAt(i64 be) | n(u32 be)
//	idLen(u16 be) | id(idLen) | vlen(u32 be) | payload(vlen) * n
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	total := 4 + 1 + 1 + 8 + 8 + 4
	for _, it := range s.Items {
		if l := len(it.ID); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("optimist: invalid item id length %d", l)
		}
		total += 2 + len(it.ID) + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], s.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(s.FetchedAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint32(u4[:], uint32(len(s.Items)))
	buf.Write(u4[:])

	for _, it := range s.Items {
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.ID)))
		buf.Write(u2[:])
		buf.WriteString(it.ID)

		binary.BigEndian.PutUint32(u4[:], uint32(len(it.Payload)))
		buf.Write(u4[:])
		buf.Write(it.Payload)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a frame. Payloads alias b.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return Snapshot{}, ErrCorrupt
	}

	off := 6
	var s Snapshot
	s.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	s.FetchedAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	// each item needs at least 2+1+4 bytes
	if n < 0 || n > (len(b)-off)/7 {
		return Snapshot{}, ErrCorrupt
	}

	s.Items = make([]Item, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Snapshot{}, ErrCorrupt
		}
		idLen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if idLen <= 0 || idLen > len(b)-off {
			return Snapshot{}, ErrCorrupt
		}
		id := string(b[off : off+idLen])
		off += idLen

		if off+4 > len(b) {
			return Snapshot{}, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return Snapshot{}, ErrCorrupt
		}
		s.Items = append(s.Items, Item{ID: id, Payload: b[off : off+vlen]})
		off += vlen
	}

	if off != len(b) {
		return Snapshot{}, ErrCorrupt
	}
	return s, nil
}
