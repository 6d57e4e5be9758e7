// Package wire frames serialized record content for byte stores.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1
	hdrLen          = 4 + 1 + 1 + 1 + 4
)

var (
	ErrCorrupt = errors.New("rescache: corrupt entry")
	magic4     = [...]byte{'R', 'S', 'C', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRecord frames payload:
//
//	magic(4) | ver(1) | kind(1=record) | codec(1) | plen(u32 be) | payload(plen)
func EncodeRecord(codecID byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)
	buf.WriteByte(codecID)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeRecord validates the frame and returns the codec id and a payload
// slice aliasing b. Trailing bytes are rejected.
func DecodeRecord(b []byte) (codecID byte, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, nil, ErrCorrupt
	}
	codecID = b[6]
	off := 7

	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return codecID, b[off : off+plen], nil
}
