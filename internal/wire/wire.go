// Package wire frames persisted query results.
//
// Frame: magic(4) | ver(1) | kind(1=result) | gen(u64 be) | updatedAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindResult byte = 1

	headerLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("statesync: corrupt entry")
	magic4     = [...]byte{'S', 'S', 'Y', 'N'}
)

// Result is a decoded frame. Payload aliases the input buffer.
type Result struct {
	Gen       uint64
	UpdatedAt time.Time
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func EncodeResult(gen uint64, updatedAt time.Time, payload []byte) []byte {
	buf := make([]byte, headerLen, headerLen+len(payload))
	copy(buf[:4], magic4[:])
	buf[4] = version
	buf[5] = kindResult
	binary.BigEndian.PutUint64(buf[6:14], gen)
	var ts int64
	if !updatedAt.IsZero() {
		ts = updatedAt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[14:22], uint64(ts))
	binary.BigEndian.PutUint32(buf[22:26], uint32(len(payload)))
	return append(buf, payload...)
}

// DecodeResult parses a frame. Trailing bytes are rejected.
func DecodeResult(b []byte) (Result, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindResult {
		return Result{}, ErrCorrupt
	}
	gen := binary.BigEndian.Uint64(b[6:14])
	ts := int64(binary.BigEndian.Uint64(b[14:22]))
	vlen := uint64(binary.BigEndian.Uint32(b[22:26]))
	if vlen != uint64(len(b)-headerLen) {
		return Result{}, ErrCorrupt
	}
	r := Result{Gen: gen, Payload: b[headerLen:]}
	if ts != 0 {
		r.UpdatedAt = time.Unix(0, ts)
	}
	return r, nil
}
