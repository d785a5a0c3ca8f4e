package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) Result {
	t.Helper()
	r, err := DecodeResult(b)
	if err != nil {
		t.Fatalf("DecodeResult error: %v", err)
	}
	return r
}

func TestResultRTEmptyAndNonEmpty(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	cases := []struct {
		gen     uint64
		at      time.Time
		payload []byte
	}{
		{0, time.Time{}, nil},
		{42, ts, []byte("hello")},
		{math.MaxUint64, ts, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		r := mustDecode(t, EncodeResult(tc.gen, tc.at, tc.payload))
		if r.Gen != tc.gen {
			t.Fatalf("gen mismatch: got %d want %d", r.Gen, tc.gen)
		}
		if !r.UpdatedAt.Equal(tc.at) {
			t.Fatalf("updatedAt mismatch: got %v want %v", r.UpdatedAt, tc.at)
		}
		if !bytes.Equal(r.Payload, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", r.Payload, tc.payload)
		}
	}
}

func TestResultZeroTimeStaysZero(t *testing.T) {
	r := mustDecode(t, EncodeResult(1, time.Time{}, []byte("x")))
	if !r.UpdatedAt.IsZero() {
		t.Fatalf("expected zero updatedAt, got %v", r.UpdatedAt)
	}
}

func TestResultRejectsTrailingBytes(t *testing.T) {
	enc := EncodeResult(7, time.Now(), []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, err := DecodeResult(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestResultCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeResult(1, time.Now(), []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeResult(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeResult(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindResult + 1
	if _, err := DecodeResult(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen lives at 22..26 (4 magic +1 ver +1 kind +8 gen +8 ts)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[22:26], uint32(len("abc")+1))
	if _, err := DecodeResult(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := DecodeResult(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := DecodeResult(enc[:headerLen-1]); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}

func TestResultZeroCopyPayload(t *testing.T) {
	enc := EncodeResult(1, time.Time{}, []byte("Z"))
	r := mustDecode(t, enc)
	r.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestEncodeDoesNotAliasPayload(t *testing.T) {
	p := []byte("abc")
	enc := EncodeResult(1, time.Time{}, p)
	p[0] = 'z'
	if got := mustDecode(t, enc).Payload; string(got) != "abc" {
		t.Fatalf("encoded frame changed with caller buffer: %q", got)
	}
}
