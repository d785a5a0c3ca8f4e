package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type profile struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Following []string  `json:"following"`
	CreatedAt time.Time `json:"createdAt"`
}

func sample() profile {
	return profile{
		ID:        "u1",
		Username:  "ada",
		Following: []string{"u2", "u3"},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
	}
}

func equalProfile(a, b profile) bool {
	if a.ID != b.ID || a.Username != b.Username || !a.CreatedAt.Equal(b.CreatedAt) || len(a.Following) != len(b.Following) {
		return false
	}
	for i := range a.Following {
		if a.Following[i] != b.Following[i] {
			return false
		}
	}
	return true
}

func TestStructCodecsRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		codec Codec[profile]
	}{
		{"json", JSON[profile]{}},
		{"cbor", MustCBOR[profile](false)},
		{"cbor_deterministic", MustCBOR[profile](true)},
		{"msgpack", Msgpack[profile]{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sample()
			b, err := tc.codec.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := tc.codec.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !equalProfile(in, out) {
				t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
			}
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic encoding differs: %x vs %x", a, b)
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	b, err := Msgpack[profile]{}.Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("_id")) {
		t.Fatalf("expected json tag name _id in msgpack payload")
	}
}

func TestMsgpackDecodeReusesPooledDecoder(t *testing.T) {
	c := Msgpack[profile]{}
	first, second := sample(), sample()
	second.Username = "bob"
	for _, in := range []profile{first, second, first} {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatal(err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !equalProfile(in, out) {
			t.Fatalf("decoded %+v; want %+v", out, in)
		}
	}
	if _, err := c.Decode([]byte{0xc1}); err == nil {
		t.Fatalf("expected error for reserved msgpack byte")
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"username": "ada", "followers": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("round trip mismatch: %v vs %v", in, out)
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	got, err := c.Decode([]byte("1234"))
	if err != nil || got != "1234" {
		t.Fatalf("Decode within limit: got=%q err=%v", got, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 should disable limit: %v", err)
	}
}

func TestBytesDecodeCopies(t *testing.T) {
	src := []byte("abc")
	out, _ := Bytes{}.Decode(src)
	src[0] = 'z'
	if string(out) != "abc" {
		t.Fatalf("Decode aliased input: %q", out)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor", "msgpack"} {
		c, err := ByName[profile](name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		b, err := c.Encode(sample())
		if err != nil {
			t.Fatalf("%q Encode: %v", name, err)
		}
		if _, err := c.Decode(b); err != nil {
			t.Fatalf("%q Decode: %v", name, err)
		}
	}
	if _, err := ByName[profile]("yaml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
