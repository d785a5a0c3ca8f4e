package statesync

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Key is the logical identity of a query: an ordered list of primitive tokens,
// e.g. K("authUser") or K("userProfile", "ada").
//
// Allowed token types: nil, string, bool, all signed/unsigned integer types,
// float32 and float64 (finite). Integers and floats compare by numeric value,
// so K("p", 1) and K("p", 1.0) name the same query.
type Key []any

// K builds a Key from tokens.
func K(tokens ...any) Key { return Key(tokens) }

// Validate reports whether every token is a supported primitive.
func (k Key) Validate() error {
	for i, t := range k {
		switch v := t.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
		case float32:
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: token %d is not finite", ErrInvalidKey, i)
			}
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: token %d is not finite", ErrInvalidKey, i)
			}
		default:
			return fmt.Errorf("%w: token %d has type %T", ErrInvalidKey, i, t)
		}
	}
	return nil
}

// String returns the canonical encoding of k, a JSON array. Equal keys always
// produce equal strings. The result is only meaningful for valid keys.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, t := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(token(t))
	}
	b.WriteByte(']')
	return b.String()
}

// HasPrefix reports whether prefix matches the leading tokens of k.
// The empty key is a prefix of every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if token(prefix[i]) != token(k[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether k and other name the same query.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// prefixes returns k[:0], k[:1], ..., k.
func (k Key) prefixes() []Key {
	out := make([]Key, 0, len(k)+1)
	for i := 0; i <= len(k); i++ {
		out = append(out, k[:i:i])
	}
	return out
}

func token(t any) string {
	switch v := t.(type) {
	case float32:
		return number(float64(v))
	case float64:
		return number(v)
	}
	b, err := json.Marshal(t)
	if err != nil {
		// unreachable for validated keys
		return fmt.Sprintf("%q", fmt.Sprint(t))
	}
	return string(b)
}

// number renders integral floats without a fraction so that 1.0 == 1.
func number(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return fmt.Sprintf("%d", int64(f))
	}
	b, _ := json.Marshal(f)
	return string(b)
}
