package statesync

import (
	"errors"
	"math"
	"testing"
)

func TestKeyString(t *testing.T) {
	cases := []struct {
		k    Key
		want string
	}{
		{K(), `[]`},
		{K("authUser"), `["authUser"]`},
		{K("userProfile", "ada"), `["userProfile","ada"]`},
		{K("posts", 1, true, nil), `["posts",1,true,null]`},
		{K("p", 1.0), `["p",1]`},
		{K("p", 1.5), `["p",1.5]`},
		{K("p", uint8(3), int64(-4)), `["p",3,-4]`},
		{K(`quo"te`), `["quo\"te"]`},
	}
	for _, tc := range cases {
		if got := tc.k.String(); got != tc.want {
			t.Errorf("%#v.String()=%s want %s", tc.k, got, tc.want)
		}
	}
}

func TestKeyValidate(t *testing.T) {
	good := []Key{K(), K("a", 1, uint(2), 3.5, float32(1), false, nil)}
	for _, k := range good {
		if err := k.Validate(); err != nil {
			t.Errorf("Validate(%v)=%v", k, err)
		}
	}
	bad := []Key{
		K([]string{"x"}),
		K(map[string]int{}),
		K(struct{}{}),
		K(math.NaN()),
		K(math.Inf(1)),
		K(float32(math.Inf(-1))),
	}
	for _, k := range bad {
		if err := k.Validate(); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate(%#v)=%v; want ErrInvalidKey", k, err)
		}
	}
}

func TestKeyPrefixAndEqual(t *testing.T) {
	k := K("posts", "user", "ada")
	for _, p := range []Key{K(), K("posts"), K("posts", "user"), k} {
		if !k.HasPrefix(p) {
			t.Errorf("%v should have prefix %v", k, p)
		}
	}
	for _, p := range []Key{K("post"), K("posts", "all"), K("posts", "user", "ada", "x")} {
		if k.HasPrefix(p) {
			t.Errorf("%v should not have prefix %v", k, p)
		}
	}
	if !K("p", 1).Equal(K("p", 1.0)) || !K("p", int8(1)).Equal(K("p", uint64(1))) {
		t.Errorf("numeric tokens should compare by value")
	}
	if K("p", "1").Equal(K("p", 1)) {
		t.Errorf("string and number tokens must differ")
	}
	if K("p").Equal(K("p", nil)) {
		t.Errorf("different lengths must differ")
	}
}

func TestKeyPrefixesDoNotAlias(t *testing.T) {
	k := K("a", "b")
	ps := k.prefixes()
	if len(ps) != 3 || ps[0].String() != `[]` || ps[2].String() != `["a","b"]` {
		t.Fatalf("prefixes=%v", ps)
	}
	// capacity is clipped, so appending to a prefix never writes into k
	_ = append(ps[1], "z")
	if k[1] != "b" {
		t.Fatalf("prefix append overwrote key: %v", k)
	}
}
