package node

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValuesEqualStructural(t *testing.T) {
	require.True(t, ValuesEqual(IntValue(3), IntValue(3)))
	require.False(t, ValuesEqual(IntValue(3), IntValue(4)))
	require.False(t, ValuesEqual(IntValue(3), StrValue("3")))

	a := ListValue{IntValue(1), StrValue("x")}
	b := ListValue{IntValue(1), StrValue("x")}
	c := ListValue{StrValue("x"), IntValue(1)}
	require.True(t, ValuesEqual(a, b))
	require.False(t, ValuesEqual(a, c))

	m1 := MapValue{"a": IntValue(1), "b": BoolValue(true)}
	m2 := MapValue{"b": BoolValue(true), "a": IntValue(1)}
	require.True(t, ValuesEqual(m1, m2), "map equality ignores iteration order")
}

func TestValuesEqualFloatBitPattern(t *testing.T) {
	nan1 := math.Float64frombits(0x7ff8000000000001)
	nan2 := math.Float64frombits(0x7ff8000000000002)
	require.False(t, ValuesEqual(FloatValue(nan1), FloatValue(nan2)), "distinct NaN payloads are distinct values")

	require.False(t, ValuesEqual(FloatValue(0), FloatValue(math.Copysign(0, -1))), "+0 and -0 differ by bit pattern")
}

func TestCollectRefsRecurses(t *testing.T) {
	v := MapValue{
		"a": RefValue(1),
		"b": ListValue{RefValue(2), RefValue(3)},
		"c": IntValue(9),
	}
	refs := CollectRefs(v, nil)
	require.ElementsMatch(t, []NodeID{1, 2, 3}, refs)
}

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []Value{
		IntValue(-42),
		FloatValue(3.5),
		BoolValue(true),
		StrValue("hello"),
		RefValue(7),
		ListValue{IntValue(1), StrValue("two")},
		MapValue{"k": IntValue(1)},
	}
	for _, v := range cases {
		raw, err := MarshalValueJSON(v)
		require.NoError(t, err)
		got, err := UnmarshalValueJSON(raw)
		require.NoError(t, err)
		require.True(t, ValuesEqual(v, got), "round trip changed value: %#v -> %#v", v, got)
	}
}

func TestFloatJSONPreservesNaNBitPattern(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000009)
	raw, err := MarshalValueJSON(FloatValue(nan))
	require.NoError(t, err)

	var probe struct {
		Kind      string `json:"kind"`
		FloatBits uint64 `json:"float_bits"`
	}
	require.NoError(t, json.Unmarshal(raw, &probe))
	require.Equal(t, "float", probe.Kind)
	require.Equal(t, math.Float64bits(nan), probe.FloatBits)
}
