package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.False(t, Nil.Truthy())
	require.False(t, Bool(false).Truthy())
	require.True(t, Bool(true).Truthy())
	require.True(t, Int(0).Truthy())
	require.True(t, Str("").Truthy())
}

func TestCanonicalKeyStableAcrossMapOrdering(t *testing.T) {
	a := Map(map[string]Value{"x": Int(1), "y": Int(2)})
	b := Map(map[string]Value{"y": Int(2), "x": Int(1)})
	require.Equal(t, CanonicalKey(a), CanonicalKey(b))
	require.True(t, Equal(a, b))
}

func TestSetDedupByCanonicalKey(t *testing.T) {
	s := SetOf(Int(1), Int(1), Int(2))
	require.Len(t, s.Set, 2)
}

func TestToNativeRoundTripsThroughFromNative(t *testing.T) {
	v := Vector(Int(1), Str("a"), Map(map[string]Value{"k": Bool(true)}))
	native := ToNative(v)
	back := FromNative(native)
	require.True(t, Equal(v, back))
}
