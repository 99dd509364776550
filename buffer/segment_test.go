package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, alignUp(0, 8))
	require.Equal(t, 8, alignUp(1, 8))
	require.Equal(t, 16, alignUp(9, 8))
	require.Equal(t, 16, alignUp(16, 8))
}

func TestWithinProximity(t *testing.T) {
	require.True(t, withinProximity(100, 100, 0))
	require.True(t, withinProximity(90, 100, 10))
	require.True(t, withinProximity(110, 100, 10))
	require.False(t, withinProximity(111, 100, 10))
	require.False(t, withinProximity(89, 100, 10))
}

func TestSegmentTryReserveRespectsCapacityAndProximity(t *testing.T) {
	s := &segment{mem: make([]byte, 32), addr: 0x1000}

	h, ok := s.tryReserve(nil, 8, 1, 0x1000, 0x1000)
	require.True(t, ok)
	require.Equal(t, uintptr(0x1000), h.Addr())
	require.Equal(t, 8, s.used)

	// Remaining capacity is 24 bytes; asking for 25 must fail.
	_, ok = s.tryReserve(nil, 25, 1, 0x1000, 0x1000)
	require.False(t, ok)
	require.Equal(t, 8, s.used) // unchanged on failure

	// Out of proximity: target far away, tiny window.
	s2 := &segment{mem: make([]byte, 32), addr: 0x1000}
	_, ok = s2.tryReserve(nil, 8, 1, 0xf0000000, 4)
	require.False(t, ok)
}

func TestSegmentTryReserveAnyIgnoresProximity(t *testing.T) {
	s := &segment{mem: make([]byte, 16), addr: 0x1000}
	h, ok := s.tryReserveAny(nil, 16, 1)
	require.True(t, ok)
	require.Equal(t, 16, h.Cap())

	_, ok = s.tryReserveAny(nil, 1, 1)
	require.False(t, ok)
}
