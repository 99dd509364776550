//go:build linux || darwin

package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleWriteAdvancesCursorAndRejectsOverflow(t *testing.T) {
	f := New()
	h, err := f.GetAnyBuffer(4, 1)
	require.NoError(t, err)
	defer h.Release()

	n, err := h.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, h.Len())

	_, err = h.Write([]byte{0x03, 0x04, 0x05})
	require.Error(t, err)
}

func TestHandleOverwriteAtDoesNotMoveCursor(t *testing.T) {
	f := New()
	h, err := f.GetAnyBuffer(4, 1)
	require.NoError(t, err)
	defer h.Release()

	_, err = h.Write([]byte{0xaa, 0xbb, 0xcc, 0xdd})
	require.NoError(t, err)
	cursorBefore := h.Len()

	require.NoError(t, h.OverwriteAt(1, []byte{0xff}))
	require.Equal(t, cursorBefore, h.Len())
	require.Equal(t, byte(0xff), h.Bytes()[1])

	err = h.OverwriteAt(3, []byte{0x00, 0x00})
	require.Error(t, err)
}

func TestHandleGrowOnlyWorksForMostRecentReservation(t *testing.T) {
	f := New()
	h1, err := f.GetAnyBuffer(8, 1)
	require.NoError(t, err)
	defer h1.Release()

	h2, err := f.GetAnyBuffer(8, 1)
	require.NoError(t, err)
	defer h2.Release()

	// h1 is no longer the most recent reservation; growing it must fail.
	err = h1.Grow(32)
	require.Error(t, err)

	require.NoError(t, h2.Grow(32))
	require.Equal(t, 32, h2.Cap())
}

func TestHandleWriteAfterReleaseFails(t *testing.T) {
	f := New()
	h, err := f.GetAnyBuffer(4, 1)
	require.NoError(t, err)
	require.NoError(t, h.Release())

	_, err = h.Write([]byte{0x01})
	require.Error(t, err)
	require.Error(t, h.OverwriteAt(0, []byte{0x01}))
}
