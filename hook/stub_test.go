package hook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubHeaderEncodeDecodeRoundTrips(t *testing.T) {
	h := stubHeader{Enabled: 1, SwapRegionLen: 12, RedirectionLen: 5, BranchBackLen: 5}
	b := h.encode()
	require.Len(t, b, stubHeaderSize)

	got := decodeStubHeader(b)
	require.Equal(t, h, got)
}

func TestStubLayoutOffsets(t *testing.T) {
	swapLen := 16
	require.Equal(t, stubHeaderSize, templateEnabledOffset())
	require.Equal(t, stubHeaderSize+swapLen, templateDisabledOffset(swapLen))
	require.Equal(t, stubHeaderSize+2*swapLen, liveEntryOffset(swapLen))
	require.Equal(t, stubHeaderSize+3*swapLen, stubTotalSize(swapLen))
}
