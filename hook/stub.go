package hook

import "encoding/binary"

// stubHeader is the packed metadata block at the start of every stub buffer
// (spec.md §3 "Stub layout"). It is followed by three equal-length regions:
// the stored "enabled" template, the stored "disabled" template, and the
// live entry — the bytes actually reached by the redirection branch written
// at the hook site. Enable/disable copies one template over the live entry;
// both templates stay resident so a hook can be toggled back and forth
// without rebuilding anything.
type stubHeader struct {
	Enabled        uint32
	SwapRegionLen  uint32
	RedirectionLen uint32
	BranchBackLen  uint32
}

const stubHeaderSize = 16

func (h stubHeader) encode() []byte {
	b := make([]byte, stubHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Enabled)
	binary.LittleEndian.PutUint32(b[4:8], h.SwapRegionLen)
	binary.LittleEndian.PutUint32(b[8:12], h.RedirectionLen)
	binary.LittleEndian.PutUint32(b[12:16], h.BranchBackLen)
	return b
}

func decodeStubHeader(b []byte) stubHeader {
	return stubHeader{
		Enabled:        binary.LittleEndian.Uint32(b[0:4]),
		SwapRegionLen:  binary.LittleEndian.Uint32(b[4:8]),
		RedirectionLen: binary.LittleEndian.Uint32(b[8:12]),
		BranchBackLen:  binary.LittleEndian.Uint32(b[12:16]),
	}
}

// stub layout offsets, all relative to the buffer's base address.
func templateEnabledOffset() int { return stubHeaderSize }
func templateDisabledOffset(swapLen int) int { return stubHeaderSize + swapLen }
func liveEntryOffset(swapLen int) int { return stubHeaderSize + 2*swapLen }
func stubTotalSize(swapLen int) int { return stubHeaderSize + 3*swapLen }
