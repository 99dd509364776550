package hook

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

const (
	atomicCeiling64 = 8
	atomicCeiling32 = 4
)

// maskedWrite writes newBytes to addr. When len(newBytes) is within the
// atomic ceiling for pointerSize (8 on 64-bit, 4 on 32-bit) and the write
// range fits entirely inside one naturally aligned machine word, it performs
// a single atomic load-merge-store: the current word is read, newBytes is
// overlaid onto just the bytes that change, and the merged word is written
// back with a single atomic store (spec.md §5's "masked atomic word store").
// Otherwise it falls back to a plain, non-atomic copy: that happens when N
// exceeds the ceiling, and also when the range straddles a word boundary
// (a hook address that is not suitably aligned); in both cases quiescence
// is the caller's responsibility.
func maskedWrite(addr uintptr, newBytes []byte, pointerSize int) {
	n := len(newBytes)
	ceiling := atomicCeiling32
	wordSize := uintptr(4)
	if pointerSize == 8 {
		ceiling = atomicCeiling64
		wordSize = 8
	}

	if n <= ceiling {
		wordAddr := addr &^ (wordSize - 1)
		if addr+uintptr(n) <= wordAddr+wordSize {
			offset := addr - wordAddr
			if wordSize == 8 {
				p := (*uint64)(unsafe.Pointer(wordAddr))
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], atomic.LoadUint64(p))
				copy(buf[offset:], newBytes)
				atomic.StoreUint64(p, binary.LittleEndian.Uint64(buf[:]))
			} else {
				p := (*uint32)(unsafe.Pointer(wordAddr))
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], atomic.LoadUint32(p))
				copy(buf[offset:], newBytes)
				atomic.StoreUint32(p, binary.LittleEndian.Uint32(buf[:]))
			}
			return
		}
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	copy(dst, newBytes)
}

// isAtomicEligible reports whether maskedWrite would take the atomic path
// for a write of n bytes at addr, for callers that need to know in advance.
// It only reports; maskedWrite makes the same decision on its own.
func isAtomicEligible(addr uintptr, n int, pointerSize int) bool {
	ceiling := atomicCeiling32
	wordSize := uintptr(4)
	if pointerSize == 8 {
		ceiling = atomicCeiling64
		wordSize = 8
	}
	if n > ceiling {
		return false
	}
	wordAddr := addr &^ (wordSize - 1)
	return addr+uintptr(n) <= wordAddr+wordSize
}
