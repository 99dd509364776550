//go:build linux

package buffer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapHinted issues mmap with an address hint (not MAP_FIXED). Linux treats
// a non-fixed hint as a starting point for get_unmapped_area's search when
// the hinted region is free; newSegmentNear's distance check rejects
// placements the kernel chose to move elsewhere.
func mmapHinted(hint uintptr, n int) ([]byte, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_MMAP, hint, uintptr(n),
		uintptr(unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS),
		^uintptr(0), 0)
	if errno != 0 {
		return nil, fmt.Errorf("mmap hint %#x: %w", hint, errno)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(r1)), n), nil
}
