//go:build linux || darwin

package platform

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	pageSizeOnce sync.Once
	pageSize     int
)

func getPageSize() int {
	pageSizeOnce.Do(func() {
		pageSize = os.Getpagesize()
	})
	return pageSize
}

func toUnixProt(p int) int {
	var u int
	if p&ProtRead != 0 {
		u |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		u |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		u |= unix.PROT_EXEC
	}
	return u
}

func pageAlign(addr uintptr, length int) (uintptr, int) {
	ps := uintptr(getPageSize())
	start := addr &^ (ps - 1)
	end := addr + uintptr(length)
	end = (end + ps - 1) &^ (ps - 1)
	return start, int(end - start)
}

func memSlice(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

// Relax grants Read|Write|Exec over the page(s) covering [addr, addr+length),
// unconditionally (this package does not attempt to read back the region's
// current protection: the hook builder always knows in advance what it wants
// the region to end up as once Restore runs, per the teacher's
// unprotect_memory/restore_write_xor_execute split). The returned Token
// remembers what Restore should set the region back to.
func Relax(addr uintptr, length int, restoreProt int) (Token, error) {
	pageAddr, pageLen := pageAlign(addr, length)
	if err := unix.Mprotect(memSlice(pageAddr, pageLen), toUnixProt(ProtRead|ProtWrite|ProtExec)); err != nil {
		return Token{}, fmt.Errorf("platform: mprotect relax failed: %w", err)
	}
	return Token{pageAddr: pageAddr, pageLen: pageLen, restore: restoreProt}, nil
}

// Restore re-applies the protection recorded in Token at the time Relax was
// called.
func Restore(t Token) error {
	if t.pageLen == 0 {
		return nil
	}
	if err := unix.Mprotect(memSlice(t.pageAddr, t.pageLen), toUnixProt(t.restore)); err != nil {
		return fmt.Errorf("platform: mprotect restore failed: %w", err)
	}
	return nil
}

// Unprotect is a convenience matching the teacher's unprotect_memory: grants
// RWX over the region with no restore token, for callers that intend to
// leave the region executable-and-writable (non-W^X platforms, or buffers
// this process owns outright).
func Unprotect(addr uintptr, length int) error {
	pageAddr, pageLen := pageAlign(addr, length)
	if err := unix.Mprotect(memSlice(pageAddr, pageLen), toUnixProt(ProtRead|ProtWrite|ProtExec)); err != nil {
		return fmt.Errorf("platform: mprotect unprotect failed: %w", err)
	}
	return nil
}
