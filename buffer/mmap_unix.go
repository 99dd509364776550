//go:build linux || darwin

package buffer

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errHintUnsupported = errors.New("address-hinted mmap unsupported on this platform")

func pageSize() int { return os.Getpagesize() }

func pageRound(n int) int {
	ps := pageSize()
	return (n + ps - 1) &^ (ps - 1)
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// newSegmentAnywhere mmaps a fresh anonymous RWX mapping of at least size
// bytes at whatever address the kernel chooses. Buffers this package hands
// out are executable from the moment they're mapped: they're private
// trampoline/stub memory this process owns outright, not the caller's
// existing (.text) page, which is the region spec.md's W^X discipline in
// package platform actually guards.
func newSegmentAnywhere(size int) (*segment, error) {
	n := pageRound(size)
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", n, err)
	}
	return &segment{mem: mem, addr: addrOf(mem)}, nil
}

// proximityAttempts bounds how many address hints newSegmentNear tries
// before giving up. Each attempt costs one mmap+munmap round trip.
const proximityAttempts = 8

// newSegmentNear tries to mmap a mapping whose address lands within
// proximity of target. A non-MAP_FIXED address hint is only ever a
// suggestion the kernel is free to ignore; this is a best-effort search
// over a bounded set of hints spreading outward from target's page, not a
// guaranteed placement (unlike
// MAP_FIXED, which this package deliberately avoids — forcing an address
// near arbitrary caller-supplied code could silently clobber an existing
// live mapping it doesn't own).
func newSegmentNear(size int, target, proximity uintptr) (*segment, error) {
	n := pageRound(size)
	ps := uintptr(pageSize())

	base := target &^ (ps - 1)
	hints := []uintptr{base}
	step := proximity / 4
	if step == 0 {
		step = ps
	}
	for i := uintptr(1); len(hints) < proximityAttempts; i++ {
		if i*step > proximity {
			break
		}
		hints = append(hints, base+i*step)
		if base > i*step {
			hints = append(hints, base-i*step)
		}
	}

	var lastErr error
	for _, hint := range hints {
		mem, err := mmapHinted(hint, n)
		if errors.Is(err, errHintUnsupported) {
			mem, err = unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		}
		if err != nil {
			lastErr = err
			continue
		}
		addr := addrOf(mem)
		if withinProximity(addr, target, proximity) {
			return &segment{mem: mem, addr: addr}, nil
		}
		_ = unix.Munmap(mem)
		lastErr = fmt.Errorf("kernel placed mapping at %#x, outside proximity %#x of target %#x", addr, proximity, target)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no address hint attempted")
	}
	return nil, lastErr
}

func (s *segment) unmap() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	return err
}

// grow extends the segment to at least newLen bytes by mapping a larger
// region, copying the existing content across, and unmapping the old
// region — portable across Linux and Darwin (Darwin's x/sys/unix has no
// Mremap), matching the teacher's CodeSegment.grow doubling strategy.
func (s *segment) grow(newLen int) error {
	want := pageRound(newLen)
	if want <= len(s.mem) {
		return nil
	}
	size := len(s.mem)
	if size == 0 {
		size = pageSize()
	}
	for size < want {
		size *= 2
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("grow segment to %d bytes: %w", size, err)
	}
	copy(mem, s.mem)
	old := s.mem
	s.mem = mem
	s.addr = addrOf(mem)
	return unix.Munmap(old)
}
