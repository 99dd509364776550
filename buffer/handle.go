package buffer

import "fmt"

// Handle is an exclusive writable view over a reserved region of a code
// segment, returned by Factory.GetBuffer/GetAnyBuffer. No other caller can
// observe this region until Release is called (spec.md §4.E).
//
// Writes append at an internal cursor that advances by the number of bytes
// written; OverwriteAt bypasses the cursor for callers (the hook builder)
// that need to patch an already-written region — for example rewriting the
// "enabled"/"disabled" swap region in place without re-appending it.
type Handle struct {
	factory  *Factory
	seg      *segment
	off      int
	reserved int
	cursor   int
	released bool
}

// Addr returns the address of the start of this handle's region.
func (h *Handle) Addr() uintptr {
	return h.seg.addr + uintptr(h.off)
}

// Cap returns the total reserved capacity of this handle's region.
func (h *Handle) Cap() int {
	return h.reserved
}

// Len returns the number of bytes written so far via Write.
func (h *Handle) Len() int {
	return h.cursor
}

// Bytes returns the written prefix of this handle's region. The returned
// slice aliases the underlying mapping and is invalidated by Release.
func (h *Handle) Bytes() []byte {
	return h.seg.mem[h.off : h.off+h.cursor]
}

// Write appends b at the write cursor, advancing it by len(b). It fails if
// doing so would exceed the handle's reserved capacity.
func (h *Handle) Write(b []byte) (int, error) {
	if h.released {
		return 0, fmt.Errorf("buffer: write on released handle")
	}
	if h.cursor+len(b) > h.reserved {
		return 0, fmt.Errorf("buffer: write of %d bytes at cursor %d exceeds reserved capacity %d", len(b), h.cursor, h.reserved)
	}
	copy(h.seg.mem[h.off+h.cursor:], b)
	h.cursor += len(b)
	return len(b), nil
}

// OverwriteAt writes b at byte offset off within this handle's region,
// without touching or being affected by the write cursor. It is the
// dedicated "overwrite allocated code" operation spec.md §4.E requires: the
// only sanctioned way to modify bytes the cursor has already passed over.
func (h *Handle) OverwriteAt(off int, b []byte) error {
	if h.released {
		return fmt.Errorf("buffer: overwrite on released handle")
	}
	if off < 0 || off+len(b) > h.reserved {
		return fmt.Errorf("buffer: overwrite [%d,%d) out of bounds for reserved capacity %d", off, off+len(b), h.reserved)
	}
	copy(h.seg.mem[h.off+off:], b)
	return nil
}

// Grow extends this handle's reserved capacity to at least newCap bytes.
// Only valid when this handle holds the most recent reservation in its
// segment (nothing else has been reserved after it); otherwise growing
// in place would overrun the next handle's region.
func (h *Handle) Grow(newCap int) error {
	if h.released {
		return fmt.Errorf("buffer: grow on released handle")
	}
	if newCap <= h.reserved {
		return nil
	}
	if h.seg.used != h.off+h.reserved {
		return fmt.Errorf("buffer: cannot grow a handle that is not the most recent reservation in its segment")
	}
	if err := h.seg.grow(h.off + newCap); err != nil {
		return err
	}
	h.seg.used = h.off + newCap
	h.reserved = newCap
	return nil
}

// Release returns the underlying segment's reference for reuse or unmapping.
// The handle must not be used afterward.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true
	h.factory.release(h.seg)
	return nil
}
