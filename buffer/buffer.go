// Package buffer implements the Buffer Factory contract (spec.md §4.E): a
// source of writable, executable code memory located within a requested
// distance of an anchor address, handed out exclusively to one caller at a
// time via a Handle.
//
// The allocation strategy mirrors the teacher's asm.CodeSegment/Buffer pair
// (tetratelabs/wazero's internal/asm/buffer.go): an mmap'd region grown by
// doubling, with a bump-pointer cursor handing out disjoint, permanently
// non-overlapping writable views. Unlike the teacher, a view here
// (proximity-bounded) may live in its own dedicated mapping when no existing
// segment satisfies the proximity constraint, because hook trampolines need
// to land near an arbitrary, caller-chosen hook address rather than simply
// adjacent to the last-written function.
package buffer

import (
	"fmt"
	"sync"
)

// Factory hands out Handles satisfying size/proximity/alignment constraints.
// The zero value is ready to use. A Factory is safe for concurrent use; all
// bookkeeping is guarded by a single mutex, matching spec.md §4.E's
// requirement that handouts be serialized.
type Factory struct {
	mu       sync.Mutex
	segments []*segment
}

// defaultSegmentSize is the chunk size new segments are mapped at when a
// caller's requested size is smaller than it, so that repeated small
// requests (stub headers, short trampolines) don't each pay for their own
// mmap call.
const defaultSegmentSize = 64 * 1024

// New returns an empty Factory.
func New() *Factory {
	return &Factory{}
}

// GetBuffer implements get_buffer: it returns a Handle of at least size
// bytes, aligned to alignment, whose backing address lies within proximity
// bytes of target. Alignment must be a power of two.
func (f *Factory) GetBuffer(size int, target uintptr, proximity uintptr, alignment int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer: size must be positive, got %d", size)
	}
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("buffer: alignment must be a power of two, got %d", alignment)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, seg := range f.segments {
		if h, ok := seg.tryReserve(f, size, alignment, target, proximity); ok {
			return h, nil
		}
	}

	seg, err := newSegmentNear(size, target, proximity)
	if err != nil {
		return nil, fmt.Errorf("buffer: no buffer available within %#x bytes of %#x: %w", proximity, target, err)
	}
	f.segments = append(f.segments, seg)
	h, ok := seg.tryReserve(f, size, alignment, target, proximity)
	if !ok {
		return nil, fmt.Errorf("buffer: freshly mapped segment at %#x did not satisfy its own proximity request", seg.addr)
	}
	return h, nil
}

// GetAnyBuffer implements get_any_buffer: size/alignment constraints only, no
// proximity requirement.
func (f *Factory) GetAnyBuffer(size int, alignment int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer: size must be positive, got %d", size)
	}
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("buffer: alignment must be a power of two, got %d", alignment)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, seg := range f.segments {
		if h, ok := seg.tryReserveAny(f, size, alignment); ok {
			return h, nil
		}
	}

	want := size
	if want < defaultSegmentSize {
		want = defaultSegmentSize
	}
	seg, err := newSegmentAnywhere(want)
	if err != nil {
		return nil, fmt.Errorf("buffer: mmap failed: %w", err)
	}
	f.segments = append(f.segments, seg)
	h, ok := seg.tryReserveAny(f, size, alignment)
	if !ok {
		return nil, fmt.Errorf("buffer: freshly mapped segment did not have room for %d bytes", size)
	}
	return h, nil
}

// release is called by Handle.Release. When a segment's refcount drops to
// zero it is unmapped and dropped from the factory's bookkeeping; segments
// still holding other handles' reservations are left mapped.
func (f *Factory) release(seg *segment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seg.refs--
	if seg.refs > 0 {
		return
	}
	for i, s := range f.segments {
		if s == seg {
			f.segments = append(f.segments[:i], f.segments[i+1:]...)
			break
		}
	}
	_ = seg.unmap()
}
