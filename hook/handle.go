package hook

import (
	"fmt"
	"sync"

	"github.com/cranehook/hookjit/buffer"
	"github.com/cranehook/hookjit/platform"
)

// Hook owns a stub built by Build and provides the enable/disable/drop
// surface spec.md §4.G describes. The original site is never restored on
// Release; callers that need that must Disable first (documented behavior).
type Hook struct {
	mu          sync.Mutex
	handle      *buffer.Handle
	hookAddress uintptr
	pointerSize int
	swapLen     int
	enabled     bool
	released    bool
}

// IsEnabled reports whether the hook currently diverts control to NewTarget.
func (h *Hook) IsEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Enable copies the stored "enabled" template over the live entry, the only
// part of the stub the redirection branch at the hook site ever reaches.
func (h *Hook) Enable() error {
	return h.swap(true)
}

// Disable copies the stored "disabled" template (the relocated original
// prologue plus its branch back to the rest of the original function) over
// the live entry.
func (h *Hook) Disable() error {
	return h.swap(false)
}

func (h *Hook) swap(enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("hook: use of released hook")
	}
	if h.enabled == enable {
		return nil
	}

	var payload []byte
	if enable {
		off := templateEnabledOffset()
		payload = h.handle.Bytes()[off : off+h.swapLen]
	} else {
		off := templateDisabledOffset(h.swapLen)
		payload = h.handle.Bytes()[off : off+h.swapLen]
	}

	// installMu matches Build's discipline: the swap only ever touches this
	// stub's own buffer (already RWX, ours alone), but still serializes
	// against any other hook's concurrent install/enable/disable so the
	// masked-atomic-write assumptions in atomic.go hold process-wide.
	installMu.Lock()
	err := h.handle.OverwriteAt(liveEntryOffset(h.swapLen), payload)
	if err == nil {
		flag := stubHeader{Enabled: boolToUint32(enable)}.encode()
		err = h.handle.OverwriteAt(0, flag[:4])
	}
	var flushErr error
	if err == nil {
		liveAddr := h.handle.Addr() + uintptr(liveEntryOffset(h.swapLen))
		flushErr = platform.FlushInstructionCache(liveAddr, liveAddr+uintptr(h.swapLen))
	}
	installMu.Unlock()

	if err != nil {
		return err
	}
	if flushErr != nil {
		return flushErr
	}
	h.enabled = enable
	return nil
}

// Release releases the stub's backing buffer. It does not restore the
// original bytes at the hook site: per the documented lifecycle, callers
// needing restoration must Disable first, and even then the redirection
// branch left in the hooked function's prologue still points at the (now
// freed) stub, so full teardown of a live hook additionally requires
// restoring HookAddress's original bytes through some other channel.
func (h *Hook) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	return h.handle.Release()
}
