// Package hook implements the Hook Builder and Hook Handle (spec.md §4.F,
// §4.G): given a hook address and a replacement target, it finds the
// smallest whole number of instructions to relocate, allocates a stub
// buffer near the hook site, builds the enabled/disabled swap payloads, and
// atomically patches the original site to redirect into the stub.
package hook

import (
	"fmt"
	"sync"

	"github.com/cranehook/hookjit/buffer"
	"github.com/cranehook/hookjit/hookerr"
	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/platform"
)

// installMu serializes any step that modifies executable memory shared
// across hooks (spec.md §5): the redirection-stub write and the
// enable/disable payload swap. It does not serialize against the threads
// that may be executing the hooked function concurrently; that is the
// atomic-write discipline in atomic.go's job.
var installMu sync.Mutex

// maxProbeBytes bounds how many bytes of the original function the length
// oracle and rewriter are shown; no realistic prologue on either ISA needs
// anywhere near this much to cover a 5-byte (amd64) or 4-byte (arm64)
// minimum redirection size.
const maxProbeBytes = 32

// maxBuildPasses bounds the swap-region fixed-point loop in Build: the live
// entry's address depends on the swap region length, which depends on the
// branches compiled against that same address. This converges in one or two
// passes in practice — it only needs more when a relative/absolute branch
// size choice flips right at the edge of the ISA's branch range.
const maxBuildPasses = 4

// Config configures a single Build call.
type Config struct {
	ISA arch.ISA

	// HookAddress is the address of the first byte of the function being
	// hooked; Build reads and relocates its prologue starting here.
	HookAddress uintptr
	// NewTarget is where control transfers to once the hook is enabled.
	NewTarget uintptr

	// Scratch is used whenever a branch's destination is out of the ISA's
	// relative-branch range. It may be left nil if the caller is confident
	// every branch this Build call needs will be directly reachable.
	Scratch arch.Register

	// MaxPermittedBytes bounds how many bytes of the original function
	// Build may overwrite at HookAddress.
	MaxPermittedBytes int

	// Proximity bounds how far from HookAddress the stub buffer may be
	// allocated.
	Proximity uintptr

	// AutoActivate, if true, leaves the hook enabled immediately after
	// Build returns; otherwise it starts disabled.
	AutoActivate bool

	// Factory supplies the stub buffer. Required.
	Factory *buffer.Factory

	// RestoreProtection is the page protection (platform.Prot* bits) the
	// hook address's page is left in once the patch completes. Defaults to
	// ProtRead|ProtExec.
	RestoreProtection int
}

// estimatedStubCap is a conservative initial stub allocation: the relocated
// prologue can expand by at most a handful of bytes per instruction (long-
// branch substitution on size-limited forms), plus a branch back, plus NOP
// padding for three same-length regions.
func estimatedStubCap(n int) int {
	return stubHeaderSize + 3*(n*4+64)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Build implements the Hook Builder algorithm (spec.md §4.F's 7 steps).
func Build(cfg Config) (*Hook, error) {
	t, err := newTarget(cfg.ISA)
	if err != nil {
		return nil, err
	}
	pointerSize := cfg.ISA.PointerSize()

	// Step 1: length oracle for the smallest N >= the short branch size.
	probe := readCode(cfg.HookAddress, maxProbeBytes)
	n, err := t.cover(probe, t.shortBranchSize)
	if err != nil {
		return nil, err
	}
	if n > cfg.MaxPermittedBytes {
		return nil, &hookerr.TooManyBytes{Actual: n, Max: cfg.MaxPermittedBytes}
	}

	// Step 2: allocate a stub buffer close to HookAddress.
	handle, err := cfg.Factory.GetBuffer(estimatedStubCap(n), cfg.HookAddress, cfg.Proximity, pointerSize)
	if err != nil {
		return nil, fmt.Errorf("hook: allocating stub buffer: %w", err)
	}

	swapLen := 0
	var disabled, enabled []byte
	for pass := 0; pass < maxBuildPasses; pass++ {
		liveEntryAddr := uint64(handle.Addr()) + uint64(liveEntryOffset(swapLen))

		// Step 3: "disabled" payload = relocated prologue + branch back.
		relocated, err := t.rewrite(probe[:n], uint64(cfg.HookAddress), liveEntryAddr, cfg.Scratch)
		if err != nil {
			_ = handle.Release()
			return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: uint64(cfg.HookAddress), NewLoc: liveEntryAddr, Inner: err}
		}
		backBranch, err := t.branch(liveEntryAddr+uint64(len(relocated)), uint64(cfg.HookAddress)+uint64(n), cfg.Scratch)
		if err != nil {
			_ = handle.Release()
			return nil, err
		}
		disabled = append(append([]byte{}, relocated...), backBranch...)

		// Step 4: "enabled" payload = branch to NewTarget.
		enabled, err = t.branch(liveEntryAddr, uint64(cfg.NewTarget), cfg.Scratch)
		if err != nil {
			_ = handle.Release()
			return nil, err
		}

		newSwapLen := len(disabled)
		if len(enabled) > newSwapLen {
			newSwapLen = len(enabled)
		}
		if newSwapLen == swapLen {
			break
		}
		swapLen = newSwapLen
	}
	disabledContentLen := len(disabled)
	disabled = append(disabled, t.nopPad(swapLen-len(disabled))...)
	enabled = append(enabled, t.nopPad(swapLen-len(enabled))...)

	total := stubTotalSize(swapLen)
	if handle.Cap() < total {
		if err := handle.Grow(total); err != nil {
			_ = handle.Release()
			return nil, fmt.Errorf("hook: growing stub buffer: %w", err)
		}
	}

	// Step 5: redirection stub written at HookAddress, targeting the live entry.
	liveEntryAddr := uint64(handle.Addr()) + uint64(liveEntryOffset(swapLen))
	redirection, err := t.branch(uint64(cfg.HookAddress), liveEntryAddr, cfg.Scratch)
	if err != nil {
		_ = handle.Release()
		return nil, err
	}
	if len(redirection) > n {
		_ = handle.Release()
		return nil, &hookerr.TooManyBytes{Actual: len(redirection), Max: n}
	}
	redirection = append(redirection, t.nopPad(n-len(redirection))...)

	header := stubHeader{
		Enabled:        boolToUint32(cfg.AutoActivate),
		SwapRegionLen:  uint32(swapLen),
		RedirectionLen: uint32(n),
		BranchBackLen:  uint32(disabledContentLen),
	}
	if _, err := handle.Write(header.encode()); err != nil {
		_ = handle.Release()
		return nil, err
	}
	if _, err := handle.Write(enabled); err != nil {
		_ = handle.Release()
		return nil, err
	}
	if _, err := handle.Write(disabled); err != nil {
		_ = handle.Release()
		return nil, err
	}
	initial := disabled
	if cfg.AutoActivate {
		initial = enabled
	}
	if err := handle.OverwriteAt(liveEntryOffset(swapLen), initial); err != nil {
		_ = handle.Release()
		return nil, err
	}
	if err := platform.FlushInstructionCache(handle.Addr(), handle.Addr()+uintptr(handle.Len())); err != nil {
		_ = handle.Release()
		return nil, err
	}

	// Step 6: atomically patch HookAddress, under the process-wide lock.
	restoreProt := cfg.RestoreProtection
	if restoreProt == 0 {
		restoreProt = platform.ProtRead | platform.ProtExec
	}

	installMu.Lock()
	token, relaxErr := platform.Relax(cfg.HookAddress, n, restoreProt)
	var restoreErr, flushErr error
	if relaxErr == nil {
		maskedWrite(cfg.HookAddress, redirection, pointerSize)
		restoreErr = platform.Restore(token)
		flushErr = platform.FlushInstructionCache(cfg.HookAddress, cfg.HookAddress+uintptr(n))
	}
	installMu.Unlock()

	if relaxErr != nil {
		_ = handle.Release()
		return nil, fmt.Errorf("hook: relaxing protection at 0x%x: %w", cfg.HookAddress, relaxErr)
	}
	if restoreErr != nil {
		_ = handle.Release()
		return nil, fmt.Errorf("hook: restoring protection at 0x%x: %w", cfg.HookAddress, restoreErr)
	}
	if flushErr != nil {
		_ = handle.Release()
		return nil, flushErr
	}

	// Step 7 is already folded into the OverwriteAt above: the live entry
	// was seeded with whichever payload AutoActivate selected.
	return &Hook{
		handle:      handle,
		hookAddress: cfg.HookAddress,
		pointerSize: pointerSize,
		swapLen:     swapLen,
		enabled:     cfg.AutoActivate,
	}, nil
}
