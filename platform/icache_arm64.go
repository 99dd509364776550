//go:build arm64 && (linux || darwin)

package platform

// cacheLineStride is the architecturally guaranteed minimum AArch64 cache
// line size (16 bytes). Real silicon's actual D-cache/I-cache line size is
// always an integer multiple of this, so iterating at the minimum stride is
// always correct — only potentially slower than reading CTR_EL0 and using
// the hardware's real line size.
const cacheLineStride = 16

// Implemented in icache_arm64.s: each performs a single DC/IC/DSB/ISB system
// instruction at EL0, which AArch64 permits for cache maintenance by
// virtual address without any privileged syscall.
func dcCVAU(addr uintptr)
func icIVAU(addr uintptr)
func dsbISH()
func isbFence()

// FlushInstructionCache makes instructions written into [begin, end) visible
// to the instruction fetch path: clean the data cache by VA to the point of
// unification, wait for it to complete, invalidate the instruction cache by
// VA to the point of unification over the same range, then synchronize the
// context with ISB (spec.md §4.F step 6, §5 "cache coherency" — required on
// AArch64, a no-op on x86).
func FlushInstructionCache(begin, end uintptr) error {
	start := begin &^ (cacheLineStride - 1)
	for a := start; a < end; a += cacheLineStride {
		dcCVAU(a)
	}
	dsbISH()
	for a := start; a < end; a += cacheLineStride {
		icIVAU(a)
	}
	dsbISH()
	isbFence()
	return nil
}
