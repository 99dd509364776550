// Package platform provides the external memory-protection and
// instruction-cache collaborators the hook builder treats as opaque: toggling
// W^X/page protection around a patch of live code, and flushing the
// instruction cache on ISAs where the CPU does not snoop the data cache for
// freshly written instructions (spec.md §4.F step 6, §5 "Memory-permission
// and cache coherency").
//
// Every exported function here operates on already-mapped memory belonging
// to someone else's code segment (the function being hooked). It never
// allocates; see package buffer for the code-buffer allocator.
package platform

// Token records the page range and protection value a Relax call must
// restore. It carries no meaning outside of a Restore call against the same
// page range.
type Token struct {
	pageAddr uintptr
	pageLen  int
	restore  int
}

// Protection flags, mirrored from the host mprotect constants so callers
// outside this package don't need to import golang.org/x/sys/unix directly.
const (
	ProtRead = 1 << iota
	ProtWrite
	ProtExec
)
