package hook

import "unsafe"

// readCode returns a read-only view of n bytes of memory starting at addr.
// The caller guarantees addr is currently mapped, readable, code — the
// fundamental precondition of any inline-hooking operation, not something
// this package can itself verify from Go.
func readCode(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
