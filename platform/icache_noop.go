//go:build amd64 || 386

package platform

// FlushInstructionCache is a no-op on x86/x86-64: the architecture
// guarantees the instruction fetch path observes writes made through the
// data cache without explicit maintenance (spec.md §5, "x86 no-op").
func FlushInstructionCache(begin, end uintptr) error {
	return nil
}
