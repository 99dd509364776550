//go:build darwin

package buffer

// mmapHinted has no portable raw-syscall path on Darwin through
// golang.org/x/sys/unix (no exported address-taking mmap wrapper); callers
// fall back to an unhinted mapping and rely on the distance check to decide
// whether the result is usable.
func mmapHinted(hint uintptr, n int) ([]byte, error) {
	return nil, errHintUnsupported
}
