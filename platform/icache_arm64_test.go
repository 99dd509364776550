//go:build arm64 && (linux || darwin)

package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFlushInstructionCacheOverMappedRegion(t *testing.T) {
	b, err := unix.Mmap(-1, 0, getPageSize(), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_ANON|unix.MAP_PRIVATE)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(b) })

	begin := uintptr(unsafe.Pointer(&b[0]))
	require.NoError(t, FlushInstructionCache(begin, begin+64))
}
