//go:build linux || darwin

package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mapAnonPage(t *testing.T) []byte {
	t.Helper()
	b, err := unix.Mmap(-1, 0, getPageSize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(b) })
	return b
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func TestRelaxThenRestoreRoundTrips(t *testing.T) {
	page := mapAnonPage(t)
	addr := addrOf(page)

	tok, err := Relax(addr, 4, ProtRead|ProtWrite)
	require.NoError(t, err)

	// With the page relaxed to RWX, a write must not fault.
	mem := memSlice(addr, 4)
	mem[0] = 0xc3

	require.NoError(t, Restore(tok))
}

func TestRestoreOfZeroTokenIsNoop(t *testing.T) {
	require.NoError(t, Restore(Token{}))
}

func TestUnprotectGrantsReadWriteExec(t *testing.T) {
	page := mapAnonPage(t)
	addr := addrOf(page)

	require.NoError(t, Unprotect(addr, 4))
	mem := memSlice(addr, 4)
	mem[0] = 0x90
	require.Equal(t, byte(0x90), mem[0])
}

func TestPageAlignCoversRequestedRange(t *testing.T) {
	ps := uintptr(getPageSize())
	start, length := pageAlign(ps+10, 20)
	require.Equal(t, ps, start)
	require.GreaterOrEqual(t, uintptr(length), uintptr(30))
}

func TestToUnixProt(t *testing.T) {
	require.Equal(t, unix.PROT_READ, toUnixProt(ProtRead))
	require.Equal(t, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, toUnixProt(ProtRead|ProtWrite|ProtExec))
	require.Equal(t, 0, toUnixProt(0))
}
