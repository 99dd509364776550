//go:build amd64 && (linux || darwin)

package hook

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cranehook/hookjit/buffer"
	"github.com/cranehook/hookjit/internal/arch"
)

func mapExecutablePage(t *testing.T) []byte {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, 4096, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_ANON|unix.MAP_PRIVATE)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(mem) })
	return mem
}

func TestBuildPatchesHookAddressAndTogglesEnableDisable(t *testing.T) {
	victim := mapExecutablePage(t)
	for i := range victim[:16] {
		victim[i] = 0x90 // NOP prologue, plenty of room for a 5-byte jmp rel32
	}
	hookAddr := uintptr(unsafe.Pointer(&victim[0]))
	newTarget := hookAddr + 2048 // anywhere in the same page; never actually called

	f := buffer.New()
	h, err := Build(Config{
		ISA:               arch.ISAAMD64,
		HookAddress:       hookAddr,
		NewTarget:         newTarget,
		MaxPermittedBytes: 16,
		Proximity:         1 << 31,
		Factory:           f,
	})
	require.NoError(t, err)
	require.False(t, h.IsEnabled())

	// The redirection branch must have overwritten the leading NOPs.
	require.NotEqual(t, byte(0x90), victim[0])

	require.NoError(t, h.Enable())
	require.True(t, h.IsEnabled())
	require.NoError(t, h.Enable()) // idempotent

	require.NoError(t, h.Disable())
	require.False(t, h.IsEnabled())

	require.NoError(t, h.Release())
	require.Error(t, h.Enable())
}

func TestBuildAutoActivateStartsEnabled(t *testing.T) {
	victim := mapExecutablePage(t)
	for i := range victim[:16] {
		victim[i] = 0x90
	}
	hookAddr := uintptr(unsafe.Pointer(&victim[0]))

	f := buffer.New()
	h, err := Build(Config{
		ISA:               arch.ISAAMD64,
		HookAddress:       hookAddr,
		NewTarget:         hookAddr + 2048,
		MaxPermittedBytes: 16,
		Proximity:         1 << 31,
		Factory:           f,
		AutoActivate:      true,
	})
	require.NoError(t, err)
	require.True(t, h.IsEnabled())
	require.NoError(t, h.Release())
}

func TestBuildRejectsTooFewPermittedBytes(t *testing.T) {
	victim := mapExecutablePage(t)
	for i := range victim[:16] {
		victim[i] = 0x90
	}
	hookAddr := uintptr(unsafe.Pointer(&victim[0]))

	f := buffer.New()
	_, err := Build(Config{
		ISA:               arch.ISAAMD64,
		HookAddress:       hookAddr,
		NewTarget:         hookAddr + 2048,
		MaxPermittedBytes: 1,
		Proximity:         1 << 31,
		Factory:           f,
	})
	require.Error(t, err)
}
