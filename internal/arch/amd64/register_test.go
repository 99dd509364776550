package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterString(t *testing.T) {
	require.Equal(t, "eax", EAX.String())
	require.Equal(t, "rax", RAX.String())
	require.Equal(t, "r15", R15.String())
	require.Equal(t, "r8d", r32(8).String())
}

func TestRegisterSize(t *testing.T) {
	require.Equal(t, 4, EAX.Size())
	require.Equal(t, 8, RAX.Size())
}

func TestIsStackPointer(t *testing.T) {
	require.True(t, RSP.IsStackPointer())
	require.True(t, ESP.IsStackPointer())
	require.False(t, RAX.IsStackPointer())
}

func TestNeedsREX(t *testing.T) {
	require.False(t, RAX.NeedsREX())
	require.False(t, RDI.NeedsREX())
	require.True(t, R8.NeedsREX())
	require.True(t, R15.NeedsREX())
}

func TestStackPointer(t *testing.T) {
	require.Equal(t, ESP, StackPointer(4))
	require.Equal(t, RSP, StackPointer(8))
}
