//go:build debug_asm

package asmdebug

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cranehook/hookjit/internal/arch/amd64"
	"github.com/cranehook/hookjit/internal/arch/op"
)

func TestCrossCheckMovPushPopAgainstGolangAsm(t *testing.T) {
	ops := []op.Operation{
		op.Mov(amd64.RAX, amd64.RBX),
		op.Push(amd64.RCX),
		op.Pop(amd64.RDX),
		op.StackAlloc(32),
		op.Return(0),
	}

	jit := amd64.NewJIT(true)
	ours, err := jit.Compile(0x1000, ops)
	require.NoError(t, err)

	theirs, err := Encode(ops, true)
	require.NoError(t, err)

	require.NoError(t, CrossCheckHex(ours, theirs))
}

func TestCrossCheckUnsupportedKindErrors(t *testing.T) {
	_, err := Encode([]op.Operation{{Kind: op.KindXChg}}, true)
	require.Error(t, err)
}
