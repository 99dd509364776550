package amd64

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/internal/arch/op"
)

func TestJITCompileSimpleOps(t *testing.T) {
	j := NewJIT(true)

	b, err := j.Compile(0x1000, []op.Operation{op.Mov(RAX.AsArch(), RBX.AsArch())})
	require.NoError(t, err)
	require.Equal(t, []byte{0x48, 0x89, 0xc3}, b)

	b, err = j.Compile(0x1000, []op.Operation{op.Push(RAX.AsArch())})
	require.NoError(t, err)
	require.Equal(t, []byte{0x50}, b)

	b, err = j.Compile(0x1000, []op.Operation{op.Return(0)})
	require.NoError(t, err)
	require.Equal(t, []byte{0xc3}, b)
}

func TestJITCompileJumpRelUsesInstructionEndAsOrigin(t *testing.T) {
	j := NewJIT(true)
	// pc=0x1000, target=0x1010; JMP rel32 is 5 bytes, so delta is measured
	// from 0x1005.
	b, err := j.Compile(0x1000, []op.Operation{op.JumpRel(0x1010)})
	require.NoError(t, err)
	require.Equal(t, []byte{0xe9, 0x0b, 0x00, 0x00, 0x00}, b)
}

func TestJITCompileJumpAbsNoScratchErrors(t *testing.T) {
	j := NewJIT(true)
	_, err := j.Compile(0x1000, []op.Operation{op.JumpAbs(0xdeadbeefcafe, nil)})
	require.Error(t, err)
}

func TestJITCompileJumpAbsWithScratch(t *testing.T) {
	j := NewJIT(true)
	b, err := j.Compile(0x1000, []op.Operation{op.JumpAbs(0x12345678, R11.AsArch())})
	require.NoError(t, err)
	// REX.WB movabs r11, imm64 (10 bytes) + REX.B jmp r11 (0xff /4, 3 bytes).
	require.Len(t, b, 13)
	require.Equal(t, byte(0x49), b[0])
	require.Equal(t, byte(0xbb), b[1])
}

func TestJITCompileCallAbsRaxScratchNoSpuriousRex(t *testing.T) {
	j := NewJIT(true)
	b, err := j.Compile(0x1000, []op.Operation{op.CallAbs(0x12345678, RAX.AsArch())})
	require.NoError(t, err)
	require.Equal(t, "48b87856341200000000ffd0", hex.EncodeToString(b))
}

func TestJITCompileIpRelX86Unsupported(t *testing.T) {
	j := NewJIT(false)
	_, err := j.Compile(0x1000, []op.Operation{op.CallIpRel(0x2000, nil)})
	require.Error(t, err)
}

func TestJITCompileMultiPushPop(t *testing.T) {
	j := NewJIT(true)
	regs := []arch.Register{RAX.AsArch(), RBX.AsArch(), RCX.AsArch()}

	b, err := j.Compile(0x1000, []op.Operation{op.MultiPush(regs)})
	require.NoError(t, err)
	require.Equal(t, []byte{0x50, 0x53, 0x51}, b) // push rax; push rbx; push rcx

	b, err = j.Compile(0x1000, []op.Operation{op.MultiPop(regs)})
	require.NoError(t, err)
	require.Equal(t, []byte{0x59, 0x5b, 0x58}, b) // pop rcx; pop rbx; pop rax (LIFO)
}
