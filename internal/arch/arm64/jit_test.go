package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/internal/arch/op"
)

func TestJITCompileMov(t *testing.T) {
	j := NewJIT()
	out, err := j.Compile(0x1000, []op.Operation{op.Mov(X1, X2)})
	require.NoError(t, err)
	require.Equal(t, []byte{0xe2, 0x03, 0x01, 0xaa}, out)
}

func TestJITCompileReturn(t *testing.T) {
	j := NewJIT()
	out, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindReturn}})
	require.NoError(t, err)
	require.Equal(t, EncodeRet(X30), out)
}

func TestJITCompileJumpRel(t *testing.T) {
	j := NewJIT()
	out, err := j.Compile(0x1000, []op.Operation{op.JumpRel(0x1010)})
	require.NoError(t, err)
	require.Equal(t, []byte{0x04, 0x00, 0x00, 0x14}, out)
}

func TestJITCompileCallAbsWithScratch(t *testing.T) {
	j := NewJIT()
	out, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindCallAbs, Target: 5, Scratch: X9}})
	require.NoError(t, err)

	want := EncodeLoad64BitConst(5, X9)
	want = append(want, EncodeBranchRegister(true, X9)...)
	require.Equal(t, want, out)
}

func TestJITCompileJumpAbsNoScratch(t *testing.T) {
	j := NewJIT()
	_, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindJumpAbs, Target: 5}})
	require.Error(t, err)
}

func TestJITCompileMultiPushPopRoundTrips(t *testing.T) {
	j := NewJIT()
	regs := []arch.Register{X0, X1, X2}

	pushed, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindMultiPush, Regs: regs}})
	require.NoError(t, err)

	stp, err := EncodeStorePairPreIndexed(X0, X1, SP, -16)
	require.NoError(t, err)
	push, err := EncodeLoadStorePreIndexed(false, X2, SP, -8)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, stp...), push...), pushed)

	popped, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindMultiPop, Regs: regs}})
	require.NoError(t, err)

	pop, err := EncodeLoadStorePostIndexed(true, X2, SP, 8)
	require.NoError(t, err)
	ldp, err := EncodeLoadPairPostIndexed(X0, X1, SP, 16)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, pop...), ldp...), popped)
}

func TestJITCompilePushConstRequiresScratch(t *testing.T) {
	j := NewJIT()
	_, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindPushConst, Value: 7}})
	require.Error(t, err)
}

func TestJITCompileXChg(t *testing.T) {
	j := NewJIT()
	out, err := j.Compile(0x1000, []op.Operation{{Kind: op.KindXChg, Reg: X0, Reg2: X1, Scratch: X9}})
	require.NoError(t, err)

	var want []byte
	mv, _ := EncodeMov(X0, X9)
	want = append(want, mv...)
	mv, _ = EncodeMov(X1, X0)
	want = append(want, mv...)
	mv, _ = EncodeMov(X9, X1)
	want = append(want, mv...)
	require.Equal(t, want, out)
}
