package amd64

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteCopiesNonPCRelativeInstructionsVerbatim(t *testing.T) {
	r := NewRewriter(true)
	// push rbp; mov rbp, rsp
	code := []byte{0x55, 0x48, 0x89, 0xe5}
	out, err := r.Rewrite(code, 0x1000, 0x9000, Register{})
	require.NoError(t, err)
	require.Equal(t, code, out)
}

func TestRewriteCallRelRecomputesExternalTarget(t *testing.T) {
	r := NewRewriter(true)
	oldAddr, newAddr := uint64(0x1000), uint64(0x9000)
	target := uint64(0x5000)

	orig, err := EncodeCallRel(int64(target) - int64(oldAddr+5))
	require.NoError(t, err)

	out, err := r.Rewrite(orig, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	want, err := EncodeCallRel(int64(target) - int64(newAddr+5))
	require.NoError(t, err)
	require.Equal(t, want, out)
}

func TestRewriteRipRelativeMemPatchesDisplacement(t *testing.T) {
	r := NewRewriter(true)
	oldAddr, newAddr := uint64(0x1000), uint64(0x9000)
	target := uint64(0x2000)

	// mov rax, [rip+disp32]
	disp := int32(int64(target) - int64(oldAddr+7))
	orig := make([]byte, 7)
	orig[0], orig[1], orig[2] = 0x48, 0x8b, 0x05
	binary.LittleEndian.PutUint32(orig[3:], uint32(disp))

	out, err := r.Rewrite(orig, oldAddr, newAddr, Register{})
	require.NoError(t, err)
	require.Len(t, out, 7)
	require.Equal(t, orig[:3], out[:3])

	gotDisp := int32(binary.LittleEndian.Uint32(out[3:]))
	wantDisp := int32(int64(target) - int64(newAddr+7))
	require.Equal(t, wantDisp, gotDisp)
}

func TestRewriteLoopExpandsToDecJnz(t *testing.T) {
	r := NewRewriter(true)
	oldAddr, newAddr := uint64(0x1000), uint64(0x9000)
	// LOOP rel8: loop back to the start of this same instruction.
	orig := []byte{0xe2, 0xfe}

	out, err := r.Rewrite(orig, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	dec := encodeDec(ECX)
	require.Equal(t, dec, out[:len(dec)])

	jnzAt := newAddr + uint64(len(dec))
	// target is the relocated instruction's own new address (self-loop).
	wantDelta := int64(newAddr) - int64(jnzAt+6)
	jcc, err := EncodeJccRel32(0x5, wantDelta)
	require.NoError(t, err)
	require.Equal(t, jcc, out[len(dec):])
}

func TestRewriteLoopeUnsupported(t *testing.T) {
	r := NewRewriter(true)
	// LOOPE rel8.
	orig := []byte{0xe1, 0xfe}
	_, err := r.Rewrite(orig, 0x1000, 0x9000, Register{})
	require.Error(t, err)
}

func TestRewriteJecxzExpandsToTestJneIn64BitModeWithNoRex(t *testing.T) {
	r := NewRewriter(true)
	oldAddr, newAddr := uint64(0x8000000), uint64(0)
	// jecxz .-4
	orig := []byte{0xe3, 0xfa}

	out, err := r.Rewrite(orig, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	require.Equal(t, "85c90f85f4ffff07", hex.EncodeToString(out))
}
