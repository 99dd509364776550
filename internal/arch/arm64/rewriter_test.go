package arm64

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteCopiesNonPCRelativeInstructionsVerbatim(t *testing.T) {
	r := NewRewriter()
	code, err := EncodeMov(X1, X2)
	require.NoError(t, err)

	out, err := r.Rewrite(code, 0x1000, 0x9000, Register{})
	require.NoError(t, err)
	require.Equal(t, code, out)
}

func TestRewriteADRRecomputesInRangeDelta(t *testing.T) {
	r := NewRewriter()
	oldAddr, newAddr := uint64(0x1000), uint64(0x9000)
	code, err := EncodeADR(X0, 0x100)
	require.NoError(t, err)

	out, err := r.Rewrite(code, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	target := oldAddr + 0x100
	want, err := EncodeADR(X0, int64(target)-int64(newAddr))
	require.NoError(t, err)
	require.Equal(t, want, out)
}

func TestRewriteADRPRecomputesPageDelta(t *testing.T) {
	r := NewRewriter()
	oldAddr, newAddr := uint64(0x1000), uint64(0x80000000)
	code, err := EncodeADRP(X3, 0x4000)
	require.NoError(t, err)

	out, err := r.Rewrite(code, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	target := pageOf(oldAddr) + 0x4000
	want, err := EncodeADRP(X3, int64(pageOf(target))-int64(pageOf(newAddr)))
	require.NoError(t, err)
	require.Equal(t, want, out)
}

func TestRewriteADRPCollapsesToADRWhenNewDeltaFitsShortRange(t *testing.T) {
	r := NewRewriter()
	oldAddr, newAddr := uint64(0), uint64(4097)
	code, err := EncodeADRP(X0, 0x101000)
	require.NoError(t, err)

	out, err := r.Rewrite(code, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	require.Equal(t, "e0ff7f70", hex.EncodeToString(out))
}

func TestRewriteBCondInRangeKeepsShapeAndDelta(t *testing.T) {
	r := NewRewriter()
	oldAddr, newAddr := uint64(0x1000), uint64(0x9000)
	code, err := EncodeBCond(CondEQ, 0x40)
	require.NoError(t, err)

	out, err := r.Rewrite(code, oldAddr, newAddr, Register{})
	require.NoError(t, err)

	target := oldAddr + 0x40
	want, err := EncodeBCond(CondEQ, int64(target)-int64(newAddr))
	require.NoError(t, err)
	require.Equal(t, want, out)
}

func TestRewriteBranchBeyondShortRangeExpandsToLongForm(t *testing.T) {
	r := NewRewriter()
	oldAddr := uint64(0x1000)
	newAddr := uint64(0x1000) + (1 << 28) // far enough that +-128MiB no longer covers the original target
	target := oldAddr + 8

	code, err := EncodeBranch(false, int64(target)-int64(oldAddr))
	require.NoError(t, err)

	out, err := r.Rewrite(code, oldAddr, newAddr, X9)
	require.NoError(t, err)

	want := EncodeLoad64BitConst(int64(target), X9)
	want = append(want, EncodeBranchRegister(false, X9)...)
	require.Equal(t, want, out)
}

func TestRewriteBranchBeyondShortRangeNoScratchErrors(t *testing.T) {
	r := NewRewriter()
	oldAddr := uint64(0x1000)
	newAddr := uint64(0x1000) + (1 << 28)
	target := oldAddr + 8

	code, err := EncodeBranch(false, int64(target)-int64(oldAddr))
	require.NoError(t, err)

	_, err = r.Rewrite(code, oldAddr, newAddr, Register{})
	require.Error(t, err)
}

func TestRewriteInvalidLengthErrors(t *testing.T) {
	r := NewRewriter()
	_, err := r.Rewrite([]byte{0x00, 0x00, 0x00}, 0x1000, 0x9000, Register{})
	require.Error(t, err)
}
