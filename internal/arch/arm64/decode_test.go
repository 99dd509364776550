package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cranehook/hookjit/hookerr"
)

func TestDecodeInsufficientBytes(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00, 0x00}, 0x1000)
	require.Error(t, err)
	var insuf *hookerr.InsufficientBytes
	require.ErrorAs(t, err, &insuf)
}

func TestDecodeBranch(t *testing.T) {
	b, err := EncodeBranch(true, 0x100)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindBranch, inst.Kind)
	require.True(t, inst.Link)
	require.Equal(t, int64(0x100), inst.Delta)
}

func TestDecodeBCond(t *testing.T) {
	b, err := EncodeBCond(CondNE, -0x40)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindBCond, inst.Kind)
	require.Equal(t, CondNE, inst.Cond)
	require.Equal(t, int64(-0x40), inst.Delta)
}

func TestDecodeCBZ(t *testing.T) {
	b, err := EncodeCBZ(true, X3, 0x20)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindCBZ, inst.Kind)
	require.True(t, inst.Not)
	require.Equal(t, uint8(3), inst.Rd)
	require.Equal(t, int64(0x20), inst.Delta)
}

func TestDecodeTBZ(t *testing.T) {
	b, err := EncodeTBZ(false, X5, 40, 0x30)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindTBZ, inst.Kind)
	require.False(t, inst.Not)
	require.Equal(t, uint8(5), inst.Rd)
	require.Equal(t, uint8(40), inst.Bit)
	require.Equal(t, int64(0x30), inst.Delta)
}

func TestDecodeADR(t *testing.T) {
	b, err := EncodeADR(X7, -0x800)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindADR, inst.Kind)
	require.Equal(t, uint8(7), inst.Rd)
	require.Equal(t, int64(-0x800), inst.Delta)
}

func TestDecodeADRP(t *testing.T) {
	b, err := EncodeADRP(X2, 0x3000)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindADRP, inst.Kind)
	require.Equal(t, uint8(2), inst.Rd)
	require.Equal(t, int64(0x3000), inst.Delta)
}

func TestDecodeOtherForNonMatchingWord(t *testing.T) {
	b, err := EncodeMov(X1, X2)
	require.NoError(t, err)

	inst, err := Decode(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, KindOther, inst.Kind)
}
