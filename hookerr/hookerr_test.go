package hookerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessagesMentionKeyFields(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []string
	}{
		{"OperandOutOfRange", &OperandOutOfRange{Instruction: "B", Min: -10, Max: 10, Value: 42}, []string{"B", "42", "-10", "10"}},
		{"InvalidOffset", &InvalidOffset{Value: 3, MustBeDivisibleBy: 4}, []string{"3", "4"}},
		{"InvalidRegister", &InvalidRegister{Register: "w0", Reason: "wrong class"}, []string{"w0", "wrong class"}},
		{"InvalidRegisterCombination", &InvalidRegisterCombination{R1: "rax", R2: "r8d", Reason: "size mismatch"}, []string{"rax", "r8d", "size mismatch"}},
		{"NoScratchRegister", &NoScratchRegister{Where: "JumpAbs"}, []string{"JumpAbs"}},
		{"FailedToDisasm", &FailedToDisasm{Offset: 0x10, RemainingBytes: 2}, []string{"0x10", "2"}},
		{"InsufficientBytes", &InsufficientBytes{Requested: 5, Available: 1}, []string{"5", "1"}},
		{"TooManyBytes", &TooManyBytes{Actual: 20, Max: 12}, []string{"20", "12"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg := c.err.Error()
			for _, want := range c.want {
				require.Contains(t, msg, want)
			}
		})
	}
}

func TestThirdPartyAssemblerErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &ThirdPartyAssemblerError{Message: "cross-check", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "cross-check")
}

func TestRewriteErrorUnwrapsAndFormats(t *testing.T) {
	inner := &InsufficientBytes{Requested: 4, Available: 1}
	err := &RewriteError{Source: SourceOriginalCode, OldLoc: 0x1000, NewLoc: 0x9000, Inner: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "original-code")
	require.Contains(t, err.Error(), "0x1000")
	require.Contains(t, err.Error(), "0x9000")
}

func TestRewriteSourceString(t *testing.T) {
	require.Equal(t, "original-code", SourceOriginalCode.String())
	require.Equal(t, "custom-code", SourceCustomCode.String())
	require.Equal(t, "hook-code-at-hook", SourceHookCodeAtHook.String())
	require.Equal(t, "orig-code-at-orig", SourceOrigCodeAtOrig.String())
	require.Equal(t, "unknown", SourceUnknown.String())
}
