package amd64

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/cranehook/hookjit/hookerr"
)

// LengthOracle answers "how many whole instructions, starting at a given
// point, cover at least minBytes" for variable-length x86/x86-64 code, by
// decoding forward with x86asm until the accumulated length is sufficient
// (spec.md §4.C).
type LengthOracle struct {
	Is64 bool
}

// NewLengthOracle returns a LengthOracle for amd64 (is64=true) or x86.
func NewLengthOracle(is64 bool) *LengthOracle { return &LengthOracle{Is64: is64} }

// MinimumInstructionsToCover decodes code starting at its first byte and
// returns the total length, in bytes, of the smallest whole number of
// instructions whose combined length is >= minBytes.
func (l *LengthOracle) MinimumInstructionsToCover(code []byte, minBytes int) (int, error) {
	mode := 32
	if l.Is64 {
		mode = 64
	}
	total := 0
	for total < minBytes {
		if total >= len(code) {
			return 0, &hookerr.InsufficientBytes{Requested: minBytes, Available: len(code)}
		}
		inst, err := x86asm.Decode(code[total:], mode)
		if err != nil {
			return 0, &hookerr.FailedToDisasm{Offset: uint64(total), RemainingBytes: len(code) - total}
		}
		if inst.Len == 0 {
			return 0, &hookerr.FailedToDisasm{Offset: uint64(total), RemainingBytes: len(code) - total}
		}
		total += inst.Len
	}
	return total, nil
}
