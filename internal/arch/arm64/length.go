package arm64

// LengthOracle answers "how many whole instructions, starting at a given
// point, cover at least minBytes" for AArch64. Because every AArch64
// instruction here is a fixed 4 bytes, this reduces to rounding up to the
// next multiple of 4 (spec.md §4.C's AArch64 special case).
type LengthOracle struct{}

// NewLengthOracle returns an AArch64 LengthOracle.
func NewLengthOracle() *LengthOracle { return &LengthOracle{} }

// MinimumInstructionsToCover returns the smallest byte count, >= minBytes,
// that lands on an instruction boundary.
func (LengthOracle) MinimumInstructionsToCover(minBytes int) int {
	if minBytes <= 0 {
		return 0
	}
	return ((minBytes + 3) / 4) * 4
}
