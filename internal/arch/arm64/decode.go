package arm64

import (
	"encoding/binary"

	"github.com/cranehook/hookjit/hookerr"
)

// InstrKind classifies a decoded AArch64 instruction to the extent the
// rewriter and length oracle need: whether it carries a PC-relative operand,
// and which shape that operand has.
type InstrKind byte

const (
	KindOther InstrKind = iota
	KindADR
	KindADRP
	KindBranch    // B / BL, imm26
	KindBCond     // B.cond, imm19
	KindCBZ       // CBZ / CBNZ, imm19
	KindTBZ       // TBZ / TBNZ, imm14
)

// Instruction is a decoded 4-byte AArch64 instruction, carrying just enough
// to let the rewriter recompute and re-encode a PC-relative operand.
type Instruction struct {
	Raw  uint32
	Kind InstrKind

	// Rd/Rt is the destination/tested register field, when applicable.
	Rd uint8
	// Cond is the condition field for KindBCond.
	Cond Condition
	// Not distinguishes CBNZ/TBNZ from CBZ/TBZ.
	Not bool
	// Link distinguishes BL from B.
	Link bool
	// Bit is the tested bit number for KindTBZ.
	Bit uint8
	// Delta is the PC-relative displacement already sign-extended to bytes
	// (for ADRP this is the page delta, a multiple of 4096).
	Delta int64
}

// Len is always 4: every AArch64 instruction this module handles is fixed
// width.
func (i Instruction) Len() int { return 4 }

// Decode reads one 4-byte instruction from b at the given program counter.
func Decode(b []byte, pc uint64) (Instruction, error) {
	if len(b) < 4 {
		return Instruction{}, &hookerr.InsufficientBytes{Requested: 4, Available: len(b)}
	}
	word := binary.LittleEndian.Uint32(b[:4])
	inst := Instruction{Raw: word}

	switch {
	case word&0x1f000000 == 0x10000000 && word&0x9f000000 == 0x10000000:
		// ADR/ADRP: bits [28:24] = 10000, bit 31 selects ADRP.
		op := (word >> 31) & 1
		immlo := (word >> 29) & 0b11
		immhi := (word >> 5) & 0x7ffff
		raw := int32((immhi<<2)|immlo) << 11 >> 11 // sign-extend 21 bits
		inst.Rd = uint8(word & 0x1f)
		if op == 1 {
			inst.Kind = KindADRP
			inst.Delta = int64(raw) << 12
		} else {
			inst.Kind = KindADR
			inst.Delta = int64(raw)
		}

	case word&0x7c000000 == 0x14000000:
		inst.Kind = KindBranch
		inst.Link = (word>>31)&1 == 1
		imm26 := word & 0x3ffffff
		raw := int32(imm26<<6) >> 6
		inst.Delta = int64(raw) * 4

	case word&0xff000010 == 0x54000000:
		inst.Kind = KindBCond
		inst.Cond = Condition(word & 0xf)
		imm19 := (word >> 5) & 0x7ffff
		raw := int32(imm19<<13) >> 13
		inst.Delta = int64(raw) * 4

	case word&0x7e000000 == 0x34000000:
		inst.Kind = KindCBZ
		inst.Not = (word>>24)&1 == 1
		inst.Rd = uint8(word & 0x1f)
		imm19 := (word >> 5) & 0x7ffff
		raw := int32(imm19<<13) >> 13
		inst.Delta = int64(raw) * 4

	case word&0x7e000000 == 0x36000000:
		inst.Kind = KindTBZ
		inst.Not = (word>>24)&1 == 1
		inst.Rd = uint8(word & 0x1f)
		b5 := (word >> 31) & 1
		b40 := (word >> 19) & 0x1f
		inst.Bit = uint8(b5<<5 | b40)
		imm14 := (word >> 5) & 0x3fff
		raw := int32(imm14<<18) >> 18
		inst.Delta = int64(raw) * 4

	default:
		inst.Kind = KindOther
	}
	return inst, nil
}
