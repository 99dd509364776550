package arm64

import (
	"encoding/binary"

	"github.com/cranehook/hookjit/hookerr"
	"github.com/cranehook/hookjit/internal/arch"
)

// Condition is an AArch64 condition code (EQ, NE, ...), used by B.cond and by
// the rewriter's "reverse condition" expansion (spec.md §4.D).
type Condition byte

const (
	CondEQ Condition = 0x0
	CondNE Condition = 0x1
	CondCS Condition = 0x2
	CondCC Condition = 0x3
	CondMI Condition = 0x4
	CondPL Condition = 0x5
	CondVS Condition = 0x6
	CondVC Condition = 0x7
	CondHI Condition = 0x8
	CondLS Condition = 0x9
	CondGE Condition = 0xA
	CondLT Condition = 0xB
	CondGT Condition = 0xC
	CondLE Condition = 0xD
	CondAL Condition = 0xE
)

// Invert returns the logical negation of cond, used when the rewriter flips
// a branch to jump over a long-form replacement (spec.md §4.D).
func (c Condition) Invert() Condition {
	// Condition codes are paired as (even, even+1) complements, except AL
	// which has no useful inverse and is not expected here.
	return c ^ 1
}

func put4(b []byte, w uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, w)
	return append(b, out...)
}

// EncodeNOP returns the canonical AArch64 NOP.
func EncodeNOP() []byte { return []byte{0x1f, 0x20, 0x03, 0xd5} }

// EncodeRet encodes RET {rn}, defaulting to X30 as the Go assembler does.
func EncodeRet(rn Register) []byte {
	word := uint32(0xd65f0000) | uint32(rn.index)<<5
	return put4(nil, word)
}

// EncodeMov encodes a register-to-register move as `ORR dst, XZR/WZR, src`,
// the idiom AArch64 uses in place of a dedicated MOV opcode for GPRs.
func EncodeMov(src, dst Register) ([]byte, error) {
	if src.Class() != dst.Class() {
		return nil, &hookerr.InvalidRegisterCombination{R1: src.String(), R2: dst.String(), Reason: "Mov requires matching register size/class"}
	}
	sf := uint32(0)
	zr := WZR
	if src.Class() == arch.ClassArm64X {
		sf = 1
		zr = XZR
	}
	word := (sf << 31) | (0b01 << 29) | (0b01010 << 24) | (uint32(src.index) << 16) | (uint32(zr.index) << 5) | uint32(dst.index)
	return put4(nil, word), nil
}

func movWord(variant uint32, v uint64, shiftNum uint8, rd Register) (uint32, error) {
	if shiftNum > 3 {
		return 0, &hookerr.OperandOutOfRange{Instruction: "MOV(Z|K|N)", Min: 0, Max: 3, Value: int64(shiftNum)}
	}
	sf := uint32(0)
	if rd.Class() == arch.ClassArm64X {
		sf = 1
	}
	return (sf << 31) | (variant << 29) | (0b100101 << 23) | (uint32(shiftNum) << 21) | (uint32(v&0xffff) << 5) | uint32(rd.index), nil
}

// EncodeMOVZ encodes `MOVZ rd, #v, LSL #(16*shiftNum)`.
func EncodeMOVZ(v uint64, shiftNum uint8, rd Register) ([]byte, error) {
	w, err := movWord(0b10, v, shiftNum, rd)
	if err != nil {
		return nil, err
	}
	return put4(nil, w), nil
}

// EncodeMOVK encodes `MOVK rd, #v, LSL #(16*shiftNum)`.
func EncodeMOVK(v uint64, shiftNum uint8, rd Register) ([]byte, error) {
	w, err := movWord(0b11, v, shiftNum, rd)
	if err != nil {
		return nil, err
	}
	return put4(nil, w), nil
}

// EncodeMOVN encodes `MOVN rd, #v, LSL #(16*shiftNum)`.
func EncodeMOVN(v uint64, shiftNum uint8, rd Register) ([]byte, error) {
	w, err := movWord(0b00, v, shiftNum, rd)
	if err != nil {
		return nil, err
	}
	return put4(nil, w), nil
}

// EncodeLoad64BitConst materializes an arbitrary 64-bit (or 32-bit, via rd's
// class) constant into rd using the fewest MOVZ/MOVN+MOVK instructions,
// following the same lane-counting strategy as the Go assembler.
func EncodeLoad64BitConst(c int64, rd Register) []byte {
	is32 := rd.Class() == arch.ClassArm64W
	lanes := 4
	if is32 {
		lanes = 2
	}
	bits := make([]uint64, lanes)
	zeros, negs := 0, 0
	for i := 0; i < lanes; i++ {
		bits[i] = uint64(c>>uint(i*16)) & 0xffff
		switch bits[i] {
		case 0:
			zeros++
		case 0xffff:
			negs++
		}
	}

	var out []byte
	switch {
	case zeros == lanes:
		b, _ := EncodeMOVZ(0, 0, rd)
		out = b
	case negs == lanes:
		b, _ := EncodeMOVN(0, 0, rd)
		out = b
	case zeros == lanes-1:
		for i, v := range bits {
			if v != 0 {
				b, _ := EncodeMOVZ(v, uint8(i), rd)
				out = append(out, b...)
			}
		}
		if len(out) == 0 {
			b, _ := EncodeMOVZ(0, 0, rd)
			out = b
		}
	case negs == lanes-1:
		for i, v := range bits {
			if v != 0xffff {
				b, _ := EncodeMOVN(^v&0xffff, uint8(i), rd)
				out = append(out, b...)
			}
		}
	default:
		movWritten := false
		useNeg := negs > zeros
		for i, v := range bits {
			skip := v == 0
			if useNeg {
				skip = v == 0xffff
			}
			if skip {
				continue
			}
			if !movWritten {
				if useNeg {
					b, _ := EncodeMOVN(^v&0xffff, uint8(i), rd)
					out = append(out, b...)
				} else {
					b, _ := EncodeMOVZ(v, uint8(i), rd)
					out = append(out, b...)
				}
				movWritten = true
			} else {
				b, _ := EncodeMOVK(v, uint8(i), rd)
				out = append(out, b...)
			}
		}
	}
	return out
}

// EncodeADR encodes `ADR rd, .+delta`. delta must fit the ±1MiB signed range.
func EncodeADR(rd Register, delta int64) ([]byte, error) {
	const limit = 1 << 20
	if delta < -limit || delta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "ADR", Min: -limit, Max: limit - 1, Value: delta}
	}
	immlo := uint32(delta) & 0b11
	immhi := (uint32(delta) >> 2) & 0x7ffff
	word := (0 << 31) | (immlo << 29) | (0b10000 << 24) | (immhi << 5) | uint32(rd.index)
	return put4(nil, word), nil
}

// EncodeADRP encodes `ADRP rd, .+pageDelta`. pageDelta must already be a
// 4096-aligned page delta within ±4GiB.
func EncodeADRP(rd Register, pageDelta int64) ([]byte, error) {
	const limit = int64(1) << 32
	if pageDelta%4096 != 0 {
		return nil, &hookerr.InvalidOffset{Value: pageDelta, MustBeDivisibleBy: 4096}
	}
	if pageDelta < -limit || pageDelta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "ADRP", Min: -limit, Max: limit - 1, Value: pageDelta}
	}
	d := pageDelta >> 12
	immlo := uint32(d) & 0b11
	immhi := (uint32(d) >> 2) & 0x7ffff
	word := (1 << 31) | (immlo << 29) | (0b10000 << 24) | (immhi << 5) | uint32(rd.index)
	return put4(nil, word), nil
}

// EncodeAddSubImmediate encodes ADD/SUB (immediate) rd, rn, #imm12. sub
// selects SUB over ADD; imm12 must fit 12 bits.
func EncodeAddSubImmediate(sub bool, rd, rn Register, imm12 uint32) ([]byte, error) {
	if imm12 > 0xfff {
		return nil, &hookerr.OperandOutOfRange{Instruction: "ADD/SUB(imm)", Min: 0, Max: 0xfff, Value: int64(imm12)}
	}
	sf := uint32(0)
	if rd.Class() == arch.ClassArm64X {
		sf = 1
	}
	op := uint32(0)
	if sub {
		op = 1
	}
	word := (sf << 31) | (op << 30) | (0b10001 << 24) | (imm12 << 10) | (uint32(rn.index) << 5) | uint32(rd.index)
	return put4(nil, word), nil
}

// StackAlloc implements spec.md §4.B.6: positive grows the stack in the
// native direction, which on AArch64 (stack grows down) is a SUB.
func EncodeStackAlloc(operand int32) ([]byte, error) {
	sub := operand >= 0
	imm := operand
	if !sub {
		imm = -imm
	}
	if imm < 0 || uint32(imm) > 0xfff {
		return nil, &hookerr.OperandOutOfRange{Instruction: "StackAlloc", Min: -0xfff, Max: 0xfff, Value: int64(operand)}
	}
	return EncodeAddSubImmediate(sub, SP, SP, uint32(imm))
}

func validateMemOffset(offset int64) error {
	if offset > 255 && offset%4 != 0 {
		return &hookerr.InvalidOffset{Value: offset, MustBeDivisibleBy: 4}
	}
	if offset < -256 {
		return &hookerr.OperandOutOfRange{Instruction: "load/store offset", Min: -256, Max: 1<<31 - 1, Value: offset}
	}
	return nil
}

// EncodeLoadStorePreIndexed encodes `STR rt,[rn,#imm]!` / `LDR rt,[rn,#imm]!`
// style pre-indexed accesses used by Push (store, writeback before access).
func EncodeLoadStorePreIndexed(load bool, rt, rn Register, imm9 int64) ([]byte, error) {
	return encodeLoadStoreIndexed(load, rt, rn, imm9, 0b11)
}

// EncodeLoadStorePostIndexed encodes the post-indexed form used by Pop.
func EncodeLoadStorePostIndexed(load bool, rt, rn Register, imm9 int64) ([]byte, error) {
	return encodeLoadStoreIndexed(load, rt, rn, imm9, 0b01)
}

func encodeLoadStoreIndexed(load bool, rt, rn Register, imm9 int64, idx uint32) ([]byte, error) {
	if imm9 < -256 || imm9 > 255 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "STR/LDR(indexed)", Min: -256, Max: 255, Value: imm9}
	}
	size, opc := sizeOpcFor(rt, load)
	word := (size << 30) | (0b111 << 27) | (opc << 22) | ((uint32(imm9) & 0x1ff) << 12) | (idx << 10) | (uint32(rn.index) << 5) | uint32(rt.index)
	return put4(nil, word), nil
}

func sizeOpcFor(rt Register, load bool) (size, opc uint32) {
	size = 0b11
	if rt.Class() == arch.ClassArm64W {
		size = 0b10
	}
	if load {
		opc = 0b01
	}
	return
}

// EncodeLoadStoreUnsignedOffset encodes `STR/LDR rt, [rn, #imm]` (scaled,
// unsigned, no writeback), used by MovFromStack/MovToStack.
func EncodeLoadStoreUnsignedOffset(load bool, rt, rn Register, offset int64) ([]byte, error) {
	if err := validateMemOffset(offset); err != nil {
		return nil, err
	}
	datasize := int64(8)
	if rt.Class() == arch.ClassArm64W {
		datasize = 4
	}
	if offset < 0 || offset%datasize != 0 {
		return nil, &hookerr.InvalidOffset{Value: offset, MustBeDivisibleBy: datasize}
	}
	imm12 := offset / datasize
	if imm12 > 0xfff {
		return nil, &hookerr.OperandOutOfRange{Instruction: "STR/LDR(unsigned offset)", Min: 0, Max: 0xfff, Value: imm12}
	}
	size, opc := sizeOpcFor(rt, load)
	word := (size << 30) | (0b111 << 27) | (0b01 << 24) | (opc << 22) | (uint32(imm12) << 10) | (uint32(rn.index) << 5) | uint32(rt.index)
	return put4(nil, word), nil
}

// EncodeStorePairPreIndexed/EncodeLoadPairPostIndexed implement the STP/LDP
// coalescing spec.md §4.B.4 calls for when lowering MultiPush/MultiPop.
func EncodeStorePairPreIndexed(rt, rt2, rn Register, imm7 int64) ([]byte, error) {
	return encodePair(false, rt, rt2, rn, imm7, 0b011)
}

func EncodeLoadPairPostIndexed(rt, rt2, rn Register, imm7 int64) ([]byte, error) {
	return encodePair(true, rt, rt2, rn, imm7, 0b001)
}

func encodePair(load bool, rt, rt2, rn Register, imm7 int64, addrMode uint32) ([]byte, error) {
	datasize := int64(8)
	opc := uint32(0b10)
	if rt.Class() == arch.ClassArm64W {
		datasize = 4
		opc = 0b00
	}
	if imm7%datasize != 0 {
		return nil, &hookerr.InvalidOffset{Value: imm7, MustBeDivisibleBy: datasize}
	}
	scaled := imm7 / datasize
	if scaled < -64 || scaled > 63 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "STP/LDP", Min: -64, Max: 63, Value: scaled}
	}
	l := uint32(0)
	if load {
		l = 1
	}
	word := (opc << 30) | (0b101 << 27) | (addrMode << 23) | (l << 22) | ((uint32(scaled) & 0x7f) << 15) |
		(uint32(rt2.index) << 10) | (uint32(rn.index) << 5) | uint32(rt.index)
	return put4(nil, word), nil
}

// EncodeBranch encodes B (link=false) or BL (link=true) with a delta
// relative to the instruction's own address. delta must be a multiple of 4
// within ±128MiB (spec.md §3 invariants).
func EncodeBranch(link bool, delta int64) ([]byte, error) {
	const limit = 1 << 27
	if delta%4 != 0 {
		return nil, &hookerr.InvalidOffset{Value: delta, MustBeDivisibleBy: 4}
	}
	if delta < -limit || delta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "B/BL", Min: -limit, Max: limit - 1, Value: delta}
	}
	imm26 := (uint32(delta) >> 2) & 0x3ffffff
	op := uint32(0)
	if link {
		op = 1
	}
	word := (op << 31) | (0b00101 << 26) | imm26
	return put4(nil, word), nil
}

// EncodeBranchRegister encodes BR (link=false) or BLR (link=true).
func EncodeBranchRegister(link bool, rn Register) []byte {
	base := uint32(0xd61f0000)
	if link {
		base = 0xd63f0000
	}
	word := base | uint32(rn.index)<<5
	return put4(nil, word)
}

// EncodeBCond encodes `B.cond .+delta`. delta must be a multiple of 4 within
// ±1MiB.
func EncodeBCond(cond Condition, delta int64) ([]byte, error) {
	const limit = 1 << 20
	if delta%4 != 0 {
		return nil, &hookerr.InvalidOffset{Value: delta, MustBeDivisibleBy: 4}
	}
	if delta < -limit || delta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "B.cond", Min: -limit, Max: limit - 1, Value: delta}
	}
	imm19 := (uint32(delta) >> 2) & 0x7ffff
	word := (0b01010100 << 24) | (imm19 << 5) | uint32(cond)
	return put4(nil, word), nil
}

// EncodeCBZ encodes CBZ (not=false) / CBNZ (not=true). delta must be a
// multiple of 4 within ±1MiB.
func EncodeCBZ(not bool, rt Register, delta int64) ([]byte, error) {
	const limit = 1 << 20
	if delta%4 != 0 {
		return nil, &hookerr.InvalidOffset{Value: delta, MustBeDivisibleBy: 4}
	}
	if delta < -limit || delta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "CBZ/CBNZ", Min: -limit, Max: limit - 1, Value: delta}
	}
	sf := uint32(0)
	if rt.Class() == arch.ClassArm64X {
		sf = 1
	}
	op := uint32(0)
	if not {
		op = 1
	}
	imm19 := (uint32(delta) >> 2) & 0x7ffff
	word := (sf << 31) | (0b011010 << 25) | (op << 24) | (imm19 << 5) | uint32(rt.index)
	return put4(nil, word), nil
}

// EncodeTBZ encodes TBZ (not=false) / TBNZ (not=true) testing bit `bit` of
// rt. delta must be a multiple of 4 within ±32KiB.
func EncodeTBZ(not bool, rt Register, bit uint8, delta int64) ([]byte, error) {
	const limit = 1 << 15
	if bit > 63 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "TBZ/TBNZ bit", Min: 0, Max: 63, Value: int64(bit)}
	}
	if delta%4 != 0 {
		return nil, &hookerr.InvalidOffset{Value: delta, MustBeDivisibleBy: 4}
	}
	if delta < -limit || delta >= limit {
		return nil, &hookerr.OperandOutOfRange{Instruction: "TBZ/TBNZ", Min: -limit, Max: limit - 1, Value: delta}
	}
	b5 := uint32(bit>>5) & 1
	b40 := uint32(bit) & 0x1f
	op := uint32(0)
	if not {
		op = 1
	}
	imm14 := (uint32(delta) >> 2) & 0x3fff
	word := (b5 << 31) | (0b011011 << 25) | (op << 24) | (b40 << 19) | (imm14 << 5) | uint32(rt.index)
	return put4(nil, word), nil
}

// ScratchSequenceLen returns how many bytes EncodeLoad64BitConst will need
// to materialize c into a register of the given class; callers use this to
// size the rewriter's worst-case expansion budget (spec.md §4.D, "AArch64:
// 5x for ADR->MOVZ/K chain").
func ScratchSequenceLen(c int64, class arch.RegisterClass) int {
	r := Register{index: 0, class: class}
	return len(EncodeLoad64BitConst(c, r))
}
