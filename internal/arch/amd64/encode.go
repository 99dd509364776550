package amd64

import (
	"encoding/binary"

	"github.com/cranehook/hookjit/hookerr"
)

const (
	rexBase = 0x40
	rexW    = 0x08
	rexR    = 0x04
	rexX    = 0x02
	rexB    = 0x01
)

// maybeRex returns the REX prefix byte(s) needed for this instruction, or
// nil if none are required. w forces REX.W (64-bit operand size); reg/rm
// carry the REX.R/REX.B extension bits for registers R8-R15.
func maybeRex(w bool, reg, rm Register) []byte {
	b := byte(0)
	if w {
		b |= rexW
	}
	if reg.NeedsREX() {
		b |= rexR
	}
	if rm.NeedsREX() {
		b |= rexB
	}
	if b == 0 {
		return nil
	}
	return []byte{rexBase | b}
}

func modrm(mod, reg, rm uint8) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

// EncodeMov encodes `MOV dst, src` (register to register) as opcode 0x89 /r
// (MOV r/m, r): the teacher's amd64 package calls this the "store" form.
func EncodeMov(src, dst Register, is64 bool) ([]byte, error) {
	if src.Class() != dst.Class() {
		return nil, &hookerr.InvalidRegisterCombination{R1: src.String(), R2: dst.String(), Reason: "Mov requires matching register width"}
	}
	var out []byte
	out = append(out, maybeRex(is64, src, dst)...)
	out = append(out, 0x89, modrm(3, src.index, dst.index))
	return out, nil
}

// EncodeXChg encodes `XCHG r1, r2` as opcode 0x87 /r.
func EncodeXChg(r1, r2 Register, is64 bool) ([]byte, error) {
	if r1.Class() != r2.Class() {
		return nil, &hookerr.InvalidRegisterCombination{R1: r1.String(), R2: r2.String(), Reason: "XChg requires matching register width"}
	}
	var out []byte
	out = append(out, maybeRex(is64, r2, r1)...)
	out = append(out, 0x87, modrm(3, r2.index, r1.index))
	return out, nil
}

// EncodePush encodes `PUSH reg` as opcode 0x50+rd.
func EncodePush(reg Register) []byte {
	var out []byte
	if reg.NeedsREX() {
		out = append(out, rexBase|rexB)
	}
	return append(out, 0x50+(reg.index&7))
}

// EncodePop encodes `POP reg` as opcode 0x58+rd.
func EncodePop(reg Register) []byte {
	var out []byte
	if reg.NeedsREX() {
		out = append(out, rexBase|rexB)
	}
	return append(out, 0x58+(reg.index&7))
}

// stackBaseSIB returns the SIB byte selecting a bare [base] addressing mode
// with no index, used whenever the base register is SP/R12 (whose ModRM.rm
// encoding of 100 always means "SIB follows", never "register direct").
func stackBaseSIB(base Register) byte {
	return (0 << 6) | (0b100 << 3) | (base.index & 7)
}

// encodeMemOp encodes `opcode reg, [base+disp32]` or, with the store
// direction's opcode, `opcode [base+disp32], reg`. base is always accessed
// through a SIB byte since this module only ever addresses off SP.
func encodeMemOp(opcode byte, reg, base Register, disp int32, is64 bool) []byte {
	var out []byte
	out = append(out, maybeRex(is64, reg, base)...)
	out = append(out, opcode, modrm(0b10, reg.index, 0b100), stackBaseSIB(base))
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, uint32(disp))
	return append(out, d...)
}

// EncodeMovFromStack encodes `MOV tgt, [sp+offset]` (opcode 0x8B /r).
func EncodeMovFromStack(tgt, sp Register, offset int64, is64 bool) ([]byte, error) {
	if offset < minInt32 || offset > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "MovFromStack", Min: minInt32, Max: maxInt32, Value: offset}
	}
	return encodeMemOp(0x8b, tgt, sp, int32(offset), is64), nil
}

// EncodeMovToStack encodes `MOV [sp+offset], reg` (opcode 0x89 /r).
func EncodeMovToStack(reg, sp Register, offset int64, is64 bool) ([]byte, error) {
	if offset < minInt32 || offset > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "MovToStack", Min: minInt32, Max: maxInt32, Value: offset}
	}
	return encodeMemOp(0x89, reg, sp, int32(offset), is64), nil
}

// EncodePushFromStack encodes `PUSH [sp+offset]` (opcode 0xFF /6), used for
// PushStack; x86/amd64, unlike AArch64, can push straight from memory with
// no scratch register.
func EncodePushFromStack(sp Register, offset int64) ([]byte, error) {
	if offset < minInt32 || offset > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "PushStack", Min: minInt32, Max: maxInt32, Value: offset}
	}
	var out []byte
	out = append(out, modrmOpExt(0b10, 6, sp, offset)...)
	return out, nil
}

func modrmOpExt(mod, ext uint8, base Register, disp int64) []byte {
	var out []byte
	if base.NeedsREX() {
		out = append(out, rexBase|rexB)
	}
	out = append(out, 0xff, modrm(mod, ext, 0b100), stackBaseSIB(base))
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, uint32(int32(disp)))
	return append(out, d...)
}

const minInt32 = -(1 << 31)
const maxInt32 = (1 << 31) - 1

// EncodeStackAlloc encodes the stack-pointer adjustment for StackAlloc:
// positive grows the allocation (SUB sp, imm), negative shrinks it back
// (ADD sp, imm). Uses the imm8 form (opcode 0x83) when it fits, else the
// imm32 form (0x81).
func EncodeStackAlloc(sp Register, operand int32, is64 bool) []byte {
	ext := uint8(5) // SUB
	imm := operand
	if imm < 0 {
		ext = 0 // ADD
		imm = -imm
	}
	var out []byte
	out = append(out, maybeRex(is64, Register{}, sp)...)
	if imm >= -128 && imm <= 127 {
		out = append(out, 0x83, modrm(3, ext, sp.index), byte(int8(imm)))
		return out
	}
	out = append(out, 0x81, modrm(3, ext, sp.index))
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, uint32(imm))
	return append(out, d...)
}

// EncodeMovImm encodes `MOV reg, imm` (opcode 0xB8+rd), imm32 for 32-bit mode
// or imm64 ("movabs") when is64 is set.
func EncodeMovImm(reg Register, value uint64, is64 bool) []byte {
	var out []byte
	out = append(out, maybeRex(is64, Register{}, reg)...)
	out = append(out, 0xb8+(reg.index&7))
	width := 4
	if is64 {
		width = 8
	}
	d := make([]byte, width)
	if is64 {
		binary.LittleEndian.PutUint64(d, value)
	} else {
		binary.LittleEndian.PutUint32(d, uint32(value))
	}
	return append(out, d...)
}

// EncodeCallReg / EncodeJumpReg encode `CALL r/m` (0xFF /2) and `JMP r/m`
// (0xFF /4) through a register. is64 is accepted for symmetry with the
// other Encode* helpers but unused: CALL/JMP r/m64 implicitly operates at
// 64-bit width in long mode, so no REX.W is ever needed here, only REX.R/B
// for an extended register.
func EncodeCallReg(reg Register, is64 bool) []byte {
	var out []byte
	out = append(out, maybeRex(false, Register{}, reg)...)
	return append(out, 0xff, modrm(3, 2, reg.index))
}

func EncodeJumpReg(reg Register, is64 bool) []byte {
	var out []byte
	out = append(out, maybeRex(false, Register{}, reg)...)
	return append(out, 0xff, modrm(3, 4, reg.index))
}

// EncodeJumpAbsMem / EncodeCallAbsMem encode `JMP [ptr]` / `CALL [ptr]` as an
// absolute (not RIP-relative) indirect control transfer through a fixed
// memory cell holding the real destination, used by JumpAbsInd. ModRM
// mod=00,rm=100 (SIB follows) with SIB base=101 means "no base register,
// disp32 only" - this addressing mode exists in both 32- and 64-bit modes,
// but on amd64 it can only reach a cell within the low 4GiB of address
// space, so callers fall back to a scratch-register-mediated load+jump when
// ptr doesn't fit.
func EncodeJumpAbsMem(ptr uint64) ([]byte, error) { return absMem(4, ptr) }

func EncodeCallAbsMem(ptr uint64) ([]byte, error) { return absMem(2, ptr) }

func absMem(regExt uint8, ptr uint64) ([]byte, error) {
	if ptr > 0xffffffff {
		return nil, &hookerr.OperandOutOfRange{Instruction: "CALL/JMP [disp32]", Min: 0, Max: 0xffffffff, Value: int64(ptr)}
	}
	out := []byte{0xff, modrm(0, regExt, 0b100), 0x25}
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, uint32(ptr))
	return append(out, d...), nil
}

// EncodeJumpRipMem / EncodeCallRipMem encode `JMP [rip+disp32]` /
// `CALL [rip+disp32]` (ModRM.rm=101 directly, no SIB) - the mechanism
// CallIpRel/JumpIpRel use to reach a pointer cell colocated near the branch
// regardless of where the buffer allocator placed it, without needing a
// scratch register. instrEndAddr is the address immediately following the
// encoded instruction (6 bytes after its start), against which disp32 is
// computed. amd64 only: x86 has no RIP-relative addressing.
func EncodeJumpRipMem(instrEndAddr, ptr uint64) ([]byte, error) {
	return ripMem(4, instrEndAddr, ptr)
}

func EncodeCallRipMem(instrEndAddr, ptr uint64) ([]byte, error) {
	return ripMem(2, instrEndAddr, ptr)
}

func ripMem(regExt uint8, instrEndAddr, ptr uint64) ([]byte, error) {
	disp := int64(ptr) - int64(instrEndAddr)
	if disp < minInt32 || disp > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "CALL/JMP [rip+disp32]", Min: minInt32, Max: maxInt32, Value: disp}
	}
	out := []byte{0xff, modrm(0, regExt, 0b101)}
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, uint32(int32(disp)))
	return append(out, d...), nil
}

// EncodeRet encodes `RET` (no operand) or `RET imm16` when offset != 0.
func EncodeRet(offset int64) ([]byte, error) {
	if offset == 0 {
		return []byte{0xc3}, nil
	}
	if offset < 0 || offset > 0xffff {
		return nil, &hookerr.OperandOutOfRange{Instruction: "RET imm16", Min: 0, Max: 0xffff, Value: offset}
	}
	return []byte{0xc2, byte(offset), byte(offset >> 8)}, nil
}

// EncodeCallRel / EncodeJumpRel encode `CALL rel32` (0xE8) / `JMP rel32`
// (0xE9). delta is measured from the end of the encoded instruction, the
// convention the ISA itself uses for rel32 branches.
func EncodeCallRel(delta int64) ([]byte, error) {
	return relJump(0xe8, delta)
}

func EncodeJumpRel(delta int64) ([]byte, error) {
	return relJump(0xe9, delta)
}

func relJump(opcode byte, delta int64) ([]byte, error) {
	if delta < minInt32 || delta > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "CALL/JMP rel32", Min: minInt32, Max: maxInt32, Value: delta}
	}
	out := []byte{opcode, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], uint32(int32(delta)))
	return out, nil
}

// EncodeJccRel32 encodes the near `Jcc rel32` form (0x0F 0x80+cc). The
// rewriter re-encodes every relocated Jcc, short or near, in this form; the
// package has no rel8 encoders, and the JIT always emits rel32 branches.
func EncodeJccRel32(cc byte, delta int64) ([]byte, error) {
	if delta < minInt32 || delta > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "Jcc rel32", Min: minInt32, Max: maxInt32, Value: delta}
	}
	out := []byte{0x0f, 0x80 | (cc & 0xf), 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[2:], uint32(int32(delta)))
	return out, nil
}
