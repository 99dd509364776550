package amd64

import (
	"encoding/binary"

	"golang.org/x/arch/x86/x86asm"

	"github.com/cranehook/hookjit/hookerr"
)

// Rewriter relocates a run of x86/x86-64 instructions from one address to
// another, fixing every PC-relative operand so the relocated copy behaves
// identically from its new home (spec.md §4.D). It decodes with x86asm (the
// same decoder the length oracle uses) rather than hand-rolling a second
// disassembler.
//
// Handling per instruction shape:
//
//	no Rel/RIP-Mem arg     copied byte for byte.
//	Jcc rel8 (0x70-0x7F)   promoted to the near Jcc rel32 form (0x0F8x);
//	                       x86 Jcc always has a near encoding, so no
//	                       branch-over synthesis is needed.
//	JMP rel8 (0xEB)        promoted to JMP rel32 (0xE9).
//	JMP/CALL rel32         re-encoded with the recomputed delta; on amd64,
//	                       if that delta no longer fits rel32 (target more
//	                       than ~2GiB away), expands to a scratch-mediated
//	                       absolute call/jump.
//	JECXZ/JCXZ/JRCXZ       has no near form at all; replaced with
//	                       `TEST reg,reg` + `JNE rel32`, always against the
//	                       32-bit counter register regardless of execution
//	                       mode (no opcode here ever carries a REX.W).
//	LOOP                   replaced with `DEC reg` + `JNZ rel32`: the branch
//	                       is taken under LOOP's own condition (count
//	                       non-zero after the decrement), but unlike LOOP,
//	                       DEC also updates the arithmetic flags other than CF.
//	LOOPE/LOOPNE           not supported: a faithful substitution would need
//	                       to preserve the incoming EFLAGS across the count
//	                       decrement, which DEC itself clobbers. Returns a
//	                       RewriteError; no known compiler emits these for
//	                       ordinary control flow.
//	RIP-relative Mem       the trailing disp32 is patched in place for the
//	                       common case (no additional trailing immediate);
//	                       otherwise returns a RewriteError.
type Rewriter struct {
	Is64 bool
}

// NewRewriter returns a Rewriter for amd64 (is64=true) or x86.
func NewRewriter(is64 bool) *Rewriter { return &Rewriter{Is64: is64} }

type relocItem struct {
	raw    []byte
	oldOff int
	inst   x86asm.Inst
	size   int
}

const maxRewritePasses = 8

// Rewrite relocates code from oldAddr to newAddr. scratch is used only when
// an absolute control transfer must be synthesized (amd64 targets outside
// rel32 reach).
func (r *Rewriter) Rewrite(code []byte, oldAddr, newAddr uint64, scratch Register) ([]byte, error) {
	mode := 32
	if r.Is64 {
		mode = 64
	}

	var items []relocItem
	oldOffsetIndex := map[int]int{}
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil || inst.Len == 0 {
			return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(off), NewLoc: newAddr, Inner: &hookerr.FailedToDisasm{Offset: uint64(off), RemainingBytes: len(code) - off}}
		}
		oldOffsetIndex[off] = len(items)
		items = append(items, relocItem{raw: code[off : off+inst.Len], oldOff: off, inst: inst, size: inst.Len})
		off += inst.Len
	}
	n := len(items)

	newOffsets := make([]int, n+1)
	recomputeOffsets := func() {
		o := 0
		for i := 0; i < n; i++ {
			newOffsets[i] = o
			o += items[i].size
		}
		newOffsets[n] = o
	}

	resolveTarget := func(it relocItem, rel int64, relEndOff int) uint64 {
		target := uint64(int64(oldAddr) + int64(relEndOff) + rel)
		targetOff := int64(target) - int64(oldAddr)
		if targetOff >= 0 && targetOff < int64(len(code)) {
			if idx, ok := oldOffsetIndex[int(targetOff)]; ok {
				return newAddr + uint64(newOffsets[idx])
			}
		}
		return target
	}

	for pass := 0; pass < maxRewritePasses; pass++ {
		recomputeOffsets()
		changed := false
		for i := range items {
			newInstrAddr := newAddr + uint64(newOffsets[i])
			b, err := r.encode(items[i], oldAddr, newInstrAddr, resolveTarget, scratch)
			if err != nil {
				return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(items[i].oldOff), NewLoc: newInstrAddr, Inner: err}
			}
			if len(b) != items[i].size {
				items[i].size = len(b)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	recomputeOffsets()
	out := make([]byte, 0, newOffsets[n])
	for i := range items {
		newInstrAddr := newAddr + uint64(newOffsets[i])
		b, err := r.encode(items[i], oldAddr, newInstrAddr, resolveTarget, scratch)
		if err != nil {
			return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(items[i].oldOff), NewLoc: newInstrAddr, Inner: err}
		}
		out = append(out, b...)
	}
	return out, nil
}

type targetResolver func(it relocItem, rel int64, relEndOff int) uint64

func (r *Rewriter) encode(it relocItem, oldAddr, newInstrAddr uint64, resolve targetResolver, scratch Register) ([]byte, error) {
	op := it.inst.Op

	if rel, ok := relArg(it.inst); ok {
		target := resolve(it, int64(rel), it.oldOff+it.inst.Len)
		return r.encodeRelBranch(op, it.raw[0], target, newInstrAddr, scratch)
	}

	if disp, width, ok := ripMemArg(it.inst); ok {
		if width == 0 {
			return nil, &hookerr.FailedToDisasm{Offset: uint64(it.oldOff), RemainingBytes: len(it.raw)}
		}
		target := resolve(it, int64(disp), it.oldOff+it.inst.Len)
		return r.patchRipDisp(it.raw, target, newInstrAddr, width)
	}

	out := make([]byte, len(it.raw))
	copy(out, it.raw)
	return out, nil
}

// relArg extracts the instruction's Rel argument, if any.
func relArg(inst x86asm.Inst) (x86asm.Rel, bool) {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if rel, ok := a.(x86asm.Rel); ok {
			return rel, true
		}
	}
	return 0, false
}

// ripMemArg extracts a RIP-relative memory argument's displacement and
// reports the trailing byte count it must occupy (4, matching disp32). ok is
// false if the instruction has no RIP-relative memory operand; width is 0
// when the operand comes with a trailing immediate, whose disp32 position
// this rewriter does not attempt to locate.
func ripMemArg(inst x86asm.Inst) (int64, int, bool) {
	var mem *x86asm.Mem
	haveImm := false
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		switch v := a.(type) {
		case x86asm.Mem:
			if v.Base == x86asm.RIP {
				m := v
				mem = &m
			}
		case x86asm.Imm:
			haveImm = true
		}
	}
	if mem == nil {
		return 0, 0, false
	}
	if haveImm {
		return int64(mem.Disp), 0, true
	}
	return int64(mem.Disp), 4, true
}

func (r *Rewriter) patchRipDisp(raw []byte, target, newInstrAddr uint64, width int) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	disp := int64(target) - int64(newInstrAddr+uint64(len(raw)))
	if disp < minInt32 || disp > maxInt32 {
		return nil, &hookerr.OperandOutOfRange{Instruction: "RIP-relative operand", Min: minInt32, Max: maxInt32, Value: disp}
	}
	binary.LittleEndian.PutUint32(out[len(out)-width:], uint32(int32(disp)))
	return out, nil
}

func (r *Rewriter) encodeRelBranch(op x86asm.Op, firstByte byte, target, newInstrAddr uint64, scratch Register) ([]byte, error) {
	switch op {
	case x86asm.JMP:
		delta := int64(target) - int64(newInstrAddr+5)
		if delta >= minInt32 && delta <= maxInt32 {
			return EncodeJumpRel(delta)
		}
		return r.absFallback(false, target, scratch)

	case x86asm.CALL:
		delta := int64(target) - int64(newInstrAddr+5)
		if delta >= minInt32 && delta <= maxInt32 {
			return EncodeCallRel(delta)
		}
		return r.absFallback(true, target, scratch)

	case x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		reg := countRegFor(firstByte)
		testBytes := encodeTestSelf(reg)
		jeAt := newInstrAddr + uint64(len(testBytes))
		delta := int64(target) - int64(jeAt+6)
		jcc, err := EncodeJccRel32(0x5, delta) // JNE/JNZ condition code
		if err != nil {
			return nil, err
		}
		return append(testBytes, jcc...), nil

	case x86asm.LOOP:
		reg := countRegFor(firstByte)
		dec := encodeDec(reg)
		jnzAt := newInstrAddr + uint64(len(dec))
		delta := int64(target) - int64(jnzAt+6)
		jcc, err := EncodeJccRel32(0x5, delta) // JNE/JNZ condition code
		if err != nil {
			return nil, err
		}
		return append(dec, jcc...), nil

	case x86asm.LOOPE, x86asm.LOOPNE:
		return nil, &hookerr.FailedToDisasm{Offset: 0, RemainingBytes: 0}

	default:
		// Jcc short or near: re-encode as the near rel32 form unconditionally;
		// x86 condition codes always have one.
		cc := jccCondition(firstByte, op)
		delta := int64(target) - int64(newInstrAddr+6)
		return EncodeJccRel32(cc, delta)
	}
}

func (r *Rewriter) absFallback(link bool, target uint64, scratch Register) ([]byte, error) {
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "relocated CALL/JMP exceeding rel32 reach"}
	}
	b := EncodeMovImm(scratch, target, r.Is64)
	if link {
		return append(b, EncodeCallReg(scratch, r.Is64)...), nil
	}
	return append(b, EncodeJumpReg(scratch, r.Is64)...), nil
}

// countRegFor returns the counter register used by the JCXZ/JECXZ/JRCXZ and
// LOOP rewrite substitutions: always the 32-bit form. These opcodes test
// their count via an address-size (0x67) prefix, never REX.W, so the
// synthesized TEST/DEC stays in ECX with no REX byte even when relocating
// 64-bit-mode code.
func countRegFor(firstByte byte) Register {
	return ECX
}

func encodeTestSelf(reg Register) []byte {
	var out []byte
	out = append(out, maybeRex(false, reg, reg)...)
	return append(out, 0x85, modrm(3, reg.index, reg.index))
}

func encodeDec(reg Register) []byte {
	var out []byte
	out = append(out, maybeRex(false, Register{}, reg)...)
	return append(out, 0xff, modrm(3, 1, reg.index))
}

// jccCondition maps a decoded short (0x70-0x7F) or near (0x0F 0x80-0x8F) Jcc
// opcode byte to its 4-bit condition code for re-encoding via
// EncodeJccRel32.
func jccCondition(firstByte byte, op x86asm.Op) byte {
	if firstByte >= 0x70 && firstByte <= 0x7f {
		return firstByte & 0xf
	}
	// Near form: the condition nibble is the low nibble of the second
	// opcode byte (0x0F 0x8X); x86asm doesn't expose it directly, so derive
	// it from the mnemonic's standard ordering, identical to the short
	// form's nibble assignment.
	return jccOpToCC(op)
}

func jccOpToCC(op x86asm.Op) byte {
	switch op {
	case x86asm.JO:
		return 0x0
	case x86asm.JNO:
		return 0x1
	case x86asm.JB:
		return 0x2
	case x86asm.JAE:
		return 0x3
	case x86asm.JE:
		return 0x4
	case x86asm.JNE:
		return 0x5
	case x86asm.JBE:
		return 0x6
	case x86asm.JA:
		return 0x7
	case x86asm.JS:
		return 0x8
	case x86asm.JNS:
		return 0x9
	case x86asm.JP:
		return 0xa
	case x86asm.JNP:
		return 0xb
	case x86asm.JL:
		return 0xc
	case x86asm.JGE:
		return 0xd
	case x86asm.JLE:
		return 0xe
	case x86asm.JG:
		return 0xf
	default:
		return 0
	}
}
