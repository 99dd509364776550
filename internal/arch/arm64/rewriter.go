package arm64

import (
	"github.com/cranehook/hookjit/hookerr"
	"github.com/cranehook/hookjit/internal/arch"
)

const xClass = arch.ClassArm64X

// Rewriter relocates a run of AArch64 instructions from one address to
// another, fixing every PC-relative operand so the relocated copy behaves
// identically from its new home (spec.md §4.D).
//
// Strategy, per instruction kind:
//
//	ADR       re-encode as ADR if the new delta still fits ±1MiB, else
//	          expand to ADRP (+ADD for the low 12 bits) when the target page
//	          is within ±4GiB, else to a MOVZ/MOVK chain into the same
//	          destination register.
//	ADRP      same decision tree as ADR, applied to the page address the
//	          original ADRP computed: it collapses to a plain ADR when that
//	          address is within ±1MiB of the new location.
//	B/BL      re-encode with the recomputed delta if it still fits ±128MiB,
//	          else expand to a MOVZ/MOVK chain plus BR/BLR.
//	B.cond    re-encode in place if the target is still reachable within
//	          ±1MiB, else invert the condition and branch over a long-form
//	          unconditional jump to the target.
//	CBZ/CBNZ  same widening strategy as B.cond, range ±1MiB.
//	TBZ/TBNZ  same widening strategy, range ±32KiB.
//
// Instructions with no PC-relative content are copied byte for byte.
//
// Because expansion can grow an instruction's size, and a grown instruction
// shifts every internal branch target after it, Rewrite iterates a small
// fixed-point loop recomputing sizes until they stop changing (or gives up,
// which would only happen for pathological inputs far outside normal hook
// trampoline sizes).
type Rewriter struct{}

// NewRewriter returns an AArch64 Rewriter.
func NewRewriter() *Rewriter { return &Rewriter{} }

const maxRewritePasses = 8

type planItem struct {
	instr  Instruction
	oldOff int
	size   int
}

// Rewrite relocates code (a sequence of 4-byte-aligned AArch64 instructions)
// from oldAddr to newAddr. scratch is used only for instructions that must
// expand into a register-mediated long jump/call.
func (r *Rewriter) Rewrite(code []byte, oldAddr, newAddr uint64, scratch Register) ([]byte, error) {
	if len(code)%4 != 0 {
		return nil, &hookerr.InvalidOffset{Value: int64(len(code)), MustBeDivisibleBy: 4}
	}
	n := len(code) / 4
	items := make([]planItem, n)
	oldOffsetIndex := make(map[int]int, n)
	for i := 0; i < n; i++ {
		inst, err := Decode(code[i*4:], oldAddr+uint64(i*4))
		if err != nil {
			return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(i*4), NewLoc: newAddr, Inner: err}
		}
		items[i] = planItem{instr: inst, oldOff: i * 4, size: 4}
		oldOffsetIndex[i*4] = i
	}

	newOffsets := make([]int, n+1)
	recomputeOffsets := func() {
		off := 0
		for i := 0; i < n; i++ {
			newOffsets[i] = off
			off += items[i].size
		}
		newOffsets[n] = off
	}

	resolveTarget := func(instr Instruction, oldOff int) uint64 {
		oldInstrAddr := oldAddr + uint64(oldOff)
		if instr.Kind == KindADRP {
			oldInstrAddr = pageOf(oldInstrAddr)
		}
		raw := uint64(int64(oldInstrAddr) + instr.Delta)
		targetOff := int64(raw) - int64(oldAddr)
		if targetOff >= 0 && targetOff < int64(len(code)) {
			if idx, ok := oldOffsetIndex[int(targetOff)]; ok {
				return newAddr + uint64(newOffsets[idx])
			}
		}
		return raw
	}

	for pass := 0; pass < maxRewritePasses; pass++ {
		recomputeOffsets()
		changed := false
		for i := range items {
			it := &items[i]
			if it.instr.Kind == KindOther {
				continue
			}
			target := resolveTarget(it.instr, it.oldOff)
			newInstrAddr := newAddr + uint64(newOffsets[i])
			b, err := r.encode(it.instr, newInstrAddr, target, scratch)
			if err != nil {
				return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(it.oldOff), NewLoc: newInstrAddr, Inner: err}
			}
			if len(b) != it.size {
				it.size = len(b)
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
		it := items[i]
		if it.instr.Kind == KindOther {
			out = append(out, code[it.oldOff:it.oldOff+4]...)
			continue
		}
		target := resolveTarget(it.instr, it.oldOff)
		newInstrAddr := newAddr + uint64(newOffsets[i])
		b, err := r.encode(it.instr, newInstrAddr, target, scratch)
		if err != nil {
			return nil, &hookerr.RewriteError{Source: hookerr.SourceOriginalCode, OldLoc: oldAddr + uint64(it.oldOff), NewLoc: newInstrAddr, Inner: err}
		}
		out = append(out, b...)
	}
	return out, nil
}

func pageOf(a uint64) uint64 { return a &^ 0xfff }

func (r *Rewriter) encode(instr Instruction, newInstrAddr, target uint64, scratch Register) ([]byte, error) {
	switch instr.Kind {
	case KindADR:
		return r.encodeADR(instr, newInstrAddr, target)
	case KindADRP:
		// target is already page-aligned (it is itself the page address an
		// ADRP computed), so the same collapse-to-ADR-if-in-range logic
		// encodeADR uses for a relocated ADR applies unchanged here: test the
		// full byte delta against ADR's +-1MiB range before falling back to
		// ADRP+ADD.
		return r.encodeADR(instr, newInstrAddr, target)
	case KindBranch:
		return r.encodeBranch(instr, newInstrAddr, target, scratch)
	case KindBCond:
		return r.encodeBCond(instr, newInstrAddr, target, scratch)
	case KindCBZ:
		return r.encodeCBZ(instr, newInstrAddr, target, scratch)
	case KindTBZ:
		return r.encodeTBZ(instr, newInstrAddr, target, scratch)
	default:
		return nil, nil
	}
}

func (r *Rewriter) encodeADR(instr Instruction, newInstrAddr, target uint64) ([]byte, error) {
	rd := Register{index: instr.Rd, class: xClass}
	delta := int64(target) - int64(newInstrAddr)
	if delta >= -(1<<20) && delta < (1<<20) {
		return EncodeADR(rd, delta)
	}
	pageDelta := int64(pageOf(target)) - int64(pageOf(newInstrAddr))
	if pageDelta < -(1<<32) || pageDelta >= (1<<32) {
		return EncodeLoad64BitConst(int64(target), rd), nil
	}
	adrp, err := EncodeADRP(rd, pageDelta)
	if err != nil {
		return nil, err
	}
	low := uint32(target & 0xfff)
	if low == 0 {
		return adrp, nil
	}
	add, err := EncodeAddSubImmediate(false, rd, rd, low)
	if err != nil {
		return nil, err
	}
	return append(adrp, add...), nil
}

func (r *Rewriter) encodeBranch(instr Instruction, newInstrAddr, target uint64, scratch Register) ([]byte, error) {
	delta := int64(target) - int64(newInstrAddr)
	if delta >= -(1<<27) && delta < (1<<27) && delta%4 == 0 {
		return EncodeBranch(instr.Link, delta)
	}
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "relocated B/BL exceeding +-128MiB"}
	}
	b := EncodeLoad64BitConst(int64(target), scratch)
	return append(b, EncodeBranchRegister(instr.Link, scratch)...), nil
}

// longJump returns the bytes of an unconditional jump from jumpAddr to
// target, preferring a plain B and falling back to the register-mediated
// long form, for use as the "fall through" target of a widened conditional
// branch.
func longJump(jumpAddr, target uint64, scratch Register) ([]byte, error) {
	delta := int64(target) - int64(jumpAddr)
	if delta >= -(1<<27) && delta < (1<<27) && delta%4 == 0 {
		return EncodeBranch(false, delta)
	}
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "relocated conditional branch exceeding its short range"}
	}
	b := EncodeLoad64BitConst(int64(target), scratch)
	return append(b, EncodeBranchRegister(false, scratch)...), nil
}

func (r *Rewriter) encodeBCond(instr Instruction, newInstrAddr, target uint64, scratch Register) ([]byte, error) {
	delta := int64(target) - int64(newInstrAddr)
	if delta >= -(1<<20) && delta < (1<<20) {
		return EncodeBCond(instr.Cond, delta)
	}
	jump, err := longJump(newInstrAddr+4, target, scratch)
	if err != nil {
		return nil, err
	}
	head, err := EncodeBCond(instr.Cond.Invert(), int64(4+len(jump)))
	if err != nil {
		return nil, err
	}
	return append(head, jump...), nil
}

func (r *Rewriter) encodeCBZ(instr Instruction, newInstrAddr, target uint64, scratch Register) ([]byte, error) {
	rt := Register{index: instr.Rd, class: xClass}
	delta := int64(target) - int64(newInstrAddr)
	if delta >= -(1<<20) && delta < (1<<20) {
		return EncodeCBZ(instr.Not, rt, delta)
	}
	jump, err := longJump(newInstrAddr+4, target, scratch)
	if err != nil {
		return nil, err
	}
	head, err := EncodeCBZ(!instr.Not, rt, int64(4+len(jump)))
	if err != nil {
		return nil, err
	}
	return append(head, jump...), nil
}

func (r *Rewriter) encodeTBZ(instr Instruction, newInstrAddr, target uint64, scratch Register) ([]byte, error) {
	rt := Register{index: instr.Rd, class: xClass}
	delta := int64(target) - int64(newInstrAddr)
	if delta >= -(1<<15) && delta < (1<<15) {
		return EncodeTBZ(instr.Not, rt, instr.Bit, delta)
	}
	jump, err := longJump(newInstrAddr+4, target, scratch)
	if err != nil {
		return nil, err
	}
	head, err := EncodeTBZ(!instr.Not, rt, instr.Bit, int64(4+len(jump)))
	if err != nil {
		return nil, err
	}
	return append(head, jump...), nil
}
