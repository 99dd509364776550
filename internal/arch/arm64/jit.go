package arm64

import (
	"github.com/cranehook/hookjit/hookerr"
	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/internal/arch/op"
)

// JIT compiles the architecture-neutral operation IR to AArch64 machine
// code. It holds no state between calls; one value can be reused across
// goroutines.
type JIT struct{}

// NewJIT returns an AArch64 op.Compiler.
func NewJIT() *JIT { return &JIT{} }

var _ op.Compiler = (*JIT)(nil)

// Compile implements op.Compiler.
func (j *JIT) Compile(address uint64, ops []op.Operation) ([]byte, error) {
	var buf []byte
	if err := j.CompileWithBuf(address, ops, &buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CompileWithBuf implements op.Compiler.
func (j *JIT) CompileWithBuf(address uint64, ops []op.Operation, buf *[]byte) error {
	pc := address + uint64(len(*buf))
	for _, o := range ops {
		b, err := j.compileOne(pc, o)
		if err != nil {
			return err
		}
		*buf = append(*buf, b...)
		pc += uint64(len(b))
	}
	return nil
}

func reg(a arch.Register) Register {
	if r, ok := a.(Register); ok {
		return r
	}
	return Register{}
}

func (j *JIT) compileOne(pc uint64, o op.Operation) ([]byte, error) {
	switch o.Kind {
	case op.KindMov:
		return EncodeMov(reg(o.Src), reg(o.Tgt))

	case op.KindMovFromStack:
		return EncodeLoadStoreUnsignedOffset(true, reg(o.Tgt), SP, o.Offset)

	case op.KindMovToStack:
		return EncodeLoadStoreUnsignedOffset(false, reg(o.Reg), SP, o.Offset)

	case op.KindPush:
		return EncodeLoadStorePreIndexed(false, reg(o.Reg), SP, -int64(reg(o.Reg).Size()))

	case op.KindPop:
		return EncodeLoadStorePostIndexed(true, reg(o.Reg), SP, int64(reg(o.Reg).Size()))

	case op.KindPushStack:
		// Not lowered here: AArch64 has no memory-to-memory move, so a
		// PushStack would need a register; this always returns an error.
		return nil, &hookerr.NoScratchRegister{Where: "PushStack requires caller to split into MovFromStack+Push"}

	case op.KindPushConst:
		scratch := reg(o.Scratch)
		if (scratch == Register{}) {
			return nil, &hookerr.NoScratchRegister{Where: "PushConst"}
		}
		var b []byte
		b = append(b, EncodeLoad64BitConst(int64(o.Value), scratch)...)
		push, err := EncodeLoadStorePreIndexed(false, scratch, SP, -int64(scratch.Size()))
		if err != nil {
			return nil, err
		}
		return append(b, push...), nil

	case op.KindStackAlloc:
		return EncodeStackAlloc(o.Operand)

	case op.KindXChg:
		return j.compileXChg(o)

	case op.KindCallAbs:
		return j.compileAbs(true, o.Target, reg(o.Scratch))

	case op.KindJumpAbs:
		return j.compileAbs(false, o.Target, reg(o.Scratch))

	case op.KindCallRel:
		return EncodeBranch(true, int64(o.Target)-int64(pc))

	case op.KindJumpRel:
		return EncodeBranch(false, int64(o.Target)-int64(pc))

	case op.KindJumpAbsInd:
		return j.compileAbsInd(false, o.Target, reg(o.Scratch))

	case op.KindCallIpRel:
		return j.compileIpRel(true, pc, o.Target, reg(o.Scratch))

	case op.KindJumpIpRel:
		return j.compileIpRel(false, pc, o.Target, reg(o.Scratch))

	case op.KindReturn:
		if o.Offset == 0 {
			return EncodeRet(X30), nil
		}
		if o.Offset < 0 || o.Offset > 0xfff {
			return nil, &hookerr.OperandOutOfRange{Instruction: "Return offset", Min: 0, Max: 0xfff, Value: o.Offset}
		}
		add, err := EncodeAddSubImmediate(false, SP, SP, uint32(o.Offset))
		if err != nil {
			return nil, err
		}
		return append(add, EncodeRet(X30)...), nil

	case op.KindMultiPush:
		return j.compileMultiPush(o.Regs)

	case op.KindMultiPop:
		return j.compileMultiPop(o.Regs)

	default:
		return nil, &hookerr.InvalidRegister{Register: "", Reason: "unsupported operation kind: " + o.Kind.String()}
	}
}

// compileAbs materializes target into scratch then branches/calls through
// it, the only way AArch64 reaches an arbitrary 64-bit address (spec.md
// §4.B.7-8).
func (j *JIT) compileAbs(link bool, target uint64, scratch Register) ([]byte, error) {
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "CallAbs/JumpAbs"}
	}
	b := EncodeLoad64BitConst(int64(target), scratch)
	return append(b, EncodeBranchRegister(link, scratch)...), nil
}

// compileAbsInd loads the pointer stored AT the address `ptr` into scratch,
// then jumps through it (spec.md's JumpAbsInd: "target" holds the address of
// a memory cell containing the real destination).
func (j *JIT) compileAbsInd(link bool, ptr uint64, scratch Register) ([]byte, error) {
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "JumpAbsInd"}
	}
	b := EncodeLoad64BitConst(int64(ptr), scratch)
	ldr, err := EncodeLoadStoreUnsignedOffset(true, scratch, scratch, 0)
	if err != nil {
		return nil, err
	}
	b = append(b, ldr...)
	return append(b, EncodeBranchRegister(link, scratch)...), nil
}

// compileIpRel synthesizes an address-independent call/jump to a pointer
// cell reached PC-relative from target: ADR (or ADRP+ADD beyond ±1MiB) to
// form the cell's address in scratch, LDR to load the destination pointer
// stored there, then BR/BLR through it (spec.md §4.B.3 - AArch64 has no
// RIP-relative memory-indirect branch, so amd64's single `call [rip+disp]`
// becomes three or four instructions here).
func (j *JIT) compileIpRel(link bool, pc, target uint64, scratch Register) ([]byte, error) {
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "CallIpRel/JumpIpRel"}
	}
	var b []byte
	delta := int64(target) - int64(pc)
	if delta >= -(1<<20) && delta < (1<<20) {
		adr, err := EncodeADR(scratch, delta)
		if err != nil {
			return nil, err
		}
		b = append(b, adr...)
	} else {
		pageDelta := int64(pageOf(target)) - int64(pageOf(pc))
		adrp, err := EncodeADRP(scratch, pageDelta)
		if err != nil {
			return nil, err
		}
		b = append(b, adrp...)
		if lowBits := uint32(target & 0xfff); lowBits != 0 {
			add, err := EncodeAddSubImmediate(false, scratch, scratch, lowBits)
			if err != nil {
				return nil, err
			}
			b = append(b, add...)
		}
	}
	ldr, err := EncodeLoadStoreUnsignedOffset(true, scratch, scratch, 0)
	if err != nil {
		return nil, err
	}
	b = append(b, ldr...)
	return append(b, EncodeBranchRegister(link, scratch)...), nil
}

// compileXChg has no direct AArch64 encoding; it lowers to a three-register
// shuffle through a scratch, matching the teacher's "emulate via scratch
// when no native opcode exists" approach for operations amd64 has natively
// but arm64 does not.
func (j *JIT) compileXChg(o op.Operation) ([]byte, error) {
	scratch := reg(o.Scratch)
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "XChg"}
	}
	r1, r2 := reg(o.Reg), reg(o.Reg2)
	var b []byte
	mv, err := EncodeMov(r1, scratch)
	if err != nil {
		return nil, err
	}
	b = append(b, mv...)
	mv, err = EncodeMov(r2, r1)
	if err != nil {
		return nil, err
	}
	b = append(b, mv...)
	mv, err = EncodeMov(scratch, r2)
	if err != nil {
		return nil, err
	}
	return append(b, mv...), nil
}

// compileMultiPush/compileMultiPop coalesce adjacent registers into STP/LDP
// pairs, falling back to single Push/Pop for a trailing odd register
// (spec.md §4.B.4).
func (j *JIT) compileMultiPush(regs []arch.Register) ([]byte, error) {
	var b []byte
	i := 0
	for ; i+1 < len(regs); i += 2 {
		r1, r2 := reg(regs[i]), reg(regs[i+1])
		stp, err := EncodeStorePairPreIndexed(r1, r2, SP, -int64(r1.Size())*2)
		if err != nil {
			return nil, err
		}
		b = append(b, stp...)
	}
	if i < len(regs) {
		r := reg(regs[i])
		push, err := EncodeLoadStorePreIndexed(false, r, SP, -int64(r.Size()))
		if err != nil {
			return nil, err
		}
		b = append(b, push...)
	}
	return b, nil
}

func (j *JIT) compileMultiPop(regs []arch.Register) ([]byte, error) {
	// Pop in reverse order of Push to restore LIFO semantics, pairing from
	// the end of the slice backward.
	var b []byte
	i := len(regs) - 1
	if (len(regs)%2 == 1) && i >= 0 {
		r := reg(regs[i])
		pop, err := EncodeLoadStorePostIndexed(true, r, SP, int64(r.Size()))
		if err != nil {
			return nil, err
		}
		b = append(b, pop...)
		i--
	}
	for ; i-1 >= 0; i -= 2 {
		r2, r1 := reg(regs[i]), reg(regs[i-1])
		ldp, err := EncodeLoadPairPostIndexed(r1, r2, SP, int64(r1.Size())*2)
		if err != nil {
			return nil, err
		}
		b = append(b, ldp...)
	}
	return b, nil
}
