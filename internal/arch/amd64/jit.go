package amd64

import (
	"github.com/cranehook/hookjit/hookerr"
	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/internal/arch/op"
)

// JIT compiles the architecture-neutral operation IR to x86 or x86-64
// machine code, depending on Is64 (false selects the 32-bit x86 encodings,
// true selects amd64). It holds no state between calls.
type JIT struct {
	Is64 bool
}

// NewJIT returns a JIT targeting amd64 (is64=true) or x86 (is64=false).
func NewJIT(is64 bool) *JIT { return &JIT{Is64: is64} }

var _ op.Compiler = (*JIT)(nil)

func (j *JIT) sp() Register {
	if j.Is64 {
		return RSP
	}
	return ESP
}

func reg(a arch.Register) Register {
	if r, ok := a.(Register); ok {
		return r
	}
	return Register{}
}

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

func (j *JIT) compileOne(pc uint64, o op.Operation) ([]byte, error) {
	switch o.Kind {
	case op.KindMov:
		return EncodeMov(reg(o.Src), reg(o.Tgt), j.Is64)

	case op.KindMovFromStack:
		return EncodeMovFromStack(reg(o.Tgt), j.sp(), o.Offset, j.Is64)

	case op.KindMovToStack:
		return EncodeMovToStack(reg(o.Reg), j.sp(), o.Offset, j.Is64)

	case op.KindPush:
		return EncodePush(reg(o.Reg)), nil

	case op.KindPop:
		return EncodePop(reg(o.Reg)), nil

	case op.KindPushStack:
		return EncodePushFromStack(j.sp(), o.Offset)

	case op.KindPushConst:
		scratch := reg(o.Scratch)
		if (scratch == Register{}) {
			return nil, &hookerr.NoScratchRegister{Where: "PushConst"}
		}
		b := EncodeMovImm(scratch, o.Value, j.Is64)
		return append(b, EncodePush(scratch)...), nil

	case op.KindStackAlloc:
		return EncodeStackAlloc(j.sp(), o.Operand, j.Is64), nil

	case op.KindXChg:
		return EncodeXChg(reg(o.Reg), reg(o.Reg2), j.Is64)

	case op.KindCallAbs:
		return j.compileAbs(true, o.Target, reg(o.Scratch))

	case op.KindJumpAbs:
		return j.compileAbs(false, o.Target, reg(o.Scratch))

	case op.KindCallRel:
		return EncodeCallRel(int64(o.Target) - int64(pc+5))

	case op.KindJumpRel:
		return EncodeJumpRel(int64(o.Target) - int64(pc+5))

	case op.KindCallIpRel:
		if !j.Is64 {
			return nil, &hookerr.InvalidRegister{Register: "", Reason: "CallIpRel is amd64-only; x86 has no RIP-relative addressing"}
		}
		return EncodeCallRipMem(pc+6, o.Target)

	case op.KindJumpIpRel:
		if !j.Is64 {
			return nil, &hookerr.InvalidRegister{Register: "", Reason: "JumpIpRel is amd64-only; x86 has no RIP-relative addressing"}
		}
		return EncodeJumpRipMem(pc+6, o.Target)

	case op.KindJumpAbsInd:
		return j.compileAbsInd(o.Target, reg(o.Scratch))

	case op.KindReturn:
		return EncodeRet(o.Offset)

	case op.KindMultiPush:
		return j.compileMultiPush(o.Regs)

	case op.KindMultiPop:
		return j.compileMultiPop(o.Regs)

	default:
		return nil, &hookerr.InvalidRegister{Register: "", Reason: "unsupported operation kind: " + o.Kind.String()}
	}
}

// compileAbs materializes target into scratch via movabs/mov-imm then
// calls/jumps through it, mirroring the pattern spec.md §4.B.7-8 describes
// for both ISAs (x86 needs it only when no rel32-reachable thunk exists;
// amd64 needs it whenever the target exceeds rel32's ±2GiB reach).
func (j *JIT) compileAbs(link bool, target uint64, scratch Register) ([]byte, error) {
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "CallAbs/JumpAbs"}
	}
	b := EncodeMovImm(scratch, target, j.Is64)
	if link {
		return append(b, EncodeCallReg(scratch, j.Is64)...), nil
	}
	return append(b, EncodeJumpReg(scratch, j.Is64)...), nil
}

// compileAbsInd encodes JumpAbsInd via the absolute `JMP [ptr]` form when
// ptr fits a 32-bit address, falling back to a scratch-mediated
// load-then-indirect-jump otherwise (amd64's absolute memory addressing
// mode cannot reach a 64-bit pointer cell directly).
func (j *JIT) compileAbsInd(ptr uint64, scratch Register) ([]byte, error) {
	if b, err := EncodeJumpAbsMem(ptr); err == nil {
		return b, nil
	}
	if (scratch == Register{}) {
		return nil, &hookerr.NoScratchRegister{Where: "JumpAbsInd (pointer outside 32-bit address space)"}
	}
	b := EncodeMovImm(scratch, ptr, j.Is64)
	b = append(b, encodeMemOp(0x8b, scratch, scratch, 0, j.Is64)...) // MOV scratch, [scratch]
	return append(b, EncodeJumpReg(scratch, j.Is64)...), nil
}

// compileMultiPush/compileMultiPop lower to sequential single Push/Pop
// instructions: x86/amd64 has no pair-store instruction analogous to
// AArch64's STP/LDP, so there is nothing to coalesce (SPEC_FULL.md's
// "amd64 lowers MultiPush/MultiPop to sequential push/pop" note).
func (j *JIT) compileMultiPush(regs []arch.Register) ([]byte, error) {
	var b []byte
	for _, r := range regs {
		b = append(b, EncodePush(reg(r))...)
	}
	return b, nil
}

func (j *JIT) compileMultiPop(regs []arch.Register) ([]byte, error) {
	var b []byte
	for i := len(regs) - 1; i >= 0; i-- {
		b = append(b, EncodePop(reg(regs[i]))...)
	}
	return b, nil
}
