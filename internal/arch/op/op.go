// Package op defines the architecture-neutral operation IR that the JIT
// compiles (spec.md §3). It is a tagged variant in the same spirit as
// arm64.NodeImpl/amd64.NodeImpl upstream: one struct, one Kind discriminator,
// and a handful of fields reused differently depending on Kind.
package op

import "github.com/cranehook/hookjit/internal/arch"

// Kind discriminates the variant of an Operation.
type Kind byte

const (
	KindUnknown Kind = iota
	KindMov
	KindMovFromStack
	KindMovToStack
	KindPush
	KindPop
	KindPushStack
	KindPushConst
	KindStackAlloc
	KindXChg
	KindCallAbs
	KindCallRel
	KindCallIpRel
	KindJumpAbs
	KindJumpRel
	KindJumpAbsInd
	KindJumpIpRel
	KindReturn
	KindMultiPush
	KindMultiPop
)

func (k Kind) String() string {
	switch k {
	case KindMov:
		return "Mov"
	case KindMovFromStack:
		return "MovFromStack"
	case KindMovToStack:
		return "MovToStack"
	case KindPush:
		return "Push"
	case KindPop:
		return "Pop"
	case KindPushStack:
		return "PushStack"
	case KindPushConst:
		return "PushConst"
	case KindStackAlloc:
		return "StackAlloc"
	case KindXChg:
		return "XChg"
	case KindCallAbs:
		return "CallAbs"
	case KindCallRel:
		return "CallRel"
	case KindCallIpRel:
		return "CallIpRel"
	case KindJumpAbs:
		return "JumpAbs"
	case KindJumpRel:
		return "JumpRel"
	case KindJumpAbsInd:
		return "JumpAbsInd"
	case KindJumpIpRel:
		return "JumpIpRel"
	case KindReturn:
		return "Return"
	case KindMultiPush:
		return "MultiPush"
	case KindMultiPop:
		return "MultiPop"
	default:
		return "Unknown"
	}
}

// Operation is one element of the IR a Compiler consumes.
//
// Field reuse per Kind:
//
//	Mov           {Src, Tgt}
//	MovFromStack  {Offset, Tgt}
//	MovToStack    {Reg, Offset}
//	Push          {Reg}
//	Pop           {Reg}
//	PushStack     {Offset, Size}
//	PushConst     {Value, Scratch} (both backends load Value into Scratch
//	              and push it; without Scratch they return NoScratchRegister)
//	StackAlloc    {Operand}
//	XChg          {Reg, Reg2, Scratch (optional)}
//	CallAbs       {Target, Scratch}
//	CallRel       {Target}
//	CallIpRel     {Target, Scratch (optional)}
//	JumpAbs       {Target, Scratch}
//	JumpRel       {Target}
//	JumpAbsInd    {Target (holds the pointer address), Scratch (optional)}
//	JumpIpRel     {Target, Scratch (optional)}
//	Return        {Offset}
//	MultiPush     {Regs}
//	MultiPop      {Regs}
type Operation struct {
	Kind Kind

	Src, Tgt arch.Register
	Reg      arch.Register
	Reg2     arch.Register
	Regs     []arch.Register
	Scratch  arch.Register

	Offset  int64
	Size    int
	Operand int32
	Value   uint64
	Target  uint64
}

func Mov(src, tgt arch.Register) Operation { return Operation{Kind: KindMov, Src: src, Tgt: tgt} }

func MovFromStack(offset int64, tgt arch.Register) Operation {
	return Operation{Kind: KindMovFromStack, Offset: offset, Tgt: tgt}
}

func MovToStack(reg arch.Register, offset int64) Operation {
	return Operation{Kind: KindMovToStack, Reg: reg, Offset: offset}
}

func Push(reg arch.Register) Operation { return Operation{Kind: KindPush, Reg: reg} }

func Pop(reg arch.Register) Operation { return Operation{Kind: KindPop, Reg: reg} }

func PushStack(offset int64, size int) Operation {
	return Operation{Kind: KindPushStack, Offset: offset, Size: size}
}

func PushConst(value uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindPushConst, Value: value, Scratch: scratch}
}

func StackAlloc(operand int32) Operation {
	return Operation{Kind: KindStackAlloc, Operand: operand}
}

func XChg(r1, r2, scratch arch.Register) Operation {
	return Operation{Kind: KindXChg, Reg: r1, Reg2: r2, Scratch: scratch}
}

func CallAbs(target uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindCallAbs, Target: target, Scratch: scratch}
}

func CallRel(target uint64) Operation { return Operation{Kind: KindCallRel, Target: target} }

func CallIpRel(target uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindCallIpRel, Target: target, Scratch: scratch}
}

func JumpAbs(target uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindJumpAbs, Target: target, Scratch: scratch}
}

func JumpRel(target uint64) Operation { return Operation{Kind: KindJumpRel, Target: target} }

func JumpAbsInd(ptr uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindJumpAbsInd, Target: ptr, Scratch: scratch}
}

func JumpIpRel(target uint64, scratch arch.Register) Operation {
	return Operation{Kind: KindJumpIpRel, Target: target, Scratch: scratch}
}

func Return(offset int64) Operation { return Operation{Kind: KindReturn, Offset: offset} }

func MultiPush(regs []arch.Register) Operation { return Operation{Kind: KindMultiPush, Regs: regs} }

func MultiPop(regs []arch.Register) Operation { return Operation{Kind: KindMultiPop, Regs: regs} }

// Compiler is the contract every per-ISA JIT backend implements (spec.md
// §4.B). It mirrors asm.AssemblerBase's split between producing a fresh byte
// string and appending to a caller-owned buffer.
type Compiler interface {
	// Compile emits machine code for ops such that, placed at address, it
	// executes each operation in order.
	Compile(address uint64, ops []Operation) ([]byte, error)
	// CompileWithBuf is the same as Compile but appends to buf instead of
	// allocating a fresh byte slice.
	CompileWithBuf(address uint64, ops []Operation, buf *[]byte) error
}
