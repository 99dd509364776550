// Package amd64 implements the x86 and x86-64 instruction encoders, JIT
// compiler, length oracle, and code rewriter (spec.md §4.B-D), following the
// same register/ModRM conventions the Go assembler's internal/asm/amd64
// package documents.
package amd64

import (
	"fmt"

	"github.com/cranehook/hookjit/internal/arch"
)

// Register is an x86/x86-64 general purpose register. The same index is
// shared between the 32-bit (EAX) and 64-bit (RAX) views; Class says which
// view is meant, mirroring how wazero's amd64 register constants are split
// into 32-bit and 64-bit families sharing one numbering.
type Register struct {
	index uint8
	class arch.RegisterClass
}

// Index returns the 0-15 ModRM/REX.B encoding field.
func (r Register) Index() uint8 { return r.index }

func (r Register) Class() arch.RegisterClass { return r.class }

// IsStackPointer reports whether this is ESP/RSP (index 4).
func (r Register) IsStackPointer() bool { return r.index == 4 && r.class != arch.ClassXMM }

// NeedsREX reports whether referencing this register requires a REX prefix
// byte (any of R8-R15, or SPL/BPL/SIL/DIL when used as byte registers -
// the latter is out of scope since this module never emits 8-bit operands).
func (r Register) NeedsREX() bool { return r.index >= 8 }

func (r Register) Size() int {
	switch r.class {
	case arch.ClassGPR32:
		return 4
	case arch.ClassGPR64:
		return 8
	case arch.ClassX87:
		return 10
	case arch.ClassXMM:
		return 16
	case arch.ClassYMM:
		return 32
	case arch.ClassZMM:
		return 64
	default:
		return 0
	}
}

var gpr32Names = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
var gpr64Names = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Register) String() string {
	switch r.class {
	case arch.ClassGPR32:
		if int(r.index) < len(gpr32Names) {
			return gpr32Names[r.index]
		}
	case arch.ClassGPR64:
		if int(r.index) < len(gpr64Names) {
			return gpr64Names[r.index]
		}
	case arch.ClassXMM:
		return fmt.Sprintf("xmm%d", r.index)
	}
	return "invalid"
}

func r32(i uint8) Register { return Register{index: i, class: arch.ClassGPR32} }
func r64(i uint8) Register { return Register{index: i, class: arch.ClassGPR64} }

// 32-bit (x86) general purpose registers.
var (
	EAX, ECX, EDX, EBX = r32(0), r32(1), r32(2), r32(3)
	ESP, EBP, ESI, EDI = r32(4), r32(5), r32(6), r32(7)
)

// 64-bit (amd64) general purpose registers, including the REX-only extended
// set R8-R15.
var (
	RAX, RCX, RDX, RBX = r64(0), r64(1), r64(2), r64(3)
	RSP, RBP, RSI, RDI = r64(4), r64(5), r64(6), r64(7)
	R8, R9, R10, R11   = r64(8), r64(9), r64(10), r64(11)
	R12, R13, R14, R15 = r64(12), r64(13), r64(14), r64(15)
)

// AsArch upcasts a Register to the architecture-neutral interface.
func (r Register) AsArch() arch.Register { return r }

// StackPointer returns the ISA's stack pointer register for the given
// pointer width (4 for x86, 8 for amd64).
func StackPointer(pointerSize int) Register {
	if pointerSize == 4 {
		return ESP
	}
	return RSP
}
