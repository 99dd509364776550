// Package asmdebug cross-checks the hand-rolled amd64 encoder against
// golang-asm, the Go toolchain's own assembler, for the subset of the
// operation IR it can express. It exists purely for test-time verification
// and is gated behind the debug_asm build tag so the third-party dependency
// never reaches a production build, mirroring wazero's
// internal/asm/amd64_debug package.
//
//go:build debug_asm

package asmdebug

import (
	"bytes"
	"encoding/hex"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/cranehook/hookjit/internal/arch/op"
)

var regToGoAsm = map[uint8]int16{
	0: x86.REG_AX, 1: x86.REG_CX, 2: x86.REG_DX, 3: x86.REG_BX,
	4: x86.REG_SP, 5: x86.REG_BP, 6: x86.REG_SI, 7: x86.REG_DI,
	8: x86.REG_R8, 9: x86.REG_R9, 10: x86.REG_R10, 11: x86.REG_R11,
	12: x86.REG_R12, 13: x86.REG_R13, 14: x86.REG_R14, 15: x86.REG_R15,
}

func mustReg(a interface{ Index() uint8 }) int16 {
	return regToGoAsm[a.Index()]
}

// Encode builds the subset of ops golang-asm can express and returns the
// bytes it assembles, for comparison against amd64.JIT's own output in
// tests. Operations it cannot model return an error rather than silently
// skipping the check.
func Encode(ops []op.Operation, is64 bool) ([]byte, error) {
	arch := "amd64"
	if !is64 {
		arch = "386"
	}
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create golang-asm builder: %w", err)
	}

	movOp, addOp, subOp := x86.AMOVQ, x86.AADDQ, x86.ASUBQ
	if !is64 {
		movOp, addOp, subOp = x86.AMOVL, x86.AADDL, x86.ASUBL
	}
	spReg := int16(x86.REG_SP)

	for _, o := range ops {
		p := b.NewProg()
		switch o.Kind {
		case op.KindMov:
			p.As = movOp
			p.From.Type = obj.TYPE_REG
			p.From.Reg = mustReg(o.Src.(amd64Reg))
			p.To.Type = obj.TYPE_REG
			p.To.Reg = mustReg(o.Tgt.(amd64Reg))

		case op.KindPush:
			p.As = obj.APUSH
			p.From.Type = obj.TYPE_REG
			p.From.Reg = mustReg(o.Reg.(amd64Reg))

		case op.KindPop:
			p.As = obj.APOP
			p.To.Type = obj.TYPE_REG
			p.To.Reg = mustReg(o.Reg.(amd64Reg))

		case op.KindStackAlloc:
			if o.Operand >= 0 {
				p.As = subOp
			} else {
				p.As = addOp
			}
			imm := o.Operand
			if imm < 0 {
				imm = -imm
			}
			p.From.Type = obj.TYPE_CONST
			p.From.Offset = int64(imm)
			p.To.Type = obj.TYPE_REG
			p.To.Reg = spReg

		case op.KindReturn:
			p.As = obj.ARET

		default:
			return nil, fmt.Errorf("asmdebug: unsupported operation kind for cross-check: %s", o.Kind)
		}
		b.AddInstruction(p)
	}
	return b.Assemble(), nil
}

// amd64Reg is satisfied by amd64.Register; declared locally to avoid an
// import cycle while keeping Index() accessible via the interface
// constraint used above.
type amd64Reg interface {
	Index() uint8
}

// CrossCheckHex is a convenience used by tests to produce a readable
// mismatch diagnostic.
func CrossCheckHex(ours, goasmBytes []byte) error {
	if bytes.Equal(ours, goasmBytes) {
		return nil
	}
	return fmt.Errorf("encoder mismatch:\n  ours:   %s\n  goasm:  %s", hex.EncodeToString(ours), hex.EncodeToString(goasmBytes))
}
