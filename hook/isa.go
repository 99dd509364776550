package hook

import (
	"fmt"

	"github.com/cranehook/hookjit/internal/arch"
	"github.com/cranehook/hookjit/internal/arch/amd64"
	"github.com/cranehook/hookjit/internal/arch/arm64"
	"github.com/cranehook/hookjit/internal/arch/op"
)

// target bundles the per-ISA collaborators the builder drives: the JIT
// compiler (for redirection/branch-back branches), the rewriter (for
// relocating the hooked prologue), and the length oracle (for finding N).
// It is the architecture-neutral seam spec.md §2's dataflow describes
// ("F asks C for the prologue length... asks B to emit a jump...").
type target struct {
	isa             arch.ISA
	compiler        op.Compiler
	shortBranchSize int
	nopUnit         []byte
	cover           func(code []byte, minBytes int) (int, error)
	rewrite         func(code []byte, oldAddr, newAddr uint64, scratch arch.Register) ([]byte, error)
}

func newTarget(isa arch.ISA) (*target, error) {
	switch isa {
	case arch.ISAAMD64:
		jit := amd64.NewJIT(true)
		rw := amd64.NewRewriter(true)
		lo := amd64.NewLengthOracle(true)
		return &target{
			isa:             isa,
			compiler:        jit,
			shortBranchSize: 5, // JMP rel32
			nopUnit:         []byte{0x90},
			cover:           lo.MinimumInstructionsToCover,
			rewrite: func(code []byte, oldAddr, newAddr uint64, scratch arch.Register) ([]byte, error) {
				return rw.Rewrite(code, oldAddr, newAddr, toAmd64Reg(scratch))
			},
		}, nil

	case arch.ISAX86:
		jit := amd64.NewJIT(false)
		rw := amd64.NewRewriter(false)
		lo := amd64.NewLengthOracle(false)
		return &target{
			isa:             isa,
			compiler:        jit,
			shortBranchSize: 5, // JMP rel32
			nopUnit:         []byte{0x90},
			cover:           lo.MinimumInstructionsToCover,
			rewrite: func(code []byte, oldAddr, newAddr uint64, scratch arch.Register) ([]byte, error) {
				return rw.Rewrite(code, oldAddr, newAddr, toAmd64Reg(scratch))
			},
		}, nil

	case arch.ISAArm64:
		jit := arm64.NewJIT()
		rw := arm64.NewRewriter()
		lo := arm64.NewLengthOracle()
		return &target{
			isa:             isa,
			compiler:        jit,
			shortBranchSize: 4, // B
			nopUnit:         []byte{0x1f, 0x20, 0x03, 0xd5},
			cover: func(code []byte, minBytes int) (int, error) {
				return lo.MinimumInstructionsToCover(minBytes), nil
			},
			rewrite: func(code []byte, oldAddr, newAddr uint64, scratch arch.Register) ([]byte, error) {
				return rw.Rewrite(code, oldAddr, newAddr, toArm64Reg(scratch))
			},
		}, nil
	}
	return nil, fmt.Errorf("hook: unsupported ISA %v", isa)
}

func toAmd64Reg(a arch.Register) amd64.Register {
	if r, ok := a.(amd64.Register); ok {
		return r
	}
	return amd64.Register{}
}

func toArm64Reg(a arch.Register) arm64.Register {
	if r, ok := a.(arm64.Register); ok {
		return r
	}
	return arm64.Register{}
}

// nopPad returns n bytes of no-op filler, built from t.nopUnit (1 byte on
// x86/amd64, 4 bytes on AArch64 where every instruction is fixed-width).
func (t *target) nopPad(n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, t.nopUnit...)
	}
	return out[:n]
}

// branch builds a jump from address `from` to `to`: a relative jump when the
// JIT can encode one in range, otherwise an absolute jump through scratch.
// This reuses the same op.Compiler every other package drives instead of
// hand-rolling a second branch encoder in the hook builder.
func (t *target) branch(from, to uint64, scratch arch.Register) ([]byte, error) {
	if b, err := t.compiler.Compile(from, []op.Operation{op.JumpRel(to)}); err == nil {
		return b, nil
	}
	if scratch == nil {
		return nil, fmt.Errorf("hook: target at 0x%x is out of relative branch range of 0x%x and no scratch register was supplied", to, from)
	}
	return t.compiler.Compile(from, []op.Operation{op.JumpAbs(to, scratch)})
}
