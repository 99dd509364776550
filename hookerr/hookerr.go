// Package hookerr defines the error taxonomy shared by the encoders, JIT,
// rewriter, buffer factory, and hook builder. Every error is a value; none of
// the packages in this module panic on malformed caller input.
package hookerr

import "fmt"

// OperandOutOfRange reports that an immediate or branch offset exceeded the
// instruction's documented field width.
type OperandOutOfRange struct {
	Instruction string
	Min, Max    int64
	Value       int64
}

func (e *OperandOutOfRange) Error() string {
	return fmt.Sprintf("%s: operand %d out of range [%d, %d]", e.Instruction, e.Value, e.Min, e.Max)
}

// InvalidOffset reports a branch or load offset that violates the ISA's
// alignment requirement.
type InvalidOffset struct {
	Value            int64
	MustBeDivisibleBy int64
}

func (e *InvalidOffset) Error() string {
	return fmt.Sprintf("offset %d must be a multiple of %d", e.Value, e.MustBeDivisibleBy)
}

// InvalidRegister reports a register that is the wrong size or class for the
// instruction being encoded.
type InvalidRegister struct {
	Register string
	Reason   string
}

func (e *InvalidRegister) Error() string {
	return fmt.Sprintf("invalid register %s: %s", e.Register, e.Reason)
}

// InvalidRegisterCombination reports a forbidden pair of registers, e.g. a
// Mov whose source and destination differ in size or class.
type InvalidRegisterCombination struct {
	R1, R2 string
	Reason string
}

func (e *InvalidRegisterCombination) Error() string {
	return fmt.Sprintf("invalid register combination (%s, %s): %s", e.R1, e.R2, e.Reason)
}

// NoScratchRegister reports that an operation requiring a scratch register
// was not given one.
type NoScratchRegister struct {
	Where string
}

func (e *NoScratchRegister) Error() string {
	return fmt.Sprintf("no scratch register supplied for %s", e.Where)
}

// ThirdPartyAssemblerError wraps an opaque failure surfaced by an external
// assembler oracle (used only by the debug cross-check encoders).
type ThirdPartyAssemblerError struct {
	Message string
	Err     error
}

func (e *ThirdPartyAssemblerError) Error() string {
	return fmt.Sprintf("third-party assembler: %s: %v", e.Message, e.Err)
}

func (e *ThirdPartyAssemblerError) Unwrap() error { return e.Err }

// FailedToDisasm reports that the rewriter or length oracle could not decode
// an instruction at the given offset.
type FailedToDisasm struct {
	Offset         uint64
	RemainingBytes int
}

func (e *FailedToDisasm) Error() string {
	return fmt.Sprintf("failed to disassemble at offset 0x%x (%d bytes remaining)", e.Offset, e.RemainingBytes)
}

// InsufficientBytes reports that the length oracle ran out of input before
// reaching the requested minimum byte count.
type InsufficientBytes struct {
	Requested, Available int
}

func (e *InsufficientBytes) Error() string {
	return fmt.Sprintf("insufficient bytes: requested at least %d, only %d available", e.Requested, e.Available)
}

// TooManyBytes reports that the hook builder could not fit its patch within
// the caller's max_permitted_bytes budget.
type TooManyBytes struct {
	Actual, Max int
}

func (e *TooManyBytes) Error() string {
	return fmt.Sprintf("patch requires %d bytes, exceeding the permitted maximum of %d", e.Actual, e.Max)
}

// RewriteSource identifies which code the rewriter was relocating when a
// RewriteError occurred.
type RewriteSource byte

const (
	SourceUnknown RewriteSource = iota
	SourceOriginalCode
	SourceCustomCode
	SourceHookCodeAtHook
	SourceOrigCodeAtOrig
)

func (s RewriteSource) String() string {
	switch s {
	case SourceOriginalCode:
		return "original-code"
	case SourceCustomCode:
		return "custom-code"
	case SourceHookCodeAtHook:
		return "hook-code-at-hook"
	case SourceOrigCodeAtOrig:
		return "orig-code-at-orig"
	default:
		return "unknown"
	}
}

// RewriteError reports a relocation failure, with provenance about which
// code region was being relocated and where it was headed.
type RewriteError struct {
	Source         RewriteSource
	OldLoc, NewLoc uint64
	Inner          error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite failed for %s (0x%x -> 0x%x): %v", e.Source, e.OldLoc, e.NewLoc, e.Inner)
}

func (e *RewriteError) Unwrap() error { return e.Inner }
