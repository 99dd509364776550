// Package hookjit is the root of a runtime inline-hooking module for x86,
// x86-64, and AArch64: an architecture-neutral JIT emitter, a code
// relocator/rewriter, a stub-based hook builder, and a buffer allocator
// contract for code memory near an arbitrary anchor address.
//
// The public surface lives in the sub-packages:
//
//   - hook: Build installs a hook at a given address; the returned *Hook
//     toggles between its enabled (redirect to the replacement) and disabled
//     (run the original prologue) states.
//   - buffer: Factory hands out writable, executable memory within a
//     requested distance of an anchor address.
//   - platform: page-protection toggling and instruction-cache maintenance,
//     used by hook.Build and otherwise safe to ignore.
//   - hookerr: the error taxonomy every other package returns.
//   - internal/arch, internal/arch/amd64, internal/arch/arm64: the
//     architecture-neutral operation IR and its two ISA backends.
//
// This package itself declares no types; it exists to hold the module-level
// doc comment.
package hookjit
