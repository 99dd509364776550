package arm64

import (
	"fmt"

	"github.com/cranehook/hookjit/internal/arch"
)

// Register is an AArch64 register. Naming conventions intentionally match
// the Go assembler, the same choice wazero documents for its own arm64
// register constants.
type Register struct {
	index uint8
	class arch.RegisterClass
	// sp marks the two encodings (X31 as SP, vs. X31/WZR as the zero
	// register) that share index 31 but behave differently.
	sp bool
}

// Index returns the register's 0-31 encoding field.
func (r Register) Index() uint8 { return r.index }

// IsZero reports whether this is the zero register (XZR/WZR) rather than SP.
func (r Register) IsZero() bool { return r.index == 31 && !r.sp }

func (r Register) Class() arch.RegisterClass { return r.class }

func (r Register) IsStackPointer() bool { return r.sp }

func (r Register) Size() int {
	switch r.class {
	case arch.ClassArm64W:
		return 4
	case arch.ClassArm64X:
		return 8
	case arch.ClassArm64V:
		return 16
	default:
		return 0
	}
}

func (r Register) String() string {
	if r.sp {
		return "sp"
	}
	switch r.class {
	case arch.ClassArm64W:
		if r.index == 31 {
			return "wzr"
		}
		return fmt.Sprintf("w%d", r.index)
	case arch.ClassArm64X:
		if r.index == 31 {
			return "xzr"
		}
		return fmt.Sprintf("x%d", r.index)
	case arch.ClassArm64V:
		return fmt.Sprintf("v%d", r.index)
	default:
		return "invalid"
	}
}

func x(i uint8) Register { return Register{index: i, class: arch.ClassArm64X} }
func w(i uint8) Register { return Register{index: i, class: arch.ClassArm64W} }
func v(i uint8) Register { return Register{index: i, class: arch.ClassArm64V} }

// 64-bit general purpose registers X0-X30, plus XZR and SP.
var (
	X0, X1, X2, X3, X4, X5, X6, X7     = x(0), x(1), x(2), x(3), x(4), x(5), x(6), x(7)
	X8, X9, X10, X11, X12, X13, X14, X15 = x(8), x(9), x(10), x(11), x(12), x(13), x(14), x(15)
	X16, X17, X18, X19, X20, X21, X22, X23 = x(16), x(17), x(18), x(19), x(20), x(21), x(22), x(23)
	X24, X25, X26, X27, X28, X29, X30 = x(24), x(25), x(26), x(27), x(28), x(29), x(30)
	XZR                               = x(31)
	SP                                = Register{index: 31, class: arch.ClassArm64X, sp: true}
)

// 32-bit views W0-W30, plus WZR.
var (
	W0, W1, W2, W3, W4, W5, W6, W7     = w(0), w(1), w(2), w(3), w(4), w(5), w(6), w(7)
	W8, W9, W10, W11, W12, W13, W14, W15 = w(8), w(9), w(10), w(11), w(12), w(13), w(14), w(15)
	W16, W17, W18, W19, W20, W21, W22, W23 = w(16), w(17), w(18), w(19), w(20), w(21), w(22), w(23)
	W24, W25, W26, W27, W28, W29, W30 = w(24), w(25), w(26), w(27), w(28), w(29), w(30)
	WZR                               = w(31)
)

// Vector registers V0-V7 (used only where the spec's catalog needs them;
// this module's IR does not emit SIMD operations, but the type exists for
// completeness of the register model described in spec.md §3).
var (
	V0, V1, V2, V3, V4, V5, V6, V7 = v(0), v(1), v(2), v(3), v(4), v(5), v(6), v(7)
)

// AsArch upcasts a Register to the architecture-neutral interface; it exists
// so call sites building op.Operation values don't need an explicit
// conversion at every use.
func (r Register) AsArch() arch.Register { return r }
