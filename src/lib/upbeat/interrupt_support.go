package upbeat

import (
	"rtcore/src/lib/trust"
)

// ExceptionClassName names the class field (ESR bits 26-31) of a
// synchronous exception.
func ExceptionClassName(exceptionClass uint64) string {
	switch exceptionClass {
	case 0:
		return "unknown exception"
	case 1:
		return "trapped WFE or WFI instruction"
	case 3:
		return "trapped MCR or MRC access"
	case 4:
		return "trapped MCRR or MRRC access"
	case 5:
		return "trapped MCR or MRC access"
	case 6:
		return "trapped LDC or STC access"
	case 7:
		return "access to SVE, advanced SIMD or FP functionality"
	case 12:
		return "trapped to MRRC access"
	case 13:
		return "branch target exception"
	case 14:
		return "illegal execution state"
	case 17:
		return "SVC instruction in AARCH32"
	case 21:
		return "SVC instruction in AARCH64"
	case 24:
		return "trapped MRS, MSR or System instruction in AARCH64"
	case 25:
		return "access to SVE functionality"
	case 32:
		return "instruction abort from lower exception level"
	case 33:
		return "instruction abort from same exception level"
	case 34:
		return "PC alignment fault"
	case 36:
		return "data abort from lower exception level"
	case 37:
		return "data abort from same exception level"
	case 38:
		return "SP alignment fault"
	case 40:
		return "trapped floating point exception from AARCH32"
	case 44:
		return "trapped floating point exception from AARCH64"
	case 47:
		return "SError exception"
	case 48:
		return "Breakpoint from lower exception level"
	case 49:
		return "Breakpoint from same exception level"
	case 50:
		return "Software step from lower exception level"
	case 51:
		return "Software step from same exception level"
	case 52:
		return "Watchpoint from lower exception level"
	case 53:
		return "Watchpoint from same exception level"
	case 56:
		return "BKPT from AARCH32"
	case 60:
		return "BRK from AARCH64"
	}
	return "unused exception code, should never happen"
}

func PrintoutException(esr uint64, c *trust.Logger) {
	exceptionClass := esr >> 26 & 0x3f
	switch exceptionClass {
	case 17, 21:
		c.Errorf("%s [%d]", ExceptionClassName(exceptionClass), esr&0xffff)
	default:
		c.Errorf("%s (%d)", ExceptionClassName(exceptionClass), exceptionClass)
	}
}
