package vm

import (
	"errors"
	"fmt"
)

// Fault causes.
var (
	ErrIllegalOpcode        = errors.New("illegal opcode")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrOverflow             = errors.New("integer overflow")
	ErrInvalidRegister      = errors.New("invalid register")
	ErrTruncatedInstruction = errors.New("truncated instruction")
	ErrInvalidJump          = errors.New("invalid jump target")
	ErrInvalidAllocation    = errors.New("invalid heap allocation")
	ErrStepLimitExceeded    = errors.New("step limit exceeded")
)

var faultCauses = []error{
	ErrIllegalOpcode,
	ErrDivisionByZero,
	ErrOverflow,
	ErrInvalidRegister,
	ErrTruncatedInstruction,
	ErrInvalidJump,
	ErrInvalidAllocation,
	ErrStepLimitExceeded,
}

// Fault is a runtime condition that stopped execution. PC is the code
// offset of the record that raised it.
type Fault struct {
	PC   int
	Byte byte
	Err  error
}

func (f *Fault) Error() string {
	op := Decode(f.Byte)
	if op == OpIGL {
		return fmt.Sprintf("%v at pc %d (byte 0x%02X)", f.Err, f.PC, f.Byte)
	}
	return fmt.Sprintf("%v at pc %d (%s)", f.Err, f.PC, op)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func causeFromText(s string) error {
	for _, c := range faultCauses {
		if c.Error() == s {
			return c
		}
	}
	return errors.New(s)
}
