// Package vm implements the register machine that executes bytecode
// images produced by the asm package.
//
// A Machine owns a 32-slot register file of signed 32-bit values, a
// program counter measured in bytes from the start of the code section,
// a growable zero-filled heap, the remainder of the last division and the
// flag written by the last comparison. Every record is 4 bytes wide:
// [opcode, operand, operand, operand].
package vm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// LevelTrace is the slog level used for per-instruction tracing.
const LevelTrace = slog.LevelDebug - 4

// State is the execution state of a Machine.
type State int

const (
	Running State = iota
	Halted
	IllegalOpcode
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case IllegalOpcode:
		return "illegal-opcode"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range []State{Running, Halted, IllegalOpcode, Faulted} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown machine state %q", s)
}

// Terminal reports whether no further instruction will execute without a
// Seek or Run.
func (s State) Terminal() bool {
	return s != Running
}

type Machine struct {
	registers [NumRegisters]int32
	pc        int
	program   []byte
	codeStart int
	heap      []byte
	remainder int32
	equalFlag bool

	state State
	err   error
	steps uint64

	// StepLimit bounds the number of instructions a machine executes.
	// Zero means unlimited.
	StepLimit uint64

	// Logger receives diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates an empty machine.
func New() *Machine {
	return &Machine{}
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Load appends b to the program.
func (m *Machine) Load(b []byte) {
	m.program = append(m.program, b...)
}

// Reset clears the program and all execution state. StepLimit and Logger
// are kept.
func (m *Machine) Reset() {
	*m = Machine{StepLimit: m.StepLimit, Logger: m.Logger}
}

// Seek moves the program counter to off within the code section and makes
// the machine runnable again.
func (m *Machine) Seek(off int) error {
	if off < 0 || off > len(m.code()) {
		return fmt.Errorf("seek to %d: %w", off, ErrInvalidJump)
	}
	m.pc = off
	m.state = Running
	m.err = nil
	return nil
}

// Run verifies the image header, then executes from the first record of
// the code section until the machine halts or faults. A header mismatch
// executes nothing.
func (m *Machine) Run() error {
	if err := VerifyHeader(m.program); err != nil {
		m.state = Faulted
		m.err = err
		m.logger().Error("refusing to execute image", "err", err)
		return err
	}
	m.codeStart = HeaderLength
	m.pc = 0
	m.state = Running
	m.err = nil
	m.steps = 0
	return m.Continue()
}

// Continue steps from the current pc until the machine reaches a terminal
// state. No header check is made.
func (m *Machine) Continue() error {
	for m.state == Running {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return m.err
}

// Step executes exactly one dispatch cycle. On a machine that is already
// in a terminal state it does nothing and returns the error that stopped
// it, if any.
func (m *Machine) Step() error {
	if m.state.Terminal() {
		return m.err
	}

	code := m.code()
	if m.pc < 0 {
		return m.fault(m.pc, 0, ErrInvalidJump)
	}
	if m.pc >= len(code) {
		m.state = Halted
		return nil
	}
	if m.StepLimit > 0 && m.steps >= m.StepLimit {
		return m.fault(m.pc, code[m.pc], ErrStepLimitExceeded)
	}

	start := m.pc
	raw := code[start]
	m.pc++
	m.steps++
	op := Decode(raw)

	ctx := context.Background()
	if l := m.logger(); l.Enabled(ctx, LevelTrace) {
		l.Log(ctx, LevelTrace, "exec", "pc", start, "op", op.String())
	}

	switch op {
	case OpHLT:
		m.state = Halted
		return nil
	case OpIGL:
		return m.illegal(start, raw)
	}

	if start+RecordSize > len(code) {
		return m.fault(start, raw, ErrTruncatedInstruction)
	}
	a, b, c := code[start+1], code[start+2], code[start+3]
	next := start + RecordSize
	m.pc = next

	switch op {
	case OpLOAD:
		if a >= NumRegisters {
			return m.fault(start, raw, ErrInvalidRegister)
		}
		m.registers[a] = int32(uint16(b)<<8 | uint16(c))

	case OpADD, OpSUB, OpMUL, OpDIV:
		if a >= NumRegisters || b >= NumRegisters || c >= NumRegisters {
			return m.fault(start, raw, ErrInvalidRegister)
		}
		x, y := int64(m.registers[a]), int64(m.registers[b])
		var res int64
		switch op {
		case OpADD:
			res = x + y
		case OpSUB:
			res = x - y
		case OpMUL:
			res = x * y
		case OpDIV:
			if y == 0 {
				return m.fault(start, raw, ErrDivisionByZero)
			}
			res = x / y
		}
		if res > math.MaxInt32 || res < math.MinInt32 {
			return m.fault(start, raw, ErrOverflow)
		}
		m.registers[c] = int32(res)
		if op == OpDIV {
			m.remainder = int32(x % y)
		}

	case OpJMP:
		target, err := m.read(a)
		if err != nil {
			return m.fault(start, raw, err)
		}
		return m.jump(start, raw, int64(target))

	case OpJMPF, OpJMPB:
		v, err := m.read(a)
		if err != nil {
			return m.fault(start, raw, err)
		}
		// Relative jumps count from the record after this one, not from
		// the byte after the register operand.
		if op == OpJMPF {
			return m.jump(start, raw, int64(next)+int64(v))
		}
		return m.jump(start, raw, int64(next)-int64(v))

	case OpEQ, OpNEQ, OpGT, OpLT, OpGTQ, OpLTQ:
		if a >= NumRegisters || b >= NumRegisters {
			return m.fault(start, raw, ErrInvalidRegister)
		}
		x, y := m.registers[a], m.registers[b]
		switch op {
		case OpEQ:
			m.equalFlag = x == y
		case OpNEQ:
			m.equalFlag = x != y
		case OpGT:
			m.equalFlag = x > y
		case OpLT:
			m.equalFlag = x < y
		case OpGTQ:
			m.equalFlag = x >= y
		case OpLTQ:
			m.equalFlag = x <= y
		}

	case OpJEQ, OpJNEQ:
		target, err := m.read(a)
		if err != nil {
			return m.fault(start, raw, err)
		}
		if m.equalFlag == (op == OpJEQ) {
			return m.jump(start, raw, int64(target))
		}

	case OpALOC:
		size, err := m.read(a)
		if err != nil {
			return m.fault(start, raw, err)
		}
		if size < 0 || size > MaxHeapBytes {
			return m.fault(start, raw, ErrInvalidAllocation)
		}
		m.heap = make([]byte, size)

	case OpINC, OpDEC:
		v, err := m.read(a)
		if err != nil {
			return m.fault(start, raw, err)
		}
		if (op == OpINC && v == math.MaxInt32) || (op == OpDEC && v == math.MinInt32) {
			return m.fault(start, raw, ErrOverflow)
		}
		if op == OpINC {
			m.registers[a] = v + 1
		} else {
			m.registers[a] = v - 1
		}
	}
	return nil
}

func (m *Machine) code() []byte {
	if m.codeStart > len(m.program) {
		return nil
	}
	return m.program[m.codeStart:]
}

func (m *Machine) read(r byte) (int32, error) {
	if r >= NumRegisters {
		return 0, ErrInvalidRegister
	}
	return m.registers[r], nil
}

// jump moves the pc to an absolute code offset. Targets past the end of
// the code section are legal and end execution on the next cycle.
func (m *Machine) jump(start int, raw byte, target int64) error {
	if target < 0 || target > math.MaxInt32 {
		return m.fault(start, raw, ErrInvalidJump)
	}
	m.pc = int(target)
	return nil
}

func (m *Machine) illegal(start int, raw byte) error {
	f := &Fault{PC: start, Byte: raw, Err: ErrIllegalOpcode}
	m.state = IllegalOpcode
	m.err = f
	m.logger().Warn("unrecognized opcode, halting", "pc", start, "byte", raw)
	return f
}

// fault stops the machine with pc left on the offending record.
func (m *Machine) fault(start int, raw byte, cause error) error {
	f := &Fault{PC: start, Byte: raw, Err: cause}
	m.pc = start
	m.state = Faulted
	m.err = f
	m.logger().Error("execution fault", "pc", start, "op", Decode(raw).String(), "err", cause)
	return f
}

// Registers returns a copy of the register file.
func (m *Machine) Registers() [NumRegisters]int32 {
	return m.registers
}

// Register returns the value of register i, or 0 if i is out of range.
func (m *Machine) Register(i int) int32 {
	if i < 0 || i >= NumRegisters {
		return 0
	}
	return m.registers[i]
}

// PC returns the program counter as an offset into the code section.
func (m *Machine) PC() int { return m.pc }

func (m *Machine) HeapLen() int { return len(m.heap) }

// Heap returns a copy of the heap.
func (m *Machine) Heap() []byte {
	return append([]byte(nil), m.heap...)
}

func (m *Machine) Remainder() int32 { return m.remainder }

func (m *Machine) EqualFlag() bool { return m.equalFlag }

func (m *Machine) State() State { return m.state }

// Err returns the error that put the machine in its terminal state.
func (m *Machine) Err() error { return m.err }

// Steps returns the number of instructions dispatched since the last Run.
func (m *Machine) Steps() uint64 { return m.steps }

// Program returns a copy of every loaded byte, header included.
func (m *Machine) Program() []byte {
	return append([]byte(nil), m.program...)
}

// Code returns a copy of the code section.
func (m *Machine) Code() []byte {
	return append([]byte(nil), m.code()...)
}
