package vm

import "strings"

// Opcode identifies one machine operation. The byte values are part of
// the image format and must never be renumbered.
type Opcode uint8

const (
	OpHLT  Opcode = 0x00
	OpLOAD Opcode = 0x01
	OpADD  Opcode = 0x02
	OpSUB  Opcode = 0x03
	OpMUL  Opcode = 0x04
	OpDIV  Opcode = 0x05
	OpJMP  Opcode = 0x06
	OpJMPF Opcode = 0x07
	OpJMPB Opcode = 0x08
	OpEQ   Opcode = 0x09
	OpNEQ  Opcode = 0x0A
	OpGT   Opcode = 0x0B
	OpLT   Opcode = 0x0C
	OpGTQ  Opcode = 0x0D
	OpLTQ  Opcode = 0x0E
	OpJEQ  Opcode = 0x0F
	OpJNEQ Opcode = 0x10
	OpALOC Opcode = 0x11
	OpINC  Opcode = 0x12
	OpDEC  Opcode = 0x13

	// OpIGL marks an unknown mnemonic or an undefined opcode byte.
	OpIGL Opcode = 0xFF
)

// RecordSize is the fixed width of every encoded record.
const RecordSize = 4

// NumRegisters is the size of the register file.
const NumRegisters = 32

// MaxHeapBytes is the largest heap ALOC will allocate.
const MaxHeapBytes = 16 << 20

var mnemonics = map[Opcode]string{
	OpHLT:  "hlt",
	OpLOAD: "load",
	OpADD:  "add",
	OpSUB:  "sub",
	OpMUL:  "mul",
	OpDIV:  "div",
	OpJMP:  "jmp",
	OpJMPF: "jmpf",
	OpJMPB: "jmpb",
	OpEQ:   "eq",
	OpNEQ:  "neq",
	OpGT:   "gt",
	OpLT:   "lt",
	OpGTQ:  "gtq",
	OpLTQ:  "ltq",
	OpJEQ:  "jeq",
	OpJNEQ: "jneq",
	OpALOC: "aloc",
	OpINC:  "inc",
	OpDEC:  "dec",
	OpIGL:  "igl",
}

var byMnemonic = map[string]Opcode{
	"jmpe": OpJEQ,
}

// arity is the operand count each opcode expects in source form.
var arity = map[Opcode]int{
	OpHLT:  0,
	OpLOAD: 2,
	OpADD:  3,
	OpSUB:  3,
	OpMUL:  3,
	OpDIV:  3,
	OpJMP:  1,
	OpJMPF: 1,
	OpJMPB: 1,
	OpEQ:   2,
	OpNEQ:  2,
	OpGT:   2,
	OpLT:   2,
	OpGTQ:  2,
	OpLTQ:  2,
	OpJEQ:  1,
	OpJNEQ: 1,
	OpALOC: 1,
	OpINC:  1,
	OpDEC:  1,
}

func init() {
	for op, name := range mnemonics {
		if op == OpIGL {
			continue
		}
		byMnemonic[name] = op
	}
}

// Decode maps a raw byte to its opcode. Undefined bytes decode to OpIGL.
func Decode(b byte) Opcode {
	op := Opcode(b)
	if _, ok := arity[op]; ok {
		return op
	}
	return OpIGL
}

// LookupMnemonic resolves a case-insensitive mnemonic. Unknown text
// resolves to OpIGL rather than failing.
func LookupMnemonic(s string) Opcode {
	if op, ok := byMnemonic[strings.ToLower(s)]; ok {
		return op
	}
	return OpIGL
}

// Arity returns the number of source operands op expects. ok is false
// for OpIGL, which has no signature.
func (op Opcode) Arity() (n int, ok bool) {
	n, ok = arity[op]
	return n, ok
}

// Valid reports whether op has defined semantics.
func (op Opcode) Valid() bool {
	_, ok := arity[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := mnemonics[op]; ok {
		return strings.ToUpper(name)
	}
	return "IGL"
}

// Mnemonic returns the lower-case source spelling of op.
func (op Opcode) Mnemonic() string {
	if name, ok := mnemonics[op]; ok {
		return name
	}
	return "igl"
}
