// Package asm turns mnemonic source into bytecode images for the vm
// package. Assembly runs in two passes over the parsed program: the first
// binds every label to the offset of its record, the second encodes each
// record into exactly vm.RecordSize bytes.
package asm

import (
	"fmt"
	"strings"

	"bumbam/pkg/vm"
)

// directives lists the accepted directive names and their operand count.
var directives = map[string]int{
	"code":   0,
	"data":   0,
	"asciiz": 1,
}

// Assembler holds the symbol table of its most recent assembly. Each call
// to Assemble or AssembleCode starts from an empty table.
type Assembler struct {
	symbols *SymbolTable
}

func NewAssembler() *Assembler {
	return &Assembler{symbols: NewSymbolTable()}
}

// Assemble assembles src into a header-prefixed image. The returned map
// takes each record's code offset to its source line.
func Assemble(src string) ([]byte, map[uint32]int, error) {
	return NewAssembler().Assemble(src)
}

// AssembleCode is like Assemble but returns the bare code section.
func AssembleCode(src string) ([]byte, map[uint32]int, error) {
	return NewAssembler().AssembleCode(src)
}

func (a *Assembler) Assemble(src string) ([]byte, map[uint32]int, error) {
	code, sourceMap, err := a.AssembleCode(src)
	if err != nil {
		return nil, nil, err
	}
	return vm.NewImage(code), sourceMap, nil
}

func (a *Assembler) AssembleCode(src string) ([]byte, map[uint32]int, error) {
	return a.AssembleCodeAt(src, 0)
}

// AssembleCodeAt assembles src as if its first record sat at code offset
// base, for code appended after an existing program. Label values and
// source map keys are absolute; the returned code starts at base.
func (a *Assembler) AssembleCodeAt(src string, base uint32) ([]byte, map[uint32]int, error) {
	if base%vm.RecordSize != 0 {
		return nil, nil, fmt.Errorf("base offset %d is not a multiple of %d", base, vm.RecordSize)
	}
	a.symbols = NewSymbolTable()

	prog, err := Parse(src)
	if err != nil {
		return nil, nil, err
	}
	if err := a.pass1(prog, base); err != nil {
		return nil, nil, err
	}
	return a.pass2(prog, base)
}

// Symbols returns the table built by the last assembly.
func (a *Assembler) Symbols() *SymbolTable {
	return a.symbols
}

func (a *Assembler) pass1(prog []Instruction, base uint32) error {
	offset := base
	for _, in := range prog {
		if in.Label != "" {
			err := a.symbols.Add(Symbol{Name: in.Label, Offset: offset, Kind: SymbolLabel, Line: in.Line})
			if err != nil {
				return err
			}
		}
		offset += vm.RecordSize
	}
	return nil
}

func (a *Assembler) pass2(prog []Instruction, base uint32) ([]byte, map[uint32]int, error) {
	code := make([]byte, 0, len(prog)*vm.RecordSize)
	sourceMap := make(map[uint32]int, len(prog))

	for _, in := range prog {
		rec, err := a.encode(in)
		if err != nil {
			return nil, nil, err
		}
		sourceMap[base+uint32(len(code))] = in.Line
		code = append(code, rec[:]...)
	}
	return code, sourceMap, nil
}

// encode lays out one record. Directives occupy a slot filled with the
// illegal opcode so that executing data halts the machine.
func (a *Assembler) encode(in Instruction) ([vm.RecordSize]byte, error) {
	var rec [vm.RecordSize]byte

	if in.IsDirective() {
		want, ok := directives[in.Directive]
		if !ok {
			return rec, &OperandError{Line: in.Line, Name: "." + in.Directive, Reason: "unknown directive"}
		}
		if len(in.Operands) != want {
			return rec, &OperandError{Line: in.Line, Name: "." + in.Directive, Reason: fmt.Sprintf("expects %d operands, got %d", want, len(in.Operands))}
		}
		for _, t := range in.Operands {
			if t.Kind != TokenString {
				return rec, &OperandError{Line: in.Line, Name: "." + in.Directive, Reason: "expects a string literal, got " + t.Kind.String()}
			}
		}
		rec[0] = byte(vm.OpIGL)
		return rec, nil
	}

	name := in.Mnemonic
	if name == "" {
		name = in.Opcode.Mnemonic()
	}
	if n, ok := in.Opcode.Arity(); ok && len(in.Operands) != n {
		return rec, &OperandError{Line: in.Line, Name: name, Reason: fmt.Sprintf("expects %d operands, got %d", n, len(in.Operands))}
	}

	rec[0] = byte(in.Opcode)
	pos := 1
	for i, t := range in.Operands {
		switch t.Kind {
		case TokenRegister:
			if pos >= vm.RecordSize {
				return rec, &OperandError{Line: in.Line, Name: name, Reason: "operands do not fit in one record"}
			}
			rec[pos] = t.Reg
			pos++

		case TokenInteger, TokenLabelUsage:
			if i != len(in.Operands)-1 {
				return rec, &OperandError{Line: in.Line, Name: name, Reason: t.Kind.String() + " operand must be last"}
			}
			if pos > 2 {
				return rec, &OperandError{Line: in.Line, Name: name, Reason: "operands do not fit in one record"}
			}
			v := uint16(t.Value)
			if t.Kind == TokenLabelUsage {
				off, ok := a.symbols.Lookup(t.Name)
				if !ok {
					return rec, &UnresolvedSymbolError{Name: t.Name, Line: in.Line}
				}
				v = uint16(off)
			}
			rec[2] = byte(v >> 8)
			rec[3] = byte(v)
			pos = vm.RecordSize

		default:
			return rec, &OperandError{Line: in.Line, Name: name, Reason: t.Kind.String() + " not allowed as an instruction operand"}
		}
	}
	return rec, nil
}

// Disassemble renders a code section as source, one record per line with
// its offset in a trailing comment. Unused operand bytes are dropped and
// label usages come back as plain integers, so reassembling well-formed
// code yields a program with the same behavior. A trailing partial record
// is listed as a comment only.
func Disassemble(code []byte) string {
	var sb strings.Builder
	off := 0
	for ; off+vm.RecordSize <= len(code); off += vm.RecordSize {
		fmt.Fprintf(&sb, "%-20s ; %04d\n", formatRecord(code[off:off+vm.RecordSize]), off)
	}
	if off < len(code) {
		fmt.Fprintf(&sb, "; %04d: truncated record % x\n", off, code[off:])
	}
	return sb.String()
}

func formatRecord(rec []byte) string {
	op := vm.Decode(rec[0])
	a, b, c := rec[1], rec[2], rec[3]
	switch op {
	case vm.OpHLT, vm.OpIGL:
		return op.Mnemonic()
	case vm.OpLOAD:
		return fmt.Sprintf("%s $%d #%d", op.Mnemonic(), a, uint16(b)<<8|uint16(c))
	case vm.OpADD, vm.OpSUB, vm.OpMUL, vm.OpDIV:
		return fmt.Sprintf("%s $%d $%d $%d", op.Mnemonic(), a, b, c)
	case vm.OpEQ, vm.OpNEQ, vm.OpGT, vm.OpLT, vm.OpGTQ, vm.OpLTQ:
		return fmt.Sprintf("%s $%d $%d", op.Mnemonic(), a, b)
	}
	return fmt.Sprintf("%s $%d", op.Mnemonic(), a)
}
